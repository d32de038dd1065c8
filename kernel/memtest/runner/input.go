package runner

// Action is an operator request.
type Action uint8

const (
	// ActionNone means that no input is pending.
	ActionNone Action = iota

	// ActionAbort stops the run.
	ActionAbort

	// ActionSkip cancels the running test and moves on to the next one.
	ActionSkip

	// ActionMode cycles the error display mode.
	ActionMode
)

// InputPoller returns pending operator requests without blocking.
type InputPoller interface {
	Poll() Action
}

// pollInput handles pending operator requests. It may be invoked by any
// processor, including from within the error aggregator, so it never calls
// back into the aggregator; display mode changes are applied by the master
// on its next tick.
func (r *Runner) pollInput() {
	if r.input == nil || !r.inputLock.TryToAcquire() {
		return
	}
	action := r.input.Poll()
	r.inputLock.Release()

	switch action {
	case ActionAbort:
		r.Abort()
	case ActionSkip:
		r.cancel.Load().Set()
	case ActionMode:
		r.modeRequest.Set()
	}
}

// applyModeRequest cycles the error display mode if the operator asked for
// it.
func (r *Runner) applyModeRequest() {
	if !r.modeRequest.IsSet() {
		return
	}
	r.modeRequest.Clear()
	r.agg.SetMode(r.agg.Mode().Next())
}
