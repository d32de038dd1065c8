// Package runner orchestrates a memory test run. Each processor is modelled
// as a goroutine; all of them execute the same loop and meet at a phase
// barrier before and after every test. The processor with ordinal 0 is the
// master: it selects the next test, keeps track of progress and handles
// operator input.
package runner

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"memtest/kernel"
	"memtest/kernel/kfmt"
	"memtest/kernel/mem"
	"memtest/kernel/mem/memmap"
	"memtest/kernel/memtest/algo"
	"memtest/kernel/memtest/display"
	"memtest/kernel/memtest/errinfo"
	"memtest/kernel/memtest/seq"
	"memtest/kernel/sync"
)

var (
	// sleepFn is used by Sleep to give up the processor between clock
	// samples. It is mocked by tests.
	sleepFn = time.Sleep

	// sleepGranularity is the interval between two clock samples while
	// sleeping.
	sleepGranularity = 10 * time.Millisecond

	errNoTests = &kernel.Error{Module: "runner", Message: "no tests are enabled"}
)

// Clock is a monotonic cycle counter.
type Clock interface {
	// Cycles returns the current value of the counter.
	Cycles() uint64

	// CyclesPerMs returns the number of cycles per millisecond.
	CyclesPerMs() uint64
}

// Config controls a run.
type Config struct {
	// CPUs is the number of processors that participate in the run.
	CPUs int

	// Passes is the number of passes to run. A value of 0 runs until the
	// operator aborts the run.
	Passes int

	// IterScale is a percentage applied to the iteration count of every
	// test.
	IterScale int

	// Window is the number of words processed between two ticks.
	Window uint64

	// FadeDelay is the time the bit fade test waits before checking
	// memory.
	FadeDelay time.Duration
}

// Result summarizes a completed run.
type Result struct {
	Passes  int
	Errors  uint64
	Aborted bool
	Elapsed time.Duration
	State   errinfo.State
}

// Runner executes a test sequence over a memory map.
type Runner struct {
	cfg    Config
	memMap *memmap.Map
	tests  seq.Sequence
	agg    *errinfo.Aggregator
	screen display.Surface
	clock  Clock
	input  InputPoller

	refreshFn func()
	randFn    func(cpu int) algo.RandSource

	// abort stops the run after the current test.
	abort sync.Flag

	// modeRequest asks the master to cycle the error display mode.
	modeRequest sync.Flag
	inputLock   sync.Spinlock

	// phase separates tests; it is never cancelled.
	phase *sync.Barrier

	// The fields below are written by the master before the phase
	// barrier and read by every processor after it.
	stop    bool
	test    int
	iter    int
	single  bool
	barrier *sync.Barrier
	cancel  atomic.Pointer[sync.Flag]

	// failed is set once an internal error has been displayed.
	failLock sync.Spinlock
	failed   bool

	progress progress
}

// New returns a runner for the given memory map and test sequence. Errors
// are reported to agg and progress is drawn on screen.
func New(cfg Config, m *memmap.Map, tests seq.Sequence, agg *errinfo.Aggregator, screen display.Surface, clock Clock, input InputPoller) *Runner {
	if cfg.CPUs < 1 {
		cfg.CPUs = 1
	}
	if cfg.Window == 0 {
		cfg.Window = mem.SpinWindowWords
	}

	r := &Runner{
		cfg:    cfg,
		memMap: m,
		tests:  tests,
		agg:    agg,
		screen: screen,
		clock:  clock,
		input:  input,
		phase:  sync.NewBarrier(cfg.CPUs, nil),
		randFn: func(cpu int) algo.RandSource {
			return algo.NewPCG(uint32(cpu)+1, 0x9e3779b9)
		},
	}
	r.cancel.Store(&sync.Flag{})

	agg.SetInputHook(r.pollInput)
	return r
}

// SetRefresh registers a function that the master calls after updating the
// screen, e.g. to flush a terminal.
func (r *Runner) SetRefresh(fn func()) {
	r.refreshFn = fn
}

// Abort stops the run at the next opportunity.
func (r *Runner) Abort() {
	r.abort.Set()
	r.cancel.Load().Set()
}

// Pass returns the number of completed passes.
func (r *Runner) Pass() int {
	return r.progress.pass
}

// FadeDelay returns the configured bit fade delay.
func (r *Runner) FadeDelay() time.Duration {
	return r.cfg.FadeDelay
}

// Sleep waits for d, ticking once for every elapsed second. It returns early
// once the running test is cancelled.
func (r *Runner) Sleep(env *algo.Env, d time.Duration) {
	var (
		perMs   = r.cyclesPerMs()
		start   = r.clock.Cycles()
		lastSec uint64
	)

	for {
		elapsedMs := (r.clock.Cycles() - start) / perMs
		if sec := elapsedMs / 1000; sec != lastSec {
			lastSec = sec
			if env.Tick != nil {
				env.Tick()
			}
		}

		if env.Cancelled() || time.Duration(elapsedMs)*time.Millisecond >= d {
			return
		}

		sleepFn(sleepGranularity)
	}
}

// Run executes the configured number of passes, or runs until aborted
// either by the operator or by ctx.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if r.tests.Enabled() == 0 {
		return Result{}, errNoTests
	}

	r.start()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			r.Abort()
		case <-done:
		}
	}()

	var g errgroup.Group
	for cpu := 0; cpu < r.cfg.CPUs; cpu++ {
		g.Go(func() error {
			return r.cpuLoop(cpu)
		})
	}
	err := g.Wait()
	close(done)

	return r.finish(), err
}

// start resets the aggregate and draws the static parts of the screen.
func (r *Runner) start() {
	r.agg.StartRun()
	r.agg.StartPass(0)
	r.progress.reset(r.clock.Cycles())
	r.drawStatic()
	r.refresh()

	kfmt.Logf("runner", "testing %s in %d range(s) with %d cpu(s)", r.memMap.Size(), r.memMap.Len(), r.cfg.CPUs)
}

func (r *Runner) finish() Result {
	st := r.agg.Snapshot()
	res := Result{
		Passes:  r.progress.pass,
		Errors:  st.Errors,
		Aborted: r.abort.IsSet(),
		Elapsed: r.elapsed(),
		State:   st,
	}

	kfmt.Logf("runner", "run finished after %d pass(es) with %d error(s)", res.Passes, res.Errors)
	return res
}

// cpuLoop is executed by every processor. A processor that hits an internal
// error keeps taking part in the phase barriers until the master stops the
// run and then returns the error if it was the one displayed.
func (r *Runner) cpuLoop(cpu int) error {
	var failure error
	master := cpu == 0
	env := &algo.Env{
		CPU:    cpu,
		Map:    r.memMap,
		Window: r.cfg.Window,
		Report: r.agg,
		Rand:   r.randFn(cpu),
	}
	if master {
		env.Display = r
	}

	for {
		if master {
			r.stop = r.abort.IsSet() || r.passesDone()
			if !r.stop {
				r.nextTest()
			}
		}
		r.phase.Wait()

		if r.stop {
			return failure
		}

		if !r.single || master {
			if err := r.runTest(env); err != nil && r.fail(err) {
				failure = err
			}
		}
		r.phase.Wait()

		if master {
			r.endTest()
		}
	}
}

// runTest executes the selected test on the calling processor.
func (r *Runner) runTest(env *algo.Env) *kernel.Error {
	env.NumCPUs = r.cfg.CPUs
	if r.single {
		env.NumCPUs = 1
	}
	env.Cancel = r.cancel.Load()
	env.Barrier = r.barrier
	env.Tick = r.tickFn(env.CPU, env.Barrier, !r.single)

	return r.tests[r.test].Run(r, env, r.iter)
}

// fail stops the run and displays err if no other internal error was
// displayed before. It returns true if err was displayed.
func (r *Runner) fail(err *kernel.Error) bool {
	r.failLock.Acquire()
	first := !r.failed
	r.failed = true
	r.failLock.Release()

	r.Abort()
	if first {
		r.agg.InternalError(err)
	}
	return first
}

// passesDone returns true once the configured number of passes completed.
func (r *Runner) passesDone() bool {
	return r.cfg.Passes > 0 && r.progress.pass >= r.cfg.Passes
}

// nextTest selects the next enabled test and prepares the barrier and the
// cancel flag used while it runs. It is executed by the master.
func (r *Runner) nextTest() {
	p := &r.progress

	for {
		p.next++
		if p.next >= len(r.tests) {
			p.next = 0
		}
		if r.tests[p.next].Enabled {
			break
		}
	}

	entry := &r.tests[p.next]
	r.test = p.next
	r.iter = entry.Iter(p.pass, r.cfg.IterScale)
	r.single = entry.Mode == seq.Single

	cancel := &sync.Flag{}
	participants := r.cfg.CPUs
	if r.single {
		participants = 1
	}
	r.barrier = sync.NewBarrier(participants, cancel)
	r.cancel.Store(cancel)

	// Abort may have raised the previous flag after the stop check.
	if r.abort.IsSet() {
		cancel.Set()
	}

	if p.passTicks == 0 {
		p.passTotal = r.passTicks()
	}
	p.testTicks, p.testTotal = 0, r.testTicks(r.test, r.iter)

	r.agg.StartTest(r.test)
	r.drawTest(entry)
	kfmt.Logf("runner", "pass %d test #%d [%s] iterations %d", p.pass, r.test, entry.Name, r.iter)
}

// endTest updates the pass counters once all processors finished the
// current test. It is executed by the master.
func (r *Runner) endTest() {
	p := &r.progress

	if r.lastEnabled(r.test) && !r.abort.IsSet() {
		p.pass++
		p.passTicks = 0
		r.agg.StartPass(p.pass)

		count := r.agg.Snapshot().Errors
		r.drawPass(count)
		kfmt.Logf("runner", "pass %d complete, %d error(s) so far", p.pass, count)
	}

	r.refresh()
}

// lastEnabled returns true if test is the last enabled test of the
// sequence.
func (r *Runner) lastEnabled(test int) bool {
	for i := test + 1; i < len(r.tests); i++ {
		if r.tests[i].Enabled {
			return false
		}
	}
	return r.tests[test].Enabled
}

// testTicks estimates the number of ticks emitted by test.
func (r *Runner) testTicks(test, iter int) uint64 {
	entry := &r.tests[test]

	numCPUs := r.cfg.CPUs
	if entry.Mode == seq.Single {
		numCPUs = 1
	}

	env := algo.Env{NumCPUs: numCPUs, Map: r.memMap, Window: r.cfg.Window}
	return entry.Estimate(iter, r.cfg.FadeDelay).Ticks(env.SlicedTicks(), env.UnslicedTicks())
}

// passTicks estimates the number of ticks emitted by a whole pass.
func (r *Runner) passTicks() uint64 {
	var total uint64
	for i := range r.tests {
		if r.tests[i].Enabled {
			total += r.testTicks(i, r.tests[i].Iter(r.progress.pass, r.cfg.IterScale))
		}
	}
	return total
}

func (r *Runner) elapsed() time.Duration {
	ms := (r.clock.Cycles() - r.progress.startCycles) / r.cyclesPerMs()
	return time.Duration(ms) * time.Millisecond
}

func (r *Runner) cyclesPerMs() uint64 {
	if perMs := r.clock.CyclesPerMs(); perMs != 0 {
		return perMs
	}
	return 1
}

func (r *Runner) refresh() {
	if r.refreshFn != nil {
		r.refreshFn()
	}
}
