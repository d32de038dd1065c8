package sync

import "sync/atomic"

// Flag is a boolean that can be raised by one processor and observed by all
// others without locking.
type Flag struct {
	state uint32
}

// Set raises the flag.
func (f *Flag) Set() {
	atomic.StoreUint32(&f.state, 1)
}

// Clear lowers the flag.
func (f *Flag) Clear() {
	atomic.StoreUint32(&f.state, 0)
}

// IsSet returns true if the flag is raised. A nil flag is never set.
func (f *Flag) IsSet() bool {
	return f != nil && atomic.LoadUint32(&f.state) != 0
}
