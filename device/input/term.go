// Package input polls the operator's keyboard without blocking.
package input

import (
	"io"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"memtest/kernel"
	"memtest/kernel/memtest/runner"
)

const keyEsc = 0x1b

var (
	errNotATerminal = &kernel.Error{Module: "term_input", Message: "input is not a terminal"}
	errRawMode      = &kernel.Error{Module: "term_input", Message: "could not switch the terminal to raw mode"}
	errNonblock     = &kernel.Error{Module: "term_input", Message: "could not enable non-blocking reads"}

	// The following functions are mocked by tests.
	isTerminalFn  = term.IsTerminal
	makeRawFn     = term.MakeRaw
	restoreFn     = term.Restore
	setNonblockFn = unix.SetNonblock
	readFn        = unix.Read
)

// TermPoller reads operator keys from a terminal in raw, non-blocking mode.
// It recognizes Esc and q (abort), s (skip test) and m (next error display
// mode).
type TermPoller struct {
	fd       int
	oldState *term.State
	nonblock bool
	buf      [16]byte
}

// NewTermPoller returns a poller for the terminal referenced by fd.
func NewTermPoller(fd int) *TermPoller {
	return &TermPoller{fd: fd}
}

// DriverName returns the name of this driver.
func (p *TermPoller) DriverName() string {
	return "term_input"
}

// DriverVersion returns the version of this driver.
func (p *TermPoller) DriverVersion() (uint16, uint16, uint16) {
	return 0, 1, 0
}

// DriverInit switches the terminal to raw mode and enables non-blocking
// reads.
func (p *TermPoller) DriverInit(_ io.Writer) *kernel.Error {
	if !isTerminalFn(p.fd) {
		return errNotATerminal
	}

	oldState, err := makeRawFn(p.fd)
	if err != nil {
		return errRawMode
	}
	p.oldState = oldState

	if err := setNonblockFn(p.fd, true); err != nil {
		_ = restoreFn(p.fd, p.oldState)
		p.oldState = nil
		return errNonblock
	}
	p.nonblock = true

	return nil
}

// Poll returns the most significant action among the keys typed since the
// previous call. Abort requests take precedence over everything else.
func (p *TermPoller) Poll() runner.Action {
	n, err := readFn(p.fd, p.buf[:])
	if err != nil || n <= 0 {
		return runner.ActionNone
	}
	return decode(p.buf[:n])
}

// Close restores the terminal.
func (p *TermPoller) Close() error {
	if p.nonblock {
		_ = setNonblockFn(p.fd, false)
		p.nonblock = false
	}

	if p.oldState != nil {
		err := restoreFn(p.fd, p.oldState)
		p.oldState = nil
		return err
	}

	return nil
}

// decode maps a burst of keys to an action.
func decode(keys []byte) runner.Action {
	action := runner.ActionNone
	for i, key := range keys {
		switch key {
		case keyEsc:
			// Escape sequences (e.g. arrow keys) start with Esc followed
			// by '['; a lone Esc aborts.
			if i+1 < len(keys) && keys[i+1] == '[' {
				return action
			}
			return runner.ActionAbort
		case 'q', 'Q':
			return runner.ActionAbort
		case 's', 'S':
			action = runner.ActionSkip
		case 'm', 'M':
			if action == runner.ActionNone {
				action = runner.ActionMode
			}
		}
	}
	return action
}
