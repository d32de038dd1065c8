package input

import (
	"errors"
	"testing"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"memtest/kernel/memtest/runner"
)

func TestDecode(t *testing.T) {
	specs := []struct {
		keys string
		exp  runner.Action
	}{
		{"", runner.ActionNone},
		{"x", runner.ActionNone},
		{"\x1b", runner.ActionAbort},
		{"q", runner.ActionAbort},
		{"s", runner.ActionSkip},
		{"m", runner.ActionMode},
		{"ms", runner.ActionSkip},
		{"sm", runner.ActionSkip},
		{"sq", runner.ActionAbort},
		{"\x1b[A", runner.ActionNone},
		{"m\x1b[B", runner.ActionMode},
	}

	for specIndex, spec := range specs {
		if got := decode([]byte(spec.keys)); got != spec.exp {
			t.Errorf("[spec %d] expected %q to decode to %d; got %d", specIndex, spec.keys, spec.exp, got)
		}
	}
}

func mockTerm(t *testing.T) {
	origIsTerminal, origMakeRaw, origRestore, origNonblock, origRead := isTerminalFn, makeRawFn, restoreFn, setNonblockFn, readFn
	t.Cleanup(func() {
		isTerminalFn, makeRawFn, restoreFn, setNonblockFn, readFn = origIsTerminal, origMakeRaw, origRestore, origNonblock, origRead
	})

	isTerminalFn = func(int) bool { return true }
	makeRawFn = func(int) (*term.State, error) { return &term.State{}, nil }
	restoreFn = func(int, *term.State) error { return nil }
	setNonblockFn = func(int, bool) error { return nil }
}

func TestDriverInit(t *testing.T) {
	t.Run("not a terminal", func(t *testing.T) {
		mockTerm(t)
		isTerminalFn = func(int) bool { return false }

		if err := NewTermPoller(0).DriverInit(nil); err != errNotATerminal {
			t.Fatalf("expected errNotATerminal; got %v", err)
		}
	})

	t.Run("raw mode failure", func(t *testing.T) {
		mockTerm(t)
		makeRawFn = func(int) (*term.State, error) { return nil, errors.New("nope") }

		if err := NewTermPoller(0).DriverInit(nil); err != errRawMode {
			t.Fatalf("expected errRawMode; got %v", err)
		}
	})

	t.Run("nonblock failure restores the terminal", func(t *testing.T) {
		mockTerm(t)
		var restored bool
		restoreFn = func(int, *term.State) error { restored = true; return nil }
		setNonblockFn = func(int, bool) error { return errors.New("nope") }

		if err := NewTermPoller(0).DriverInit(nil); err != errNonblock {
			t.Fatalf("expected errNonblock; got %v", err)
		}
		if !restored {
			t.Fatal("expected the terminal to be restored")
		}
	})

	t.Run("success", func(t *testing.T) {
		mockTerm(t)

		var nonblock []bool
		setNonblockFn = func(_ int, v bool) error { nonblock = append(nonblock, v); return nil }

		p := NewTermPoller(0)
		if err := p.DriverInit(nil); err != nil {
			t.Fatal(err)
		}
		if err := p.Close(); err != nil {
			t.Fatal(err)
		}

		if len(nonblock) != 2 || !nonblock[0] || nonblock[1] {
			t.Fatalf("expected non-blocking mode to be enabled and then disabled; got %v", nonblock)
		}
	})
}

func TestPoll(t *testing.T) {
	mockTerm(t)

	reads := []string{"s", ""}
	readFn = func(_ int, p []byte) (int, error) {
		if len(reads) == 0 {
			return -1, unix.EAGAIN
		}
		n := copy(p, reads[0])
		reads = reads[1:]
		return n, nil
	}

	p := NewTermPoller(0)
	for specIndex, exp := range []runner.Action{runner.ActionSkip, runner.ActionNone, runner.ActionNone} {
		if got := p.Poll(); got != exp {
			t.Errorf("[spec %d] expected %d; got %d", specIndex, exp, got)
		}
	}
}
