// Package kmain assembles and executes a memory test run: it reserves the
// test arena, builds the test sequence, the error aggregator and the runner
// and wires them to the detected hardware.
package kmain

import (
	"context"
	"fmt"

	"memtest/kernel/config"
	"memtest/kernel/hal"
	"memtest/kernel/kfmt"
	"memtest/kernel/mem/arena"
	"memtest/kernel/mem/memmap"
	"memtest/kernel/memtest/display"
	"memtest/kernel/memtest/errinfo"
	"memtest/kernel/memtest/runner"
	"memtest/kernel/memtest/seq"
)

var (
	// sizeFromPercentFn is mocked by tests.
	sizeFromPercentFn = arena.SizeFromPercent
)

// Session describes a completed run.
type Session struct {
	Result runner.Result
	Tests  seq.Sequence
	Map    *memmap.Map

	// Errors holds the final error aggregate and BadRAM patterns.
	Errors *errinfo.Aggregator

	// Locked is true if the tested memory was locked into RAM.
	Locked bool
}

// Kmain runs the memory test described by cfg on hw. It returns once the
// configured passes complete, the operator aborts the run or ctx is
// cancelled. A Session is returned whenever the run started, even if it
// ended with an error.
func Kmain(ctx context.Context, cfg config.Config, hw *hal.Hardware) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	tests := seq.Standard()
	if len(cfg.Tests) != 0 {
		if err := tests.Select(cfg.Tests); err != nil {
			return nil, err
		}
	}

	size, err := cfg.ArenaSize()
	if err != nil {
		return nil, err
	}
	if size == 0 {
		if size, err = sizeFromPercentFn(cfg.Arena.Percent); err != nil {
			return nil, err
		}
	}

	a, err := arena.New(size, cfg.Arena.Segments, cfg.Arena.Lock)
	if err != nil {
		return nil, err
	}
	defer func() { _ = a.Close() }()

	kfmt.Logf("kmain", "reserved %s in %d segment(s), locked: %t", a.Size(), a.Map().Len(), a.Locked())

	mode, _ := cfg.DisplayMode()
	overflow, _ := cfg.OverflowPolicy()

	screen := display.NewScreen(hw.Console)
	agg := errinfo.New(a.Map(), screen, tests.BadRAMSafe(), errinfo.Config{
		Mode:        mode,
		Beep:        cfg.Beep,
		Weights:     cfg.Weights,
		MaxPatterns: cfg.MaxPatterns,
		Overflow:    overflow,
		Hold:        cfg.Hold,
	})
	agg.SetBeeper(hw.Beeper)

	r := runner.New(runner.Config{
		CPUs:      cfg.CPUs,
		Passes:    cfg.Passes,
		IterScale: cfg.IterScale,
		Window:    cfg.Window,
		FadeDelay: cfg.FadeDelay,
	}, a.Map(), tests, agg, screen, hw.Clock, hw.Input)
	r.SetRefresh(hw.Flush)

	s := &Session{
		Tests:  tests,
		Map:    a.Map(),
		Errors: agg,
		Locked: a.Locked(),
	}

	s.Result, err = r.Run(ctx)
	if serr := a.VerifySentinels(); serr != nil {
		kfmt.Logf("kmain", "%v", serr)
		if err == nil {
			err = serr
		}
	}

	return s, err
}
