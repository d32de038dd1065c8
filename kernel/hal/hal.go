// Package hal selects the host devices used by a run: the console that shows
// the status screen, the keyboard poller and the speaker.
package hal

import (
	"io"
	"os"

	"memtest/device"
	"memtest/device/clock"
	"memtest/device/input"
	"memtest/device/speaker"
	"memtest/device/video/console"
	"memtest/kernel"
	"memtest/kernel/memtest/errinfo"
	"memtest/kernel/memtest/runner"
)

var (
	errNoConsole = &kernel.Error{Module: "hal", Message: "no console driver could be initialized"}

	// The following functions are mocked by tests.
	consoleProbesFn = console.ProbeFuncs
	inputProbesFn   = func(in *os.File) []device.ProbeFn {
		return []device.ProbeFn{
			func() device.Driver { return input.NewTermPoller(int(in.Fd())) },
		}
	}
	speakerProbesFn = func() []device.ProbeFn {
		return []device.ProbeFn{
			func() device.Driver { return speaker.NewOtoBeeper() },
		}
	}
)

// Hardware holds the devices selected by DetectHardware.
type Hardware struct {
	Console console.Device

	// Input is nil if no operator input is available.
	Input runner.InputPoller

	Beeper errinfo.Beeper
	Clock  runner.Clock

	closers []io.Closer
}

// DetectHardware probes the host devices. Driver diagnostics are written to
// w. The console renders onto out and operator keys are read from in. When
// beep is false, or no audio output is available, the terminal bell is used
// instead of the speaker.
func DetectHardware(w io.Writer, in, out *os.File, beep bool) (*Hardware, *kernel.Error) {
	hw := &Hardware{
		Beeper: speaker.Nop{},
		Clock:  clock.NewMonotonic(),
	}

	drv := device.Probe(w, consoleProbesFn(out)...)
	if drv == nil {
		return nil, errNoConsole
	}
	hw.Console = drv.(console.Device)
	hw.track(drv)

	if drv = device.Probe(w, inputProbesFn(in)...); drv != nil {
		hw.Input = drv.(runner.InputPoller)
		hw.track(drv)
	}

	if beep {
		hw.Beeper = speaker.Bell{W: out}
		if drv = device.Probe(w, speakerProbesFn()...); drv != nil {
			hw.Beeper = drv.(errinfo.Beeper)
			hw.track(drv)
		}
	}

	return hw, nil
}

func (hw *Hardware) track(drv device.Driver) {
	if c, ok := drv.(io.Closer); ok {
		hw.closers = append(hw.closers, c)
	}
}

// Flush writes any buffered console output.
func (hw *Hardware) Flush() {
	if f, ok := hw.Console.(console.Flusher); ok {
		_ = f.Flush()
	}
}

// Close releases the devices in reverse probe order.
func (hw *Hardware) Close() {
	for i := len(hw.closers) - 1; i >= 0; i-- {
		_ = hw.closers[i].Close()
	}
	hw.closers = nil
}
