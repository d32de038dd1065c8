package console

import (
	"io"
	"os"

	"memtest/device"
)

// Standard dimensions of the text-mode status screen.
const (
	DefaultColumns = 80
	DefaultRows    = 25
)

// ProbeFuncs returns the probe functions for the consoles that can render
// onto out, in order of preference. The in-memory VGA console always probes
// successfully and acts as the fallback when out is not a terminal.
func ProbeFuncs(out *os.File) []device.ProbeFn {
	return []device.ProbeFn{
		func() device.Driver {
			return NewTermConsole(DefaultColumns, DefaultRows, int(out.Fd()), out)
		},
		func() device.Driver {
			return NewVgaTextConsole(DefaultColumns, DefaultRows)
		},
	}
}

// Flusher is implemented by consoles that buffer output until flushed.
type Flusher interface {
	Flush() error
}

// Dumper is implemented by consoles that can render their contents as
// plain text.
type Dumper interface {
	Dump(io.Writer) error
}
