// Package device defines the contract shared by the peripherals that the
// memory test drives: the console, the keyboard poller and the speaker.
package device

import (
	"bytes"
	"io"

	"memtest/kernel"
	"memtest/kernel/kfmt"
)

// Driver is an interface implemented by all drivers.
type Driver interface {
	// DriverName returns the name of the driver.
	DriverName() string

	// DriverVersion returns the driver version.
	DriverVersion() (major uint16, minor uint16, patch uint16)

	// DriverInit initializes the device driver. If the driver init code
	// needs to log some output, it can use the supplied io.Writer in
	// conjunction with a call to kfmt.Fprintf.
	DriverInit(io.Writer) *kernel.Error
}

// ProbeFn is a function that scans for the presence of a particular
// piece of hardware and returns a driver for it. It returns nil if the
// hardware is not present.
type ProbeFn func() Driver

// Probe invokes each probe function in order and returns the first driver
// that successfully initializes. Every line written by a driver while it
// initializes is prefixed with the driver name and version.
func Probe(w io.Writer, probes ...ProbeFn) Driver {
	var (
		prefix bytes.Buffer
		pw     = kfmt.PrefixWriter{Sink: w}
	)

	for _, probe := range probes {
		drv := probe()
		if drv == nil {
			continue
		}

		major, minor, patch := drv.DriverVersion()
		prefix.Reset()
		kfmt.Fprintf(&prefix, "[%s %d.%d.%d] ", drv.DriverName(), major, minor, patch)
		pw.Prefix = prefix.Bytes()

		if err := drv.DriverInit(&pw); err != nil {
			kfmt.Fprintf(&pw, "init failed: %s\n", err.Message)
			continue
		}

		kfmt.Fprintf(&pw, "initialized\n")
		return drv
	}

	return nil
}
