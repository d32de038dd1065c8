// Package kfmt routes the engine's diagnostic output. Output produced before
// a sink is attached is buffered and replayed once SetOutputSink is called.
package kfmt

import (
	"fmt"
	"io"
	"sync"
)

var (
	sinkMu sync.Mutex

	// earlyPrintBuffer is a ring buffer that stores Printf output before an
	// output sink is attached.
	earlyPrintBuffer ringBuffer

	// outputSink is an io.Writer where Printf will send its output. If set
	// to nil, then the output will be redirected to the earlyPrintBuffer.
	outputSink io.Writer
)

// SetOutputSink sets the default target for calls to Printf to w and copies
// any data accumulated in the earlyPrintBuffer to it.
func SetOutputSink(w io.Writer) {
	sinkMu.Lock()
	defer sinkMu.Unlock()

	outputSink = w
	if w != nil {
		_, _ = io.Copy(w, &earlyPrintBuffer)
	}
}

// GetOutputSink returns the currently attached output sink or nil if output
// is being buffered.
func GetOutputSink() io.Writer {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	return outputSink
}

// Printf formats according to a format specifier and writes to the active
// output sink. Calls from different processors are serialized.
func Printf(format string, args ...interface{}) {
	sinkMu.Lock()
	defer sinkMu.Unlock()

	if outputSink == nil {
		_, _ = fmt.Fprintf(&earlyPrintBuffer, format, args...)
		return
	}
	_, _ = fmt.Fprintf(outputSink, format, args...)
}

// Fprintf behaves like Printf but writes to w. If w is nil, the output is
// sent to the early print buffer.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	if w == nil {
		sinkMu.Lock()
		defer sinkMu.Unlock()
		w = &earlyPrintBuffer
	}
	_, _ = fmt.Fprintf(w, format, args...)
}

// Logf emits a single line tagged with the supplied module name.
func Logf(module, format string, args ...interface{}) {
	Printf("["+module+"] "+format+"\n", args...)
}
