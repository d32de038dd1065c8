package kfmt

import (
	"bytes"
	"io"
)

// PrefixWriter is an io.Writer that wraps another io.Writer and injects a
// prefix at the beginning of each line.
type PrefixWriter struct {
	// A writer where all writes get sent to. A nil Sink sends output to
	// the early print buffer.
	Sink io.Writer

	// The prefix injected at the beginning of each line.
	Prefix []byte

	midLine bool
}

// Write writes len(p) bytes from p to the underlying data stream. The
// injected prefix is not included in the number of written bytes returned
// by this method.
func (w *PrefixWriter) Write(p []byte) (int, error) {
	var (
		written int
		sink    = w.Sink
	)

	if sink == nil {
		sink = earlyWriter{}
	}

	for len(p) != 0 {
		if !w.midLine {
			if _, err := sink.Write(w.Prefix); err != nil {
				return written, err
			}
			w.midLine = true
		}

		line := p
		if index := bytes.IndexByte(p, '\n'); index != -1 {
			line = p[:index+1]
			w.midLine = false
		}

		n, err := sink.Write(line)
		written += n
		if err != nil {
			return written, err
		}
		p = p[len(line):]
	}

	return written, nil
}

// earlyWriter appends to the early print buffer.
type earlyWriter struct{}

func (earlyWriter) Write(p []byte) (int, error) {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	return earlyPrintBuffer.Write(p)
}
