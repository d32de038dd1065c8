package kfmt

import "io"

// ringBufferSize defines the size of the ring buffer that captures Printf
// output emitted before an output sink is attached. It holds the contents
// of a standard 80*25 text-mode console and must always be a power of 2.
const ringBufferSize = 2048

// ringBuffer keeps the most recent ringBufferSize bytes written to it.
// Older bytes are silently overwritten.
type ringBuffer struct {
	buffer [ringBufferSize]byte
	head   int
	size   int
}

// Write appends p to the buffer, discarding the oldest bytes on overflow.
func (rb *ringBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		rb.buffer[(rb.head+rb.size)&(ringBufferSize-1)] = b
		if rb.size == ringBufferSize {
			rb.head = (rb.head + 1) & (ringBufferSize - 1)
			continue
		}
		rb.size++
	}

	return len(p), nil
}

// Read drains up to len(p) buffered bytes into p. It returns io.EOF once
// the buffer is empty.
func (rb *ringBuffer) Read(p []byte) (int, error) {
	if rb.size == 0 {
		return 0, io.EOF
	}

	n := rb.size
	if tail := ringBufferSize - rb.head; n > tail {
		n = tail
	}
	if n > len(p) {
		n = len(p)
	}

	copy(p, rb.buffer[rb.head:rb.head+n])
	rb.head = (rb.head + n) & (ringBufferSize - 1)
	rb.size -= n

	return n, nil
}

// Len returns the number of buffered bytes.
func (rb *ringBuffer) Len() int {
	return rb.size
}
