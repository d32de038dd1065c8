package speaker

import (
	"encoding/binary"
	"io"
	"math"
	"time"
)

// squareWave is an io.Reader producing a mono float32 little endian square
// wave of a fixed length.
type squareWave struct {
	period    int
	remaining int
	pos       int
}

func newSquareWave(hz int, d time.Duration) *squareWave {
	return &squareWave{
		period:    sampleRate / hz,
		remaining: int(int64(sampleRate) * int64(d) / int64(time.Second)),
	}
}

// Read implements io.Reader.
func (w *squareWave) Read(p []byte) (int, error) {
	if w.remaining == 0 {
		return 0, io.EOF
	}

	n := 0
	for ; n+4 <= len(p) && w.remaining > 0; n += 4 {
		v := float32(amplitude)
		if w.period > 0 && w.pos%w.period >= w.period/2 {
			v = -v
		}
		binary.LittleEndian.PutUint32(p[n:], math.Float32bits(v))

		w.pos++
		w.remaining--
	}

	return n, nil
}
