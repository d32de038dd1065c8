package speaker

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"testing"
	"time"

	"github.com/ebitengine/oto/v3"
)

func TestSquareWave(t *testing.T) {
	w := newSquareWave(sampleRate/4, 100*time.Millisecond)
	if w.remaining != sampleRate/10 {
		t.Fatalf("expected %d samples; got %d", sampleRate/10, w.remaining)
	}

	data, err := io.ReadAll(w)
	if err != nil {
		t.Fatal(err)
	}

	if exp := sampleRate / 10 * 4; len(data) != exp {
		t.Fatalf("expected %d bytes; got %d", exp, len(data))
	}

	exp := []float32{amplitude, amplitude, -amplitude, -amplitude, amplitude}
	for i, v := range exp {
		if got := math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])); got != v {
			t.Errorf("expected sample %d to be %f; got %f", i, v, got)
		}
	}
}

func TestSquareWavePartialReads(t *testing.T) {
	w := newSquareWave(1000, 10*time.Millisecond)

	var total int
	buf := make([]byte, 6)
	for {
		n, err := w.Read(buf)
		if n%4 != 0 {
			t.Fatalf("expected reads to return whole samples; got %d bytes", n)
		}
		total += n
		if err == io.EOF {
			break
		}
	}

	if exp := sampleRate / 100 * 4; total != exp {
		t.Fatalf("expected %d bytes; got %d", exp, total)
	}
}

func TestDriverInitFailure(t *testing.T) {
	defer func(orig func(*oto.NewContextOptions) (*oto.Context, chan struct{}, error)) {
		newContextFn = orig
	}(newContextFn)

	newContextFn = func(*oto.NewContextOptions) (*oto.Context, chan struct{}, error) {
		return nil, nil, errors.New("no device")
	}

	var buf bytes.Buffer
	b := NewOtoBeeper()
	if err := b.DriverInit(&buf); err != errNoAudio {
		t.Fatalf("expected errNoAudio; got %v", err)
	}

	if exp, got := "no device\n", buf.String(); got != exp {
		t.Errorf("expected the failure to be logged as %q; got %q", exp, got)
	}

	// Beeping without an audio context is a no-op.
	b.Beep(1000, time.Millisecond)
}

func TestBell(t *testing.T) {
	var buf bytes.Buffer
	Bell{W: &buf}.Beep(600, time.Millisecond)
	Nop{}.Beep(600, time.Millisecond)

	if buf.String() != "\a" {
		t.Fatalf("expected a BEL char; got %q", buf.String())
	}
}
