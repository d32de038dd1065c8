// Package speaker produces the audible alert raised on the first error of a
// pass.
package speaker

import (
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"memtest/kernel"
	"memtest/kernel/kfmt"
)

const (
	sampleRate = 44100
	amplitude  = 0.2
)

var (
	errNoAudio = &kernel.Error{Module: "oto_speaker", Message: "audio output is not available"}

	// newContextFn is mocked by tests.
	newContextFn = oto.NewContext
)

// Nop discards beeps.
type Nop struct{}

// Beep does nothing.
func (Nop) Beep(int, time.Duration) {}

// Bell rings the terminal bell. The tone and duration are ignored.
type Bell struct {
	W io.Writer
}

// Beep writes a BEL char to the terminal.
func (b Bell) Beep(int, time.Duration) {
	if b.W != nil {
		_, _ = b.W.Write([]byte{'\a'})
	}
}

// OtoBeeper plays square wave tones through the host's audio output.
type OtoBeeper struct {
	mu  sync.Mutex
	ctx *oto.Context
}

// NewOtoBeeper returns an uninitialized beeper.
func NewOtoBeeper() *OtoBeeper {
	return &OtoBeeper{}
}

// DriverName returns the name of this driver.
func (b *OtoBeeper) DriverName() string {
	return "oto_speaker"
}

// DriverVersion returns the version of this driver.
func (b *OtoBeeper) DriverVersion() (uint16, uint16, uint16) {
	return 0, 1, 0
}

// DriverInit opens the audio output.
func (b *OtoBeeper) DriverInit(w io.Writer) *kernel.Error {
	ctx, ready, err := newContextFn(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
	})
	if err != nil {
		kfmt.Fprintf(w, "%v\n", err)
		return errNoAudio
	}
	<-ready

	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()
	return nil
}

// Beep plays a tone at hz for d and blocks until it finished playing.
func (b *OtoBeeper) Beep(hz int, d time.Duration) {
	b.mu.Lock()
	ctx := b.ctx
	b.mu.Unlock()

	if ctx == nil || hz <= 0 || d <= 0 {
		return
	}

	p := ctx.NewPlayer(newSquareWave(hz, d))
	defer p.Close()

	p.Play()
	for p.IsPlaying() {
		time.Sleep(time.Millisecond)
	}
}
