// Package source provides PCM frame sources that stand in for a microphone.
// Each source is paced in real time: ReadFrame returns one frame per frame
// duration.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/Raikerian/go-voicerelay/pkg/audio"
)

// Source produces mono int16 PCM frames.
type Source interface {
	// ReadFrame fills dst with the next frame. It blocks until the frame is
	// due and returns io.EOF when the source is exhausted.
	ReadFrame(ctx context.Context, dst []int16) error
}

// pacer releases one frame per period, catching up without sleeping when the
// caller falls behind.
type pacer struct {
	next time.Time
	now  func() time.Time
}

func (p *pacer) wait(ctx context.Context, period time.Duration) error {
	now := p.now()
	if p.next.IsZero() {
		p.next = now
	}

	if d := p.next.Sub(now); d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p.next = p.next.Add(period)
	return nil
}

func framePeriod(samples, rate int) time.Duration {
	return time.Duration(samples) * time.Second / time.Duration(rate)
}

// Tone is a sine-wave generator.
type Tone struct {
	rate      int
	freq      float64
	amplitude float64
	phase     float64
	pace      pacer
}

// NewTone returns a tone source at rate producing freq Hz at half scale.
func NewTone(rate int, freq float64) *Tone {
	return &Tone{
		rate:      rate,
		freq:      freq,
		amplitude: 0.5,
		pace:      pacer{now: time.Now},
	}
}

// ReadFrame implements Source.
func (t *Tone) ReadFrame(ctx context.Context, dst []int16) error {
	if err := t.pace.wait(ctx, framePeriod(len(dst), t.rate)); err != nil {
		return err
	}

	step := 2 * math.Pi * t.freq / float64(t.rate)
	for i := range dst {
		dst[i] = int16(t.amplitude * math.MaxInt16 * math.Sin(t.phase))
		t.phase += step
		if t.phase >= 2*math.Pi {
			t.phase -= 2 * math.Pi
		}
	}
	return nil
}

// Reader reads raw little-endian int16 mono PCM.
type Reader struct {
	r    io.Reader
	rate int
	buf  []byte
	pace pacer
}

// NewReader returns a source reading s16le PCM recorded at rate from r.
func NewReader(r io.Reader, rate int) *Reader {
	return &Reader{r: r, rate: rate, pace: pacer{now: time.Now}}
}

// ReadFrame implements Source. A short final frame is padded with silence.
func (r *Reader) ReadFrame(ctx context.Context, dst []int16) error {
	if err := r.pace.wait(ctx, framePeriod(len(dst), r.rate)); err != nil {
		return err
	}

	need := len(dst) * 2
	if cap(r.buf) < need {
		r.buf = make([]byte, need)
	}
	buf := r.buf[:need]

	n, err := io.ReadFull(r.r, buf)
	switch {
	case errors.Is(err, io.EOF):
		return io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		clear(buf[n:])
	case err != nil:
		return fmt.Errorf("read pcm: %w", err)
	}

	audio.GetPCMInt16LE(dst, buf)
	return nil
}
