package audio

import (
	"errors"
	"fmt"
	"sync"

	"layeh.com/gopus"
)

// maxFrameMultiple bounds decoded packets at 120 ms, the longest Opus frame.
const maxFrameMultiple = 6

// Encoder compresses 20 ms mono int16 frames into Opus packets.
type Encoder struct {
	rate int
	enc  *gopus.Encoder
	mu   sync.Mutex
}

// NewEncoder creates a speech-tuned mono Opus encoder at rate.
func NewEncoder(rate, bitrate int) (*Encoder, error) {
	if !IsOpusRate(rate) {
		return nil, fmt.Errorf("unsupported opus rate %d", rate)
	}

	enc, err := gopus.NewEncoder(rate, Channels, gopus.Voip)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}
	if bitrate > 0 {
		enc.SetBitrate(bitrate)
	}

	return &Encoder{rate: rate, enc: enc}, nil
}

// Rate returns the input sample rate.
func (e *Encoder) Rate() int { return e.rate }

// FrameSize returns the number of samples Encode expects.
func (e *Encoder) FrameSize() int { return FrameSamples(e.rate) }

// Encode compresses exactly one frame of samples.
func (e *Encoder) Encode(pcm []int16) ([]byte, error) {
	if len(pcm) != e.FrameSize() {
		return nil, fmt.Errorf("need %d samples, got %d", e.FrameSize(), len(pcm))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	packet, err := e.enc.Encode(pcm, e.FrameSize(), MaxPacketSize)
	if err != nil {
		return nil, fmt.Errorf("opus encode: %w", err)
	}
	return packet, nil
}

// Decoder expands Opus packets into mono int16 PCM at its rate.
type Decoder struct {
	rate int
	dec  *gopus.Decoder
	mu   sync.Mutex
}

// NewDecoder creates a mono Opus decoder producing samples at rate.
func NewDecoder(rate int) (*Decoder, error) {
	if !IsOpusRate(rate) {
		return nil, fmt.Errorf("unsupported opus rate %d", rate)
	}

	dec, err := gopus.NewDecoder(rate, Channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}

	return &Decoder{rate: rate, dec: dec}, nil
}

// Rate returns the output sample rate.
func (d *Decoder) Rate() int { return d.rate }

// Decode expands one packet.
func (d *Decoder) Decode(packet []byte) ([]int16, error) {
	if len(packet) == 0 {
		return nil, errors.New("opus payload empty")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	pcm, err := d.dec.Decode(packet, FrameSamples(d.rate)*maxFrameMultiple, false)
	if err != nil {
		return nil, fmt.Errorf("opus decode: %w", err)
	}
	return pcm, nil
}
