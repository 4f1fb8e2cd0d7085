package voice

import (
	"encoding/binary"
	"fmt"

	"github.com/Raikerian/go-voicerelay/internal/config"
)

// SampleFormat describes how decoded bytes map to samples.
type SampleFormat int

const (
	// FormatS16LE reads little-endian signed 16-bit pairs.
	FormatS16LE SampleFormat = iota
	// FormatU8 reads one unsigned byte per sample with 128 as silence.
	FormatU8
)

// ParseSampleFormat maps a config name to a SampleFormat.
func ParseSampleFormat(name string) (SampleFormat, error) {
	switch name {
	case config.SampleFormatS16LE:
		return FormatS16LE, nil
	case config.SampleFormatU8:
		return FormatU8, nil
	default:
		return 0, fmt.Errorf("unknown sample format %q", name)
	}
}

// String returns the config name of the format.
func (f SampleFormat) String() string {
	switch f {
	case FormatS16LE:
		return config.SampleFormatS16LE
	case FormatU8:
		return config.SampleFormatU8
	default:
		return "unknown"
	}
}

// BytesPerSample returns how many decoded bytes make one sample.
func (f SampleFormat) BytesPerSample() int {
	if f == FormatU8 {
		return 1
	}
	return 2
}

// SampleCount returns how many samples n decoded bytes hold.
func (f SampleFormat) SampleCount(n int) int {
	return n / f.BytesPerSample()
}

// AppendSamples converts b and appends the samples to dst. Only whole samples
// are converted; a trailing partial sample is ignored.
func (f SampleFormat) AppendSamples(dst []float32, b []byte) []float32 {
	switch f {
	case FormatU8:
		for _, v := range b {
			dst = append(dst, U8ToSample(v))
		}
	default:
		for i := 0; i+1 < len(b); i += 2 {
			dst = append(dst, S16ToSample(int16(binary.LittleEndian.Uint16(b[i:]))))
		}
	}
	return dst
}

// U8ToSample maps 0 to -1 and 255 to +1.
func U8ToSample(b byte) float32 {
	return float32(b)/255*2 - 1
}

// S16ToSample scales v into [-1, 1].
func S16ToSample(v int16) float32 {
	s := float32(v) / 32768
	if s < -1 {
		return -1
	}
	if s > 1 {
		return 1
	}
	return s
}
