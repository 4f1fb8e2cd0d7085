package voice_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Raikerian/go-voicerelay/internal/voice"
)

func TestU8ToSample(t *testing.T) {
	assert.Equal(t, float32(-1), voice.U8ToSample(0))
	assert.InDelta(t, 1.0, voice.U8ToSample(255), 1e-6)
	assert.InDelta(t, 0.0, voice.U8ToSample(127), 0.01)
	assert.InDelta(t, 0.0, voice.U8ToSample(128), 0.01)

	for b := 0; b < 256; b++ {
		s := voice.U8ToSample(byte(b))
		assert.GreaterOrEqual(t, s, float32(-1))
		assert.LessOrEqual(t, s, float32(1))
	}
}

func TestS16ToSample(t *testing.T) {
	assert.Equal(t, float32(-1), voice.S16ToSample(-32768))
	assert.Equal(t, float32(0), voice.S16ToSample(0))
	assert.InDelta(t, 1.0, voice.S16ToSample(32767), 1e-4)
	assert.Equal(t, float32(0.5), voice.S16ToSample(16384))
}

func TestSampleFormat_AppendSamples(t *testing.T) {
	tests := map[string]struct {
		format voice.SampleFormat
		input  []byte
		want   []float32
	}{
		"u8_one_per_byte": {
			format: voice.FormatU8,
			input:  []byte{0, 255, 0},
			want:   []float32{-1, 1, -1},
		},
		"s16le_pairs": {
			format: voice.FormatS16LE,
			input:  []byte{0x00, 0x40, 0x00, 0xC0},
			want:   []float32{0.5, -0.5},
		},
		"s16le_drops_trailing_byte": {
			format: voice.FormatS16LE,
			input:  []byte{0x00, 0x00, 0x7F},
			want:   []float32{0},
		},
		"empty": {
			format: voice.FormatU8,
			input:  nil,
			want:   nil,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got := tt.format.AppendSamples(nil, tt.input)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, len(tt.want), tt.format.SampleCount(len(tt.input)))
		})
	}
}

func TestSampleFormat_AppendKeepsPrefix(t *testing.T) {
	dst := []float32{0.25}
	dst = voice.FormatU8.AppendSamples(dst, []byte{255})
	assert.Equal(t, []float32{0.25, 1}, dst)
}

func TestParseSampleFormat(t *testing.T) {
	f, err := voice.ParseSampleFormat("s16le")
	require.NoError(t, err)
	assert.Equal(t, voice.FormatS16LE, f)
	assert.Equal(t, 2, f.BytesPerSample())
	assert.Equal(t, "s16le", f.String())

	f, err = voice.ParseSampleFormat("u8")
	require.NoError(t, err)
	assert.Equal(t, voice.FormatU8, f)
	assert.Equal(t, 1, f.BytesPerSample())
	assert.Equal(t, "u8", f.String())

	_, err = voice.ParseSampleFormat("f32")
	assert.Error(t, err)
}
