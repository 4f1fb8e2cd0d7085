package audio

import "time"

// Format constants shared by the codec and capture layers.
const (
	// Opus packets carry 20 ms of audio.
	FrameDuration = 20 * time.Millisecond

	// Channels is fixed: voice is captured and played back as mono.
	Channels = 1

	// MaxPacketSize bounds a single encoded Opus packet.
	MaxPacketSize = 1275

	// BytesPerInt16 is the width of one 16-bit PCM sample.
	BytesPerInt16 = 2
)

// opusRates lists the rates an Opus decoder can output, ascending.
var opusRates = []int{8000, 12000, 16000, 24000, 48000}

// FrameSamples returns how many samples one 20 ms frame holds at rate.
func FrameSamples(rate int) int {
	return rate * int(FrameDuration/time.Millisecond) / 1000
}

// NativeRate returns the smallest Opus rate that is at least rate, so
// decoding never loses bandwidth before resampling. Rates above 48 kHz map
// to 48 kHz.
func NativeRate(rate int) int {
	for _, r := range opusRates {
		if r >= rate {
			return r
		}
	}
	return opusRates[len(opusRates)-1]
}

// IsOpusRate reports whether rate is accepted directly by the Opus codec.
func IsOpusRate(rate int) bool {
	for _, r := range opusRates {
		if r == rate {
			return true
		}
	}
	return false
}
