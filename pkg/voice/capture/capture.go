// Package capture defines the contract of a polled voice-capture service:
// recording control, compressed-data retrieval and decoding to raw PCM.
package capture

import (
	"errors"
	"fmt"
)

// Code is a non-fatal result code reported by a capture service.
type Code int

const (
	NotInitialized Code = iota + 1
	NotRecording
	NoData
	BufferTooSmall
	DataCorrupted
	Restricted
)

var codeNames = map[Code]string{
	NotInitialized: "not initialized",
	NotRecording:   "not recording",
	NoData:         "no data",
	BufferTooSmall: "buffer too small",
	DataCorrupted:  "data corrupted",
	Restricted:     "restricted",
}

// String returns the human readable name of the code.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// Error implements error so codes can be returned and matched with errors.Is.
func (c Code) Error() string {
	return "capture: " + c.String()
}

// CodeOf extracts the capture code from err. The second result is false when
// err does not carry one.
func CodeOf(err error) (Code, bool) {
	var c Code
	if errors.As(err, &c) {
		return c, true
	}
	return 0, false
}

// Service is a stateful voice-capture service. Every method is a synchronous
// call; data is pulled by polling, never pushed.
type Service interface {
	// StartRecording begins capturing and compressing microphone audio.
	StartRecording() error

	// StopRecording stops capturing. Already buffered data may still be read.
	StopRecording() error

	// AvailableBytes reports how many compressed bytes are buffered.
	AvailableBytes() (uint32, error)

	// FetchBytes copies compressed data into dst and reports how many bytes
	// were written.
	FetchBytes(dst []byte) (int, error)

	// Decode decompresses compressed into dst as PCM at sampleRate and
	// reports how many bytes were written.
	Decode(compressed, dst []byte, sampleRate int) (int, error)
}
