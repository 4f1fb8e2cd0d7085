// Package opus implements capture.Service on top of an Opus codec. Frames
// read from a PCM source are compressed while recording and buffered as
// length-prefixed packets until fetched.
package opus

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/Raikerian/go-voicerelay/pkg/audio"
	"github.com/Raikerian/go-voicerelay/pkg/voice/capture"
	"github.com/Raikerian/go-voicerelay/pkg/voice/source"
)

// headerSize is the length prefix in front of every buffered packet.
const headerSize = 2

// decoderCacheSize bounds how many output rates keep a warm decoder.
const decoderCacheSize = 4

// Options configures a Service.
type Options struct {
	SampleRate       int // source/encoder rate, must be an Opus rate
	Bitrate          int
	MaxBufferedBytes int
	Restricted       bool
}

// Service is an Opus-backed capture service.
type Service struct {
	logger   *zap.Logger
	src      source.Source
	enc      *audio.Encoder
	decoders *lru.Cache[int, *audio.Decoder]
	maxBuf   int

	mu          sync.Mutex
	initialized bool
	recording   bool
	restricted  bool
	buf         []byte
	dropped     int
}

var _ capture.Service = (*Service)(nil)

// New creates a service reading PCM from src. It reports NotInitialized until
// Run is called.
func New(logger *zap.Logger, src source.Source, opts Options) (*Service, error) {
	if opts.MaxBufferedBytes <= headerSize {
		return nil, fmt.Errorf("max buffered bytes must exceed %d, got %d", headerSize, opts.MaxBufferedBytes)
	}

	enc, err := audio.NewEncoder(opts.SampleRate, opts.Bitrate)
	if err != nil {
		return nil, err
	}

	decoders, err := lru.New[int, *audio.Decoder](decoderCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder cache: %w", err)
	}

	return &Service{
		logger:     logger,
		src:        src,
		enc:        enc,
		decoders:   decoders,
		maxBuf:     opts.MaxBufferedBytes,
		restricted: opts.Restricted,
		buf:        make([]byte, 0, opts.MaxBufferedBytes),
	}, nil
}

// Run pumps frames from the source until ctx is done or the source is
// exhausted. Frames read while not recording are discarded.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()

	s.logger.Info("Capture service running",
		zap.Int("sample_rate", s.enc.Rate()),
		zap.Int("max_buffered_bytes", s.maxBuf))

	frame := make([]int16, s.enc.FrameSize())
	for {
		err := s.src.ReadFrame(ctx, frame)
		switch {
		case errors.Is(err, io.EOF):
			s.logger.Info("Capture source exhausted")
			return nil
		case ctx.Err() != nil:
			return nil
		case err != nil:
			return fmt.Errorf("capture source: %w", err)
		}

		if !s.isRecording() {
			continue
		}

		packet, err := s.enc.Encode(frame)
		if err != nil {
			s.logger.Warn("Failed to encode captured frame", zap.Error(err))
			continue
		}
		s.push(packet)
	}
}

// Close marks the service uninitialized and discards buffered data.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = false
	s.recording = false
	s.buf = s.buf[:0]
	return nil
}

// SetRestricted toggles the platform voice restriction.
func (s *Service) SetRestricted(restricted bool) {
	s.mu.Lock()
	s.restricted = restricted
	s.mu.Unlock()
}

// Dropped returns how many packets were discarded because the buffer was full.
func (s *Service) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// StartRecording implements capture.Service.
func (s *Service) StartRecording() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLocked(); err != nil {
		return err
	}
	s.recording = true
	return nil
}

// StopRecording implements capture.Service. Buffered packets stay readable.
func (s *Service) StopRecording() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLocked(); err != nil {
		return err
	}
	s.recording = false
	return nil
}

// AvailableBytes implements capture.Service.
func (s *Service) AvailableBytes() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLocked(); err != nil {
		return 0, err
	}
	if err := s.emptyLocked(); err != nil {
		return 0, err
	}
	return uint32(len(s.buf)), nil
}

// FetchBytes implements capture.Service. Only whole packets are copied; if
// the oldest packet does not fit into dst nothing is copied.
func (s *Service) FetchBytes(dst []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLocked(); err != nil {
		return 0, err
	}
	if err := s.emptyLocked(); err != nil {
		return 0, err
	}

	n := 0
	for n < len(s.buf) {
		size := headerSize + int(binary.LittleEndian.Uint16(s.buf[n:]))
		if n+size > len(dst) {
			break
		}
		n += size
	}
	if n == 0 {
		return 0, capture.BufferTooSmall
	}

	copy(dst, s.buf[:n])
	s.buf = append(s.buf[:0], s.buf[n:]...)
	return n, nil
}

// Decode implements capture.Service. Output is mono little-endian int16 PCM.
// On BufferTooSmall the bytes decoded so far are reported.
func (s *Service) Decode(compressed, dst []byte, sampleRate int) (int, error) {
	if sampleRate <= 0 {
		return 0, fmt.Errorf("%w: sample rate %d", capture.DataCorrupted, sampleRate)
	}

	dec, err := s.decoder(audio.NativeRate(sampleRate))
	if err != nil {
		return 0, err
	}

	written := 0
	for rest := compressed; len(rest) > 0; {
		if len(rest) < headerSize {
			return written, fmt.Errorf("%w: truncated packet header", capture.DataCorrupted)
		}
		size := int(binary.LittleEndian.Uint16(rest))
		if size == 0 || headerSize+size > len(rest) {
			return written, fmt.Errorf("%w: packet length %d exceeds %d remaining bytes",
				capture.DataCorrupted, size, len(rest)-headerSize)
		}

		pcm, err := dec.Decode(rest[headerSize : headerSize+size])
		if err != nil {
			return written, fmt.Errorf("%w: %v", capture.DataCorrupted, err)
		}
		pcm = audio.Resample(pcm, dec.Rate(), sampleRate)

		if written+len(pcm)*audio.BytesPerInt16 > len(dst) {
			return written, capture.BufferTooSmall
		}
		written += audio.PutPCMInt16LE(dst[written:], pcm)
		rest = rest[headerSize+size:]
	}

	return written, nil
}

func (s *Service) decoder(rate int) (*audio.Decoder, error) {
	if dec, ok := s.decoders.Get(rate); ok {
		return dec, nil
	}

	dec, err := audio.NewDecoder(rate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", capture.NotInitialized, err)
	}
	s.decoders.Add(rate, dec)
	return dec, nil
}

func (s *Service) isRecording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

func (s *Service) push(packet []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.buf)+headerSize+len(packet) > s.maxBuf {
		s.dropped++
		s.logger.Debug("Capture buffer full, dropping packet",
			zap.Int("packet_size", len(packet)),
			zap.Int("buffered", len(s.buf)),
			zap.Int("dropped_total", s.dropped))
		return
	}

	s.buf = binary.LittleEndian.AppendUint16(s.buf, uint16(len(packet)))
	s.buf = append(s.buf, packet...)
}

func (s *Service) checkLocked() error {
	if s.restricted {
		return capture.Restricted
	}
	if !s.initialized {
		return capture.NotInitialized
	}
	return nil
}

func (s *Service) emptyLocked() error {
	if len(s.buf) > 0 {
		return nil
	}
	if !s.recording {
		return capture.NotRecording
	}
	return capture.NoData
}
