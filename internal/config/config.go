package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Raikerian/go-voicerelay/pkg/audio"
)

// Sample formats understood by the voice pipeline.
const (
	SampleFormatS16LE = "s16le"
	SampleFormatU8    = "u8"
)

// Capture sources.
const (
	CaptureSourceTone = "tone"
	CaptureSourceFile = "file"
)

// Trigger modes.
const (
	TriggerModeKeyboard = "keyboard"
	TriggerModeSchedule = "schedule"
)

// VoiceConfig stores the decode/convert/stream pipeline settings.
type VoiceConfig struct {
	SampleRate           int           `yaml:"sample_rate"`
	BytesPerSample       int           `yaml:"bytes_per_sample"`
	CompressedBufferSize int           `yaml:"compressed_buffer_size"`
	SampleFormat         string        `yaml:"sample_format"`
	TickInterval         time.Duration `yaml:"tick_interval"`
	StaleAfter           time.Duration `yaml:"stale_after"` // 0 disables the watchdog
}

// CaptureConfig stores settings for the Opus capture service and its PCM source.
type CaptureConfig struct {
	Source           string  `yaml:"source"`
	FilePath         string  `yaml:"file_path"`
	ToneFrequency    float64 `yaml:"tone_frequency"`
	SampleRate       int     `yaml:"sample_rate"`
	Bitrate          int     `yaml:"bitrate"`
	MaxBufferedBytes int     `yaml:"max_buffered_bytes"`
	Restricted       bool    `yaml:"restricted"`
}

// PlaybackConfig stores settings for the live playback stream.
type PlaybackConfig struct {
	BufferSize int    `yaml:"buffer_size"` // samples
	OutputPath string `yaml:"output_path"` // raw f32le; empty discards output
}

// TriggerConfig stores settings for the push-to-talk trigger.
type TriggerConfig struct {
	Mode       string        `yaml:"mode"`
	PressAfter time.Duration `yaml:"press_after"`
	HoldFor    time.Duration `yaml:"hold_for"`
}

// MetricsConfig stores settings for metrics export.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// Config stores the application configuration.
type Config struct {
	LogLevel string         `yaml:"log_level"`
	Voice    VoiceConfig    `yaml:"voice"`
	Capture  CaptureConfig  `yaml:"capture"`
	Playback PlaybackConfig `yaml:"playback"`
	Trigger  TriggerConfig  `yaml:"trigger"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// LoadConfig loads the configuration from the given file path.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

// Parse decodes YAML, fills in defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// ApplyDefaults fills zero values with the reference settings.
func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	v := &c.Voice
	if v.SampleRate == 0 {
		v.SampleRate = 11025
	}
	if v.BytesPerSample == 0 {
		v.BytesPerSample = 2
	}
	if v.CompressedBufferSize == 0 {
		v.CompressedBufferSize = 1024
	}
	if v.SampleFormat == "" {
		v.SampleFormat = SampleFormatS16LE
	}
	if v.TickInterval == 0 {
		v.TickInterval = 20 * time.Millisecond
	}

	cp := &c.Capture
	if cp.Source == "" {
		cp.Source = CaptureSourceTone
	}
	if cp.ToneFrequency == 0 {
		cp.ToneFrequency = 440
	}
	if cp.SampleRate == 0 {
		cp.SampleRate = 16000
	}
	if cp.Bitrate == 0 {
		cp.Bitrate = 24000
	}
	if cp.MaxBufferedBytes == 0 {
		cp.MaxBufferedBytes = 8 * 1024
	}

	if c.Playback.BufferSize == 0 {
		c.Playback.BufferSize = v.SampleRate
	}

	if c.Trigger.Mode == "" {
		c.Trigger.Mode = TriggerModeKeyboard
	}
	if c.Trigger.HoldFor == 0 {
		c.Trigger.HoldFor = 5 * time.Second
	}

	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9464"
	}
}

// Validate checks that buffer sizes and modes are consistent.
func (c *Config) Validate() error {
	var errs []error

	v := c.Voice
	if v.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("voice.sample_rate must be positive, got %d", v.SampleRate))
	}
	if v.CompressedBufferSize <= 0 {
		errs = append(errs, fmt.Errorf("voice.compressed_buffer_size must be positive, got %d", v.CompressedBufferSize))
	}
	if v.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("voice.tick_interval must be positive, got %s", v.TickInterval))
	}
	if v.StaleAfter < 0 {
		errs = append(errs, fmt.Errorf("voice.stale_after must not be negative, got %s", v.StaleAfter))
	}
	switch v.SampleFormat {
	case SampleFormatS16LE:
		if v.BytesPerSample != 2 {
			errs = append(errs, fmt.Errorf("voice.bytes_per_sample must be 2 for %s, got %d", v.SampleFormat, v.BytesPerSample))
		}
	case SampleFormatU8:
		if v.BytesPerSample < 1 {
			errs = append(errs, fmt.Errorf("voice.bytes_per_sample must be positive, got %d", v.BytesPerSample))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown voice.sample_format %q", v.SampleFormat))
	}

	cp := c.Capture
	switch cp.Source {
	case CaptureSourceTone:
	case CaptureSourceFile:
		if cp.FilePath == "" {
			errs = append(errs, errors.New("capture.file_path is required for the file source"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown capture.source %q", cp.Source))
	}
	if !audio.IsOpusRate(cp.SampleRate) {
		errs = append(errs, fmt.Errorf("capture.sample_rate %d is not an Opus rate", cp.SampleRate))
	}
	if cp.MaxBufferedBytes < v.CompressedBufferSize {
		errs = append(errs, fmt.Errorf("capture.max_buffered_bytes (%d) must be at least voice.compressed_buffer_size (%d)",
			cp.MaxBufferedBytes, v.CompressedBufferSize))
	}

	if c.Playback.BufferSize <= 0 {
		errs = append(errs, fmt.Errorf("playback.buffer_size must be positive, got %d", c.Playback.BufferSize))
	}

	switch c.Trigger.Mode {
	case TriggerModeKeyboard, TriggerModeSchedule:
	default:
		errs = append(errs, fmt.Errorf("unknown trigger.mode %q", c.Trigger.Mode))
	}

	return errors.Join(errs...)
}

// DecodedBufferSize is the capacity of one second of decoded audio.
func (v VoiceConfig) DecodedBufferSize() int {
	return v.SampleRate * v.BytesPerSample
}
