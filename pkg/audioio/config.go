// Package audioio plays PCM audio through Wren's speaker.
//
// Two backends exist:
//   - Exec - pipes raw PCM into an external player (aplay on the robot)
//   - Mock - buffers everything in memory for tests and CI
//
// The backend is picked automatically unless the configuration names one.
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto selects exec when a player binary is installed, mock
	// otherwise.
	BackendAuto Backend = "auto"
	// BackendExec pipes PCM to an external player process.
	BackendExec Backend = "exec"
	// BackendMock buffers audio in memory for testing.
	BackendMock Backend = "mock"
)

// Config holds audio output configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	// Default: "auto"
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the audio sample rate in Hz.
	// Default: 22050, matching the synthesized speech Wren receives.
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels is the number of audio channels.
	// Default: 1 (mono)
	Channels int `yaml:"channels" json:"channels"`

	// BufferDuration is the size of audio buffers.
	// Default: 20ms (441 samples at 22.05kHz)
	BufferDuration time.Duration `yaml:"buffer_duration" json:"buffer_duration"`

	// Device is the player-specific device identifier, e.g. "default"
	// or "plughw:1,0" for aplay.
	Device string `yaml:"device" json:"device"`

	// PlayerCommand overrides the player invocation. The command must
	// read S16_LE PCM at the configured rate on stdin. Empty means
	// aplay with flags derived from this config.
	PlayerCommand string `yaml:"player_command" json:"player_command"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendAuto,
		SampleRate:     22050,
		Channels:       1,
		BufferDuration: 20 * time.Millisecond,
		Device:         "",
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.BufferDuration <= 0 {
		return fmt.Errorf("buffer_duration must be positive, got %v", c.BufferDuration)
	}
	return nil
}

// BufferSize returns the number of samples per buffer.
func (c *Config) BufferSize() int {
	return int(float64(c.SampleRate) * c.BufferDuration.Seconds())
}

// BufferBytes returns the size of a buffer in bytes (assuming int16 samples).
func (c *Config) BufferBytes() int {
	return c.BufferSize() * c.Channels * 2 // 2 bytes per int16 sample
}
