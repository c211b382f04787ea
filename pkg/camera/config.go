// Package camera owns Wren's eye camera as an arbitrated resource. The
// device opens under a camera lease so the local loop and the remote
// server never fight over the sensor. Frame consumers live outside this
// core; they take raw mats or JPEG bytes from a Capture.
package camera

import (
	"fmt"
	"time"

	"github.com/wrenlabs/go-wren/pkg/arbiter"
)

// Sensor capabilities of the eye module.
const (
	SensorMaxWidth  = 1920
	SensorMaxHeight = 1080
	SensorMaxFPS    = 60
)

// Config holds the camera settings from the robot profile plus the lease
// identity of the opening process.
type Config struct {
	// Device is the V4L2 index of the eye camera.
	Device int `yaml:"device" json:"device"`

	// Width and Height set the capture resolution in pixels.
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`

	// FPS is the target capture rate.
	FPS int `yaml:"fps" json:"fps"`

	// Quality is the JPEG quality for encoded grabs, 1 to 100.
	Quality int `yaml:"quality" json:"quality"`

	// HolderID identifies this process in camera lease claims.
	HolderID string `yaml:"holder_id" json:"holder_id"`

	// Priority is the claim priority for the camera lease.
	Priority arbiter.Priority `yaml:"priority" json:"priority"`

	// AcquireTimeout bounds the wait for the camera lease.
	AcquireTimeout time.Duration `yaml:"acquire_timeout" json:"acquire_timeout"`
}

// DefaultConfig returns the resolution the tracking consumers are tuned
// for. The eye sensor is small; 640x480 keeps frame handling cheap.
func DefaultConfig() Config {
	return Config{
		Device:         0,
		Width:          640,
		Height:         480,
		FPS:            30,
		Quality:        85,
		HolderID:       "local/camera",
		Priority:       arbiter.PriorityLocal,
		AcquireTimeout: 250 * time.Millisecond,
	}
}

// Validate checks the config against the sensor's limits.
func (c Config) Validate() error {
	if c.Device < 0 {
		return fmt.Errorf("camera config: negative device index %d", c.Device)
	}
	if c.Width < 160 || c.Width > SensorMaxWidth {
		return fmt.Errorf("camera config: width %d outside 160..%d", c.Width, SensorMaxWidth)
	}
	if c.Height < 120 || c.Height > SensorMaxHeight {
		return fmt.Errorf("camera config: height %d outside 120..%d", c.Height, SensorMaxHeight)
	}
	if c.FPS < 1 || c.FPS > SensorMaxFPS {
		return fmt.Errorf("camera config: fps %d outside 1..%d", c.FPS, SensorMaxFPS)
	}
	if c.Quality < 1 || c.Quality > 100 {
		return fmt.Errorf("camera config: quality %d outside 1..100", c.Quality)
	}
	if c.HolderID == "" {
		return fmt.Errorf("camera config: empty holder id")
	}
	if c.AcquireTimeout < 0 {
		return fmt.Errorf("camera config: negative acquire timeout")
	}
	return nil
}
