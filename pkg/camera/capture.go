package camera

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"

	"github.com/wrenlabs/go-wren/pkg/arbiter"
)

// Device is the hardware surface a Capture drives. *gocv.VideoCapture
// satisfies it; tests inject a fake.
type Device interface {
	Set(prop gocv.VideoCaptureProperties, value float64)
	Read(dst *gocv.Mat) bool
	IsOpened() bool
	Close() error
}

// Capture is an open, lease-guarded camera handle. The lease is held for
// the handle's whole life; grabs from a preempted handle fail stale.
type Capture struct {
	cfg    Config
	dev    Device
	lease  *arbiter.Lease
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Open claims the camera lease and then opens the device, so a second
// process cannot end up with the sensor half-shared.
func Open(ctx context.Context, cfg Config, arb *arbiter.Arbiter, logger *slog.Logger) (*Capture, error) {
	if arb == nil {
		return nil, fmt.Errorf("camera: nil arbiter")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	lease, err := arb.Acquire(ctx, arbiter.Camera, cfg.HolderID, cfg.Priority, cfg.AcquireTimeout)
	if err != nil {
		return nil, fmt.Errorf("camera: %w", err)
	}

	dev, err := gocv.VideoCaptureDevice(cfg.Device)
	if err != nil {
		lease.Release()
		return nil, fmt.Errorf("%w: open device %d: %v", ErrUnavailable, cfg.Device, err)
	}
	return open(cfg, dev, lease, logger)
}

// open wires an already-opened device to a held lease.
func open(cfg Config, dev Device, lease *arbiter.Lease, logger *slog.Logger) (*Capture, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !dev.IsOpened() {
		dev.Close()
		lease.Release()
		return nil, fmt.Errorf("%w: device %d did not open", ErrUnavailable, cfg.Device)
	}
	dev.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	dev.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	dev.Set(gocv.VideoCaptureFPS, float64(cfg.FPS))
	logger.Info("camera open", "device", cfg.Device,
		"width", cfg.Width, "height", cfg.Height, "fps", cfg.FPS)
	return &Capture{cfg: cfg, dev: dev, lease: lease, logger: logger}, nil
}

// Config returns the settings the handle opened with.
func (c *Capture) Config() Config { return c.cfg }

// Revoked reports whether a higher-priority claim is pulling the camera
// away. Consumers poll it between grabs and close early when it fires.
func (c *Capture) Revoked() bool { return c.lease.Revoked() }

// Grab pulls one frame. The caller owns the returned mat and must Close
// it. A handle whose lease was reclaimed fails with the arbiter's stale
// error so a zombified process cannot keep draining the sensor.
func (c *Capture) Grab() (gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return gocv.Mat{}, fmt.Errorf("camera grab: %w", ErrUnavailable)
	}
	if err := c.lease.Validate(); err != nil {
		return gocv.Mat{}, fmt.Errorf("camera grab: %w", err)
	}

	img := gocv.NewMat()
	if !c.dev.Read(&img) {
		img.Close()
		return gocv.Mat{}, fmt.Errorf("%w: device %d returned no frame", ErrUnavailable, c.cfg.Device)
	}
	if img.Empty() {
		img.Close()
		return gocv.Mat{}, fmt.Errorf("%w: device %d returned an empty frame", ErrUnavailable, c.cfg.Device)
	}
	return img, nil
}

// GrabJPEG pulls one frame encoded for consumers that speak JPEG.
func (c *Capture) GrabJPEG() ([]byte, error) {
	img, err := c.Grab()
	if err != nil {
		return nil, err
	}
	defer img.Close()

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img,
		[]int{gocv.IMWriteJpegQuality, c.cfg.Quality})
	if err != nil {
		return nil, fmt.Errorf("camera grab: encode: %w", err)
	}
	defer buf.Close()

	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}

// Close shuts the device first and only then lets the lease go, so the
// sensor is actually free before the next holder can claim it.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	err := c.dev.Close()
	if rerr := c.lease.Release(); rerr != nil && err == nil {
		err = rerr
	}
	c.logger.Info("camera closed", "device", c.cfg.Device)
	return err
}
