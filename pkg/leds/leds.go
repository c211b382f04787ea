// Package leds drives the ring of status LEDs around Wren's collar. The
// strip hangs off the same controller board as the servos, so patterns go
// out as raw frames on the shared serial link.
package leds

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Animation names a pattern the controller firmware can render on its own.
// The set is closed; the firmware rejects anything else.
type Animation string

const (
	Solid   Animation = "solid"
	Breathe Animation = "breathe"
	Spin    Animation = "spin"
	Pulse   Animation = "pulse"
	Off     Animation = "off"
)

// Valid reports whether the firmware knows this animation.
func (a Animation) Valid() bool {
	switch a {
	case Solid, Breathe, Spin, Pulse, Off:
		return true
	}
	return false
}

// ErrBadPattern means a pattern failed validation before transmission.
var ErrBadPattern = errors.New("bad led pattern")

// ParseColor normalizes a color spec to six lowercase hex digits. A
// leading # is accepted; the firmware never sees one.
func ParseColor(s string) (string, error) {
	c := strings.TrimPrefix(s, "#")
	if len(c) != 6 {
		return "", fmt.Errorf("%w: color %q must be 6 hex digits", ErrBadPattern, s)
	}
	if _, err := strconv.ParseUint(c, 16, 32); err != nil {
		return "", fmt.Errorf("%w: color %q must be 6 hex digits", ErrBadPattern, s)
	}
	return strings.ToLower(c), nil
}

// Pattern is one renderable LED state.
type Pattern struct {
	Color     string        `yaml:"color" json:"color"` // rrggbb, # optional
	Animation Animation     `yaml:"animation" json:"animation"`
	Period    time.Duration `yaml:"period" json:"period"` // one animation cycle
}

// Validate checks the pattern against what the firmware accepts.
func (p Pattern) Validate() error {
	if !p.Animation.Valid() {
		return fmt.Errorf("%w: unknown animation %q", ErrBadPattern, p.Animation)
	}
	if p.Animation == Off {
		return nil
	}
	if _, err := ParseColor(p.Color); err != nil {
		return err
	}
	if p.Animation != Solid && p.Period <= 0 {
		return fmt.Errorf("%w: animation %s needs a positive period", ErrBadPattern, p.Animation)
	}
	return nil
}

// frame encodes the pattern as a controller frame.
func (p Pattern) frame() string {
	color := "000000"
	if p.Animation != Off {
		color, _ = ParseColor(p.Color)
	}
	return fmt.Sprintf("!led:%s:%s:%d\n", p.Animation, color, p.Period.Milliseconds())
}

// Dark is the all-off pattern.
func Dark() Pattern {
	return Pattern{Animation: Off}
}

// FrameWriter is the shared controller link. servo.SerialBus satisfies it.
type FrameWriter interface {
	WriteFrame(frame string) error
}

// Strip drives the collar LEDs through a FrameWriter.
type Strip struct {
	mu     sync.Mutex
	w      FrameWriter
	logger *slog.Logger
	last   Pattern
}

// NewStrip wraps a controller link. The strip starts dark.
func NewStrip(w FrameWriter, logger *slog.Logger) *Strip {
	if logger == nil {
		logger = slog.Default()
	}
	return &Strip{w: w, logger: logger, last: Dark()}
}

// Apply validates and transmits a pattern, remembering it on success.
func (s *Strip) Apply(p Pattern) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.WriteFrame(p.frame()); err != nil {
		return fmt.Errorf("led strip: %w", err)
	}
	s.last = p
	s.logger.Debug("led pattern applied", "animation", p.Animation, "color", p.Color)
	return nil
}

// Darken switches the strip off.
func (s *Strip) Darken() error {
	return s.Apply(Dark())
}

// Current returns the last successfully applied pattern.
func (s *Strip) Current() Pattern {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
