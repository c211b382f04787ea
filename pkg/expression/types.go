// Package expression turns named emotional states into interpolated servo
// trajectories and autonomous idle behavior. Expressions live in a table
// loaded once at startup; the engine is the only writer of the robot's
// "current expression" state.
package expression

import (
	"fmt"
	"time"

	"github.com/wrenlabs/go-wren/pkg/leds"
	"github.com/wrenlabs/go-wren/pkg/servo"
)

// IdleName is the implicit default state every drift eventually lands on.
const IdleName = "idle"

// Config is one entry of the expression table.
type Config struct {
	// Name is the unique key callers address the expression by.
	Name string `yaml:"name"`

	// Targets maps actuator IDs to angles in degrees. Every target must
	// sit inside the actuator's calibrated range; the table rejects
	// violations at load time.
	Targets map[string]float64 `yaml:"targets"`

	// LED is the collar pattern to show with the expression. A zero
	// pattern leaves the strip alone.
	LED leds.Pattern `yaml:"led"`

	// TransitionMS is how long the glide from the previous pose takes.
	TransitionMS int `yaml:"transition_ms"`

	// Mood tags the expression for status reporting.
	Mood string `yaml:"mood"`

	// Related lists the moods this expression may drift to instead of
	// idle. Empty means drift always lands on idle.
	Related []string `yaml:"related"`

	// Quirk optionally fires a one-shot gesture right after the
	// expression settles, with the given probability.
	Quirk *Quirk `yaml:"quirk"`
}

// Quirk is a probabilistic follow-up gesture, like the wink after sarcasm.
type Quirk struct {
	Gesture     string  `yaml:"gesture"`
	Probability float64 `yaml:"probability"`
}

// Transition returns the glide duration.
func (c *Config) Transition() time.Duration {
	return time.Duration(c.TransitionMS) * time.Millisecond
}

// validate checks the entry against the calibration set. cals maps
// actuator IDs to their physical records.
func (c *Config) validate(cals map[string]servo.Calibration) error {
	if c.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidConfig)
	}
	if c.TransitionMS < 0 {
		return fmt.Errorf("%w: %s: negative transition", ErrInvalidConfig, c.Name)
	}
	for id, deg := range c.Targets {
		cal, ok := cals[id]
		if !ok {
			return fmt.Errorf("%w: %s: unknown actuator %s", ErrInvalidConfig, c.Name, id)
		}
		if !cal.InRange(deg) {
			return fmt.Errorf("%w: %s: %s target %.1f° outside [%.1f°, %.1f°]",
				ErrInvalidConfig, c.Name, id, deg, cal.MinDeg, cal.MaxDeg)
		}
	}
	if c.LED.Animation != "" {
		if err := c.LED.Validate(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, c.Name, err)
		}
	}
	if q := c.Quirk; q != nil {
		if !KnownGesture(q.Gesture) {
			return fmt.Errorf("%w: %s: unknown quirk gesture %q", ErrInvalidConfig, c.Name, q.Gesture)
		}
		if q.Probability < 0 || q.Probability > 1 {
			return fmt.Errorf("%w: %s: quirk probability %.2f outside [0, 1]",
				ErrInvalidConfig, c.Name, q.Probability)
		}
	}
	return nil
}
