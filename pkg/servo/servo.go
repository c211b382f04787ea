// Package servo drives Wren's calibrated joint actuators over a shared
// serial bus. Each actuator has a calibration record (physical range,
// neutral angle, rotation sign) bound at startup; every commanded angle is
// clamped to that range before it reaches the wire.
package servo

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Well-known actuator IDs for the standard Wren head. Profiles may define
// additional joints; nothing in this package assumes this exact set.
const (
	NeckPan     = "neck_pan"
	NeckTilt    = "neck_tilt"
	EyelidLeft  = "eyelid_left"
	EyelidRight = "eyelid_right"
	Mouth       = "mouth"
	WingLeft    = "wing_left"
	WingRight   = "wing_right"
)

// Calibration describes the physical envelope of one actuator.
// Records are immutable after load.
type Calibration struct {
	ID         string  `yaml:"id" json:"id"`
	MinDeg     float64 `yaml:"min_deg" json:"min_deg"`
	MaxDeg     float64 `yaml:"max_deg" json:"max_deg"`
	NeutralDeg float64 `yaml:"neutral_deg" json:"neutral_deg"`
	Inverted   bool    `yaml:"inverted" json:"inverted"`
}

// Validate checks that the record is internally consistent.
func (c Calibration) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("calibration: empty actuator id")
	}
	if c.MinDeg >= c.MaxDeg {
		return fmt.Errorf("calibration %s: min %.1f° must be below max %.1f°", c.ID, c.MinDeg, c.MaxDeg)
	}
	if c.NeutralDeg < c.MinDeg || c.NeutralDeg > c.MaxDeg {
		return fmt.Errorf("calibration %s: neutral %.1f° outside [%.1f°, %.1f°]", c.ID, c.NeutralDeg, c.MinDeg, c.MaxDeg)
	}
	return nil
}

// Clamp restricts deg to the calibrated range.
func (c Calibration) Clamp(deg float64) float64 {
	if deg < c.MinDeg {
		return c.MinDeg
	}
	if deg > c.MaxDeg {
		return c.MaxDeg
	}
	return deg
}

// InRange reports whether deg lies inside the calibrated range.
func (c Calibration) InRange(deg float64) bool {
	return deg >= c.MinDeg && deg <= c.MaxDeg
}

// CalibrationMap keys a calibration list by actuator id. Profiles carry
// calibrations as a list; table loaders want them keyed.
func CalibrationMap(cals []Calibration) map[string]Calibration {
	m := make(map[string]Calibration, len(cals))
	for _, c := range cals {
		m[c.ID] = c
	}
	return m
}

// wire converts a logical angle to the angle sent on the bus,
// applying the rotation sign.
func (c Calibration) wire(deg float64) float64 {
	if c.Inverted {
		return -deg
	}
	return deg
}

// Bank is the set of calibrated actuators sharing one bus connection.
// It owns the bus handle exclusively while open; Close releases it.
type Bank struct {
	mu     sync.RWMutex
	bus    Bus
	logger *slog.Logger
	cals   map[string]Calibration
	angles map[string]float64 // last commanded logical angle
	closed bool
}

// NewBank builds a bank from calibration records. Every record is validated;
// a bad record fails construction rather than surfacing at first use.
func NewBank(bus Bus, cals []Calibration, logger *slog.Logger) (*Bank, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cals) == 0 {
		return nil, fmt.Errorf("servo: no calibration records")
	}

	m := make(map[string]Calibration, len(cals))
	angles := make(map[string]float64, len(cals))
	for _, c := range cals {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if _, dup := m[c.ID]; dup {
			return nil, fmt.Errorf("servo: duplicate calibration for %s", c.ID)
		}
		m[c.ID] = c
		angles[c.ID] = c.NeutralDeg
	}

	logger.Info("servo bank ready", "actuators", len(m), "bus", bus.Name())
	return &Bank{bus: bus, logger: logger, cals: m, angles: angles}, nil
}

// Move commands one actuator to deg. The angle is clamped to the calibrated
// range; clamping is never an error, only bus failures are.
func (b *Bank) Move(id string, deg float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.moveLocked(id, deg)
}

// MoveAll commands several actuators in one call. Writes happen in sorted
// ID order so repeated frames hit the bus deterministically.
func (b *Bank) MoveAll(targets map[string]float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids := make([]string, 0, len(targets))
	for id := range targets {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if err := b.moveLocked(id, targets[id]); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bank) moveLocked(id string, deg float64) error {
	if b.closed {
		return ErrUnavailable
	}
	cal, ok := b.cals[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownActuator, id)
	}

	clamped := cal.Clamp(deg)
	if err := b.bus.WriteAngle(id, cal.wire(clamped)); err != nil {
		return fmt.Errorf("servo %s: %w", id, err)
	}
	b.angles[id] = clamped
	return nil
}

// Neutral returns every actuator to its calibrated neutral angle.
func (b *Bank) Neutral() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids := b.idsLocked()
	for _, id := range ids {
		if err := b.moveLocked(id, b.cals[id].NeutralDeg); err != nil {
			return err
		}
	}
	return nil
}

// Angle returns the last commanded angle for id.
func (b *Bank) Angle(id string) (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	deg, ok := b.angles[id]
	return deg, ok
}

// Angles returns a snapshot of all last commanded angles.
func (b *Bank) Angles() map[string]float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]float64, len(b.angles))
	for id, deg := range b.angles {
		out[id] = deg
	}
	return out
}

// Calibration returns the record for id.
func (b *Bank) Calibration(id string) (Calibration, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.cals[id]
	return c, ok
}

// Has reports whether the bank drives the given actuator.
func (b *Bank) Has(id string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.cals[id]
	return ok
}

// IDs returns all actuator IDs in sorted order.
func (b *Bank) IDs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.idsLocked()
}

func (b *Bank) idsLocked() []string {
	ids := make([]string, 0, len(b.cals))
	for id := range b.cals {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close releases the underlying bus handle. The bank cannot be reopened.
func (b *Bank) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.bus.Close()
}
