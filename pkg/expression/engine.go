package expression

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/wrenlabs/go-wren/pkg/arbiter"
	"github.com/wrenlabs/go-wren/pkg/leds"
	"github.com/wrenlabs/go-wren/pkg/servo"
)

// EngineConfig tunes the expression engine.
type EngineConfig struct {
	// HolderID identifies this engine in lease claims.
	HolderID string

	// Priority is the claim priority for every lease the engine takes.
	Priority arbiter.Priority

	// FrameRate is the servo update rate during transitions, in Hz.
	FrameRate int

	// AcquireTimeout bounds how long SetExpression waits for the
	// actuators before reporting the request deferred.
	AcquireTimeout time.Duration

	// DriftProbability is the chance that ReturnToIdle drifts to a
	// related expression instead of going straight back to idle.
	DriftProbability float64

	// BlinkChance and SighChance are per-tick probabilities in the idle
	// loop.
	BlinkChance float64
	SighChance  float64

	// IdleTick is the cadence of the idle loop.
	IdleTick time.Duration

	// Seed makes the engine's random choices reproducible. Zero seeds
	// from the clock.
	Seed int64
}

// DefaultEngineConfig returns the stock engine tuning.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		HolderID:         "local/expression",
		Priority:         arbiter.PriorityLocal,
		FrameRate:        30,
		AcquireTimeout:   250 * time.Millisecond,
		DriftProbability: 0.3,
		BlinkChance:      0.12,
		SighChance:       0.02,
		IdleTick:         500 * time.Millisecond,
	}
}

// Validate checks the engine tuning.
func (c EngineConfig) Validate() error {
	if c.HolderID == "" {
		return fmt.Errorf("engine config: empty holder id")
	}
	if c.FrameRate <= 0 {
		return fmt.Errorf("engine config: frame rate must be positive, got %d", c.FrameRate)
	}
	if c.AcquireTimeout < 0 {
		return fmt.Errorf("engine config: negative acquire timeout")
	}
	if c.DriftProbability < 0 || c.DriftProbability > 1 {
		return fmt.Errorf("engine config: drift probability %.2f outside [0, 1]", c.DriftProbability)
	}
	if c.BlinkChance < 0 || c.SighChance < 0 || c.BlinkChance+c.SighChance > 1 {
		return fmt.Errorf("engine config: blink %.2f + sigh %.2f chances must fit in [0, 1]",
			c.BlinkChance, c.SighChance)
	}
	if c.IdleTick <= 0 {
		return fmt.Errorf("engine config: idle tick must be positive")
	}
	return nil
}

// errYield aborts a transition when the lease was revoked but is still
// valid, meaning the engine chose to hand the hardware over.
var errYield = errors.New("yielded to revocation")

// Engine drives the face: it glides the servos between expression poses,
// keeps the mood history, drifts back toward idle, and runs the autonomous
// blink loop. Every servo write happens under an actuators lease, so the
// engine backs off whenever speech or a remote command owns the hardware.
type Engine struct {
	cfg    EngineConfig
	table  *Table
	bank   *servo.Bank
	strip  ledStrip
	arb    *arbiter.Arbiter
	logger *slog.Logger

	mu      sync.Mutex
	current *Config
	history MoodHistory
	rng     *rand.Rand
}

// ledStrip is the slice of leds.Strip the engine uses. Builds without a
// collar LED pass nil and the engine skips pattern changes.
type ledStrip interface {
	Apply(p leds.Pattern) error
}

// NewEngine wires an engine over its hardware. The strip may be nil.
func NewEngine(table *Table, bank *servo.Bank, strip ledStrip, arb *arbiter.Arbiter, cfg EngineConfig, logger *slog.Logger) (*Engine, error) {
	if table == nil || bank == nil || arb == nil {
		return nil, fmt.Errorf("expression engine: table, bank and arbiter are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	e := &Engine{
		cfg:    cfg,
		table:  table,
		bank:   bank,
		strip:  strip,
		arb:    arb,
		logger: logger,
		rng:    rand.New(rand.NewSource(seed)),
	}
	if idle, ok := table.Get(IdleName); ok {
		e.current = idle
	}
	return e, nil
}

// Current returns the name of the active expression.
func (e *Engine) Current() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return IdleName
	}
	return e.current.Name
}

// History returns the recent expressions, oldest first.
func (e *Engine) History() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Names()
}

// SetExpression glides the face to the named expression.
//
// An unknown name fails without touching the hardware. When the actuators
// are held by someone the engine cannot preempt, the request comes back
// wrapped in ErrDeferred and the face stays as it was. A revocation that
// arrives mid-transition stops the glide early, also as ErrDeferred, so
// the higher-priority claim gets the hardware within its grace window.
func (e *Engine) SetExpression(ctx context.Context, name string) error {
	cfg, ok := e.table.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownExpression, name)
	}

	lease, err := e.acquire(ctx, e.cfg.AcquireTimeout)
	if err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	defer lease.Release()

	if err := e.glide(ctx, lease, cfg.Targets, cfg.Transition()); err != nil {
		if errors.Is(err, errYield) {
			e.logger.Info("expression yielded to higher-priority claim", "name", name)
			return fmt.Errorf("set %s: %w: actuators revoked", name, ErrDeferred)
		}
		return fmt.Errorf("set %s: %w", name, err)
	}
	e.applyLED(cfg)

	e.mu.Lock()
	e.current = cfg
	e.history.Push(cfg.Name)
	quirked := cfg.Quirk != nil && e.rng.Float64() < cfg.Quirk.Probability
	e.mu.Unlock()

	e.logger.Info("expression set", "name", cfg.Name, "mood", cfg.Mood)

	if quirked {
		// Quirk gestures ride on the lease the expression already holds.
		if err := e.playGesture(ctx, lease, cfg.Quirk.Gesture); err != nil {
			e.logger.Warn("quirk gesture failed", "expression", cfg.Name,
				"gesture", cfg.Quirk.Gesture, "error", err)
		}
	}
	return nil
}

// ReturnToIdle settles the face after an interaction. Most of the time it
// goes straight back to idle; now and then it drifts to an expression
// related to the current one, which keeps the bird from feeling scripted.
// It returns the name it settled on.
func (e *Engine) ReturnToIdle(ctx context.Context) (string, error) {
	target := IdleName

	e.mu.Lock()
	if e.current != nil {
		if related := e.table.Related(e.current.Name); len(related) > 0 {
			if e.rng.Float64() < e.cfg.DriftProbability {
				target = related[e.rng.Intn(len(related))]
			}
		}
	}
	e.mu.Unlock()

	if target != IdleName {
		e.logger.Debug("mood drift", "to", target)
	}
	if err := e.SetExpression(ctx, target); err != nil {
		return "", err
	}
	return target, nil
}

// Gesture plays a one-shot gesture under its own short lease.
func (e *Engine) Gesture(ctx context.Context, name string) error {
	return e.gesture(ctx, name, e.cfg.AcquireTimeout)
}

// Visual applies only the LED pattern of the named expression, leaving
// every joint where it is. The collar shares the actuator controller, so
// the write still rides an actuator lease.
func (e *Engine) Visual(ctx context.Context, name string) error {
	cfg, ok := e.table.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownExpression, name)
	}
	if cfg.LED.Animation == "" {
		return fmt.Errorf("%w: %s", ErrNoVisual, name)
	}
	if e.strip == nil {
		return fmt.Errorf("visual %s: no led strip fitted", name)
	}
	lease, err := e.acquire(ctx, e.cfg.AcquireTimeout)
	if err != nil {
		return fmt.Errorf("visual %s: %w", name, err)
	}
	defer lease.Release()
	if err := e.strip.Apply(cfg.LED); err != nil {
		return fmt.Errorf("visual %s: %w", name, err)
	}
	return nil
}

func (e *Engine) gesture(ctx context.Context, name string, timeout time.Duration) error {
	if !KnownGesture(name) {
		return fmt.Errorf("%w: %s", ErrUnknownGesture, name)
	}
	lease, err := e.acquire(ctx, timeout)
	if err != nil {
		return fmt.Errorf("gesture %s: %w", name, err)
	}
	defer lease.Release()
	if err := e.playGesture(ctx, lease, name); err != nil {
		return fmt.Errorf("gesture %s: %w", name, err)
	}
	return nil
}

// RunIdle is the autonomous idle behavior: an occasional blink, a rare
// sigh. Each tick makes a single non-blocking claim on the actuators, so
// whenever speech, a sequence, or a remote command holds them the tick is
// skipped rather than queued behind the holder. Blocks until ctx ends.
func (e *Engine) RunIdle(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.IdleTick)
	defer ticker.Stop()

	e.logger.Info("idle behavior started",
		"tick", e.cfg.IdleTick, "blink_chance", e.cfg.BlinkChance, "sigh_chance", e.cfg.SighChance)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("idle behavior stopped")
			return ctx.Err()
		case <-ticker.C:
		}
		e.idleTick(ctx)
	}
}

func (e *Engine) idleTick(ctx context.Context) {
	e.mu.Lock()
	roll := e.rng.Float64()
	e.mu.Unlock()

	var name string
	switch {
	case roll < e.cfg.SighChance:
		name = GestureSigh
	case roll < e.cfg.SighChance+e.cfg.BlinkChance:
		name = GestureBlink
	default:
		return
	}

	err := e.gesture(ctx, name, 0)
	switch {
	case err == nil:
	case errors.Is(err, ErrDeferred):
		e.logger.Debug("idle tick skipped, actuators busy", "gesture", name)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
	default:
		e.logger.Warn("idle gesture failed", "gesture", name, "error", err)
	}
}

// acquire claims the actuators, folding the arbiter's contention errors
// into ErrDeferred so callers see one retryable condition.
func (e *Engine) acquire(ctx context.Context, timeout time.Duration) (*arbiter.Lease, error) {
	lease, err := e.arb.Acquire(ctx, arbiter.Actuators, e.cfg.HolderID, e.cfg.Priority, timeout)
	if err != nil {
		if errors.Is(err, arbiter.ErrBusy) || errors.Is(err, arbiter.ErrTimedOut) {
			return nil, fmt.Errorf("%w: %v", ErrDeferred, err)
		}
		return nil, err
	}
	return lease, nil
}

// glide eases the servos from their current angles to targets over d.
// Progress follows a smoothstep curve, so motion starts and ends gently
// instead of snapping. Every frame checks the lease before writing.
func (e *Engine) glide(ctx context.Context, lease *arbiter.Lease, targets map[string]float64, d time.Duration) error {
	if len(targets) == 0 {
		return nil
	}
	if err := e.checkLease(lease); err != nil {
		return err
	}
	if d <= 0 {
		return e.bank.MoveAll(targets)
	}

	start := make(map[string]float64, len(targets))
	for id := range targets {
		cur, ok := e.bank.Angle(id)
		if !ok {
			return fmt.Errorf("%w: %s", servo.ErrUnknownActuator, id)
		}
		start[id] = cur
	}

	interval := time.Second / time.Duration(e.cfg.FrameRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	began := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if err := e.checkLease(lease); err != nil {
			return err
		}
		alpha := float64(time.Since(began)) / float64(d)
		if alpha >= 1 {
			break
		}
		frame := make(map[string]float64, len(targets))
		for id, to := range targets {
			frame[id] = lerp(start[id], to, smoothstep(alpha))
		}
		if err := e.bank.MoveAll(frame); err != nil {
			return err
		}
	}
	return e.bank.MoveAll(targets)
}

// checkLease distinguishes a cooperative yield from a reclaim. Revoked but
// still valid means release promptly; stale means someone else may already
// own the servos and no further write is allowed.
func (e *Engine) checkLease(lease *arbiter.Lease) error {
	if !lease.Revoked() {
		return nil
	}
	if err := lease.Validate(); err != nil {
		return err
	}
	return errYield
}

func (e *Engine) applyLED(cfg *Config) {
	if e.strip == nil || cfg.LED.Animation == "" {
		return
	}
	if err := e.strip.Apply(cfg.LED); err != nil {
		e.logger.Warn("led pattern failed", "expression", cfg.Name, "error", err)
	}
}

// smoothstep eases t in [0, 1] with zero slope at both ends.
func smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

func lerp(from, to, alpha float64) float64 {
	return from + (to-from)*alpha
}
