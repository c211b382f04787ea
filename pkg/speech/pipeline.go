// Package speech turns PCM utterances into synchronized sound and
// motion. A voice profile reshapes the audio first; the loudness
// envelope of the transformed signal then drives the jaw chunk by chunk
// while the neck sways with it and the eyelids blink on their own
// clock. The actuator lease is held for the whole utterance.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/wrenlabs/go-wren/pkg/arbiter"
	"github.com/wrenlabs/go-wren/pkg/audioio"
	"github.com/wrenlabs/go-wren/pkg/servo"
)

// Blink timing while speaking. A blink closes, holds, then reopens; the
// fractions split blinkDuration between the phases.
const (
	blinkDuration  = 240 * time.Millisecond
	blinkCloseFrac = 0.25
	blinkHoldFrac  = 0.5
)

const defaultChunk = 20 * time.Millisecond

// PipelineConfig tunes the speaking pipeline.
type PipelineConfig struct {
	// HolderID identifies this pipeline to the arbiter.
	HolderID string `yaml:"holder_id" json:"holder_id"`

	// Priority is the claim priority for the actuator lease.
	Priority arbiter.Priority `yaml:"priority" json:"priority"`

	// AcquireTimeout bounds the wait for the actuator lease before an
	// utterance is deferred.
	AcquireTimeout time.Duration `yaml:"acquire_timeout" json:"acquire_timeout"`

	// MouthCeiling is the widest jaw opening the envelope can drive, in
	// degrees.
	MouthCeiling float64 `yaml:"mouth_ceiling" json:"mouth_ceiling"`

	// BlinkEvery is the mean interval between blinks while speaking.
	// Zero disables blinking during speech.
	BlinkEvery time.Duration `yaml:"blink_every" json:"blink_every"`

	// BlinkJitter spreads blink timing around BlinkEvery so the rhythm
	// does not read as mechanical.
	BlinkJitter time.Duration `yaml:"blink_jitter" json:"blink_jitter"`

	// Seed fixes the blink jitter sequence. Zero seeds from the clock.
	Seed int64 `yaml:"seed" json:"seed"`
}

// DefaultPipelineConfig returns the tuning used on the stock robot.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		HolderID:       "local/speech",
		Priority:       arbiter.PriorityLocal,
		AcquireTimeout: 300 * time.Millisecond,
		MouthCeiling:   30,
		BlinkEvery:     4 * time.Second,
		BlinkJitter:    1500 * time.Millisecond,
	}
}

func (c PipelineConfig) Validate() error {
	if c.HolderID == "" {
		return fmt.Errorf("pipeline config: empty holder id")
	}
	if c.AcquireTimeout < 0 {
		return fmt.Errorf("pipeline config: negative acquire timeout")
	}
	if c.MouthCeiling <= 0 {
		return fmt.Errorf("pipeline config: mouth ceiling must be positive, got %.1f", c.MouthCeiling)
	}
	if c.BlinkEvery < 0 || c.BlinkJitter < 0 {
		return fmt.Errorf("pipeline config: blink timing must not be negative")
	}
	if c.BlinkEvery > 0 && c.BlinkJitter >= c.BlinkEvery {
		return fmt.Errorf("pipeline config: blink jitter %v must stay below interval %v", c.BlinkJitter, c.BlinkEvery)
	}
	return nil
}

// Pipeline plays transformed speech audio while driving the mouth, neck
// and eyelids in time with it. One utterance runs at a time; the actuator
// lease is held for the whole utterance.
type Pipeline struct {
	cfg    PipelineConfig
	bank   *servo.Bank
	sink   audioio.Sink
	arb    *arbiter.Arbiter
	voices *VoiceTable
	logger *slog.Logger
	rng    *rand.Rand

	mu       sync.Mutex
	speaking bool
	stopped  bool
	stopCh   chan struct{}
}

// NewPipeline wires a speaking pipeline. voices may be nil, in which case
// every emotion speaks with the neutral profile.
func NewPipeline(bank *servo.Bank, sink audioio.Sink, arb *arbiter.Arbiter, voices *VoiceTable, cfg PipelineConfig, logger *slog.Logger) (*Pipeline, error) {
	if bank == nil || sink == nil || arb == nil {
		return nil, fmt.Errorf("speech pipeline: bank, sink and arbiter are required")
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
	return &Pipeline{
		cfg:    cfg,
		bank:   bank,
		sink:   sink,
		arb:    arb,
		voices: voices,
		logger: logger,
		rng:    rand.New(rand.NewSource(seed)),
	}, nil
}

// Speaking reports whether an utterance is in flight.
func (p *Pipeline) Speaking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speaking
}

// Speak plays samples through the speaker with the emotion's voice
// profile applied, animating mouth, neck and eyelids until the audio
// ends. It blocks for the duration of the utterance and holds the
// actuator lease throughout.
//
// A cut via Stop returns nil. Losing the actuators to a higher-priority
// claim returns ErrInterrupted. If the actuators cannot be acquired
// within the configured timeout, or another utterance is already
// playing, Speak returns ErrDeferred without touching the hardware.
func (p *Pipeline) Speak(ctx context.Context, samples []int16, sampleRate int, emotion string) error {
	if len(samples) == 0 {
		return ErrNoAudio
	}
	if sampleRate <= 0 {
		return fmt.Errorf("speak: sample rate %d", sampleRate)
	}

	p.mu.Lock()
	if p.speaking {
		p.mu.Unlock()
		return fmt.Errorf("speak: %w: utterance in progress", ErrDeferred)
	}
	p.speaking = true
	p.stopped = false
	p.stopCh = make(chan struct{})
	stopCh := p.stopCh
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.speaking = false
		p.mu.Unlock()
	}()

	profile := p.voices.Lookup(emotion)
	prepared, err := p.prepare(samples, sampleRate, profile)
	if err != nil {
		return fmt.Errorf("speak: %w", err)
	}

	lease, err := p.arb.Acquire(ctx, arbiter.Actuators, p.cfg.HolderID, p.cfg.Priority, p.cfg.AcquireTimeout)
	if err != nil {
		if errors.Is(err, arbiter.ErrBusy) || errors.Is(err, arbiter.ErrTimedOut) {
			return fmt.Errorf("speak: %w", ErrDeferred)
		}
		return fmt.Errorf("speak: %w", err)
	}
	defer lease.Release()

	p.logger.Debug("utterance started",
		"emotion", emotion,
		"samples", len(prepared),
		"rate", p.sink.Config().SampleRate)
	return p.run(ctx, lease, stopCh, prepared, emotion)
}

// Stop cuts the current utterance. Buffered audio is discarded and the
// mouth returns to neutral before the lease is released. Stop is safe to
// call at any time, from any goroutine, any number of times.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.speaking || p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.stopCh)
	p.mu.Unlock()

	if err := p.sink.Clear(); err != nil {
		p.logger.Debug("clear on stop", "error", err)
	}
}

// prepare applies the voice profile and converts the result to the
// sink's sample rate.
func (p *Pipeline) prepare(samples []int16, sampleRate int, profile VoiceProfile) ([]int16, error) {
	out, err := Transform(samples, sampleRate, profile)
	if err != nil {
		return nil, err
	}
	sinkRate := p.sink.Config().SampleRate
	if sampleRate != sinkRate && sinkRate > 0 {
		floats, err := resample(audioio.SamplesToFloat(out), float64(sampleRate), float64(sinkRate))
		if err != nil {
			return nil, err
		}
		out = audioio.FloatToSamples(floats)
	}
	if len(out) == 0 {
		return nil, ErrNoAudio
	}
	return out, nil
}

// run is the utterance loop: one tick per chunk, servo frame first, then
// the chunk to the speaker, so the face never lags the voice by more
// than one chunk.
func (p *Pipeline) run(ctx context.Context, lease *arbiter.Lease, stopCh <-chan struct{}, samples []int16, emotion string) error {
	sinkCfg := p.sink.Config()
	chunkLen := sinkCfg.BufferSize()
	if chunkLen <= 0 {
		chunkLen = len(samples)
	}
	pace := sinkCfg.BufferDuration
	if pace <= 0 {
		pace = defaultChunk
	}

	muted := false
	if err := p.sink.Start(ctx); err != nil {
		muted = true
		p.logger.Warn("audio output unavailable, animating silently", "error", err)
	}

	base := p.capturePose()
	env := &envelopeFollower{}
	sway := newSwayOscillator()
	blink := p.newBlinkTimer()
	frozen := false

	ticker := time.NewTicker(pace)
	defer ticker.Stop()

	var outcome error
	cut := false
	interrupted := false
loop:
	for off := 0; off < len(samples); off += chunkLen {
		select {
		case <-ctx.Done():
			cut = true
			outcome = ctx.Err()
			break loop
		case <-stopCh:
			cut = true
			break loop
		case <-ticker.C:
		}

		if lease.Revoked() {
			cut = true
			interrupted = true
			outcome = fmt.Errorf("speak %q: %w", emotion, ErrInterrupted)
			break loop
		}

		chunk := samples[off:min(off+chunkLen, len(samples))]

		if !frozen {
			targets := p.frameTargets(chunk, base, env, sway, blink)
			if err := p.bank.MoveAll(targets); err != nil {
				frozen = true
				p.logger.Warn("servo writes failing, speaking without motion", "error", err)
			}
		}

		if !muted {
			err := p.sink.Write(ctx, audioio.AudioChunk{
				Samples:    chunk,
				SampleRate: sinkCfg.SampleRate,
				Channels:   1,
			})
			if err != nil {
				muted = true
				p.logger.Warn("audio write failed, animating silently", "error", err)
			}
		}
	}

	p.drain(ctx, muted, !cut)
	p.settle(lease, base, frozen)
	if interrupted {
		p.logger.Info("utterance preempted", "emotion", emotion)
	}
	return outcome
}

// frameTargets computes one servo frame from the chunk about to play.
func (p *Pipeline) frameTargets(chunk []int16, base basePose, env *envelopeFollower, sway *swayOscillator, blink *blinkTimer) map[string]float64 {
	targets := make(map[string]float64, 5)
	angle := mouthAngle(env.feed(chunk), p.cfg.MouthCeiling)
	if p.bank.Has(servo.Mouth) {
		targets[servo.Mouth] = angle
	}
	pan, tilt := sway.step(chunk)
	if p.bank.Has(servo.NeckPan) {
		targets[servo.NeckPan] = base.pan + pan
	}
	if p.bank.Has(servo.NeckTilt) {
		targets[servo.NeckTilt] = base.tilt + tilt
	}
	blink.apply(time.Now(), targets, base)
	return targets
}

// drain lets buffered audio finish on a clean end, or discards it after a
// cut or preemption.
func (p *Pipeline) drain(ctx context.Context, muted, completed bool) {
	if muted {
		return
	}
	if completed {
		if err := p.sink.Flush(ctx); err != nil {
			p.logger.Warn("flush after utterance", "error", err)
		}
		return
	}
	if err := p.sink.Clear(); err != nil {
		p.logger.Debug("clear after cut", "error", err)
	}
}

// settle returns the face to rest: mouth to neutral, eyelids and neck
// back where the utterance found them. After a reclaim the new holder
// owns the pose, so a stale lease skips the writes entirely.
func (p *Pipeline) settle(lease *arbiter.Lease, base basePose, frozen bool) {
	if frozen {
		return
	}
	if err := lease.Validate(); err != nil {
		return
	}
	targets := make(map[string]float64, 5)
	if cal, ok := p.bank.Calibration(servo.Mouth); ok {
		targets[servo.Mouth] = cal.NeutralDeg
	}
	if p.bank.Has(servo.NeckPan) {
		targets[servo.NeckPan] = base.pan
	}
	if p.bank.Has(servo.NeckTilt) {
		targets[servo.NeckTilt] = base.tilt
	}
	for id, lid := range base.lids {
		targets[id] = lid.open
	}
	if err := p.bank.MoveAll(targets); err != nil {
		p.logger.Warn("settle after utterance", "error", err)
	}
}

// basePose is where the face was when the utterance began. Sway and
// blink animate around it and settle restores it.
type basePose struct {
	pan  float64
	tilt float64
	lids map[string]lidPose
}

type lidPose struct {
	open   float64
	closed float64
}

func (p *Pipeline) capturePose() basePose {
	base := basePose{lids: make(map[string]lidPose, 2)}
	if deg, ok := p.bank.Angle(servo.NeckPan); ok {
		base.pan = deg
	}
	if deg, ok := p.bank.Angle(servo.NeckTilt); ok {
		base.tilt = deg
	}
	for _, id := range []string{servo.EyelidLeft, servo.EyelidRight} {
		open, ok := p.bank.Angle(id)
		if !ok {
			continue
		}
		cal, ok := p.bank.Calibration(id)
		if !ok {
			continue
		}
		base.lids[id] = lidPose{open: open, closed: cal.MinDeg}
	}
	return base
}

// blinkTimer schedules eyelid blinks during speech on its own clock,
// independent of the idle loop's blinking.
type blinkTimer struct {
	rng   *rand.Rand
	every time.Duration
	jit   time.Duration
	next  time.Time
	start time.Time
}

func (p *Pipeline) newBlinkTimer() *blinkTimer {
	b := &blinkTimer{rng: p.rng, every: p.cfg.BlinkEvery, jit: p.cfg.BlinkJitter}
	if b.every > 0 {
		b.next = time.Now().Add(b.interval())
	}
	return b
}

func (b *blinkTimer) interval() time.Duration {
	if b.jit <= 0 {
		return b.every
	}
	return b.every + time.Duration((b.rng.Float64()*2-1)*float64(b.jit))
}

// apply folds the current blink phase into the frame's targets. Between
// blinks it leaves the eyelids alone.
func (b *blinkTimer) apply(now time.Time, targets map[string]float64, base basePose) {
	if b.every <= 0 || len(base.lids) == 0 {
		return
	}
	if b.start.IsZero() {
		if now.Before(b.next) {
			return
		}
		b.start = now
	}
	frac, done := blinkOpenFraction(now.Sub(b.start))
	if done {
		b.start = time.Time{}
		b.next = now.Add(b.interval())
	}
	for id, lid := range base.lids {
		targets[id] = lid.closed + (lid.open-lid.closed)*frac
	}
}

// blinkOpenFraction maps elapsed blink time to eyelid openness, 1 fully
// open down to 0 closed and back.
func blinkOpenFraction(elapsed time.Duration) (frac float64, done bool) {
	t := float64(elapsed) / float64(blinkDuration)
	switch {
	case t >= 1:
		return 1, true
	case t < blinkCloseFrac:
		return 1 - t/blinkCloseFrac, false
	case t < blinkHoldFrac:
		return 0, false
	default:
		return (t - blinkHoldFrac) / (1 - blinkHoldFrac), false
	}
}
