package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wrenlabs/go-wren/pkg/audioio"
	"github.com/wrenlabs/go-wren/pkg/expression"
	"github.com/wrenlabs/go-wren/pkg/speech"
)

// speakRetryDelay is the breath taken before the single retry of a
// deferred utterance. It covers a revoke grace window, so a holder that
// is winding down has time to let go.
const speakRetryDelay = 200 * time.Millisecond

// SkipReason records one skipped action and why.
type SkipReason struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
}

// Summary reports what a sequence actually did.
type Summary struct {
	Executed int          `json:"executed"`
	Skipped  int          `json:"skipped"`
	Reasons  []SkipReason `json:"reasons,omitempty"`
}

func (s *Summary) skip(act Descriptor, reason string) {
	s.Skipped++
	s.Reasons = append(s.Reasons, SkipReason{Action: act.String(), Reason: reason})
}

// Sequencer executes action lists in strict order against whatever
// hardware is fitted. Any collaborator may be nil; actions needing a
// missing one are skipped with a reason, so a half-populated bird still
// performs the rest of its routine.
type Sequencer struct {
	engine *expression.Engine
	pipe   *speech.Pipeline
	sink   audioio.Sink
	sounds *SoundBank
	logger *slog.Logger
}

// NewSequencer wires a sequencer over the fitted hardware paths.
func NewSequencer(engine *expression.Engine, pipe *speech.Pipeline, sink audioio.Sink, sounds *SoundBank, logger *slog.Logger) *Sequencer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequencer{engine: engine, pipe: pipe, sink: sink, sounds: sounds, logger: logger}
}

// Execute runs the actions strictly in order, synchronously. A failed
// action is logged and skipped; the rest of the list still runs. Context
// cancellation skips the remainder.
func (s *Sequencer) Execute(ctx context.Context, list []Descriptor) Summary {
	var sum Summary
	for _, act := range list {
		if err := ctx.Err(); err != nil {
			sum.skip(act, "sequence cancelled")
			continue
		}
		if err := s.run(ctx, act); err != nil {
			s.logger.Warn("action skipped", "action", act.String(), "reason", err)
			sum.skip(act, err.Error())
			continue
		}
		sum.Executed++
	}
	s.logger.Info("sequence done", "executed", sum.Executed, "skipped", sum.Skipped)
	return sum
}

func (s *Sequencer) run(ctx context.Context, act Descriptor) error {
	switch act.Kind {
	case KindGesture:
		if s.engine == nil {
			return fmt.Errorf("no expression engine fitted")
		}
		return s.engine.Gesture(ctx, act.Name)
	case KindVisual:
		if s.engine == nil {
			return fmt.Errorf("no expression engine fitted")
		}
		return s.engine.Visual(ctx, act.Name)
	case KindPause:
		return s.pause(ctx, act.Pause)
	case KindSound:
		return s.playCue(ctx, act.Name)
	}
	return fmt.Errorf("%w: %s", ErrUnknownAction, act.Name)
}

// pause sleeps cooperatively. No lease is held while sleeping.
func (s *Sequencer) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// playCue streams a bank WAV straight to the speaker. Cues are sound
// effects, not speech: no lease, no mouth. They are also best-effort: a
// cue that cannot be found or read logs a warning and the action still
// counts as done. Only an absent or failing speaker skips it.
func (s *Sequencer) playCue(ctx context.Context, name string) error {
	if s.sink == nil {
		return fmt.Errorf("no speaker fitted")
	}
	if s.pipe != nil && s.pipe.Speaking() {
		return fmt.Errorf("speaker busy with an utterance")
	}
	path, ok := s.sounds.Path(name)
	if !ok {
		s.logger.Warn("sound cue not in bank, playing nothing", "cue", name)
		return nil
	}

	chunk, err := audioio.ReadWAVFile(path)
	if err != nil {
		s.logger.Warn("sound cue unreadable, playing nothing", "cue", name, "error", err)
		return nil
	}
	mono := chunk.Mono()
	samples := mono.Samples
	rate := s.sink.Config().SampleRate
	if rate > 0 && mono.SampleRate != rate {
		if samples, err = speech.Resample(samples, mono.SampleRate, rate); err != nil {
			return fmt.Errorf("resample %s: %w", name, err)
		}
	}
	return s.playSamples(ctx, samples, rate)
}

func (s *Sequencer) playSamples(ctx context.Context, samples []int16, rate int) error {
	if err := s.sink.Start(ctx); err != nil {
		return fmt.Errorf("start speaker: %w", err)
	}
	cfg := s.sink.Config()
	size := cfg.BufferSize()
	if size <= 0 {
		size = len(samples)
	}
	for off := 0; off < len(samples); off += size {
		if err := ctx.Err(); err != nil {
			s.sink.Clear()
			return err
		}
		err := s.sink.Write(ctx, audioio.AudioChunk{
			Samples:    samples[off:min(off+size, len(samples))],
			SampleRate: rate,
			Channels:   1,
		})
		if err != nil {
			return fmt.Errorf("play: %w", err)
		}
	}
	return s.sink.Flush(ctx)
}

// Say speaks a named cue, or a WAV path, through the speaking pipeline
// with the emotion's voice. A deferred start gets exactly one retry
// after a short breath; a second deferral is the caller's problem.
func (s *Sequencer) Say(ctx context.Context, name, emotion string) error {
	if s.pipe == nil {
		return fmt.Errorf("no speech pipeline fitted")
	}
	chunk, err := s.resolveSpeech(name)
	if err != nil {
		return err
	}
	mono := chunk.Mono()

	err = s.pipe.Speak(ctx, mono.Samples, mono.SampleRate, emotion)
	if !errors.Is(err, speech.ErrDeferred) {
		return err
	}

	s.logger.Info("speech deferred, retrying once", "name", name)
	t := time.NewTimer(speakRetryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}
	return s.pipe.Speak(ctx, mono.Samples, mono.SampleRate, emotion)
}

func (s *Sequencer) resolveSpeech(name string) (audioio.AudioChunk, error) {
	if path, ok := s.sounds.Path(name); ok {
		return audioio.ReadWAVFile(path)
	}
	if strings.HasSuffix(strings.ToLower(name), ".wav") {
		return audioio.ReadWAVFile(name)
	}
	return audioio.AudioChunk{}, fmt.Errorf("no speech audio for %q", name)
}
