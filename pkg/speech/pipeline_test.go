package speech

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/wrenlabs/go-wren/pkg/arbiter"
	"github.com/wrenlabs/go-wren/pkg/audioio"
	"github.com/wrenlabs/go-wren/pkg/servo"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCals() []servo.Calibration {
	return []servo.Calibration{
		{ID: servo.NeckPan, MinDeg: -80, MaxDeg: 80, NeutralDeg: 0},
		{ID: servo.NeckTilt, MinDeg: -35, MaxDeg: 40, NeutralDeg: 0},
		{ID: servo.EyelidLeft, MinDeg: 0, MaxDeg: 70, NeutralDeg: 60},
		{ID: servo.EyelidRight, MinDeg: 0, MaxDeg: 70, NeutralDeg: 60},
		{ID: servo.Mouth, MinDeg: 0, MaxDeg: 35, NeutralDeg: 0},
	}
}

type speechRig struct {
	bus  *servo.MockBus
	bank *servo.Bank
	sink *audioio.MockSink
	arb  *arbiter.Arbiter
}

func newSpeechRig(t *testing.T) *speechRig {
	t.Helper()

	bus := servo.NewMockBus()
	bank, err := servo.NewBank(bus, testCals(), testLogger())
	if err != nil {
		t.Fatalf("NewBank: %v", err)
	}

	cfg := arbiter.DefaultConfig()
	cfg.StateDir = t.TempDir()
	cfg.Grace = 150 * time.Millisecond
	cfg.Staleness = 2 * time.Second
	cfg.MaxHold = 10 * time.Second
	cfg.HeartbeatEvery = 50 * time.Millisecond
	cfg.PollEvery = 5 * time.Millisecond
	cfg.RevokeCacheTTL = 15 * time.Millisecond
	arb, err := arbiter.New(cfg, testLogger())
	if err != nil {
		t.Fatalf("arbiter.New: %v", err)
	}

	sink := audioio.NewMockSink(audioio.DefaultConfig(), testLogger())
	return &speechRig{bus: bus, bank: bank, sink: sink, arb: arb}
}

func newTestPipeline(t *testing.T, rig *speechRig, mutate func(*PipelineConfig)) *Pipeline {
	t.Helper()

	cfg := DefaultPipelineConfig()
	cfg.AcquireTimeout = 40 * time.Millisecond
	cfg.BlinkEvery = 0
	cfg.Seed = 1
	if mutate != nil {
		mutate(&cfg)
	}
	voices, err := LoadBuiltinVoices()
	if err != nil {
		t.Fatalf("LoadBuiltinVoices: %v", err)
	}
	p, err := NewPipeline(rig.bank, rig.sink, rig.arb, voices, cfg, testLogger())
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p
}

// tone returns ms milliseconds of loud sine preceded by lead milliseconds
// of silence, at the default sink rate.
func tone(lead, ms int) []int16 {
	rate := audioio.DefaultConfig().SampleRate
	silent := rate * lead / 1000
	voiced := rate * ms / 1000
	out := make([]int16, silent+voiced)
	for i := 0; i < voiced; i++ {
		out[silent+i] = int16(16000 * math.Sin(2*math.Pi*220*float64(i)/float64(rate)))
	}
	return out
}

func waitFor(t *testing.T, d time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSpeakAnimatesMouthAndSettles(t *testing.T) {
	rig := newSpeechRig(t)
	p := newTestPipeline(t, rig, nil)

	samples := tone(60, 240)
	if err := p.Speak(context.Background(), samples, audioio.DefaultConfig().SampleRate, "plain"); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	mouth := rig.bus.WritesFor(servo.Mouth)
	if len(mouth) == 0 {
		t.Fatal("no mouth writes during utterance")
	}
	var peak float64
	for _, w := range mouth {
		if w.Deg > peak {
			peak = w.Deg
		}
	}
	if peak < 20 {
		t.Errorf("mouth peak %.1f, want loud speech to open wide", peak)
	}
	if last := mouth[len(mouth)-1]; last.Deg != 0 {
		t.Errorf("mouth settled at %.1f, want neutral 0", last.Deg)
	}

	written := rig.sink.WrittenSamples()
	if len(written) != len(samples) {
		t.Fatalf("sink got %d samples, want %d", len(written), len(samples))
	}
	for i := range samples {
		if written[i] != samples[i] {
			t.Fatalf("sample %d altered: %d -> %d", i, samples[i], written[i])
		}
	}

	if _, held, err := rig.arb.Snapshot(arbiter.Actuators); err != nil || held {
		t.Errorf("actuators still held after Speak (held=%v err=%v)", held, err)
	}
}

func TestSpeakScalesTempoForEmotion(t *testing.T) {
	rig := newSpeechRig(t)
	p := newTestPipeline(t, rig, nil)

	samples := tone(0, 200)
	if err := p.Speak(context.Background(), samples, audioio.DefaultConfig().SampleRate, "excited"); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	// The excited profile speaks at 1.15x, so fewer samples reach the
	// speaker. Pitch shifting does not change the count.
	want := int(math.Round(float64(len(samples)) / 1.15))
	if got := len(rig.sink.WrittenSamples()); got != want {
		t.Errorf("sink got %d samples, want %d", got, want)
	}
}

func TestSpeakDeferredWhenActuatorsHeld(t *testing.T) {
	rig := newSpeechRig(t)
	p := newTestPipeline(t, rig, nil)

	blocker, err := rig.arb.Acquire(context.Background(), arbiter.Actuators, "test/blocker", arbiter.PriorityLocal, 0)
	if err != nil {
		t.Fatalf("blocker acquire: %v", err)
	}
	defer blocker.Release()

	err = p.Speak(context.Background(), tone(0, 100), audioio.DefaultConfig().SampleRate, "plain")
	if !errors.Is(err, ErrDeferred) {
		t.Fatalf("Speak: %v, want ErrDeferred", err)
	}
	if writes := rig.bus.Writes(); len(writes) != 0 {
		t.Errorf("%d servo writes despite deferral", len(writes))
	}
	if chunks := rig.sink.Written(); len(chunks) != 0 {
		t.Errorf("%d chunks written despite deferral", len(chunks))
	}
}

func TestSecondSpeakDeferredWhileSpeaking(t *testing.T) {
	rig := newSpeechRig(t)
	p := newTestPipeline(t, rig, nil)

	errCh := make(chan error, 1)
	go func() {
		errCh <- p.Speak(context.Background(), tone(0, 2000), audioio.DefaultConfig().SampleRate, "plain")
	}()
	waitFor(t, time.Second, "first utterance to start", p.Speaking)

	err := p.Speak(context.Background(), tone(0, 100), audioio.DefaultConfig().SampleRate, "plain")
	if !errors.Is(err, ErrDeferred) {
		t.Errorf("second Speak: %v, want ErrDeferred", err)
	}

	p.Stop()
	if err := <-errCh; err != nil {
		t.Fatalf("first Speak: %v", err)
	}
}

func TestStopCutsUtterance(t *testing.T) {
	rig := newSpeechRig(t)
	p := newTestPipeline(t, rig, nil)

	total := tone(0, 2000)
	errCh := make(chan error, 1)
	go func() {
		errCh <- p.Speak(context.Background(), total, audioio.DefaultConfig().SampleRate, "plain")
	}()
	waitFor(t, time.Second, "utterance to start", p.Speaking)

	info, held, err := rig.arb.Snapshot(arbiter.Actuators)
	if err != nil || !held || info.ID != "local/speech" {
		t.Fatalf("mid-utterance holder = %q held=%v err=%v", info.ID, held, err)
	}

	time.Sleep(100 * time.Millisecond)
	p.Stop()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Speak after Stop: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Speak did not return after Stop")
	}

	if got := len(rig.sink.WrittenSamples()); got >= len(total) {
		t.Errorf("sink got all %d samples despite cut", got)
	}
	if last, ok := rig.bus.LastWrite(servo.Mouth); !ok || last.Deg != 0 {
		t.Errorf("mouth not neutral after cut: %+v ok=%v", last, ok)
	}
	if _, held, _ := rig.arb.Snapshot(arbiter.Actuators); held {
		t.Error("actuators still held after cut")
	}

	// A second Stop is a no-op.
	p.Stop()
}

func TestRemotePreemptionInterrupts(t *testing.T) {
	rig := newSpeechRig(t)
	p := newTestPipeline(t, rig, nil)

	errCh := make(chan error, 1)
	go func() {
		errCh <- p.Speak(context.Background(), tone(0, 2000), audioio.DefaultConfig().SampleRate, "plain")
	}()
	waitFor(t, time.Second, "pipeline to hold the actuators", func() bool {
		info, held, err := rig.arb.Snapshot(arbiter.Actuators)
		return err == nil && held && info.ID == "local/speech"
	})

	remote, err := rig.arb.Acquire(context.Background(), arbiter.Actuators, "remote/operator", arbiter.PriorityRemote, 2*time.Second)
	if err != nil {
		t.Fatalf("remote acquire: %v", err)
	}
	defer remote.Release()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrInterrupted) {
			t.Fatalf("Speak: %v, want ErrInterrupted", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Speak did not return after preemption")
	}
}

func TestSpeakEmptyAudio(t *testing.T) {
	rig := newSpeechRig(t)
	p := newTestPipeline(t, rig, nil)

	if err := p.Speak(context.Background(), nil, audioio.DefaultConfig().SampleRate, "plain"); !errors.Is(err, ErrNoAudio) {
		t.Fatalf("Speak: %v, want ErrNoAudio", err)
	}
}

func TestSpeakWithDeadSinkStillAnimates(t *testing.T) {
	rig := newSpeechRig(t)
	p := newTestPipeline(t, rig, nil)
	rig.sink.Close()

	if err := p.Speak(context.Background(), tone(0, 200), audioio.DefaultConfig().SampleRate, "plain"); err != nil {
		t.Fatalf("Speak with dead sink: %v", err)
	}

	mouth := rig.bus.WritesFor(servo.Mouth)
	if len(mouth) == 0 {
		t.Fatal("no mouth writes while muted")
	}
	var peak float64
	for _, w := range mouth {
		if w.Deg > peak {
			peak = w.Deg
		}
	}
	if peak < 20 {
		t.Errorf("muted mouth peak %.1f, want animation anyway", peak)
	}
	if chunks := rig.sink.Written(); len(chunks) != 0 {
		t.Errorf("%d chunks written to a dead sink", len(chunks))
	}
}

func TestBlinkDuringSpeech(t *testing.T) {
	rig := newSpeechRig(t)
	p := newTestPipeline(t, rig, func(cfg *PipelineConfig) {
		cfg.BlinkEvery = 80 * time.Millisecond
		cfg.BlinkJitter = 0
	})

	if err := p.Speak(context.Background(), tone(0, 800), audioio.DefaultConfig().SampleRate, "plain"); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	lids := rig.bus.WritesFor(servo.EyelidLeft)
	if len(lids) == 0 {
		t.Fatal("no eyelid writes, expected blinks during speech")
	}
	closedEnough := false
	for _, w := range lids {
		if w.Deg < 5 {
			closedEnough = true
			break
		}
	}
	if !closedEnough {
		t.Error("eyelid never closed during speech")
	}
	if last := lids[len(lids)-1]; last.Deg != 60 {
		t.Errorf("eyelid settled at %.1f, want restored 60", last.Deg)
	}
}
