package expression

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/wrenlabs/go-wren/pkg/arbiter"
	"github.com/wrenlabs/go-wren/pkg/leds"
	"github.com/wrenlabs/go-wren/pkg/servo"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// engineTestTable keeps transitions short so tests run in milliseconds.
// slowpoke is the exception: it exists to be interrupted.
const engineTestTable = `
expressions:
  - name: idle
    transition_ms: 10
    targets: {neck_pan: 0, neck_tilt: 0, eyelid_left: 60, eyelid_right: 60, mouth: 0, wing_left: 5, wing_right: 5}
    led: {color: f2e8d0, animation: breathe, period: 4s}
  - name: happy
    mood: positive
    transition_ms: 15
    related: [excited]
    targets: {neck_tilt: -8, mouth: 10, wing_left: 35, wing_right: 35}
    led: {color: ffb300, animation: breathe, period: 2s}
  - name: excited
    transition_ms: 10
    related: [happy]
    targets: {neck_tilt: -15, wing_left: 75, wing_right: 75}
  - name: smug
    transition_ms: 10
    related: [happy, excited]
    targets: {neck_pan: -12, mouth: 4}
  - name: winker
    transition_ms: 10
    quirk: {gesture: wink, probability: 1}
    targets: {neck_pan: 10}
  - name: calm
    transition_ms: 10
    quirk: {gesture: wink, probability: 0}
    targets: {neck_pan: -10}
  - name: snap
    transition_ms: 0
    targets: {neck_pan: 20}
  - name: slowpoke
    transition_ms: 1500
    targets: {neck_pan: 40}
`

type testRig struct {
	bus  *servo.MockBus
	bank *servo.Bank
	arb  *arbiter.Arbiter
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()

	bus := servo.NewMockBus()
	cals := make([]servo.Calibration, 0, len(testCals()))
	for _, c := range testCals() {
		cals = append(cals, c)
	}
	bank, err := servo.NewBank(bus, cals, testLogger())
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

	return &testRig{bus: bus, bank: bank, arb: arb}
}

func newTestEngine(t *testing.T, rig *testRig, mutate func(*EngineConfig)) *Engine {
	t.Helper()

	table, err := LoadTable([]byte(engineTestTable), testCals())
	if err != nil {
		t.Fatalf("LoadTable: %v", err)
	}
	cfg := DefaultEngineConfig()
	cfg.FrameRate = 200
	cfg.AcquireTimeout = 40 * time.Millisecond
	cfg.Seed = 1
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := NewEngine(table, rig.bank, leds.NewStrip(rig.bus, testLogger()), rig.arb, cfg, testLogger())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestSetExpressionMovesToTargets(t *testing.T) {
	rig := newTestRig(t)
	e := newTestEngine(t, rig, nil)

	if err := e.SetExpression(context.Background(), "happy"); err != nil {
		t.Fatalf("SetExpression: %v", err)
	}

	wantAngles := map[string]float64{
		servo.NeckTilt:  -8,
		servo.Mouth:     10,
		servo.WingLeft:  35,
		servo.WingRight: 35,
	}
	for id, want := range wantAngles {
		got, ok := rig.bank.Angle(id)
		if !ok || !floatEquals(got, want) {
			t.Errorf("%s = %v, want %v", id, got, want)
		}
	}
	if got := e.Current(); got != "happy" {
		t.Errorf("Current() = %q, want happy", got)
	}
	hist := e.History()
	if len(hist) != 1 || hist[0] != "happy" {
		t.Errorf("History() = %v, want [happy]", hist)
	}

	frames := rig.bus.Frames()
	if len(frames) == 0 {
		t.Fatal("no led frame written")
	}
	if want := "!led:breathe:ffb300:2000\n"; frames[len(frames)-1] != want {
		t.Errorf("led frame = %q, want %q", frames[len(frames)-1], want)
	}
}

func TestSetExpressionUnknownName(t *testing.T) {
	rig := newTestRig(t)
	e := newTestEngine(t, rig, nil)

	err := e.SetExpression(context.Background(), "thoughtful")
	if !errors.Is(err, ErrUnknownExpression) {
		t.Fatalf("error = %v, want ErrUnknownExpression", err)
	}
	if writes := rig.bus.Writes(); len(writes) != 0 {
		t.Errorf("unknown expression moved servos: %v", writes)
	}
	if got := e.Current(); got != IdleName {
		t.Errorf("Current() = %q, want unchanged idle", got)
	}
	if _, held, _ := rig.arb.Snapshot(arbiter.Actuators); held {
		t.Error("unknown expression left a lease behind")
	}
}

func TestSetExpressionZeroTransitionSnaps(t *testing.T) {
	rig := newTestRig(t)
	e := newTestEngine(t, rig, nil)

	if err := e.SetExpression(context.Background(), "snap"); err != nil {
		t.Fatalf("SetExpression: %v", err)
	}
	if got, _ := rig.bank.Angle(servo.NeckPan); !floatEquals(got, 20) {
		t.Errorf("neck_pan = %v, want 20", got)
	}
}

func TestSetExpressionDeferredWhenHeld(t *testing.T) {
	rig := newTestRig(t)
	e := newTestEngine(t, rig, nil)
	ctx := context.Background()

	blocker, err := rig.arb.Acquire(ctx, arbiter.Actuators, "test/blocker", arbiter.PriorityLocal, 0)
	if err != nil {
		t.Fatalf("blocker acquire: %v", err)
	}
	defer blocker.Release()

	err = e.SetExpression(ctx, "happy")
	if !errors.Is(err, ErrDeferred) {
		t.Fatalf("error = %v, want ErrDeferred", err)
	}
	if writes := rig.bus.Writes(); len(writes) != 0 {
		t.Errorf("deferred expression moved servos: %v", writes)
	}
	if got := e.Current(); got != IdleName {
		t.Errorf("Current() = %q, want unchanged idle", got)
	}
}

func TestSetExpressionYieldsToRemoteClaim(t *testing.T) {
	rig := newTestRig(t)
	e := newTestEngine(t, rig, nil)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		done <- e.SetExpression(ctx, "slowpoke")
	}()

	// Let the engine win the lease and start gliding.
	time.Sleep(80 * time.Millisecond)

	remote, err := rig.arb.Acquire(ctx, arbiter.Actuators, "remote/cmd", arbiter.PriorityRemote, 2*time.Second)
	if err != nil {
		t.Fatalf("remote acquire: %v", err)
	}
	defer remote.Release()

	select {
	case err := <-done:
		if !errors.Is(err, ErrDeferred) {
			t.Fatalf("engine error = %v, want ErrDeferred", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not yield")
	}

	if got, _ := rig.bank.Angle(servo.NeckPan); floatEquals(got, 40) {
		t.Error("interrupted transition still reached its target")
	}
	if got := e.Current(); got == "slowpoke" {
		t.Error("interrupted transition recorded as current expression")
	}
}

func TestQuirkFiresOnProbabilityOne(t *testing.T) {
	rig := newTestRig(t)
	e := newTestEngine(t, rig, nil)

	if err := e.SetExpression(context.Background(), "winker"); err != nil {
		t.Fatalf("SetExpression: %v", err)
	}

	lid := rig.bus.WritesFor(servo.EyelidLeft)
	if len(lid) == 0 {
		t.Fatal("wink quirk never moved the left eyelid")
	}
	sawClosed := false
	for _, w := range lid {
		if floatEquals(w.Deg, 0) {
			sawClosed = true
		}
	}
	if !sawClosed {
		t.Error("wink never fully closed the eyelid")
	}
	if got, _ := rig.bank.Angle(servo.EyelidLeft); !floatEquals(got, 60) {
		t.Errorf("eyelid_left after wink = %v, want restored 60", got)
	}
	if got, _ := rig.bank.Angle(servo.EyelidRight); !floatEquals(got, 60) {
		t.Errorf("wink moved the right eyelid to %v", got)
	}
}

func TestQuirkSkippedOnProbabilityZero(t *testing.T) {
	rig := newTestRig(t)
	e := newTestEngine(t, rig, nil)

	if err := e.SetExpression(context.Background(), "calm"); err != nil {
		t.Fatalf("SetExpression: %v", err)
	}
	if lid := rig.bus.WritesFor(servo.EyelidLeft); len(lid) != 0 {
		t.Errorf("zero-probability quirk moved the eyelid: %v", lid)
	}
}

func TestReturnToIdleDriftIsSeeded(t *testing.T) {
	ctx := context.Background()
	run := func(seed int64, drift float64) []string {
		rig := newTestRig(t)
		e := newTestEngine(t, rig, func(c *EngineConfig) {
			c.Seed = seed
			c.DriftProbability = drift
		})
		var picks []string
		for i := 0; i < 8; i++ {
			if err := e.SetExpression(ctx, "smug"); err != nil {
				t.Fatalf("SetExpression: %v", err)
			}
			name, err := e.ReturnToIdle(ctx)
			if err != nil {
				t.Fatalf("ReturnToIdle: %v", err)
			}
			picks = append(picks, name)
		}
		return picks
	}

	a := run(42, 0.5)
	b := run(42, 0.5)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed diverged at round %d: %v vs %v", i, a, b)
		}
	}

	for i, name := range run(7, 1.0) {
		if name != "happy" && name != "excited" {
			t.Errorf("round %d: full drift settled on %q, want a related expression", i, name)
		}
	}
	for i, name := range run(7, 0.0) {
		if name != IdleName {
			t.Errorf("round %d: zero drift settled on %q, want idle", i, name)
		}
	}
}

func TestIdleTickBlinksWhenFree(t *testing.T) {
	rig := newTestRig(t)
	e := newTestEngine(t, rig, func(c *EngineConfig) {
		c.BlinkChance = 1
		c.SighChance = 0
	})

	e.idleTick(context.Background())

	lid := rig.bus.WritesFor(servo.EyelidLeft)
	if len(lid) == 0 {
		t.Fatal("idle tick never blinked")
	}
	if got, _ := rig.bank.Angle(servo.EyelidLeft); !floatEquals(got, 60) {
		t.Errorf("eyelid_left after blink = %v, want restored 60", got)
	}
}

func TestIdleTickSkipsWhenBusy(t *testing.T) {
	rig := newTestRig(t)
	e := newTestEngine(t, rig, func(c *EngineConfig) {
		c.BlinkChance = 1
		c.SighChance = 0
	})
	ctx := context.Background()

	blocker, err := rig.arb.Acquire(ctx, arbiter.Actuators, "test/blocker", arbiter.PriorityLocal, 0)
	if err != nil {
		t.Fatalf("blocker acquire: %v", err)
	}
	defer blocker.Release()

	e.idleTick(ctx)

	if writes := rig.bus.Writes(); len(writes) != 0 {
		t.Errorf("busy idle tick moved servos: %v", writes)
	}
}

func TestGestureUnknownName(t *testing.T) {
	rig := newTestRig(t)
	e := newTestEngine(t, rig, nil)

	err := e.Gesture(context.Background(), "moonwalk")
	if !errors.Is(err, ErrUnknownGesture) {
		t.Fatalf("error = %v, want ErrUnknownGesture", err)
	}
	if writes := rig.bus.Writes(); len(writes) != 0 {
		t.Errorf("unknown gesture moved servos: %v", writes)
	}
}

func TestVisualAppliesLEDWithoutJoints(t *testing.T) {
	rig := newTestRig(t)
	e := newTestEngine(t, rig, nil)

	if err := e.Visual(context.Background(), "happy"); err != nil {
		t.Fatalf("Visual: %v", err)
	}
	frames := rig.bus.Frames()
	if len(frames) == 0 {
		t.Fatal("no led frame written")
	}
	if want := "!led:breathe:ffb300:2000\n"; frames[len(frames)-1] != want {
		t.Errorf("led frame = %q, want %q", frames[len(frames)-1], want)
	}
	if writes := rig.bus.Writes(); len(writes) != 0 {
		t.Errorf("visual-only apply moved servos: %v", writes)
	}
	if _, held, _ := rig.arb.Snapshot(arbiter.Actuators); held {
		t.Error("lease still held after Visual")
	}
}

func TestVisualWithoutPattern(t *testing.T) {
	rig := newTestRig(t)
	e := newTestEngine(t, rig, nil)

	// excited has joint targets but no led block.
	if err := e.Visual(context.Background(), "excited"); !errors.Is(err, ErrNoVisual) {
		t.Fatalf("error = %v, want ErrNoVisual", err)
	}
	if err := e.Visual(context.Background(), "nonesuch"); !errors.Is(err, ErrUnknownExpression) {
		t.Fatalf("error = %v, want ErrUnknownExpression", err)
	}
}

func TestHistoryKeepsLastThree(t *testing.T) {
	rig := newTestRig(t)
	e := newTestEngine(t, rig, nil)
	ctx := context.Background()

	for _, name := range []string{"happy", "excited", "smug", "calm"} {
		if err := e.SetExpression(ctx, name); err != nil {
			t.Fatalf("SetExpression(%s): %v", name, err)
		}
	}

	want := []string{"excited", "smug", "calm"}
	got := e.History()
	if len(got) != len(want) {
		t.Fatalf("History() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("history[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
