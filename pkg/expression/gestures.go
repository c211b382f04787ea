package expression

import (
	"context"
	"time"

	"github.com/wrenlabs/go-wren/pkg/arbiter"
	"github.com/wrenlabs/go-wren/pkg/servo"
)

// Gesture names understood by the engine. Quirk entries in an expression
// table must reference one of these.
const (
	GestureBlink = "blink"
	GestureWink  = "wink"
	GestureSigh  = "sigh"
	GestureNod   = "nod"
)

// GestureNames lists every gesture the engine can play.
func GestureNames() []string {
	return []string{GestureBlink, GestureWink, GestureSigh, GestureNod}
}

// KnownGesture reports whether name is a playable gesture.
func KnownGesture(name string) bool {
	switch name {
	case GestureBlink, GestureWink, GestureSigh, GestureNod:
		return true
	}
	return false
}

// gestureStep is one leg of a gesture: glide to targets over d, then hold
// the pose briefly.
type gestureStep struct {
	targets map[string]float64
	d       time.Duration
	hold    time.Duration
}

// playGesture runs a gesture on an already-held lease. Gestures are built
// from the live servo angles so the face returns exactly where it was.
func (e *Engine) playGesture(ctx context.Context, lease *arbiter.Lease, name string) error {
	for _, step := range e.gestureSteps(name) {
		if err := e.glide(ctx, lease, step.targets, step.d); err != nil {
			return err
		}
		if step.hold > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(step.hold):
			}
		}
	}
	return nil
}

// gestureSteps builds the step list for name against the current pose.
// Actuators missing from the profile are left out, so a build without
// wings still blinks.
func (e *Engine) gestureSteps(name string) []gestureStep {
	switch name {
	case GestureBlink:
		return e.eyelidSteps([]string{servo.EyelidLeft, servo.EyelidRight},
			70*time.Millisecond, 50*time.Millisecond, 90*time.Millisecond)
	case GestureWink:
		return e.eyelidSteps([]string{servo.EyelidLeft},
			90*time.Millisecond, 160*time.Millisecond, 120*time.Millisecond)
	case GestureSigh:
		return e.sighSteps()
	case GestureNod:
		return e.nodSteps()
	}
	return nil
}

// eyelidSteps closes the given lids fully, holds, and reopens to where
// they were.
func (e *Engine) eyelidSteps(lids []string, down, hold, up time.Duration) []gestureStep {
	closed := map[string]float64{}
	restore := map[string]float64{}
	for _, id := range lids {
		cal, ok := e.bank.Calibration(id)
		if !ok {
			continue
		}
		cur, _ := e.bank.Angle(id)
		closed[id] = cal.MinDeg
		restore[id] = cur
	}
	if len(closed) == 0 {
		return nil
	}
	return []gestureStep{
		{targets: closed, d: down, hold: hold},
		{targets: restore, d: up},
	}
}

// sighSteps droops the head and wings, lingers, and recovers slowly.
func (e *Engine) sighSteps() []gestureStep {
	droop := map[string]float64{}
	restore := map[string]float64{}
	shift := func(id string, delta float64) {
		cal, ok := e.bank.Calibration(id)
		if !ok {
			return
		}
		cur, _ := e.bank.Angle(id)
		droop[id] = cal.Clamp(cur + delta)
		restore[id] = cur
	}
	shift(servo.NeckTilt, 12)
	shift(servo.WingLeft, -8)
	shift(servo.WingRight, -8)
	if len(droop) == 0 {
		return nil
	}
	return []gestureStep{
		{targets: droop, d: 500 * time.Millisecond, hold: 300 * time.Millisecond},
		{targets: restore, d: 650 * time.Millisecond},
	}
}

// nodSteps dips the head twice.
func (e *Engine) nodSteps() []gestureStep {
	cal, ok := e.bank.Calibration(servo.NeckTilt)
	if !ok {
		return nil
	}
	cur, _ := e.bank.Angle(servo.NeckTilt)
	down := map[string]float64{servo.NeckTilt: cal.Clamp(cur + 14)}
	up := map[string]float64{servo.NeckTilt: cur}
	return []gestureStep{
		{targets: down, d: 140 * time.Millisecond},
		{targets: up, d: 140 * time.Millisecond, hold: 60 * time.Millisecond},
		{targets: down, d: 140 * time.Millisecond},
		{targets: up, d: 160 * time.Millisecond},
	}
}
