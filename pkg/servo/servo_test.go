package servo

import (
	"errors"
	"math"
	"testing"
)

const floatTolerance = 1e-9

func floatEquals(a, b float64) bool {
	return math.Abs(a-b) < floatTolerance
}

func testCalibrations() []Calibration {
	return []Calibration{
		{ID: NeckPan, MinDeg: -80, MaxDeg: 80, NeutralDeg: 0},
		{ID: NeckTilt, MinDeg: -30, MaxDeg: 45, NeutralDeg: 0},
		{ID: Mouth, MinDeg: 0, MaxDeg: 35, NeutralDeg: 0},
		{ID: WingLeft, MinDeg: -10, MaxDeg: 90, NeutralDeg: 5, Inverted: true},
	}
}

func newTestBank(t *testing.T) (*Bank, *MockBus) {
	t.Helper()
	bus := NewMockBus()
	bank, err := NewBank(bus, testCalibrations(), nil)
	if err != nil {
		t.Fatalf("NewBank failed: %v", err)
	}
	return bank, bus
}

func TestCalibrationValidate(t *testing.T) {
	cases := []struct {
		name    string
		cal     Calibration
		wantErr bool
	}{
		{"valid", Calibration{ID: "a", MinDeg: -10, MaxDeg: 10, NeutralDeg: 0}, false},
		{"empty id", Calibration{MinDeg: -10, MaxDeg: 10}, true},
		{"min above max", Calibration{ID: "a", MinDeg: 10, MaxDeg: -10}, true},
		{"min equals max", Calibration{ID: "a", MinDeg: 5, MaxDeg: 5, NeutralDeg: 5}, true},
		{"neutral below range", Calibration{ID: "a", MinDeg: 0, MaxDeg: 10, NeutralDeg: -1}, true},
		{"neutral above range", Calibration{ID: "a", MinDeg: 0, MaxDeg: 10, NeutralDeg: 11}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cal.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestMoveClampsToRange(t *testing.T) {
	bank, bus := newTestBank(t)

	if err := bank.Move(Mouth, 200); err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	w, ok := bus.LastWrite(Mouth)
	if !ok {
		t.Fatal("no write recorded")
	}
	if !floatEquals(w.Deg, 35) {
		t.Errorf("wire angle = %.2f, want clamped 35", w.Deg)
	}
	if deg, _ := bank.Angle(Mouth); !floatEquals(deg, 35) {
		t.Errorf("tracked angle = %.2f, want 35", deg)
	}

	if err := bank.Move(NeckTilt, -90); err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	if deg, _ := bank.Angle(NeckTilt); !floatEquals(deg, -30) {
		t.Errorf("tracked angle = %.2f, want clamped -30", deg)
	}
}

func TestMoveAppliesInversion(t *testing.T) {
	bank, bus := newTestBank(t)

	if err := bank.Move(WingLeft, 40); err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	w, _ := bus.LastWrite(WingLeft)
	if !floatEquals(w.Deg, -40) {
		t.Errorf("wire angle = %.2f, want inverted -40", w.Deg)
	}
	// Tracked angle stays in the logical frame.
	if deg, _ := bank.Angle(WingLeft); !floatEquals(deg, 40) {
		t.Errorf("tracked angle = %.2f, want 40", deg)
	}
}

func TestMoveUnknownActuator(t *testing.T) {
	bank, _ := newTestBank(t)

	err := bank.Move("tail", 10)
	if !errors.Is(err, ErrUnknownActuator) {
		t.Errorf("error = %v, want ErrUnknownActuator", err)
	}
}

func TestNeutralCommandsAllActuators(t *testing.T) {
	bank, bus := newTestBank(t)

	if err := bank.Move(NeckPan, 60); err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	bus.Reset()

	if err := bank.Neutral(); err != nil {
		t.Fatalf("Neutral failed: %v", err)
	}
	writes := bus.Writes()
	if len(writes) != len(testCalibrations()) {
		t.Fatalf("got %d writes, want %d", len(writes), len(testCalibrations()))
	}
	if deg, _ := bank.Angle(NeckPan); !floatEquals(deg, 0) {
		t.Errorf("neck_pan = %.2f after Neutral, want 0", deg)
	}
	// WingLeft neutral is 5 logical, -5 on the wire.
	w, _ := bus.LastWrite(WingLeft)
	if !floatEquals(w.Deg, -5) {
		t.Errorf("wing_left wire angle = %.2f, want -5", w.Deg)
	}
}

func TestMoveAllDeterministicOrder(t *testing.T) {
	bank, bus := newTestBank(t)

	targets := map[string]float64{NeckTilt: 10, Mouth: 5, NeckPan: -20}
	if err := bank.MoveAll(targets); err != nil {
		t.Fatalf("MoveAll failed: %v", err)
	}

	writes := bus.Writes()
	wantOrder := []string{Mouth, NeckPan, NeckTilt}
	if len(writes) != len(wantOrder) {
		t.Fatalf("got %d writes, want %d", len(writes), len(wantOrder))
	}
	for i, id := range wantOrder {
		if writes[i].ID != id {
			t.Errorf("write %d hit %s, want %s", i, writes[i].ID, id)
		}
	}
}

func TestBusFailureSurfaces(t *testing.T) {
	bank, bus := newTestBank(t)
	bus.FailOn(Mouth)

	err := bank.Move(Mouth, 10)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
	// A failed write must not update the tracked angle.
	if deg, _ := bank.Angle(Mouth); !floatEquals(deg, 0) {
		t.Errorf("tracked angle = %.2f after failed write, want 0", deg)
	}
}

func TestNewBankRejectsBadCalibration(t *testing.T) {
	bus := NewMockBus()

	_, err := NewBank(bus, []Calibration{{ID: "a", MinDeg: 10, MaxDeg: -10}}, nil)
	if err == nil {
		t.Error("expected error for inverted range")
	}

	_, err = NewBank(bus, []Calibration{
		{ID: "a", MinDeg: -10, MaxDeg: 10},
		{ID: "a", MinDeg: -10, MaxDeg: 10},
	}, nil)
	if err == nil {
		t.Error("expected error for duplicate id")
	}

	_, err = NewBank(bus, nil, nil)
	if err == nil {
		t.Error("expected error for empty calibration set")
	}
}

func TestClosedBankRefusesMoves(t *testing.T) {
	bank, _ := newTestBank(t)
	if err := bank.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := bank.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
	if err := bank.Move(Mouth, 10); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Move after Close = %v, want ErrUnavailable", err)
	}
}
