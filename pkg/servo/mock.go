package servo

import (
	"fmt"
	"sync"
	"time"
)

// WriteRecord is one command captured by a MockBus.
type WriteRecord struct {
	ID  string
	Deg float64
	At  time.Time
}

// MockBus records every command instead of touching hardware. Tests use it
// to assert on the exact frames a Bank produces.
type MockBus struct {
	mu      sync.Mutex
	writes  []WriteRecord
	frames  []string
	failIDs map[string]bool
	failAll bool
	closed  bool
}

// NewMockBus returns an empty recording bus.
func NewMockBus() *MockBus {
	return &MockBus{failIDs: make(map[string]bool)}
}

// FailOn makes writes to the given actuator return an error.
func (m *MockBus) FailOn(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failIDs[id] = true
}

// FailAll makes every write return an error.
func (m *MockBus) FailAll(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAll = fail
}

func (m *MockBus) WriteAngle(id string, deg float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrUnavailable
	}
	if m.failAll || m.failIDs[id] {
		return fmt.Errorf("%w: injected failure on %s", ErrUnavailable, id)
	}
	m.writes = append(m.writes, WriteRecord{ID: id, Deg: deg, At: time.Now()})
	return nil
}

// WriteFrame records a raw controller frame.
func (m *MockBus) WriteFrame(frame string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrUnavailable
	}
	if m.failAll {
		return fmt.Errorf("%w: injected failure", ErrUnavailable)
	}
	m.frames = append(m.frames, frame)
	return nil
}

// Frames returns a copy of all raw frames recorded via WriteFrame.
func (m *MockBus) Frames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.frames))
	copy(out, m.frames)
	return out
}

func (m *MockBus) Ping() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.failAll {
		return ErrUnavailable
	}
	return nil
}

func (m *MockBus) Name() string { return "mock" }

func (m *MockBus) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Writes returns a copy of all recorded commands.
func (m *MockBus) Writes() []WriteRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]WriteRecord, len(m.writes))
	copy(out, m.writes)
	return out
}

// WritesFor returns recorded commands for one actuator.
func (m *MockBus) WritesFor(id string) []WriteRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []WriteRecord
	for _, w := range m.writes {
		if w.ID == id {
			out = append(out, w)
		}
	}
	return out
}

// LastWrite returns the most recent command for one actuator.
func (m *MockBus) LastWrite(id string) (WriteRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.writes) - 1; i >= 0; i-- {
		if m.writes[i].ID == id {
			return m.writes[i], true
		}
	}
	return WriteRecord{}, false
}

// Reset clears the recorded commands.
func (m *MockBus) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = nil
}
