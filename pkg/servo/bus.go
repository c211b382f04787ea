package servo

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"go.bug.st/serial"
)

// Bus is the transport a Bank writes angle commands to. Implementations
// must be safe for concurrent use.
type Bus interface {
	// WriteAngle sends one angle command. deg already carries the
	// rotation sign; implementations only encode and transmit it.
	WriteAngle(id string, deg float64) error
	// Ping probes the device so callers can fail fast at startup.
	Ping() error
	// Name identifies the bus for logs.
	Name() string
	Close() error
}

// SerialBus speaks the Wren controller line protocol over a serial port.
// One command per line: "#<id>:<centidegrees>\n". Centidegrees keep the
// frames integer-only without losing servo resolution.
type SerialBus struct {
	mu     sync.Mutex
	port   serial.Port
	path   string
	logger *slog.Logger
	closed bool
}

// OpenSerialBus opens the controller port at the given baud rate.
func OpenSerialBus(path string, baud int, logger *slog.Logger) (*SerialBus, error) {
	if logger == nil {
		logger = slog.Default()
	}
	mode := &serial.Mode{BaudRate: baud}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrUnavailable, path, err)
	}
	logger.Info("servo bus open", "path", path, "baud", baud)
	return &SerialBus{port: port, path: path, logger: logger}, nil
}

// WriteAngle encodes and transmits one command frame.
func (s *SerialBus) WriteAngle(id string, deg float64) error {
	return s.WriteFrame(fmt.Sprintf("#%s:%d\n", id, int(math.Round(deg*100))))
}

// WriteFrame transmits a raw controller frame. The LED strip rides the same
// board, so its driver shares the link through this method.
func (s *SerialBus) WriteFrame(frame string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrUnavailable
	}
	if _, err := s.port.Write([]byte(frame)); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrUnavailable, s.path, err)
	}
	return nil
}

// Ping sends a probe frame. The controller ignores unknown frames, so a
// successful write is enough to prove the port is alive.
func (s *SerialBus) Ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrUnavailable
	}
	if _, err := s.port.Write([]byte("#ping\n")); err != nil {
		return fmt.Errorf("%w: ping %s: %v", ErrUnavailable, s.path, err)
	}
	return nil
}

// Name returns the device path.
func (s *SerialBus) Name() string { return s.path }

// Close shuts the port.
func (s *SerialBus) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.port.Close()
}
