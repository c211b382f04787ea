package display

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/wrenlabs/go-wren/pkg/arbiter"
)

// maxLineBytes bounds one panel line. The panel never sends anything close
// to this; a longer line means a framing bug.
const maxLineBytes = 64 * 1024

// LinkConfig tunes how the link claims the display resource.
type LinkConfig struct {
	// HolderID identifies this link in lease claims.
	HolderID string

	// Priority is the claim priority for every send.
	Priority arbiter.Priority

	// AcquireTimeout bounds the wait for the display link lease.
	AcquireTimeout time.Duration

	// TouchBuffer is how many unread touch events the link keeps before
	// dropping new ones.
	TouchBuffer int
}

// DefaultLinkConfig returns the tuning the local loop uses.
func DefaultLinkConfig() LinkConfig {
	return LinkConfig{
		HolderID:       "local/display",
		Priority:       arbiter.PriorityLocal,
		AcquireTimeout: 250 * time.Millisecond,
		TouchBuffer:    8,
	}
}

// Validate checks the config for values the link cannot run with.
func (c LinkConfig) Validate() error {
	if c.HolderID == "" {
		return fmt.Errorf("link config: empty holder id")
	}
	if c.AcquireTimeout < 0 {
		return fmt.Errorf("link config: negative acquire timeout")
	}
	if c.TouchBuffer <= 0 {
		return fmt.Errorf("link config: touch buffer must be positive, got %d", c.TouchBuffer)
	}
	return nil
}

// TouchEvent is one touch reported by the panel.
type TouchEvent struct {
	X, Y   int
	Region string
	At     time.Time
}

// Link moves lines between the robot and the touch panel. Sends claim the
// display link lease so two processes never interleave lines on the wire;
// reads carry no lease because only writers contend.
type Link struct {
	cfg    LinkConfig
	arb    *arbiter.Arbiter
	rw     io.ReadWriter
	logger *slog.Logger

	mu     sync.Mutex
	closed bool

	touches chan TouchEvent
	done    chan struct{}
}

// NewLink wraps a transport and starts the panel reader. Any io.ReadWriter
// serves as transport; OpenSerialLink builds the real one.
func NewLink(rw io.ReadWriter, arb *arbiter.Arbiter, cfg LinkConfig, logger *slog.Logger) (*Link, error) {
	if rw == nil {
		return nil, fmt.Errorf("display link: nil transport")
	}
	if arb == nil {
		return nil, fmt.Errorf("display link: nil arbiter")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	l := &Link{
		cfg:     cfg,
		arb:     arb,
		rw:      rw,
		logger:  logger,
		touches: make(chan TouchEvent, cfg.TouchBuffer),
		done:    make(chan struct{}),
	}
	go l.readLoop()
	return l, nil
}

// OpenSerialLink opens the panel's serial port and wraps it in a Link.
func OpenSerialLink(path string, baud int, arb *arbiter.Arbiter, cfg LinkConfig, logger *slog.Logger) (*Link, error) {
	mode := &serial.Mode{BaudRate: baud}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("display link: open %s: %w", path, err)
	}
	l, err := NewLink(port, arb, cfg, logger)
	if err != nil {
		port.Close()
		return nil, err
	}
	l.logger.Info("display link open", "path", path, "baud", baud)
	return l, nil
}

// Send claims the display link lease, writes one line, and pushes it to the
// wire before the lease goes back.
func (l *Link) Send(ctx context.Context, msg *Message) error {
	if msg == nil {
		return fmt.Errorf("display send: nil message")
	}
	lease, err := l.arb.Acquire(ctx, arbiter.DisplayLink, l.cfg.HolderID, l.cfg.Priority, l.cfg.AcquireTimeout)
	if err != nil {
		return fmt.Errorf("display send: %w", err)
	}
	defer lease.Release()
	return l.write(msg)
}

// SendWith writes one line under a lease the caller already holds, for
// callers batching several lines in one claim. The lease must cover the
// display link and still be live.
func (l *Link) SendWith(lease *arbiter.Lease, msg *Message) error {
	if msg == nil {
		return fmt.Errorf("display send: nil message")
	}
	if lease == nil {
		return fmt.Errorf("display send: nil lease")
	}
	if lease.Resource() != arbiter.DisplayLink {
		return fmt.Errorf("display send: lease covers %s, need %s", lease.Resource(), arbiter.DisplayLink)
	}
	if err := lease.Validate(); err != nil {
		return fmt.Errorf("display send: %w", err)
	}
	return l.write(msg)
}

// write encodes, transmits, and flushes one line. The flush inside the
// lease scope is what keeps a preempting writer from splicing into a line
// still sitting in a buffer.
func (l *Link) write(msg *Message) error {
	line, err := msg.Bytes()
	if err != nil {
		return fmt.Errorf("display send: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("display send: %w", ErrClosed)
	}
	if _, err := l.rw.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("display send: write: %w", err)
	}
	if err := flush(l.rw); err != nil {
		return fmt.Errorf("display send: flush: %w", err)
	}
	l.logger.Debug("display line sent", "type", msg.Type)
	return nil
}

// flush pushes buffered bytes to the wire. Serial ports drain, buffered
// writers flush, plain buffers need neither.
func flush(w io.Writer) error {
	switch t := w.(type) {
	case interface{ Flush() error }:
		return t.Flush()
	case interface{ Drain() error }:
		return t.Drain()
	}
	return nil
}

// Touches streams touch events from the panel. The channel closes when the
// reader stops, so consumers can range over it.
func (l *Link) Touches() <-chan TouchEvent {
	return l.touches
}

// readLoop turns inbound lines into touch events. Unreadable or unknown
// lines are logged and dropped; the panel firmware is not this process's
// problem to fix.
func (l *Link) readLoop() {
	defer close(l.done)
	defer close(l.touches)

	sc := bufio.NewScanner(l.rw)
	sc.Buffer(make([]byte, 0, 4096), maxLineBytes)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		msg, err := ParseMessage(line)
		if err != nil {
			l.logger.Debug("panel line unreadable", "error", err)
			continue
		}
		switch msg.Type {
		case TypeTouch:
			touch, err := msg.GetTouchData()
			if err != nil {
				l.logger.Debug("panel touch unreadable", "error", err)
				continue
			}
			ev := TouchEvent{X: touch.X, Y: touch.Y, Region: touch.Region, At: time.Now()}
			select {
			case l.touches <- ev:
			default:
				l.logger.Debug("panel touch dropped, consumer behind")
			}
		case TypeHello:
			hello, err := msg.GetHelloData()
			if err != nil {
				l.logger.Info("display panel ready")
				continue
			}
			l.logger.Info("display panel ready", "firmware", hello.Firmware, "width", hello.Width, "height", hello.Height)
		default:
			l.logger.Debug("panel line ignored", "type", msg.Type)
		}
	}
	if err := sc.Err(); err != nil && !l.isClosed() {
		l.logger.Warn("display reader stopped", "error", err)
	}
}

func (l *Link) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Close stops the link and closes the transport when it can be closed.
// Closing the transport is what unblocks the reader; a bare buffer
// transport leaves the reader parked until its Read returns.
func (l *Link) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	c, ok := l.rw.(io.Closer)
	if !ok {
		return nil
	}
	err := c.Close()
	<-l.done
	return err
}
