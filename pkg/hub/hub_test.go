package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type wsFrame struct {
	kind int
	data []byte
}

// fakeConn records writes and blocks reads until hung up, standing in
// for a watcher's websocket.
type fakeConn struct {
	mu     sync.Mutex
	frames []wsFrame
	dead   chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{dead: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	<-f.dead
	return 0, nil, io.EOF
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, wsFrame{messageType, append([]byte(nil), data...)})
	return nil
}

func (f *fakeConn) SetReadLimit(int64)                {}
func (f *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}
func (f *fakeConn) hangup()                           { f.once.Do(func() { close(f.dead) }) }
func (f *fakeConn) Close() error                      { f.hangup(); return nil }

func (f *fakeConn) texts() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]byte
	for _, fr := range f.frames {
		if fr.kind == websocket.TextMessage {
			out = append(out, fr.data)
		}
	}
	return out
}

func (f *fakeConn) closeFrames() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, fr := range f.frames {
		if fr.kind == websocket.CloseMessage {
			n++
		}
	}
	return n
}

func waitForHub(t *testing.T, d time.Duration, what string, cond func() bool) {
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

func TestBroadcastReachesWatchers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := New("state", testLogger())
	go h.Run(ctx)

	f1, f2 := newFakeConn(), newFakeConn()
	c1 := NewClient(h, f1)
	c2 := NewClient(h, f2)
	if c1 == nil || c2 == nil {
		t.Fatal("NewClient returned nil on a running hub")
	}
	go c1.Run()
	go c2.Run()
	waitForHub(t, time.Second, "both watchers attached", func() bool { return h.ClientCount() == 2 })

	if err := h.BroadcastJSON(map[string]int{"seq": 1}); err != nil {
		t.Fatalf("BroadcastJSON: %v", err)
	}

	for i, f := range []*fakeConn{f1, f2} {
		waitForHub(t, time.Second, fmt.Sprintf("watcher %d line", i), func() bool { return len(f.texts()) >= 1 })
		var got map[string]int
		if err := json.Unmarshal(f.texts()[0], &got); err != nil {
			t.Fatalf("watcher %d line is not JSON: %v", i, err)
		}
		if got["seq"] != 1 {
			t.Errorf("watcher %d line = %v", i, got)
		}
	}

	cancel()
	waitForHub(t, time.Second, "close frames", func() bool {
		return f1.closeFrames() >= 1 && f2.closeFrames() >= 1
	})
}

func TestSlowWatcherDropped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := New("state", testLogger())
	go h.Run(ctx)

	// No Run(), so nothing drains the send queue.
	if c := NewClient(h, newFakeConn()); c == nil {
		t.Fatal("NewClient returned nil on a running hub")
	}
	waitForHub(t, time.Second, "watcher attached", func() bool { return h.ClientCount() == 1 })

	for i := 0; i < 100; i++ {
		h.Broadcast([]byte(`{"seq":0}`))
	}
	waitForHub(t, 2*time.Second, "slow watcher dropped", func() bool { return h.ClientCount() == 0 })
}

func TestWatcherHangupUnregisters(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := New("state", testLogger())
	go h.Run(ctx)

	f := newFakeConn()
	c := NewClient(h, f)
	if c == nil {
		t.Fatal("NewClient returned nil on a running hub")
	}
	go c.Run()
	waitForHub(t, time.Second, "watcher attached", func() bool { return h.ClientCount() == 1 })

	f.hangup()
	waitForHub(t, time.Second, "watcher unregistered", func() bool { return h.ClientCount() == 0 })
}

func TestNewClientAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := New("state", testLogger())
	go h.Run(ctx)
	waitForHub(t, time.Second, "hub running", func() bool { return h.IsRunning() })

	cancel()
	waitForHub(t, time.Second, "hub stopped", func() bool { return !h.IsRunning() })

	if c := NewClient(h, newFakeConn()); c != nil {
		t.Error("NewClient attached to a stopped hub")
	}
}
