package audioio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// flushTimeout caps how long Flush waits for the player to drain. A player
// that takes longer than this is wedged and gets killed.
const flushTimeout = 30 * time.Second

// ExecSink pipes raw PCM into an external player process. On the robot the
// player is aplay; dev machines can point PlayerCommand at anything that
// reads S16_LE on stdin.
type ExecSink struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	running bool
	closed  bool

	chunksWritten  atomic.Int64
	samplesWritten atomic.Int64
}

// NewExecSink creates a sink that spawns the player on Start.
func NewExecSink(cfg Config, logger *slog.Logger) *ExecSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecSink{cfg: cfg, logger: logger}
}

// playerCommand builds the player invocation from the config.
func (s *ExecSink) playerCommand() (string, []string) {
	if s.cfg.PlayerCommand != "" {
		parts := strings.Fields(s.cfg.PlayerCommand)
		return parts[0], parts[1:]
	}
	args := []string{
		"-q", "-t", "raw", "-f", "S16_LE",
		"-r", strconv.Itoa(s.cfg.SampleRate),
		"-c", strconv.Itoa(s.cfg.Channels),
	}
	if s.cfg.Device != "" && s.cfg.Device != "default" {
		args = append(args, "-D", s.cfg.Device)
	}
	return "aplay", args
}

// Start spawns the player process.
func (s *ExecSink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	name, args := s.playerCommand()
	cmd := exec.Command(name, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: stdin pipe: %v", ErrUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: start %s: %v", ErrUnavailable, name, err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.running = true
	s.logger.Debug("audio player started",
		"player", name, "sample_rate", s.cfg.SampleRate, "channels", s.cfg.Channels)
	return nil
}

// Write streams one chunk into the player. The player's own buffering
// provides the playback pacing.
func (s *ExecSink) Write(ctx context.Context, chunk AudioChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if !s.running || s.stdin == nil {
		return fmt.Errorf("%w: sink not running", ErrUnavailable)
	}

	if _, err := s.stdin.Write(chunk.Bytes()); err != nil {
		// The player died mid-stream. Tear down so the next Start can
		// respawn it.
		s.stopLocked()
		return fmt.Errorf("%w: write to player: %v", ErrUnavailable, err)
	}
	s.chunksWritten.Add(1)
	s.samplesWritten.Add(int64(len(chunk.Samples)))
	return nil
}

// Flush closes the player's stdin and waits for it to finish draining.
func (s *ExecSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cmd := s.cmd
	if s.stdin != nil {
		s.stdin.Close()
		s.stdin = nil
	}
	s.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		if cmd != nil {
			done <- cmd.Wait()
		} else {
			done <- nil
		}
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
		if cmd != nil && cmd.Process != nil {
			cmd.Process.Kill()
		}
	case <-time.After(flushTimeout):
		if cmd != nil && cmd.Process != nil {
			cmd.Process.Kill()
		}
	}

	s.mu.Lock()
	s.running = false
	s.cmd = nil
	s.mu.Unlock()
	return err
}

// Clear kills the player immediately, discarding whatever it had buffered.
func (s *ExecSink) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	return nil
}

// Stop halts playback, killing the player if it is still running.
func (s *ExecSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	return nil
}

// stopLocked tears the player down. Caller holds s.mu.
func (s *ExecSink) stopLocked() {
	if s.stdin != nil {
		s.stdin.Close()
		s.stdin = nil
	}
	if s.cmd != nil && s.cmd.Process != nil {
		s.cmd.Process.Kill()
		s.cmd.Wait()
	}
	s.cmd = nil
	s.running = false
}

// Config returns the audio configuration.
func (s *ExecSink) Config() Config {
	return s.cfg
}

// Name returns "exec".
func (s *ExecSink) Name() string {
	return "exec"
}

// Close releases resources.
func (s *ExecSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.stopLocked()
	s.mu.Unlock()
	return nil
}

// Stats returns sink statistics.
func (s *ExecSink) Stats() SinkStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return SinkStats{
		ChunksWritten:  s.chunksWritten.Load(),
		SamplesWritten: s.samplesWritten.Load(),
		Running:        running,
		Backend:        "exec",
	}
}

var _ SinkWithStats = (*ExecSink)(nil)
