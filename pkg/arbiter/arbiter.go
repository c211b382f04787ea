// Package arbiter grants exclusive, priority-ordered, time-bounded leases
// over Wren's mutually-exclusive hardware groups. The local interactive loop
// and the remote command server run as separate processes, so lease state
// lives in per-resource files guarded by advisory file locks rather than in
// an in-process mutex.
//
// A remote request outranks a local one: the arbiter flags the local lease
// for revocation, gives the holder a short grace period to release on its
// own, then reclaims the lease. Holders that miss the handover see ErrStale
// on their next Validate and stop writing.
package arbiter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
)

// Resource names one mutually-exclusive hardware group.
type Resource string

const (
	// Actuators covers every servo joint and the collar LEDs, which share
	// the controller board.
	Actuators Resource = "actuators"
	// Camera covers the head camera.
	Camera Resource = "camera"
	// DisplayLink covers the serial line to the chest display.
	DisplayLink Resource = "display_link"
)

// Valid reports whether r is an arbitrated resource.
func (r Resource) Valid() bool {
	switch r {
	case Actuators, Camera, DisplayLink:
		return true
	}
	return false
}

// Resources lists every arbitrated hardware group.
func Resources() []Resource {
	return []Resource{Actuators, Camera, DisplayLink}
}

// Priority orders competing claims. Higher values preempt lower ones.
type Priority int

const (
	// PriorityLocal is the interactive loop running on the robot.
	PriorityLocal Priority = 0
	// PriorityRemote is the network command server. Remote commands win
	// because the operator issuing them cannot see why a claim stalled.
	PriorityRemote Priority = 1
)

func (p Priority) String() string {
	switch p {
	case PriorityLocal:
		return "local"
	case PriorityRemote:
		return "remote"
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// Config tunes the arbiter's timing windows.
type Config struct {
	// StateDir holds the per-resource lease and lock files. Both
	// processes must point at the same directory.
	StateDir string

	// Grace is how long a revoked holder gets to release on its own
	// before the lease is reclaimed.
	Grace time.Duration

	// Staleness is the heartbeat age after which a holder counts as
	// dead even if its process cannot be probed.
	Staleness time.Duration

	// MaxHold bounds any single lease. A holder past MaxHold is treated
	// like a crashed one.
	MaxHold time.Duration

	// HeartbeatEvery is the cadence of the holder's heartbeat writes.
	HeartbeatEvery time.Duration

	// PollEvery is the retry cadence while an Acquire waits.
	PollEvery time.Duration

	// RevokeCacheTTL bounds how stale a cached Revoked answer may be.
	RevokeCacheTTL time.Duration
}

// DefaultConfig returns the timing windows Wren ships with.
func DefaultConfig() Config {
	return Config{
		StateDir:       "/run/wren/leases",
		Grace:          500 * time.Millisecond,
		Staleness:      10 * time.Second,
		MaxHold:        60 * time.Second,
		HeartbeatEvery: 2 * time.Second,
		PollEvery:      20 * time.Millisecond,
		RevokeCacheTTL: 100 * time.Millisecond,
	}
}

// Validate checks the config for nonsensical windows.
func (c Config) Validate() error {
	if c.StateDir == "" {
		return fmt.Errorf("arbiter config: empty state dir")
	}
	if c.Grace <= 0 {
		return fmt.Errorf("arbiter config: grace must be positive, got %v", c.Grace)
	}
	if c.Staleness <= c.HeartbeatEvery {
		return fmt.Errorf("arbiter config: staleness %v must exceed heartbeat interval %v", c.Staleness, c.HeartbeatEvery)
	}
	if c.MaxHold <= 0 {
		return fmt.Errorf("arbiter config: max hold must be positive, got %v", c.MaxHold)
	}
	if c.HeartbeatEvery <= 0 || c.PollEvery <= 0 || c.RevokeCacheTTL <= 0 {
		return fmt.Errorf("arbiter config: intervals must be positive")
	}
	return nil
}

// Arbiter hands out leases. One instance per process; instances in
// different processes coordinate through the shared state directory.
type Arbiter struct {
	cfg    Config
	logger *slog.Logger

	// Test seams. Production uses the real clock and a signal-zero probe.
	now   func() time.Time
	alive func(pid int) bool
}

// New builds an arbiter over the given state directory, creating it if
// needed.
func New(cfg Config, logger *slog.Logger) (*Arbiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return nil, fmt.Errorf("arbiter: create state dir: %w", err)
	}
	return &Arbiter{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		alive:  processAlive,
	}, nil
}

// Acquire blocks up to timeout waiting for an exclusive lease on res.
//
// A claim against a lower-priority holder flags that holder for revocation
// and succeeds once the holder releases or the grace period runs out. Equal
// priority claims queue behind the holder in arrival order. When the
// deadline passes the error tells the caller what happened: ErrBusy when
// the timeout was too short for a revoke cycle to matter (retryable),
// ErrTimedOut when the caller genuinely waited it out.
//
// A zero timeout makes a single non-blocking attempt, which is how the idle
// animation loop probes without ever stalling.
func (a *Arbiter) Acquire(ctx context.Context, res Resource, holderID string, pri Priority, timeout time.Duration) (*Lease, error) {
	if !res.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResource, res)
	}
	if holderID == "" {
		return nil, fmt.Errorf("arbiter: empty holder id")
	}

	start := a.now()
	deadline := start.Add(timeout)
	enqueued := unixMS(start)
	waiting := false

	defer func() {
		if waiting {
			a.abandonWait(res, holderID)
		}
	}()

	for {
		lease, registered, err := a.tryClaim(res, holderID, pri, enqueued)
		if err != nil {
			return nil, err
		}
		if lease != nil {
			waiting = false
			a.logger.Debug("lease granted",
				"resource", res, "holder", holderID, "priority", pri,
				"epoch", lease.epoch, "lease", lease.token)
			return lease, nil
		}
		waiting = registered

		remaining := deadline.Sub(a.now())
		if remaining <= 0 {
			if timeout < a.cfg.Grace {
				return nil, fmt.Errorf("%w: %s held, timeout %v shorter than grace %v",
					ErrBusy, res, timeout, a.cfg.Grace)
			}
			return nil, fmt.Errorf("%w: %s after %v", ErrTimedOut, res, timeout)
		}

		wait := a.cfg.PollEvery
		if remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// WithLease runs fn under a lease and guarantees release on every exit
// path, including a panic inside fn.
func (a *Arbiter) WithLease(ctx context.Context, res Resource, holderID string, pri Priority, timeout time.Duration, fn func(*Lease) error) error {
	lease, err := a.Acquire(ctx, res, holderID, pri, timeout)
	if err != nil {
		return err
	}
	defer lease.Release()
	return fn(lease)
}

// Config returns the timing windows this arbiter runs with.
func (a *Arbiter) Config() Config {
	return a.cfg
}

// Snapshot reports the current holder of res, if any. The zero HolderInfo
// with held=false means the resource is free.
func (a *Arbiter) Snapshot(res Resource) (HolderInfo, bool, error) {
	if !res.Valid() {
		return HolderInfo{}, false, fmt.Errorf("%w: %s", ErrUnknownResource, res)
	}
	var info HolderInfo
	var held bool
	err := a.withState(res, func(st *leaseState) error {
		a.pruneLocked(res, st)
		if st.Holder != nil {
			held = true
			info = HolderInfo{
				ID:        st.Holder.ID,
				PID:       st.Holder.PID,
				Priority:  st.Holder.Priority,
				Acquired:  time.UnixMilli(st.Holder.AcquiredMS),
				Heartbeat: time.UnixMilli(st.Holder.HeartbeatMS),
				Revoked:   st.Holder.RevokeMS != 0,
			}
		}
		return nil
	})
	return info, held, err
}

// HolderInfo is a read-only view of a live lease, used by status reporting.
type HolderInfo struct {
	ID        string    `json:"id"`
	PID       int       `json:"pid"`
	Priority  Priority  `json:"priority"`
	Acquired  time.Time `json:"acquired"`
	Heartbeat time.Time `json:"heartbeat"`
	Revoked   bool      `json:"revoked"`
}

// tryClaim makes one pass at the state file. It returns a lease when the
// claim succeeded, otherwise whether the caller is now registered as a
// waiter.
func (a *Arbiter) tryClaim(res Resource, holderID string, pri Priority, enqueuedMS int64) (*Lease, bool, error) {
	var granted *Lease
	var registered bool

	err := a.withState(res, func(st *leaseState) error {
		nowMS := unixMS(a.now())
		a.pruneLocked(res, st)

		if st.Holder != nil {
			if st.Holder.ID == holderID {
				// Double acquire from the same holder is a caller bug;
				// report busy rather than minting a second lease.
				registered = false
				return nil
			}
			if pri > st.Holder.Priority && st.Holder.RevokeMS == 0 {
				st.Holder.RevokeMS = nowMS
				a.logger.Info("lease revocation signalled",
					"resource", res, "holder", st.Holder.ID,
					"holder_priority", st.Holder.Priority, "claimant", holderID, "priority", pri)
			}
			registered = st.noteWaiter(holderID, os.Getpid(), pri, enqueuedMS, nowMS)
			return nil
		}

		// Resource is free. Claim only if no better-placed waiter is ahead.
		registered = st.noteWaiter(holderID, os.Getpid(), pri, enqueuedMS, nowMS)
		if head, ok := st.headWaiter(); !ok || head.ID != holderID {
			return nil
		}

		st.dropWaiter(holderID)
		st.Epoch++
		token := uuid.New().String()
		st.Holder = &holderRecord{
			ID:          holderID,
			PID:         os.Getpid(),
			Priority:    pri,
			Token:       token,
			AcquiredMS:  nowMS,
			HeartbeatMS: nowMS,
			MaxHoldMS:   a.cfg.MaxHold.Milliseconds(),
		}
		registered = false

		granted = a.newLease(res, holderID, pri, st.Epoch, token, time.UnixMilli(nowMS))
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if granted != nil {
		granted.startHeartbeat()
	}
	return granted, registered, nil
}

// abandonWait removes the caller's queue entry after a failed Acquire.
func (a *Arbiter) abandonWait(res Resource, holderID string) {
	err := a.withState(res, func(st *leaseState) error {
		st.dropWaiter(holderID)
		return nil
	})
	if err != nil {
		a.logger.Warn("failed to leave wait queue", "resource", res, "holder", holderID, "error", err)
	}
}

// pruneLocked clears dead holders and waiters. Caller holds the file lock.
func (a *Arbiter) pruneLocked(res Resource, st *leaseState) {
	nowMS := unixMS(a.now())

	if h := st.Holder; h != nil {
		reason := ""
		switch {
		case !a.alive(h.PID):
			reason = "holder process dead"
		case nowMS-h.HeartbeatMS > a.cfg.Staleness.Milliseconds():
			reason = "heartbeat stale"
		case h.MaxHoldMS > 0 && nowMS-h.AcquiredMS > h.MaxHoldMS:
			reason = "max hold exceeded"
		case h.RevokeMS != 0 && nowMS-h.RevokeMS >= a.cfg.Grace.Milliseconds():
			reason = "revoke grace expired"
		}
		if reason != "" {
			a.logger.Warn("lease reclaimed",
				"resource", res, "holder", h.ID, "pid", h.PID,
				"lease", h.Token, "reason", reason)
			st.Holder = nil
			st.Epoch++ // the old holder's epoch is now invalid
		}
	}

	keep := st.Waiters[:0]
	for _, w := range st.Waiters {
		if !a.alive(w.PID) {
			continue
		}
		if nowMS-w.RefreshMS > waiterTTLMS {
			continue
		}
		keep = append(keep, w)
	}
	st.Waiters = keep
}

func unixMS(t time.Time) int64 { return t.UnixMilli() }
