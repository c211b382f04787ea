package arbiter

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"
)

// waiterTTLMS is how long a queue entry survives without a refresh. Live
// waiters refresh on every poll, so a few poll intervals is plenty; the TTL
// only matters for waiters that stopped polling without cleaning up.
const waiterTTLMS = 1000

// leaseState is the on-disk record for one resource. The file is only ever
// read or written under the companion flock, so plain truncate-and-write is
// safe.
type leaseState struct {
	// Epoch increments on every grant and every reclaim. A lease is valid
	// only while its epoch matches, which fences out reclaimed holders.
	Epoch   uint64         `json:"epoch"`
	Holder  *holderRecord  `json:"holder,omitempty"`
	Waiters []waiterRecord `json:"waiters,omitempty"`
}

type holderRecord struct {
	ID          string   `json:"id"`
	PID         int      `json:"pid"`
	Priority    Priority `json:"priority"`
	// Token names this particular grant in logs. Fencing is the epoch's
	// job; the token just lets two processes talk about the same lease.
	Token       string `json:"token"`
	AcquiredMS  int64  `json:"acquired_ms"`
	HeartbeatMS int64  `json:"heartbeat_ms"`
	MaxHoldMS   int64  `json:"max_hold_ms"`
	RevokeMS    int64  `json:"revoke_ms,omitempty"` // zero = not revoked
}

type waiterRecord struct {
	ID        string   `json:"id"`
	PID       int      `json:"pid"`
	Priority  Priority `json:"priority"`
	SinceMS   int64    `json:"since_ms"`   // fixed at first registration, orders the queue
	RefreshMS int64    `json:"refresh_ms"` // bumped every poll
}

// noteWaiter registers or refreshes a queue entry. It reports whether the
// caller now has an entry in the queue.
func (st *leaseState) noteWaiter(id string, pid int, pri Priority, sinceMS, nowMS int64) bool {
	for i := range st.Waiters {
		if st.Waiters[i].ID == id {
			st.Waiters[i].RefreshMS = nowMS
			return true
		}
	}
	st.Waiters = append(st.Waiters, waiterRecord{
		ID: id, PID: pid, Priority: pri, SinceMS: sinceMS, RefreshMS: nowMS,
	})
	return true
}

// headWaiter returns the entry next in line: highest priority first, then
// earliest arrival.
func (st *leaseState) headWaiter() (waiterRecord, bool) {
	if len(st.Waiters) == 0 {
		return waiterRecord{}, false
	}
	head := st.Waiters[0]
	for _, w := range st.Waiters[1:] {
		if w.Priority > head.Priority ||
			(w.Priority == head.Priority && w.SinceMS < head.SinceMS) {
			head = w
		}
	}
	return head, true
}

func (st *leaseState) dropWaiter(id string) {
	keep := st.Waiters[:0]
	for _, w := range st.Waiters {
		if w.ID != id {
			keep = append(keep, w)
		}
	}
	st.Waiters = keep
}

func (a *Arbiter) statePath(res Resource) string {
	return filepath.Join(a.cfg.StateDir, string(res)+".json")
}

func (a *Arbiter) lockPath(res Resource) string {
	return filepath.Join(a.cfg.StateDir, string(res)+".lock")
}

// withState runs fn over the resource's state record under its file lock
// and writes the mutated record back. Transactions stay short; nothing
// blocking runs inside fn.
func (a *Arbiter) withState(res Resource, fn func(st *leaseState) error) error {
	fl := flock.New(a.lockPath(res))
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("arbiter: lock %s: %w", res, err)
	}
	defer fl.Unlock()

	st, err := a.readState(res)
	if err != nil {
		return err
	}
	if err := fn(st); err != nil {
		return err
	}
	return a.writeState(res, st)
}

func (a *Arbiter) readState(res Resource) (*leaseState, error) {
	raw, err := os.ReadFile(a.statePath(res))
	if errors.Is(err, os.ErrNotExist) {
		return &leaseState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("arbiter: read %s state: %w", res, err)
	}
	st := &leaseState{}
	if err := json.Unmarshal(raw, st); err != nil {
		// A torn or corrupt record means the resource's history is lost.
		// Starting fresh beats wedging every future claim.
		a.logger.Warn("resetting corrupt lease state", "resource", res, "error", err)
		return &leaseState{}, nil
	}
	return st, nil
}

func (a *Arbiter) writeState(res Resource, st *leaseState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("arbiter: encode %s state: %w", res, err)
	}
	if err := os.WriteFile(a.statePath(res), raw, 0o644); err != nil {
		return fmt.Errorf("arbiter: write %s state: %w", res, err)
	}
	return nil
}

// readStateShared reads the record under a shared lock, for holder-side
// validity checks that must not mutate the file.
func (a *Arbiter) readStateShared(res Resource) (*leaseState, error) {
	fl := flock.New(a.lockPath(res))
	if err := fl.RLock(); err != nil {
		return nil, fmt.Errorf("arbiter: rlock %s: %w", res, err)
	}
	defer fl.Unlock()
	return a.readState(res)
}

// tryPeekState is the non-blocking read used by Revoked polls. A contended
// lock is not an error; the caller falls back to its cached answer.
func (a *Arbiter) tryPeekState(res Resource) (*leaseState, bool) {
	fl := flock.New(a.lockPath(res))
	ok, err := fl.TryRLock()
	if err != nil || !ok {
		return nil, false
	}
	defer fl.Unlock()
	st, err := a.readState(res)
	if err != nil {
		return nil, false
	}
	return st, true
}

// processAlive probes a PID with signal zero. EPERM still means the process
// exists, just under another user.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
