package arbiter

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Lease is an exclusive grant on one resource. Holders keep it alive with a
// background heartbeat, poll Revoked to cooperate with preemption, and call
// Validate before writes that must not race a reclaim.
type Lease struct {
	arb      *Arbiter
	res      Resource
	holderID string
	pri      Priority
	epoch    uint64
	token    string
	acquired time.Time

	mu       sync.Mutex
	released bool
	stopHB   chan struct{}
	hbDone   chan struct{}

	revoked  atomic.Bool
	pollMu   sync.Mutex
	lastPoll time.Time
}

func (a *Arbiter) newLease(res Resource, holderID string, pri Priority, epoch uint64, token string, acquired time.Time) *Lease {
	return &Lease{
		arb:      a,
		res:      res,
		holderID: holderID,
		pri:      pri,
		epoch:    epoch,
		token:    token,
		acquired: acquired,
		stopHB:   make(chan struct{}),
		hbDone:   make(chan struct{}),
	}
}

func (l *Lease) Resource() Resource  { return l.res }
func (l *Lease) HolderID() string    { return l.holderID }
func (l *Lease) Priority() Priority  { return l.pri }
func (l *Lease) Acquired() time.Time { return l.acquired }

// ID is the token minted for this grant, the one the state file and the
// arbiter's log lines carry.
func (l *Lease) ID() string { return l.token }

func (l *Lease) String() string {
	return fmt.Sprintf("lease(%s/%s@%d)", l.res, l.holderID, l.epoch)
}

// Release gives the resource back. Idempotent: releasing twice, or
// releasing a lease that was already reclaimed, is a no-op.
func (l *Lease) Release() error {
	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		return nil
	}
	l.released = true
	l.mu.Unlock()

	// Stop the heartbeat first so it cannot resurrect the record.
	close(l.stopHB)
	<-l.hbDone

	err := l.arb.withState(l.res, func(st *leaseState) error {
		if st.Holder != nil && st.Holder.ID == l.holderID && st.Epoch == l.epoch {
			st.Holder = nil
		}
		return nil
	})
	if err != nil {
		l.arb.logger.Warn("lease release failed", "resource", l.res, "holder", l.holderID, "error", err)
		return err
	}
	l.arb.logger.Debug("lease released",
		"resource", l.res, "holder", l.holderID, "epoch", l.epoch, "lease", l.token)
	return nil
}

// Revoked is the non-blocking cooperation poll. Long-running holders call
// it between writes; true means a higher-priority claim wants the resource
// and the holder should release promptly.
//
// Answers are cached briefly and the disk peek never blocks on the file
// lock, so this is cheap enough to call every frame.
func (l *Lease) Revoked() bool {
	if l.revoked.Load() {
		return true
	}
	l.mu.Lock()
	released := l.released
	l.mu.Unlock()
	if released {
		return true
	}

	l.pollMu.Lock()
	defer l.pollMu.Unlock()
	if l.arb.now().Sub(l.lastPoll) < l.arb.cfg.RevokeCacheTTL {
		return l.revoked.Load()
	}
	st, ok := l.arb.tryPeekState(l.res)
	if !ok {
		return l.revoked.Load()
	}
	l.lastPoll = l.arb.now()
	if st.Holder == nil || st.Holder.ID != l.holderID || st.Epoch != l.epoch || st.Holder.RevokeMS != 0 {
		l.revoked.Store(true)
	}
	return l.revoked.Load()
}

// Validate confirms this lease is still the active grant. ErrStale means
// the arbiter reclaimed it and someone else may already hold the resource,
// so the holder must not write.
func (l *Lease) Validate() error {
	l.mu.Lock()
	released := l.released
	l.mu.Unlock()
	if released {
		return fmt.Errorf("%w: %s released", ErrStale, l.res)
	}

	st, err := l.arb.readStateShared(l.res)
	if err != nil {
		return err
	}
	if st.Holder == nil || st.Holder.ID != l.holderID || st.Epoch != l.epoch {
		l.revoked.Store(true)
		return fmt.Errorf("%w: %s reclaimed from %s", ErrStale, l.res, l.holderID)
	}
	return nil
}

func (l *Lease) startHeartbeat() {
	go func() {
		defer close(l.hbDone)
		ticker := time.NewTicker(l.arb.cfg.HeartbeatEvery)
		defer ticker.Stop()
		for {
			select {
			case <-l.stopHB:
				return
			case <-ticker.C:
				l.beat()
			}
		}
	}()
}

func (l *Lease) beat() {
	err := l.arb.withState(l.res, func(st *leaseState) error {
		if st.Holder == nil || st.Holder.ID != l.holderID || st.Epoch != l.epoch {
			l.revoked.Store(true)
			return nil
		}
		st.Holder.HeartbeatMS = unixMS(l.arb.now())
		if st.Holder.RevokeMS != 0 {
			l.revoked.Store(true)
		}
		return nil
	})
	if err != nil {
		l.arb.logger.Warn("lease heartbeat failed", "resource", l.res, "holder", l.holderID, "error", err)
	}
}
