package orchestrator

import (
	"sync"
	"time"

	"github.com/edison-llm/edison/pkg/edisonerr"
)

// DefaultLockTTL is the advisory lock's default duration.
const DefaultLockTTL = time.Hour

// HeartbeatStaleFactor: a lock holder is presumed dead once its last
// heartbeat is this many heartbeat intervals old.
const HeartbeatStaleFactor = 2

// lockEntry tracks one experiment's advisory lock.
type lockEntry struct {
	holderID      string
	acquiredAt    time.Time
	ttl           time.Duration
	lastHeartbeat time.Time
	heartbeatEvery time.Duration
}

func (l *lockEntry) expired(now time.Time) bool {
	return now.Sub(l.acquiredAt) >= l.ttl
}

func (l *lockEntry) holderStale(now time.Time) bool {
	if l.heartbeatEvery <= 0 {
		return l.expired(now)
	}
	return now.Sub(l.lastHeartbeat) >= HeartbeatStaleFactor*l.heartbeatEvery
}

// LockRegistry grants per-experiment advisory locks with TTL and
// heartbeat-based reacquisition, keyed by experiment id.
type LockRegistry struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

// NewLockRegistry creates an empty registry.
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{locks: make(map[string]*lockEntry)}
}

// Acquire grants holderID the lock for experimentID, unless it is
// currently held by a different, non-stale holder. Re-acquisition after
// TTL expiry or holder staleness is allowed for any caller; staleness
// requires evidence the prior holder is no longer alive.
func (r *LockRegistry) Acquire(experimentID, holderID string, ttl, heartbeatEvery time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	existing, ok := r.locks[experimentID]
	if ok && existing.holderID != holderID && !existing.expired(now) && !existing.holderStale(now) {
		return edisonerr.New(edisonerr.LockHeld, "orchestrator", "experiment "+experimentID+" is locked by another holder")
	}

	r.locks[experimentID] = &lockEntry{
		holderID:       holderID,
		acquiredAt:     now,
		ttl:            ttl,
		lastHeartbeat:  now,
		heartbeatEvery: heartbeatEvery,
	}
	return nil
}

// Heartbeat refreshes holderID's liveness timestamp for experimentID.
// It is a no-op if holderID no longer holds the lock.
func (r *LockRegistry) Heartbeat(experimentID, holderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.locks[experimentID]; ok && l.holderID == holderID {
		l.lastHeartbeat = time.Now()
	}
}

// Release is idempotent: releasing a lock you don't hold, or that
// doesn't exist, is a no-op.
func (r *LockRegistry) Release(experimentID, holderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.locks[experimentID]; ok && l.holderID == holderID {
		delete(r.locks, experimentID)
	}
}

// HolderAlive reports whether experimentID's lock is currently held by
// a holder whose TTL has not lapsed and whose heartbeat is not stale.
func (r *LockRegistry) HolderAlive(experimentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[experimentID]
	if !ok {
		return false
	}
	now := time.Now()
	return !l.expired(now) && !l.holderStale(now)
}
