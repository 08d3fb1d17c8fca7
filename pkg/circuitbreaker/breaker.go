// Package circuitbreaker implements the per-(provider,model) circuit
// breaker the Provider Adapter Layer wraps every outbound call in.
package circuitbreaker

import (
	"fmt"
	"sync"
	"time"

	"github.com/edison-llm/edison/pkg/edisonerr"
)

// State is one of CLOSED, OPEN, HALF_OPEN.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config controls the threshold and timing of one breaker.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	OpenTimeout      time.Duration
}

// DefaultConfig returns the default breaker thresholds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      60 * time.Second,
	}
}

// Breaker is a single CLOSED -> OPEN -> HALF_OPEN state machine.
type Breaker struct {
	mu sync.Mutex

	cfg Config
	st  State

	consecutiveFailures  int
	consecutiveSuccesses int
	openedAt             time.Time
	halfOpenInFlight     bool
}

// New creates a breaker starting in the CLOSED state.
func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg, st: Closed}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.st
}

// Allow reports whether a call may proceed. In OPEN it allows exactly one
// probe once cfg.OpenTimeout has elapsed, transitioning to HALF_OPEN.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.st {
	case Closed:
		return nil
	case Open:
		if time.Since(b.openedAt) < b.cfg.OpenTimeout {
			return edisonerr.New(edisonerr.ProviderTransient, "circuitbreaker", "circuit open")
		}
		b.st = HalfOpen
		b.halfOpenInFlight = true
		return nil
	case HalfOpen:
		if b.halfOpenInFlight {
			return edisonerr.New(edisonerr.ProviderTransient, "circuitbreaker", "circuit open")
		}
		b.halfOpenInFlight = true
		return nil
	default:
		return edisonerr.New(edisonerr.Internal, "circuitbreaker", fmt.Sprintf("unknown state %v", b.st))
	}
}

// RecordSuccess notes a successful call outcome.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.halfOpenInFlight = false
	b.consecutiveFailures = 0
	b.consecutiveSuccesses++

	if b.st == HalfOpen && b.consecutiveSuccesses >= b.cfg.SuccessThreshold {
		b.st = Closed
		b.consecutiveSuccesses = 0
	}
}

// RecordFailure notes a failed call outcome. A single HALF_OPEN failure
// re-opens the circuit immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.halfOpenInFlight = false
	b.consecutiveSuccesses = 0

	switch b.st {
	case Closed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.cfg.FailureThreshold {
			b.st = Open
			b.openedAt = time.Now()
		}
	case HalfOpen:
		b.st = Open
		b.openedAt = time.Now()
		b.consecutiveFailures = 0
	}
}

// Do runs fn under breaker protection: it checks Allow, runs fn, then
// records the outcome.
func (b *Breaker) Do(fn func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn()
	if err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}

// Registry keys breakers by an arbitrary string, conventionally
// "<provider>/<model>".
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	cfg      Config
}

// NewRegistry creates a registry that lazily creates breakers with cfg.
func NewRegistry(cfg Config) *Registry {
	return &Registry{breakers: make(map[string]*Breaker), cfg: cfg}
}

// Get returns the breaker for key, creating it under double-checked
// locking if it does not yet exist.
func (r *Registry) Get(key string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[key]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.breakers[key]; ok {
		return b
	}
	b = New(r.cfg)
	r.breakers[key] = b
	return b
}

// Key builds the conventional provider/model breaker key.
func Key(provider, model string) string {
	return provider + "/" + model
}
