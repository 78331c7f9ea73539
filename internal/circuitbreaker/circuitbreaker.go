// Package circuitbreaker guards calls to an unreliable dependency, failing
// fast once it has failed repeatedly and probing it again after a cool-down.
package circuitbreaker

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// State is the position of a breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the string representation of a State
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

var (
	// ErrOpen is returned without calling the guarded function while the
	// breaker is open.
	ErrOpen = errors.New("circuit breaker is open")
	// ErrProbeLimit is returned when every half-open probe slot is taken.
	ErrProbeLimit = errors.New("circuit breaker half-open probe limit reached")
)

// Config configures a Breaker.
type Config struct {
	Name             string        // identifies the guarded dependency in logs and metrics
	FailureThreshold int           // consecutive failures before opening
	OpenTimeout      time.Duration // time spent OPEN before probing
	HalfOpenProbes   int           // successful probes needed to close again
	Logger           *slog.Logger
	// OnStateChange is called with the lock held; it must not call back into
	// the breaker.
	OnStateChange func(name string, from, to State)
	Now           func() time.Time
}

// Breaker is a consecutive-failure circuit breaker. It is safe for concurrent use.
type Breaker struct {
	cfg Config
	mu  sync.Mutex

	state     State
	failures  int
	probes    int
	successes int
	openedAt  time.Time
}

// New creates a Breaker in the CLOSED state, filling zero config values with
// defaults (5 failures, 30s, 1 probe).
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{cfg: cfg, state: StateClosed}
}

// Execute runs fn if the breaker allows it and records the outcome.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.acquire(); err != nil {
		return err
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(err)
	return err
}

func (b *Breaker) acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && b.cfg.Now().Sub(b.openedAt) >= b.cfg.OpenTimeout {
		b.transitionTo(StateHalfOpen)
	}

	switch b.state {
	case StateOpen:
		return ErrOpen
	case StateHalfOpen:
		if b.probes >= b.cfg.HalfOpenProbes {
			return ErrProbeLimit
		}
		b.probes++
	}
	return nil
}

// record must be called with the lock held.
func (b *Breaker) record(err error) {
	switch b.state {
	case StateHalfOpen:
		if err != nil {
			b.transitionTo(StateOpen)
			return
		}
		b.successes++
		if b.successes >= b.cfg.HalfOpenProbes {
			b.transitionTo(StateClosed)
		}
	case StateClosed:
		if err == nil {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.transitionTo(StateOpen)
		}
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker back to CLOSED.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionTo(StateClosed)
}

func (b *Breaker) transitionTo(next State) {
	if b.state == next {
		return
	}

	prev := b.state
	b.state = next
	b.probes = 0
	b.successes = 0

	switch next {
	case StateClosed:
		b.failures = 0
		b.openedAt = time.Time{}
	case StateOpen:
		b.openedAt = b.cfg.Now()
	}

	b.cfg.Logger.Info("circuit breaker state change",
		"breaker", b.cfg.Name,
		"from", prev.String(),
		"to", next.String(),
	)
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, prev, next)
	}
}
