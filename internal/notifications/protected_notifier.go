package notifications

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker open")

type ProtectedNotifierConfig struct {
	Timeout          time.Duration // hard timeout per send
	FailureThreshold int           // consecutive failures to open circuit
	Cooldown         time.Duration // how long to stay open before half-open
	HalfOpenMaxCalls int           // allow N trial calls in half-open

	// OnStateChange, if set, is called (outside the lock) on every transition.
	OnStateChange func(from, to string)
}

const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half_open"
)

// ProtectedNotifier wraps a Notifier with a per-send timeout and a
// consecutive-failure circuit breaker. Sends aborted by the caller's own
// context do not count as provider failures.
type ProtectedNotifier struct {
	inner Notifier
	cfg   ProtectedNotifierConfig
	now   func() time.Time

	mu               sync.Mutex
	state            string
	failures         int
	openedAt         time.Time
	halfOpenInFlight int
}

func NewProtectedNotifier(inner Notifier, cfg ProtectedNotifierConfig) *ProtectedNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 15 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}

	return &ProtectedNotifier{
		inner: inner,
		cfg:   cfg,
		now:   time.Now,
		state: StateClosed,
	}
}

func (n *ProtectedNotifier) State() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *ProtectedNotifier) SendWelcome(ctx context.Context, input WelcomeInput) error {
	if !n.acquire() {
		return ErrCircuitOpen
	}

	sendCtx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	err := n.inner.SendWelcome(sendCtx, input)

	if err != nil && ctx.Err() != nil {
		// caller gave up; says nothing about the provider
		n.release()
		return err
	}

	n.record(err)
	return err
}

// acquire reports whether a send may go through, moving open to half-open
// once the cooldown has elapsed.
func (n *ProtectedNotifier) acquire() bool {
	n.mu.Lock()

	if n.state == StateOpen {
		if n.now().Sub(n.openedAt) < n.cfg.Cooldown {
			n.mu.Unlock()
			return false
		}
		notify := n.transition(StateHalfOpen)
		n.halfOpenInFlight = 1
		n.mu.Unlock()
		notify()
		return true
	}

	defer n.mu.Unlock()

	if n.state == StateHalfOpen {
		if n.halfOpenInFlight >= n.cfg.HalfOpenMaxCalls {
			return false
		}
		n.halfOpenInFlight++
	}
	return true
}

func (n *ProtectedNotifier) release() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state == StateHalfOpen && n.halfOpenInFlight > 0 {
		n.halfOpenInFlight--
	}
}

func (n *ProtectedNotifier) record(err error) {
	n.mu.Lock()

	if n.state == StateHalfOpen && n.halfOpenInFlight > 0 {
		n.halfOpenInFlight--
	}

	notify := func() {}

	switch {
	case err == nil:
		n.failures = 0
		notify = n.transition(StateClosed)
	case n.state == StateHalfOpen:
		n.failures++
		n.openedAt = n.now()
		notify = n.transition(StateOpen)
	default:
		n.failures++
		if n.failures >= n.cfg.FailureThreshold {
			n.openedAt = n.now()
			notify = n.transition(StateOpen)
		}
	}

	n.mu.Unlock()
	notify()
}

// transition must be called with mu held; the returned func fires the hook
// and must be called after unlocking.
func (n *ProtectedNotifier) transition(to string) func() {
	from := n.state
	n.state = to

	if from == to || n.cfg.OnStateChange == nil {
		return func() {}
	}
	hook := n.cfg.OnStateChange
	return func() { hook(from, to) }
}
