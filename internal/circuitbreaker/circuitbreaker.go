// v0
// internal/circuitbreaker/circuitbreaker.go
package circuitbreaker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

type State int

const (
	Closed State = iota
	HalfOpen
	Open
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case HalfOpen:
		return "half_open"
	case Open:
		return "open"
	default:
		return "unknown"
	}
}

var ErrOpen = errors.New("circuit breaker is open; fast-fail")

// Breaker trips after MaxFailures consecutive failures and fast-fails until
// ResetTimeout has passed. The next call then runs the optional probe and a
// single trial operation; success closes the breaker, failure re-opens it.
type Breaker struct {
	name   string
	cfg    Config
	logger *slog.Logger
	probe  func(ctx context.Context) error
	now    func() time.Time

	mu          sync.Mutex
	state       State
	recentFails int
	openedAt    time.Time
	onChange    []func(name string, from, to State)
}

type Option func(*Breaker)

func WithLogger(l *slog.Logger) Option { return func(b *Breaker) { b.logger = l } }

// WithProbe sets a health check run before the half-open trial.
func WithProbe(p func(ctx context.Context) error) Option { return func(b *Breaker) { b.probe = p } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(b *Breaker) { b.now = now } }

// OnStateChange registers a hook called outside the lock on every transition.
func OnStateChange(fn func(name string, from, to State)) Option {
	return func(b *Breaker) { b.onChange = append(b.onChange, fn) }
}

func New(name string, cfg Config, opts ...Option) *Breaker {
	cfg = cfg.withDefaults()
	b := &Breaker{
		name:   name,
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
		state:  Closed,
	}
	for _, o := range opts {
		o(b)
	}
	b.logger.Info("breaker created", "name", name, "maxFailures", cfg.MaxFailures, "resetTimeout", cfg.ResetTimeout.String())
	return b
}

func (b *Breaker) Name() string { return b.name }

// Execute runs op under the breaker. It returns ErrOpen without calling op
// while the breaker is open.
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	b.mu.Lock()
	state, openedAt := b.state, b.openedAt
	b.mu.Unlock()

	if state == Open {
		if since := b.now().Sub(openedAt); since < b.cfg.ResetTimeout {
			b.logger.Debug("breaker fast fail", "name", b.name, "sinceOpen", since.String())
			return ErrOpen
		}
		return b.trial(ctx, op)
	}

	if err := op(ctx); err != nil {
		if b.onFailure(err) {
			return errors.Join(ErrOpen, err)
		}
		return err
	}
	b.onSuccess()
	return nil
}

func (b *Breaker) trial(ctx context.Context, op func(ctx context.Context) error) error {
	if !b.transition(Open, HalfOpen) {
		// another caller is already probing
		return ErrOpen
	}
	b.logger.Info("breaker probe start", "name", b.name)
	if b.probe != nil {
		if err := b.probe(ctx); err != nil {
			b.logger.Warn("breaker probe failed", "name", b.name, "err", err)
			b.reopen()
			return ErrOpen
		}
	}
	if err := op(ctx); err != nil {
		b.logger.Warn("breaker half-open op failed", "name", b.name, "err", err)
		b.reopen()
		return err
	}
	b.mu.Lock()
	b.recentFails = 0
	b.mu.Unlock()
	b.transition(HalfOpen, Closed)
	b.logger.Info("breaker closed after probe", "name", b.name)
	return nil
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	b.recentFails = 0
	b.mu.Unlock()
}

// onFailure counts a failure and reports whether it tripped the breaker.
func (b *Breaker) onFailure(err error) bool {
	b.mu.Lock()
	b.recentFails++
	fails := b.recentFails
	b.mu.Unlock()
	b.logger.Warn("operation failure", "name", b.name, "failures", fails, "err", err)
	if fails < b.cfg.MaxFailures {
		return false
	}
	if b.reopen() {
		b.logger.Error("breaker opened", "name", b.name, "maxFailures", b.cfg.MaxFailures)
	}
	return true
}

// reopen moves to Open from any state and restarts the timeout.
func (b *Breaker) reopen() bool {
	b.mu.Lock()
	from := b.state
	b.state = Open
	b.openedAt = b.now()
	b.mu.Unlock()
	if from != Open {
		b.notify(from, Open)
		return true
	}
	return false
}

func (b *Breaker) transition(from, to State) bool {
	b.mu.Lock()
	if b.state != from {
		b.mu.Unlock()
		return false
	}
	b.state = to
	b.mu.Unlock()
	b.notify(from, to)
	return true
}

func (b *Breaker) notify(from, to State) {
	b.logger.Info("breaker state change", "name", b.name, "from", from.String(), "to", to.String())
	for _, fn := range b.onChange {
		fn(b.name, from, to)
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the current run of consecutive failures.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.recentFails
}
