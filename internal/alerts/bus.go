// v0
// internal/alerts/bus.go
package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"nrgchamp/fuzzycrac/internal/circuitbreaker"
)

// Logical topics. Sinks that cannot carry '/' map them to dotted names.
const (
	TopicAlert       = "datacenter/fuzzy/alert"
	TopicControl     = "datacenter/fuzzy/control"
	TopicTemperature = "datacenter/fuzzy/temperature"
)

var ErrNoSinks = errors.New("alert bus has no sinks")

// Publisher delivers alerts.
type Publisher interface {
	Publish(ctx context.Context, a Alert) error
}

// Sink carries raw payloads to one transport.
type Sink interface {
	Name() string
	Target() string
	Send(ctx context.Context, topic, key string, payload []byte) error
}

// PublishObserver is told about each send attempt.
type PublishObserver interface {
	ObservePublish(sink, topic string, err error)
}

// dotted turns a logical topic into a NATS subject or Kafka topic name.
func dotted(topic string) string { return strings.ReplaceAll(topic, "/", ".") }

// Guarded wraps a sink with a circuit breaker.
type Guarded struct {
	Sink
	breaker *circuitbreaker.Breaker
}

func Guard(s Sink, b *circuitbreaker.Breaker) *Guarded { return &Guarded{Sink: s, breaker: b} }

func (g *Guarded) Send(ctx context.Context, topic, key string, payload []byte) error {
	return g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.Sink.Send(ctx, topic, key, payload)
	})
}

func (g *Guarded) BreakerState() circuitbreaker.State { return g.breaker.State() }

// Control is the telemetry record sent after each control decision.
type Control struct {
	Timestamp   time.Time `json:"timestamp"`
	Setpoint    float64   `json:"setpoint"`
	CurrentTemp float64   `json:"current_temp"`
	Error       float64   `json:"error"`
	DeltaError  float64   `json:"delta_error"`
	Power       float64   `json:"crac_power"`
}

// Temperature is the telemetry record for a raw reading.
type Temperature struct {
	Timestamp   time.Time `json:"timestamp"`
	Temperature float64   `json:"temperature"`
	Setpoint    float64   `json:"setpoint"`
}

type sinkStats struct {
	published   int
	failures    int
	lastError   string
	lastAttempt time.Time
}

// SinkStatus is reported by /api/bus/status.
type SinkStatus struct {
	Name        string    `json:"name"`
	Target      string    `json:"target"`
	Breaker     string    `json:"breaker,omitempty"`
	Published   int       `json:"published"`
	Failures    int       `json:"failures"`
	LastError   string    `json:"last_error,omitempty"`
	LastAttempt time.Time `json:"last_attempt,omitempty"`
}

type Status struct {
	Connected      bool         `json:"connected"`
	SimulationMode bool         `json:"simulation_mode"`
	Sinks          []SinkStatus `json:"sinks"`
}

// Bus fans payloads out to every sink. A send succeeds when at least one
// sink accepted it.
type Bus struct {
	log      *slog.Logger
	sinks    []Sink
	observer PublishObserver
	onFail   func(msg string)
	now      func() time.Time

	mu    sync.Mutex
	stats map[string]*sinkStats
}

type BusOption func(*Bus)

func WithBusLogger(l *slog.Logger) BusOption          { return func(b *Bus) { b.log = l } }
func WithPublishObserver(o PublishObserver) BusOption { return func(b *Bus) { b.observer = o } }

// WithFailureReporter receives a message for every failed sink send.
// Monitor.Communication fits here.
func WithFailureReporter(fn func(msg string)) BusOption { return func(b *Bus) { b.onFail = fn } }

func NewBus(sinks []Sink, opts ...BusOption) *Bus {
	b := &Bus{
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		sinks: sinks,
		now:   time.Now,
		stats: make(map[string]*sinkStats, len(sinks)),
	}
	for _, o := range opts {
		o(b)
	}
	for _, s := range sinks {
		b.stats[s.Name()] = &sinkStats{}
	}
	return b
}

func (b *Bus) Publish(ctx context.Context, a Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	return b.send(ctx, TopicAlert, string(a.Category), payload)
}

func (b *Bus) PublishControl(ctx context.Context, c Control) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode control: %w", err)
	}
	return b.send(ctx, TopicControl, "control", payload)
}

func (b *Bus) PublishTemperature(ctx context.Context, t Temperature) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode temperature: %w", err)
	}
	return b.send(ctx, TopicTemperature, "temperature", payload)
}

func (b *Bus) send(ctx context.Context, topic, key string, payload []byte) error {
	if len(b.sinks) == 0 {
		return ErrNoSinks
	}
	var errs []error
	for _, s := range b.sinks {
		err := s.Send(ctx, topic, key, payload)
		b.track(s.Name(), err)
		if b.observer != nil {
			b.observer.ObservePublish(s.Name(), topic, err)
		}
		if err != nil {
			b.log.Warn("bus send failed", "sink", s.Name(), "topic", topic, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			if b.onFail != nil {
				b.onFail(fmt.Sprintf("%s publish to %s failed: %v", s.Name(), topic, err))
			}
		}
	}
	if len(errs) == len(b.sinks) {
		return errors.Join(errs...)
	}
	return nil
}

func (b *Bus) track(name string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.stats[name]
	st.lastAttempt = b.now()
	if err != nil {
		st.failures++
		st.lastError = err.Error()
		return
	}
	st.published++
}

// Status reports per-sink counters. The bus counts as connected when a
// remote sink is not failing; with only the local sink it is in
// simulation mode.
func (b *Bus) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := Status{SimulationMode: true, Sinks: make([]SinkStatus, 0, len(b.sinks))}
	for _, s := range b.sinks {
		c := b.stats[s.Name()]
		ss := SinkStatus{
			Name:        s.Name(),
			Target:      s.Target(),
			Published:   c.published,
			Failures:    c.failures,
			LastError:   c.lastError,
			LastAttempt: c.lastAttempt,
		}
		if g, ok := s.(*Guarded); ok {
			ss.Breaker = g.BreakerState().String()
		}
		if _, local := s.(*MemorySink); !local {
			st.SimulationMode = false
			if ss.Breaker != circuitbreaker.Open.String() {
				st.Connected = true
			}
		}
		st.Sinks = append(st.Sinks, ss)
	}
	return st
}
