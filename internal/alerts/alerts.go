// v0
// internal/alerts/alerts.go
package alerts

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Category string

const (
	CategoryCritical      Category = "critical"
	CategoryEfficiency    Category = "efficiency"
	CategoryStability     Category = "stability"
	CategoryCommunication Category = "communication"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Alert is the payload published on the alert topic.
type Alert struct {
	ID        string         `json:"id"`
	Category  Category       `json:"category"`
	Severity  Severity       `json:"severity"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Reading is one observation of the controlled room.
type Reading struct {
	Temperature float64
	Setpoint    float64
	Power       float64
}

// Thresholds configures the alert rules.
type Thresholds struct {
	DeviationCritical   float64
	DeviationWarning    float64
	AbsoluteLow         float64
	AbsoluteHigh        float64
	PowerSaturation     float64
	PowerSustain        int
	OscillationWindow   int
	OscillationStd      float64
	OscillationSpan     float64
	Cooldown            time.Duration
	PowerCooldownFactor int
	HistorySize         int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		DeviationCritical:   5,
		DeviationWarning:    2,
		AbsoluteLow:         18,
		AbsoluteHigh:        26,
		PowerSaturation:     95,
		PowerSustain:        10,
		OscillationWindow:   10,
		OscillationStd:      2,
		OscillationSpan:     4,
		Cooldown:            60 * time.Second,
		PowerCooldownFactor: 5,
		HistorySize:         100,
	}
}

// cooldown keys
const (
	keyAbsolute      = "temperature_absolute"
	keyDeviation     = "temperature_deviation"
	keyOscillation   = "oscillation"
	keySaturation    = "power_saturation"
	keyCommunication = "communication"
)

// AlertObserver is notified of every alert that passes its cooldown.
type AlertObserver interface {
	ObserveAlert(category, severity string)
}

// Monitor evaluates readings against the thresholds. It keeps a bounded
// history and forwards fired alerts to the publisher. Publish failures are
// logged and recorded as communication alerts; they never reach the caller.
type Monitor struct {
	th       Thresholds
	log      *slog.Logger
	pub      Publisher
	observer AlertObserver
	now      func() time.Time

	mu        sync.Mutex
	lastFired map[string]time.Time
	temps     []float64
	saturated int
	history   []Alert
}

type Option func(*Monitor)

func WithLogger(l *slog.Logger) Option         { return func(m *Monitor) { m.log = l } }
func WithPublisher(p Publisher) Option         { return func(m *Monitor) { m.pub = p } }
func WithClock(now func() time.Time) Option    { return func(m *Monitor) { m.now = now } }
func WithAlertObserver(o AlertObserver) Option { return func(m *Monitor) { m.observer = o } }

func NewMonitor(th Thresholds, opts ...Option) *Monitor {
	d := DefaultThresholds()
	if th.HistorySize <= 0 {
		th.HistorySize = d.HistorySize
	}
	if th.OscillationWindow < 2 {
		th.OscillationWindow = d.OscillationWindow
	}
	if th.PowerSustain < 1 {
		th.PowerSustain = d.PowerSustain
	}
	if th.PowerCooldownFactor < 1 {
		th.PowerCooldownFactor = 1
	}
	m := &Monitor{
		th:        th,
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:       time.Now,
		lastFired: make(map[string]time.Time),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Monitor) Thresholds() Thresholds { return m.th }

// Observe runs every rule against r and returns the alerts that fired.
func (m *Monitor) Observe(ctx context.Context, r Reading) []Alert {
	now := m.now()
	m.mu.Lock()
	var fired []Alert
	add := func(key string, cooldown time.Duration, a Alert) {
		if last, ok := m.lastFired[key]; ok && now.Sub(last) < cooldown {
			return
		}
		m.lastFired[key] = now
		a.ID = uuid.NewString()
		a.Timestamp = now
		fired = append(fired, a)
		m.record(a)
	}

	if r.Temperature < m.th.AbsoluteLow || r.Temperature > m.th.AbsoluteHigh {
		add(keyAbsolute, m.th.Cooldown, Alert{
			Category: CategoryCritical,
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("temperature %.1f°C outside the safe range %.0f-%.0f°C", r.Temperature, m.th.AbsoluteLow, m.th.AbsoluteHigh),
			Data:     map[string]any{"temperature": r.Temperature, "low": m.th.AbsoluteLow, "high": m.th.AbsoluteHigh},
		})
	}

	dev := math.Abs(r.Temperature - r.Setpoint)
	switch {
	case dev >= m.th.DeviationCritical:
		add(keyDeviation, m.th.Cooldown, Alert{
			Category: CategoryCritical,
			Severity: SeverityHigh,
			Message:  fmt.Sprintf("critical deviation of %.1f°C from setpoint %.1f°C", dev, r.Setpoint),
			Data:     map[string]any{"temperature": r.Temperature, "setpoint": r.Setpoint, "deviation": dev},
		})
	case dev >= m.th.DeviationWarning:
		add(keyDeviation, m.th.Cooldown, Alert{
			Category: CategoryStability,
			Severity: SeverityMedium,
			Message:  fmt.Sprintf("deviation of %.1f°C from setpoint %.1f°C", dev, r.Setpoint),
			Data:     map[string]any{"temperature": r.Temperature, "setpoint": r.Setpoint, "deviation": dev},
		})
	}

	m.temps = append(m.temps, r.Temperature)
	if len(m.temps) > m.th.OscillationWindow {
		m.temps = m.temps[len(m.temps)-m.th.OscillationWindow:]
	}
	if len(m.temps) == m.th.OscillationWindow {
		std, span, turns := oscillation(m.temps)
		if std >= m.th.OscillationStd && span >= m.th.OscillationSpan {
			add(keyOscillation, m.th.Cooldown, Alert{
				Category: CategoryStability,
				Severity: SeverityMedium,
				Message:  fmt.Sprintf("temperature oscillating: std %.2f°C, amplitude %.2f°C", std, span),
				Data:     map[string]any{"std_dev": std, "amplitude": span, "direction_changes": turns, "window": len(m.temps)},
			})
		}
	}

	if r.Power >= m.th.PowerSaturation {
		m.saturated++
	} else {
		m.saturated = 0
	}
	if m.saturated >= m.th.PowerSustain {
		add(keySaturation, m.th.Cooldown*time.Duration(m.th.PowerCooldownFactor), Alert{
			Category: CategoryEfficiency,
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("cooling power at or above %.0f%% for %d consecutive readings", m.th.PowerSaturation, m.saturated),
			Data:     map[string]any{"power": r.Power, "consecutive": m.saturated},
		})
	}
	m.mu.Unlock()

	for _, a := range fired {
		if m.observer != nil {
			m.observer.ObserveAlert(string(a.Category), string(a.Severity))
		}
		m.log.Warn("alert", "category", a.Category, "severity", a.Severity, "message", a.Message)
		m.publish(ctx, a)
	}
	return fired
}

func (m *Monitor) publish(ctx context.Context, a Alert) {
	if m.pub == nil {
		return
	}
	if err := m.pub.Publish(ctx, a); err != nil {
		m.log.Error("alert publish failed", "id", a.ID, "err", err)
		m.Communication(fmt.Sprintf("alert %s not delivered: %v", a.ID, err))
	}
}

// Communication records a bus problem in the history, subject to cooldown.
// It is never published, the bus being the thing that failed.
func (m *Monitor) Communication(msg string) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	if last, ok := m.lastFired[keyCommunication]; ok && now.Sub(last) < m.th.Cooldown {
		return
	}
	m.lastFired[keyCommunication] = now
	m.record(Alert{
		ID:        uuid.NewString(),
		Category:  CategoryCommunication,
		Severity:  SeverityLow,
		Message:   msg,
		Timestamp: now,
	})
}

func (m *Monitor) record(a Alert) {
	m.history = append(m.history, a)
	if over := len(m.history) - m.th.HistorySize; over > 0 {
		m.history = append(m.history[:0:0], m.history[over:]...)
	}
}

// History returns up to limit of the most recent alerts, oldest first.
// A limit <= 0 returns everything kept.
func (m *Monitor) History(limit int) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.history
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	out := make([]Alert, len(h))
	copy(out, h)
	return out
}

// Reset forgets history, cooldowns and the observation windows.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = nil
	m.temps = nil
	m.saturated = 0
	m.lastFired = make(map[string]time.Time)
}

// oscillation returns the population std-dev, the max-min span and the
// number of direction changes of xs.
func oscillation(xs []float64) (std, span float64, turns int) {
	lo, hi, sum := xs[0], xs[0], 0.0
	for _, x := range xs {
		sum += x
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	mean := sum / float64(len(xs))
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	prev := 0.0
	for i := 1; i < len(xs); i++ {
		d := xs[i] - xs[i-1]
		if d*prev < 0 {
			turns++
		}
		if d != 0 {
			prev = d
		}
	}
	return math.Sqrt(ss / float64(len(xs))), hi - lo, turns
}
