// v0
// internal/alerts/alerts_test.go
package alerts

import (
	"context"
	"errors"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newMonitor(opts ...Option) (*Monitor, *clock) {
	clk := &clock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewMonitor(DefaultThresholds(), append([]Option{WithClock(clk.now)}, opts...)...), clk
}

func categories(as []Alert) map[Category]int {
	out := map[Category]int{}
	for _, a := range as {
		out[a.Category]++
	}
	return out
}

func TestTemperatureRules(t *testing.T) {
	cases := []struct {
		name string
		r    Reading
		want map[Category]int
	}{
		{"on setpoint", Reading{Temperature: 22, Setpoint: 22, Power: 40}, map[Category]int{}},
		{"small deviation", Reading{Temperature: 23.9, Setpoint: 22, Power: 40}, map[Category]int{}},
		{"stability", Reading{Temperature: 24.5, Setpoint: 22, Power: 40}, map[Category]int{CategoryStability: 1}},
		{"critical deviation", Reading{Temperature: 19, Setpoint: 24, Power: 40}, map[Category]int{CategoryCritical: 1}},
		{"absolute high", Reading{Temperature: 26.5, Setpoint: 25, Power: 40}, map[Category]int{CategoryCritical: 1}},
		{"absolute and deviation", Reading{Temperature: 28, Setpoint: 22, Power: 40}, map[Category]int{CategoryCritical: 2}},
		{"absolute low", Reading{Temperature: 17.5, Setpoint: 18.5, Power: 40}, map[Category]int{CategoryCritical: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, _ := newMonitor()
			got := categories(m.Observe(context.Background(), tc.r))
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			for k, v := range tc.want {
				if got[k] != v {
					t.Fatalf("got %v, want %v", got, tc.want)
				}
			}
		})
	}
}

func TestCooldown(t *testing.T) {
	m, clk := newMonitor()
	r := Reading{Temperature: 24.5, Setpoint: 22, Power: 40}
	if n := len(m.Observe(context.Background(), r)); n != 1 {
		t.Fatalf("first observation fired %d alerts", n)
	}
	clk.advance(30 * time.Second)
	if n := len(m.Observe(context.Background(), r)); n != 0 {
		t.Fatalf("alert repeated inside cooldown")
	}
	clk.advance(31 * time.Second)
	if n := len(m.Observe(context.Background(), r)); n != 1 {
		t.Fatalf("alert not repeated after cooldown")
	}
	if h := m.History(0); len(h) != 2 || h[0].ID == h[1].ID || h[0].ID == "" {
		t.Fatalf("history = %+v", h)
	}
}

func TestPowerSaturation(t *testing.T) {
	m, clk := newMonitor()
	r := Reading{Temperature: 22, Setpoint: 22, Power: 97}
	for i := 1; i < 10; i++ {
		if as := m.Observe(context.Background(), r); len(as) != 0 {
			t.Fatalf("fired after %d readings", i)
		}
		clk.advance(time.Second)
	}
	as := m.Observe(context.Background(), r)
	if len(as) != 1 || as[0].Category != CategoryEfficiency || as[0].Severity != SeverityCritical {
		t.Fatalf("expected efficiency alert on the 10th reading, got %+v", as)
	}
	// still saturated: the power cooldown is five times the base cooldown
	clk.advance(2 * time.Minute)
	if as := m.Observe(context.Background(), r); len(as) != 0 {
		t.Fatalf("power alert repeated inside extended cooldown")
	}
	clk.advance(4 * time.Minute)
	if as := m.Observe(context.Background(), r); len(as) != 1 {
		t.Fatalf("power alert not repeated after extended cooldown")
	}

	m.Reset()
	for i := 0; i < 9; i++ {
		m.Observe(context.Background(), r)
	}
	m.Observe(context.Background(), Reading{Temperature: 22, Setpoint: 22, Power: 50})
	if as := m.Observe(context.Background(), r); len(as) != 0 {
		t.Fatalf("a reading below saturation must reset the run")
	}
}

func TestOscillation(t *testing.T) {
	th := DefaultThresholds()
	th.DeviationWarning, th.DeviationCritical = 100, 100
	th.AbsoluteLow, th.AbsoluteHigh = -100, 100
	clk := &clock{t: time.Unix(0, 0)}
	m := NewMonitor(th, WithClock(clk.now))

	var fired []Alert
	for i := 0; i < 10; i++ {
		temp := 20.0
		if i%2 == 1 {
			temp = 25
		}
		fired = append(fired, m.Observe(context.Background(), Reading{Temperature: temp, Setpoint: 22})...)
	}
	if len(fired) != 1 || fired[0].Category != CategoryStability {
		t.Fatalf("expected one oscillation alert, got %+v", fired)
	}
	if turns := fired[0].Data["direction_changes"]; turns != 8 {
		t.Fatalf("direction changes = %v", turns)
	}

	m.Reset()
	fired = nil
	for i := 0; i < 10; i++ {
		fired = append(fired, m.Observe(context.Background(), Reading{Temperature: 20 + 0.5*float64(i%2), Setpoint: 22})...)
	}
	if len(fired) != 0 {
		t.Fatalf("small swings must not alert: %+v", fired)
	}
}

func TestHistoryIsBounded(t *testing.T) {
	th := DefaultThresholds()
	th.HistorySize = 5
	th.Cooldown = 0
	m := NewMonitor(th)
	for i := 0; i < 12; i++ {
		m.Observe(context.Background(), Reading{Temperature: 25, Setpoint: 22})
	}
	if h := m.History(0); len(h) != 5 {
		t.Fatalf("history length %d", len(h))
	}
	if h := m.History(2); len(h) != 2 {
		t.Fatalf("limited history length %d", len(h))
	}
}

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(context.Context, Alert) error {
	f.calls++
	return errors.New("broker unreachable")
}

type countingObserver map[string]int

func (c countingObserver) ObserveAlert(category, _ string) { c[category]++ }

func TestPublishFailureRecordedAsCommunication(t *testing.T) {
	pub := &failingPublisher{}
	obs := countingObserver{}
	m, _ := newMonitor(WithPublisher(pub), WithAlertObserver(obs))
	fired := m.Observe(context.Background(), Reading{Temperature: 24.5, Setpoint: 22})
	if len(fired) != 1 || pub.calls != 1 {
		t.Fatalf("fired %d, publish calls %d", len(fired), pub.calls)
	}
	h := m.History(0)
	if len(h) != 2 || h[1].Category != CategoryCommunication {
		t.Fatalf("history = %+v", h)
	}
	if obs["stability"] != 1 {
		t.Fatalf("observer saw %v", obs)
	}
}
