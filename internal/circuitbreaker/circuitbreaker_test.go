// v0
// internal/circuitbreaker/circuitbreaker_test.go
package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errDown = errors.New("down")

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func fail(context.Context) error { return errDown }
func ok(context.Context) error   { return nil }

func TestBreakerOpensAfterMaxFailures(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	var changes []string
	b := New("mqtt", Config{MaxFailures: 3, ResetTimeout: time.Minute},
		WithClock(clk.now),
		OnStateChange(func(_ string, from, to State) { changes = append(changes, from.String()+">"+to.String()) }))

	for i := 0; i < 2; i++ {
		if err := b.Execute(context.Background(), fail); !errors.Is(err, errDown) || errors.Is(err, ErrOpen) {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if b.State() != Closed || b.Failures() != 2 {
		t.Fatalf("state %v failures %d", b.State(), b.Failures())
	}
	if err := b.Execute(context.Background(), fail); !errors.Is(err, ErrOpen) || !errors.Is(err, errDown) {
		t.Fatalf("tripping call: %v", err)
	}
	if b.State() != Open {
		t.Fatalf("expected open, got %v", b.State())
	}

	called := false
	err := b.Execute(context.Background(), func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrOpen) || called {
		t.Fatalf("open breaker must fast-fail without calling op")
	}
	if len(changes) != 1 || changes[0] != "closed>open" {
		t.Fatalf("changes = %v", changes)
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	var changes []string
	b := New("kafka", Config{MaxFailures: 1, ResetTimeout: 10 * time.Second},
		WithClock(clk.now),
		OnStateChange(func(_ string, from, to State) { changes = append(changes, to.String()) }))

	_ = b.Execute(context.Background(), fail)
	clk.advance(11 * time.Second)
	if err := b.Execute(context.Background(), fail); !errors.Is(err, errDown) {
		t.Fatalf("trial failure: %v", err)
	}
	if b.State() != Open {
		t.Fatalf("failed trial must re-open, got %v", b.State())
	}
	if err := b.Execute(context.Background(), ok); !errors.Is(err, ErrOpen) {
		t.Fatalf("timeout restarts after failed trial: %v", err)
	}
	clk.advance(11 * time.Second)
	if err := b.Execute(context.Background(), ok); err != nil {
		t.Fatalf("trial success: %v", err)
	}
	if b.State() != Closed || b.Failures() != 0 {
		t.Fatalf("state %v failures %d", b.State(), b.Failures())
	}
	want := []string{"open", "half_open", "open", "half_open", "closed"}
	if len(changes) != len(want) {
		t.Fatalf("changes = %v", changes)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Fatalf("changes = %v, want %v", changes, want)
		}
	}
}

func TestBreakerProbeGatesTrial(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	probeErr := errDown
	b := New("nats", Config{MaxFailures: 1, ResetTimeout: time.Second},
		WithClock(clk.now),
		WithProbe(func(context.Context) error { return probeErr }))
	_ = b.Execute(context.Background(), fail)
	clk.advance(2 * time.Second)

	called := false
	op := func(context.Context) error { called = true; return nil }
	if err := b.Execute(context.Background(), op); !errors.Is(err, ErrOpen) || called {
		t.Fatalf("failed probe must skip op: err=%v called=%v", err, called)
	}
	clk.advance(2 * time.Second)
	probeErr = nil
	if err := b.Execute(context.Background(), op); err != nil || !called {
		t.Fatalf("healthy probe must run op: err=%v called=%v", err, called)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b := New("x", Config{MaxFailures: 2, ResetTimeout: time.Second})
	_ = b.Execute(context.Background(), fail)
	_ = b.Execute(context.Background(), ok)
	_ = b.Execute(context.Background(), fail)
	if b.State() != Closed {
		t.Fatalf("non-consecutive failures must not trip the breaker")
	}
}

func TestConfigFromProperties(t *testing.T) {
	cfg, err := ConfigFromProperties(map[string]string{"circuit.maxFailures": "7", "Circuit.ResetSeconds": "2.5", "other": "x"})
	if err != nil {
		t.Fatalf("ConfigFromProperties: %v", err)
	}
	if cfg.MaxFailures != 7 || cfg.ResetTimeout != 2500*time.Millisecond {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg, _ := ConfigFromProperties(nil); cfg != DefaultConfig() {
		t.Fatalf("empty properties must give defaults, got %+v", cfg)
	}
	for _, bad := range []map[string]string{
		{"circuit.maxfailures": "0"},
		{"circuit.maxfailures": "abc"},
		{"circuit.resetseconds": "-1"},
	} {
		if _, err := ConfigFromProperties(bad); err == nil {
			t.Fatalf("expected error for %v", bad)
		}
	}
	if got := New("d", Config{}).cfg; got != DefaultConfig() {
		t.Fatalf("zero config must fall back to defaults, got %+v", got)
	}
}
