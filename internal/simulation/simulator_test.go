// v0
// internal/simulation/simulator_test.go
package simulation

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"math"
	"math/rand/v2"
	"reflect"
	"testing"
	"time"

	"nrgchamp/fuzzycrac/internal/fuzzy"
	"nrgchamp/fuzzycrac/internal/thermal"
)

func newEngine(t *testing.T) *fuzzy.Engine {
	t.Helper()
	e, err := fuzzy.NewDefaultEngine(fuzzy.WithResolution(201))
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return e
}

func seed(v int64) *int64 { return &v }

var testStart = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func TestRunIsReproducibleWithSeed(t *testing.T) {
	sim := New(newEngine(t))
	p := Params{Setpoint: 22, InitialTemp: 24, Seed: seed(42), Start: testStart}
	a, err := sim.Run(context.Background(), p)
	if err != nil {
		t.Fatalf("run a: %v", err)
	}
	b, err := sim.Run(context.Background(), p)
	if err != nil {
		t.Fatalf("run b: %v", err)
	}
	if len(a.Steps) != Steps {
		t.Fatalf("expected %d steps, got %d", Steps, len(a.Steps))
	}
	if !reflect.DeepEqual(a.Steps, b.Steps) {
		t.Fatalf("same seed produced different series")
	}
	if a.Statistics != b.Statistics {
		t.Fatalf("same seed produced different statistics")
	}
	for i, s := range a.Steps {
		if s.Minute != i {
			t.Fatalf("step %d has minute %d", i, s.Minute)
		}
		if i > 0 && !s.Timestamp.After(a.Steps[i-1].Timestamp) {
			t.Fatalf("timestamps not increasing at %d", i)
		}
		if i > 0 && s.CurrentTemp != a.Steps[i-1].NewTemp {
			t.Fatalf("temperature not carried over at step %d", i)
		}
	}
	if a.ID == b.ID {
		t.Fatalf("runs must get distinct ids")
	}
}

func TestRunDiffersAcrossSeeds(t *testing.T) {
	sim := New(newEngine(t))
	a, err := sim.Run(context.Background(), Params{Setpoint: 22, InitialTemp: 22, Seed: seed(1)})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	b, err := sim.Run(context.Background(), Params{Setpoint: 22, InitialTemp: 22, Seed: seed(2)})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if reflect.DeepEqual(a.Steps, b.Steps) {
		t.Fatalf("different seeds produced identical series")
	}
}

func TestUnseededRunReportsReplayableSeed(t *testing.T) {
	sim := New(newEngine(t))
	a, err := sim.Run(context.Background(), Params{Setpoint: 21, InitialTemp: 23})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if a.Seed == nil {
		t.Fatalf("unseeded run must report its seed")
	}
	b, err := sim.Run(context.Background(), Params{Setpoint: 21, InitialTemp: 23, Seed: a.Seed})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !reflect.DeepEqual(a.Steps, b.Steps) {
		t.Fatalf("replay with reported seed diverged")
	}
}

type constEngine struct {
	out    float64
	calls  int
	failAt int
	seen   []fuzzy.Inputs
}

var errBoom = errors.New("boom")

func (c *constEngine) Infer(in fuzzy.Inputs) (fuzzy.Result, error) {
	defer func() { c.calls++ }()
	if c.failAt > 0 && c.calls == c.failAt {
		return fuzzy.Result{}, errBoom
	}
	c.seen = append(c.seen, in)
	return fuzzy.Result{CrispOutput: c.out, ActivatedRules: make([]fuzzy.ActivatedRule, 2)}, nil
}

func TestStepPipeline(t *testing.T) {
	eng := &constEngine{out: 50}
	model := thermal.DefaultModel()
	sim := New(eng, WithModel(model))
	run, err := sim.Run(context.Background(), Params{Setpoint: 22, InitialTemp: 25, Seed: seed(9)})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	prevErr := 0.0
	for i, s := range run.Steps {
		if s.Error != 22-s.CurrentTemp {
			t.Fatalf("step %d: error %v", i, s.Error)
		}
		if s.DeltaError != s.Error-prevErr {
			t.Fatalf("step %d: delta error %v, want %v", i, s.DeltaError, s.Error-prevErr)
		}
		if want := model.Next(s.CurrentTemp, 50, s.ThermalLoad, s.ExternalTemp); s.NewTemp != want {
			t.Fatalf("step %d: new temp %v, want %v", i, s.NewTemp, want)
		}
		if s.ControlOutput != 50 || s.ActivatedRules != 2 {
			t.Fatalf("step %d: control %v rules %d", i, s.ControlOutput, s.ActivatedRules)
		}
		in := eng.seen[i]
		if in.Error != s.Error || in.ExternalTemp != s.ExternalTemp || in.ThermalLoad != s.ThermalLoad {
			t.Fatalf("step %d: engine saw %+v", i, in)
		}
		prevErr = s.Error
	}
	if run.Steps[0].DeltaError != run.Steps[0].Error {
		t.Fatalf("first delta error must equal the first error")
	}
}

func TestStepFailureAbortsRun(t *testing.T) {
	eng := &constEngine{out: 40, failAt: 100}
	run, err := New(eng).Run(context.Background(), Params{Setpoint: 22, InitialTemp: 22, Seed: seed(3)})
	if run != nil {
		t.Fatalf("failed run must not return a partial series")
	}
	var se *StepError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StepError, got %T %v", err, err)
	}
	if se.Minute != 100 || !errors.Is(err, errBoom) {
		t.Fatalf("unexpected step error %+v", se)
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var seen int
	sim := New(&constEngine{out: 30}, WithStepObserver(func(StepResult) {
		seen++
		if seen == 10 {
			cancel()
		}
	}))
	_, err := sim.Run(ctx, Params{Setpoint: 22, InitialTemp: 22, Seed: seed(5)})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if seen != 10 {
		t.Fatalf("expected run to stop after 10 steps, saw %d", seen)
	}
}

type runCounter struct {
	runs, steps int
	lastErr     error
}

func (r *runCounter) ObserveRun(_ time.Duration, steps int, err error) {
	r.runs++
	r.steps += steps
	r.lastErr = err
}

func TestObservers(t *testing.T) {
	rc := &runCounter{}
	var stepCalls int
	sim := New(&constEngine{out: 45}, WithRunObserver(rc), WithStepObserver(func(StepResult) { stepCalls++ }))
	if _, err := sim.Run(context.Background(), Params{Setpoint: 22, InitialTemp: 22, Seed: seed(8)}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if rc.runs != 1 || rc.steps != Steps || rc.lastErr != nil || stepCalls != Steps {
		t.Fatalf("observers saw runs=%d steps=%d stepCalls=%d err=%v", rc.runs, rc.steps, stepCalls, rc.lastErr)
	}
}

func TestEnvironmentBounds(t *testing.T) {
	env := DefaultEnvironment()
	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < Steps; i++ {
		if v := env.ExternalTemp(i, r); v < 18 || v > 32 {
			t.Fatalf("external temp %v out of range at %d", v, i)
		}
		if v := env.ThermalLoad(i, r); v < 0 || v > 80 {
			t.Fatalf("thermal load %v out of range at %d", v, i)
		}
	}
}

func TestEnvironmentDiurnalShape(t *testing.T) {
	env := DefaultEnvironment()
	env.ExtNoise, env.LoadNoise = 0, 0
	r := rand.New(rand.NewPCG(1, 2))
	if got := env.ExternalTemp(6*60, r); math.Abs(got-25) > 1e-9 {
		t.Fatalf("external temp at 06:00 = %v, want mean 25", got)
	}
	if got := env.ExternalTemp(12*60, r); math.Abs(got-29) > 1e-9 {
		t.Fatalf("external temp at 12:00 = %v, want 29", got)
	}
	if day, night := env.ThermalLoad(12*60, r), env.ThermalLoad(3*60, r); day <= night {
		t.Fatalf("daytime load %v should exceed night load %v", day, night)
	}
}

func TestPerturb(t *testing.T) {
	env := DefaultEnvironment()
	r := rand.New(rand.NewPCG(3, 4))
	env.PerturbProb, env.FlickerProb = 0, 0
	if ext, load, kind := env.Perturb(25, 40, r); kind != PerturbNone || ext != 25 || load != 40 {
		t.Fatalf("no perturbation expected, got %v %v %q", ext, load, kind)
	}
	env.FlickerProb = 1
	for i := 0; i < 50; i++ {
		ext, load, kind := env.Perturb(25, 40, r)
		if kind != PerturbLoadFlicker || ext != 25 || load < 42 || load > 46 {
			t.Fatalf("bad flicker %v/%v %q", ext, load, kind)
		}
	}
	env.PerturbProb = 1
	kinds := map[string]int{}
	for i := 0; i < 200; i++ {
		ext, load, kind := env.Perturb(25, 40, r)
		kinds[kind]++
		switch kind {
		case PerturbExternalTemp:
			if ext < 27 || ext > 30 || load != 40 {
				t.Fatalf("bad spike %v/%v", ext, load)
			}
		case PerturbThermalLoad:
			if load < 48 || load > 56 || ext != 25 {
				t.Fatalf("bad surge %v/%v", ext, load)
			}
		default:
			t.Fatalf("unexpected kind %q", kind)
		}
	}
	if kinds[PerturbExternalTemp] == 0 || kinds[PerturbThermalLoad] == 0 {
		t.Fatalf("both perturbation kinds should occur: %v", kinds)
	}
}

func TestComputeStatistics(t *testing.T) {
	steps := []StepResult{
		{NewTemp: 20, Error: -1, ControlOutput: 10},
		{NewTemp: 22, Error: 2, ControlOutput: 30, Perturbation: PerturbThermalLoad},
		{NewTemp: 24, Error: -3, ControlOutput: 50},
	}
	st := ComputeStatistics(steps)
	want := Statistics{
		TempMean: 22, TempMin: 20, TempMax: 24,
		ErrorMean: 2, ErrorMax: 3,
		ControlMean: 30, ControlMin: 10, ControlMax: 50,
		TotalSteps: 3, Perturbations: 1,
	}
	gotStd, gotCtlStd := st.TempStd, st.ControlStd
	st.TempStd, st.ControlStd = 0, 0
	if st != want {
		t.Fatalf("stats = %+v, want %+v", st, want)
	}
	if math.Abs(gotStd-math.Sqrt(8.0/3)) > 1e-9 || math.Abs(gotCtlStd-math.Sqrt(800.0/3)) > 1e-9 {
		t.Fatalf("std = %v / %v", gotStd, gotCtlStd)
	}
	if empty := ComputeStatistics(nil); empty != (Statistics{}) {
		t.Fatalf("empty series must give zero stats, got %+v", empty)
	}
}

func TestWriteCSV(t *testing.T) {
	run, err := New(&constEngine{out: 20}).Run(context.Background(), Params{Setpoint: 22, InitialTemp: 22, Seed: seed(11), Start: testStart})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, run.Steps); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(rows) != Steps+1 {
		t.Fatalf("expected %d rows, got %d", Steps+1, len(rows))
	}
	if rows[0][0] != "minute" || rows[1][1] != "2024-03-01T00:00:00Z" || rows[Steps][0] != "1439" {
		t.Fatalf("unexpected csv content: %v / %v", rows[0], rows[1])
	}
}
