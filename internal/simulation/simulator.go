// v0
// internal/simulation/simulator.go
package simulation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"nrgchamp/fuzzycrac/internal/fuzzy"
	"nrgchamp/fuzzycrac/internal/thermal"
)

// Steps is the length of a run: 24 h at one step per minute.
const Steps = 1440

const seedMix = 0x9e3779b97f4a7c15

// Inferer is the part of the fuzzy engine the simulator needs.
type Inferer interface {
	Infer(fuzzy.Inputs) (fuzzy.Result, error)
}

// StepResult is one minute of a run.
type StepResult struct {
	Minute         int       `json:"minute" yaml:"minute"`
	Timestamp      time.Time `json:"timestamp" yaml:"timestamp"`
	CurrentTemp    float64   `json:"current_temp" yaml:"current_temp"`
	NewTemp        float64   `json:"new_temp" yaml:"new_temp"`
	Setpoint       float64   `json:"setpoint" yaml:"setpoint"`
	ExternalTemp   float64   `json:"external_temp" yaml:"external_temp"`
	ThermalLoad    float64   `json:"thermal_load" yaml:"thermal_load"`
	ControlOutput  float64   `json:"control_output" yaml:"control_output"`
	Error          float64   `json:"error" yaml:"error"`
	DeltaError     float64   `json:"delta_error" yaml:"delta_error"`
	ActivatedRules int       `json:"activated_rules" yaml:"activated_rules"`
	Perturbation   string    `json:"perturbation,omitempty" yaml:"perturbation,omitempty"`
}

// Params configures one run.
type Params struct {
	Setpoint    float64
	InitialTemp float64
	// Seed makes the run reproducible. Nil draws a fresh seed, which is
	// reported back on the Run.
	Seed *int64
	// Rand overrides Seed when set.
	Rand *rand.Rand
	// Start stamps minute 0; later steps add one minute each.
	Start time.Time
}

// Run is a completed simulation.
type Run struct {
	ID          string       `json:"id" yaml:"id"`
	Seed        *int64       `json:"seed,omitempty" yaml:"seed,omitempty"`
	Setpoint    float64      `json:"setpoint" yaml:"setpoint"`
	InitialTemp float64      `json:"initial_temp" yaml:"initial_temp"`
	Steps       []StepResult `json:"steps" yaml:"steps"`
	Statistics  Statistics   `json:"statistics" yaml:"statistics"`
	Elapsed     string       `json:"elapsed" yaml:"elapsed"`
}

// StepError aborts a run. No partial series is returned alongside it.
type StepError struct {
	Minute int
	Inputs fuzzy.Inputs
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("simulation step %d (error=%.3f dE=%.3f Text=%.2f Q=%.2f): %v",
		e.Minute, e.Inputs.Error, e.Inputs.DeltaError, e.Inputs.ExternalTemp, e.Inputs.ThermalLoad, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// RunObserver is notified once per finished or failed run.
type RunObserver interface {
	ObserveRun(elapsed time.Duration, steps int, err error)
}

type Option func(*Simulator)

func WithModel(m thermal.Model) Option       { return func(s *Simulator) { s.model = m } }
func WithEnvironment(env Environment) Option { return func(s *Simulator) { s.env = env } }
func WithLogger(l *slog.Logger) Option       { return func(s *Simulator) { s.log = l } }
func WithRunObserver(o RunObserver) Option   { return func(s *Simulator) { s.runObs = o } }

// WithStepObserver registers fn to receive every step as it completes.
func WithStepObserver(fn func(StepResult)) Option {
	return func(s *Simulator) { s.stepObs = append(s.stepObs, fn) }
}

// Simulator closes the loop between the fuzzy engine and the thermal model.
// It holds no per-run state and may run concurrently.
type Simulator struct {
	engine  Inferer
	model   thermal.Model
	env     Environment
	log     *slog.Logger
	runObs  RunObserver
	stepObs []func(StepResult)
}

func New(engine Inferer, opts ...Option) *Simulator {
	s := &Simulator{
		engine: engine,
		model:  thermal.DefaultModel(),
		env:    DefaultEnvironment(),
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Simulator) Model() thermal.Model     { return s.model }
func (s *Simulator) Environment() Environment { return s.env }

// Run simulates Steps minutes. ctx is checked between steps.
func (s *Simulator) Run(ctx context.Context, p Params) (*Run, error) {
	start := time.Now()
	r, seed := p.Rand, p.Seed
	if r == nil {
		if seed == nil {
			v := rand.Int64()
			seed = &v
		}
		r = rand.New(rand.NewPCG(uint64(*seed), uint64(*seed)^seedMix))
	}
	run := &Run{
		ID:          uuid.NewString(),
		Seed:        seed,
		Setpoint:    p.Setpoint,
		InitialTemp: p.InitialTemp,
	}
	s.log.Info("simulation started", "run", run.ID, "setpoint", p.Setpoint, "initial", p.InitialTemp, "seeded", p.Seed != nil)

	steps, err := s.loop(ctx, p, r)
	elapsed := time.Since(start)
	if s.runObs != nil {
		s.runObs.ObserveRun(elapsed, len(steps), err)
	}
	if err != nil {
		s.log.Error("simulation aborted", "run", run.ID, "err", err)
		return nil, err
	}
	run.Steps = steps
	run.Statistics = ComputeStatistics(steps)
	run.Elapsed = elapsed.String()
	s.log.Info("simulation finished", "run", run.ID, "elapsed", elapsed.String(),
		"tempMean", run.Statistics.TempMean, "controlMean", run.Statistics.ControlMean,
		"perturbations", run.Statistics.Perturbations)
	return run, nil
}

func (s *Simulator) loop(ctx context.Context, p Params, r *rand.Rand) ([]StepResult, error) {
	steps := make([]StepResult, 0, Steps)
	current := p.InitialTemp
	prevErr := 0.0
	for i := 0; i < Steps; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("simulation stopped at minute %d: %w", i, err)
		}
		ext := s.env.ExternalTemp(i, r)
		load := s.env.ThermalLoad(i, r)
		ext, load, kind := s.env.Perturb(ext, load, r)

		e := p.Setpoint - current
		in := fuzzy.Inputs{Error: e, DeltaError: e - prevErr, ExternalTemp: ext, ThermalLoad: load}
		res, err := s.engine.Infer(in)
		if err != nil {
			return nil, &StepError{Minute: i, Inputs: in, Err: err}
		}
		next := s.model.Next(current, res.CrispOutput, load, ext)

		step := StepResult{
			Minute:         i,
			Timestamp:      p.Start.Add(time.Duration(i) * time.Minute),
			CurrentTemp:    current,
			NewTemp:        next,
			Setpoint:       p.Setpoint,
			ExternalTemp:   ext,
			ThermalLoad:    load,
			ControlOutput:  res.CrispOutput,
			Error:          e,
			DeltaError:     in.DeltaError,
			ActivatedRules: len(res.ActivatedRules),
			Perturbation:   kind,
		}
		if kind != PerturbNone {
			s.log.Debug("perturbation injected", "minute", i, "kind", kind, "ext", ext, "load", load)
		}
		steps = append(steps, step)
		for _, fn := range s.stepObs {
			fn(step)
		}
		current, prevErr = next, e
	}
	return steps, nil
}
