// v0
// internal/fuzzy/engine.go
package fuzzy

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// DefaultResolution is the number of output-domain samples used by the
// centroid, a 0.1% step over [0,100].
const DefaultResolution = 1001

var ErrNonFiniteInput = errors.New("non-finite input")

// Inputs are the four crisp antecedent values.
type Inputs struct {
	Error        float64 `json:"error" yaml:"error"`
	DeltaError   float64 `json:"delta_error" yaml:"delta_error"`
	ExternalTemp float64 `json:"external_temp" yaml:"external_temp"`
	ThermalLoad  float64 `json:"thermal_load" yaml:"thermal_load"`
}

func (in Inputs) values() [4]float64 {
	return [4]float64{in.Error, in.DeltaError, in.ExternalTemp, in.ThermalLoad}
}

// Fuzzification holds the label degrees of every input.
type Fuzzification struct {
	Error        Degrees `json:"error" yaml:"error"`
	DeltaError   Degrees `json:"delta_error" yaml:"delta_error"`
	ExternalTemp Degrees `json:"external_temp" yaml:"external_temp"`
	ThermalLoad  Degrees `json:"thermal_load" yaml:"thermal_load"`
}

// ActivatedRule is a rule that fired with a positive strength.
type ActivatedRule struct {
	Index    int     `json:"index" yaml:"index"`
	Rule     Rule    `json:"rule" yaml:"rule"`
	Strength float64 `json:"strength" yaml:"strength"`
}

// Result is the full trace of one inference.
type Result struct {
	Inputs           Inputs          `json:"inputs" yaml:"inputs"`
	CrispOutput      float64         `json:"crisp_output" yaml:"crisp_output"`
	Fuzzification    Fuzzification   `json:"fuzzification" yaml:"fuzzification"`
	ActivatedRules   []ActivatedRule `json:"activated_rules" yaml:"activated_rules"`
	AggregatedOutput Degrees         `json:"aggregated_output" yaml:"aggregated_output"`
	// Clamped names the inputs that were outside their domain.
	Clamped []string `json:"clamped,omitempty" yaml:"clamped,omitempty"`
	// Fallback is set when no output mass was aggregated and the domain
	// midpoint was returned.
	Fallback bool `json:"fallback" yaml:"fallback"`
}

// Observer receives one callback per inference.
type Observer interface {
	ObserveInference(elapsed time.Duration, activated int, fallback bool)
}

type Option func(*Engine)

// WithResolution sets the number of centroid samples over the output domain.
func WithResolution(n int) Option { return func(e *Engine) { e.resolution = n } }

func WithObserver(o Observer) Option { return func(e *Engine) { e.obs = o } }

// Engine is a Mamdani max-min inference engine with centroid defuzzification.
// All state is fixed at construction; Infer is safe for concurrent use.
type Engine struct {
	rb         *RuleBase
	vars       Variables
	resolution int
	xs         []float64
	// curves[label][i] is the output membership at xs[i]
	curves [][]float64
	obs    Observer
}

// NewEngine validates rb and precomputes the output sampling grid.
func NewEngine(rb *RuleBase, opts ...Option) (*Engine, error) {
	if rb == nil {
		return nil, fmt.Errorf("%w: nil rule base", ErrMisconfiguredRuleBase)
	}
	if err := rb.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{rb: rb, vars: rb.vars, resolution: DefaultResolution}
	for _, o := range opts {
		o(e)
	}
	if e.resolution < 2 {
		return nil, fmt.Errorf("defuzzification resolution %d must be at least 2", e.resolution)
	}
	lo, hi := e.vars.Output.Domain()
	step := (hi - lo) / float64(e.resolution-1)
	e.xs = make([]float64, e.resolution)
	for i := range e.xs {
		e.xs[i] = lo + float64(i)*step
	}
	e.xs[e.resolution-1] = hi
	for _, s := range e.vars.Output.sets {
		ys := make([]float64, e.resolution)
		for i, x := range e.xs {
			ys[i] = s.Degree(x)
		}
		e.curves = append(e.curves, ys)
	}
	return e, nil
}

// NewDefaultEngine wires the standard variables and rule base.
func NewDefaultEngine(opts ...Option) (*Engine, error) {
	vs, err := StandardVariables()
	if err != nil {
		return nil, err
	}
	rb, err := DefaultRuleBase(vs)
	if err != nil {
		return nil, err
	}
	return NewEngine(rb, opts...)
}

func (e *Engine) RuleBase() *RuleBase  { return e.rb }
func (e *Engine) Variables() Variables { return e.vars }
func (e *Engine) Resolution() int      { return e.resolution }

// Infer runs fuzzification, rule evaluation, aggregation and defuzzification.
// Out-of-domain inputs are clamped and reported; NaN and Inf are rejected.
func (e *Engine) Infer(in Inputs) (Result, error) {
	start := time.Now()
	vals := in.values()
	inputs := e.vars.Inputs()
	var degs [4][]float64
	res := Result{Inputs: in}
	for i, v := range inputs {
		x := vals[i]
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return Result{}, fmt.Errorf("%w: %s=%v", ErrNonFiniteInput, v.name, x)
		}
		if _, clamped := v.Clamp(x); clamped {
			res.Clamped = append(res.Clamped, v.name)
		}
		degs[i] = v.degrees(x, make([]float64, 0, v.Len()))
	}

	agg := make([]float64, e.vars.Output.Len())
	for i, c := range e.rb.compiled {
		s := min(degs[0][c[0]], degs[1][c[1]], degs[2][c[2]], degs[3][c[3]])
		if s <= 0 {
			continue
		}
		res.ActivatedRules = append(res.ActivatedRules, ActivatedRule{Index: i, Rule: e.rb.rules[i], Strength: s})
		if s > agg[c[4]] {
			agg[c[4]] = s
		}
	}

	res.CrispOutput, res.Fallback = e.defuzzify(agg)
	res.Fuzzification = Fuzzification{
		Error:        toDegrees(e.vars.Error, degs[0]),
		DeltaError:   toDegrees(e.vars.DeltaError, degs[1]),
		ExternalTemp: toDegrees(e.vars.ExternalTemp, degs[2]),
		ThermalLoad:  toDegrees(e.vars.ThermalLoad, degs[3]),
	}
	res.AggregatedOutput = toDegrees(e.vars.Output, agg)
	if e.obs != nil {
		e.obs.ObserveInference(time.Since(start), len(res.ActivatedRules), res.Fallback)
	}
	return res, nil
}

// Defuzzify computes the sampled centroid of an aggregated output. Unknown
// labels are ignored and degrees are clipped to [0,1]. An empty or all-zero
// aggregate yields the output domain midpoint.
func (e *Engine) Defuzzify(agg Degrees) float64 {
	levels := make([]float64, e.vars.Output.Len())
	for label, d := range agg {
		if i, ok := e.vars.Output.Index(label); ok {
			levels[i] = clamp01(d)
		}
	}
	crisp, _ := e.defuzzify(levels)
	return crisp
}

func (e *Engine) defuzzify(agg []float64) (float64, bool) {
	var num, den float64
	for i, x := range e.xs {
		var f float64
		for l, level := range agg {
			if level <= 0 {
				continue
			}
			if m := min(e.curves[l][i], level); m > f {
				f = m
			}
		}
		num += x * f
		den += f
	}
	if den == 0 {
		return e.vars.Output.Midpoint(), true
	}
	return num / den, false
}

func toDegrees(v *Variable, ds []float64) Degrees {
	out := make(Degrees, len(ds))
	for i, d := range ds {
		out[v.sets[i].label] = d
	}
	return out
}
