// v0
// internal/fuzzy/variables.go
package fuzzy

import (
	"errors"
	"fmt"
	"math"
)

// Canonical labels. Signed variables use the seven-step ladder NG..PG,
// magnitude variables the five-step scale MB..MA.
const (
	LabelNG = "NG"
	LabelNM = "NM"
	LabelNP = "NP"
	LabelZ  = "Z"
	LabelPP = "PP"
	LabelPM = "PM"
	LabelPG = "PG"

	LabelMB = "MB"
	LabelB  = "B"
	LabelM  = "M"
	LabelA  = "A"
	LabelMA = "MA"
)

// Variable names as exposed on the HTTP surface.
const (
	VarError        = "error"
	VarDeltaError   = "delta_error"
	VarExternalTemp = "external_temp"
	VarThermalLoad  = "thermal_load"
	VarCRACPower    = "crac_power"
)

// DefaultCurvePoints is the sampling used by the membership view.
const DefaultCurvePoints = 200

var ErrCoverageGap = errors.New("variable domain not covered by its sets")

// Degrees maps a label to its membership degree.
type Degrees map[string]float64

// Variable is a linguistic variable: a crisp domain partitioned by ordered
// fuzzy sets. It is immutable once built.
type Variable struct {
	name   string
	min    float64
	max    float64
	sets   []FuzzySet
	labels map[string]int
}

// NewVariable validates the sets and checks that every point of [min,max]
// belongs to at least one of them.
func NewVariable(name string, min, max float64, sets ...FuzzySet) (*Variable, error) {
	if name == "" {
		return nil, errors.New("variable name required")
	}
	if !(min < max) {
		return nil, fmt.Errorf("variable %s: empty domain [%g,%g]", name, min, max)
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("variable %s: no sets", name)
	}
	v := &Variable{name: name, min: min, max: max, sets: append([]FuzzySet(nil), sets...), labels: map[string]int{}}
	for i, s := range v.sets {
		if err := s.validate(); err != nil {
			return nil, fmt.Errorf("variable %s: %w", name, err)
		}
		if _, dup := v.labels[s.label]; dup {
			return nil, fmt.Errorf("variable %s: %w: duplicate label %s", name, ErrInvalidSet, s.label)
		}
		v.labels[s.label] = i
	}
	if err := v.checkCoverage(); err != nil {
		return nil, err
	}
	return v, nil
}

// checkCoverage walks the union of set supports from min to max; any open gap
// means some crisp value would fuzzify to all zeros.
func (v *Variable) checkCoverage() error {
	reach := v.min
	covered := false
	for progress := true; progress && reach < v.max; {
		progress = false
		for _, s := range v.sets {
			lo, hi := s.support()
			// a foot touching reach has degree 0 there, so only strict overlap extends coverage
			inside := lo < reach || (lo == reach && s.Degree(reach) > 0)
			if inside && hi > reach {
				reach = hi
				progress = true
				covered = true
			}
		}
	}
	if !covered || reach < v.max {
		return fmt.Errorf("%w: %s uncovered from %g", ErrCoverageGap, v.name, reach)
	}
	if v.Fuzzify(v.max).total() == 0 {
		return fmt.Errorf("%w: %s uncovered at %g", ErrCoverageGap, v.name, v.max)
	}
	return nil
}

func (v *Variable) Name() string               { return v.name }
func (v *Variable) Domain() (float64, float64) { return v.min, v.max }
func (v *Variable) Len() int                   { return len(v.sets) }
func (v *Variable) Sets() []FuzzySet           { return append([]FuzzySet(nil), v.sets...) }
func (v *Variable) Midpoint() float64          { return (v.min + v.max) / 2 }

// Index returns the position of label in the canonical order.
func (v *Variable) Index(label string) (int, bool) {
	i, ok := v.labels[label]
	return i, ok
}

// Labels returns the canonical label order.
func (v *Variable) Labels() []string {
	out := make([]string, len(v.sets))
	for i, s := range v.sets {
		out[i] = s.label
	}
	return out
}

// Clamp pins x to the domain and reports whether it had to move.
func (v *Variable) Clamp(x float64) (float64, bool) {
	switch {
	case x < v.min:
		return v.min, true
	case x > v.max:
		return v.max, true
	}
	return x, false
}

// Fuzzify returns the degree of every label for x, after clamping x to the domain.
func (v *Variable) Fuzzify(x float64) Degrees {
	x, _ = v.Clamp(x)
	out := make(Degrees, len(v.sets))
	for _, s := range v.sets {
		out[s.label] = s.Degree(x)
	}
	return out
}

// degrees is the index-aligned form of Fuzzify used by the engine.
func (v *Variable) degrees(x float64, dst []float64) []float64 {
	x, _ = v.Clamp(x)
	dst = dst[:0]
	for _, s := range v.sets {
		dst = append(dst, s.Degree(x))
	}
	return dst
}

// Curves holds a sampled plot of every set of a variable.
type Curves struct {
	Variable  string               `json:"variable" yaml:"variable"`
	Min       float64              `json:"min" yaml:"min"`
	Max       float64              `json:"max" yaml:"max"`
	Labels    []string             `json:"labels" yaml:"labels"`
	X         []float64            `json:"x" yaml:"x"`
	Series    map[string][]float64 `json:"series" yaml:"series"`
	Centroids map[string]float64   `json:"centroids" yaml:"centroids"`
}

// Curves samples the variable at points evenly spaced values including both
// domain ends. points below 2 falls back to DefaultCurvePoints.
func (v *Variable) Curves(points int) Curves {
	if points < 2 {
		points = DefaultCurvePoints
	}
	c := Curves{
		Variable:  v.name,
		Min:       v.min,
		Max:       v.max,
		Labels:    v.Labels(),
		X:         make([]float64, points),
		Series:    make(map[string][]float64, len(v.sets)),
		Centroids: make(map[string]float64, len(v.sets)),
	}
	step := (v.max - v.min) / float64(points-1)
	for i := range c.X {
		c.X[i] = v.min + float64(i)*step
	}
	c.X[points-1] = v.max
	for _, s := range v.sets {
		ys := make([]float64, points)
		for i, x := range c.X {
			ys[i] = s.Degree(x)
		}
		c.Series[s.label] = ys
		c.Centroids[s.label] = s.Centroid()
	}
	return c
}

func (d Degrees) total() float64 {
	var t float64
	for _, v := range d {
		t += v
	}
	return t
}

// Max returns the label with the highest degree; ties go to the first in order.
func (d Degrees) Max(order []string) (string, float64) {
	best, bestV := "", math.Inf(-1)
	for _, l := range order {
		if v := d[l]; v > bestV {
			best, bestV = l, v
		}
	}
	return best, bestV
}

// Variables bundles the four inputs and the output of the controller.
type Variables struct {
	Error        *Variable
	DeltaError   *Variable
	ExternalTemp *Variable
	ThermalLoad  *Variable
	Output       *Variable
}

// Inputs returns the antecedent variables in rule order.
func (vs Variables) Inputs() []*Variable {
	return []*Variable{vs.Error, vs.DeltaError, vs.ExternalTemp, vs.ThermalLoad}
}

// All returns inputs followed by the output.
func (vs Variables) All() []*Variable {
	return append(vs.Inputs(), vs.Output)
}

// Lookup finds a variable by name.
func (vs Variables) Lookup(name string) (*Variable, bool) {
	for _, v := range vs.All() {
		if v != nil && v.name == name {
			return v, true
		}
	}
	return nil, false
}

// signedSets partitions [-10,10] into seven labels. Ramps are half a unit
// wide and sit just inside each plateau end, so every point has one label at
// degree 1 and at most two labels are active.
func signedSets() []FuzzySet {
	return []FuzzySet{
		Trap(LabelNG, -10, -10, -5.5, -5),
		Trap(LabelNM, -6, -5.5, -2.5, -2),
		Trap(LabelNP, -3, -2.5, -0.5, 0),
		Trap(LabelZ, -1, -0.5, 0.5, 1),
		Trap(LabelPP, 0, 0.5, 2.5, 3),
		Trap(LabelPM, 2, 2.5, 5.5, 6),
		Trap(LabelPG, 5, 5.5, 10, 10),
	}
}

// StandardVariables builds the controller's fixed partitions.
func StandardVariables() (Variables, error) {
	var vs Variables
	var err error
	if vs.Error, err = NewVariable(VarError, -10, 10, signedSets()...); err != nil {
		return Variables{}, err
	}
	if vs.DeltaError, err = NewVariable(VarDeltaError, -10, 10, signedSets()...); err != nil {
		return Variables{}, err
	}
	vs.ExternalTemp, err = NewVariable(VarExternalTemp, 18, 32,
		Trap(LabelMB, 18, 18, 20, 22),
		Tri(LabelB, 20, 22, 24),
		Tri(LabelM, 23, 25, 27),
		Tri(LabelA, 25, 27, 29),
		Trap(LabelMA, 27, 29, 32, 32),
	)
	if err != nil {
		return Variables{}, err
	}
	vs.ThermalLoad, err = NewVariable(VarThermalLoad, 0, 80,
		Trap(LabelMB, 0, 0, 10, 20),
		Tri(LabelB, 15, 25, 35),
		Tri(LabelM, 30, 40, 50),
		Tri(LabelA, 45, 55, 65),
		Trap(LabelMA, 60, 70, 80, 80),
	)
	if err != nil {
		return Variables{}, err
	}
	vs.Output, err = NewVariable(VarCRACPower, 0, 100,
		// 20-wide plateaus tile the domain; ramps only reach under a
		// neighbour's plateau, so clipped labels add up without overlap
		Trap(LabelMB, 0, 0, 20, 25),
		Trap(LabelB, 15, 20, 40, 45),
		Trap(LabelM, 40, 40, 60, 60),
		Trap(LabelA, 55, 60, 80, 85),
		Trap(LabelMA, 75, 80, 100, 100),
	)
	if err != nil {
		return Variables{}, err
	}
	return vs, nil
}

// MustStandardVariables panics if the built-in partitions are broken.
func MustStandardVariables() Variables {
	vs, err := StandardVariables()
	if err != nil {
		panic(err)
	}
	return vs
}
