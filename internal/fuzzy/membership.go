// v0
// internal/fuzzy/membership.go
package fuzzy

import (
	"errors"
	"fmt"
	"math"
)

// Shape identifies the membership function family of a FuzzySet.
type Shape int

const (
	ShapeTriangular Shape = iota
	ShapeTrapezoidal
)

func (s Shape) String() string {
	switch s {
	case ShapeTriangular:
		return "triangular"
	case ShapeTrapezoidal:
		return "trapezoidal"
	default:
		return fmt.Sprintf("shape(%d)", int(s))
	}
}

var ErrInvalidSet = errors.New("invalid fuzzy set")

// Triangular is 0 outside [a,c], rises linearly to 1 at b and falls back to 0 at c.
// A zero-width ramp (a == b or b == c) is a step, so the peak stays at 1.
func Triangular(x, a, b, c float64) float64 {
	if x < a || x > c {
		return 0
	}
	if x == b {
		return 1
	}
	if x < b {
		return (x - a) / (b - a)
	}
	return (c - x) / (c - b)
}

// Trapezoidal is 1 on the plateau [b,c] with linear ramps on [a,b] and [c,d].
// Boundary sets use a == b or c == d to saturate at the domain edge.
func Trapezoidal(x, a, b, c, d float64) float64 {
	if x < a || x > d {
		return 0
	}
	if x >= b && x <= c {
		return 1
	}
	if x < b {
		return (x - a) / (b - a)
	}
	return (d - x) / (d - c)
}

// FuzzySet is a labelled membership function. The zero value is not usable;
// build sets with Tri or Trap.
type FuzzySet struct {
	label  string
	shape  Shape
	params [4]float64
}

// Tri builds a triangular set with feet a, c and peak b.
func Tri(label string, a, b, c float64) FuzzySet {
	return FuzzySet{label: label, shape: ShapeTriangular, params: [4]float64{a, b, c, c}}
}

// Trap builds a trapezoidal set with feet a, d and plateau [b,c].
func Trap(label string, a, b, c, d float64) FuzzySet {
	return FuzzySet{label: label, shape: ShapeTrapezoidal, params: [4]float64{a, b, c, d}}
}

func (s FuzzySet) Label() string { return s.label }
func (s FuzzySet) Shape() Shape  { return s.shape }

// Params returns the shape parameters: three for a triangle, four for a trapezoid.
func (s FuzzySet) Params() []float64 {
	if s.shape == ShapeTriangular {
		return []float64{s.params[0], s.params[1], s.params[2]}
	}
	return []float64{s.params[0], s.params[1], s.params[2], s.params[3]}
}

// Degree evaluates the membership of x, always in [0,1].
func (s FuzzySet) Degree(x float64) float64 {
	var v float64
	p := s.params
	if s.shape == ShapeTriangular {
		v = Triangular(x, p[0], p[1], p[2])
	} else {
		v = Trapezoidal(x, p[0], p[1], p[2], p[3])
	}
	return clamp01(v)
}

// Centroid returns the centre of area of the unclipped set. Zero-area sets
// report their peak.
func (s FuzzySet) Centroid() float64 {
	a, b, c, d := s.params[0], s.params[1], s.params[2], s.params[3]
	if s.shape == ShapeTriangular {
		c, d = b, s.params[2]
	}
	left := (b - a) / 2
	core := c - b
	right := (d - c) / 2
	area := left + core + right
	if area <= 0 {
		return b
	}
	moment := left*(a+2*b)/3 + core*(b+c)/2 + right*(2*c+d)/3
	return moment / area
}

// support reports the closed interval where the set is non-zero.
func (s FuzzySet) support() (float64, float64) {
	if s.shape == ShapeTriangular {
		return s.params[0], s.params[2]
	}
	return s.params[0], s.params[3]
}

func (s FuzzySet) validate() error {
	if s.label == "" {
		return fmt.Errorf("%w: empty label", ErrInvalidSet)
	}
	ps := s.Params()
	for i, p := range ps {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return fmt.Errorf("%w: %s has non-finite parameter", ErrInvalidSet, s.label)
		}
		if i > 0 && p < ps[i-1] {
			return fmt.Errorf("%w: %s parameters %v are not ordered", ErrInvalidSet, s.label, ps)
		}
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
