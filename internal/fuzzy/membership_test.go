// v0
// internal/fuzzy/membership_test.go
package fuzzy

import (
	"errors"
	"math"
	"testing"
)

func TestTriangular(t *testing.T) {
	cases := []struct {
		name    string
		x       float64
		a, b, c float64
		want    float64
	}{
		{"left of support", -1, 0, 1, 2, 0},
		{"left foot", 0, 0, 1, 2, 0},
		{"rising", 0.25, 0, 1, 2, 0.25},
		{"peak", 1, 0, 1, 2, 1},
		{"falling", 1.5, 0, 1, 2, 0.5},
		{"right foot", 2, 0, 1, 2, 0},
		{"degenerate left ramp", 0, 0, 0, 2, 1},
		{"degenerate right ramp", 2, 0, 2, 2, 1},
		{"single point", 3, 3, 3, 3, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Triangular(tc.x, tc.a, tc.b, tc.c)
			if math.IsNaN(got) || math.Abs(got-tc.want) > 1e-12 {
				t.Fatalf("Triangular(%v; %v,%v,%v) = %v, want %v", tc.x, tc.a, tc.b, tc.c, got, tc.want)
			}
		})
	}
}

func TestTrapezoidal(t *testing.T) {
	cases := []struct {
		name       string
		x          float64
		a, b, c, d float64
		want       float64
	}{
		{"outside", 5, 0, 1, 2, 3, 0},
		{"ramp up", 0.5, 0, 1, 2, 3, 0.5},
		{"plateau start", 1, 0, 1, 2, 3, 1},
		{"plateau end", 2, 0, 1, 2, 3, 1},
		{"ramp down", 2.75, 0, 1, 2, 3, 0.25},
		{"left shoulder at edge", -10, -10, -10, -5.5, -4, 1},
		{"right shoulder at edge", 100, 60, 80, 100, 100, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Trapezoidal(tc.x, tc.a, tc.b, tc.c, tc.d)
			if math.IsNaN(got) || math.Abs(got-tc.want) > 1e-12 {
				t.Fatalf("Trapezoidal(%v) = %v, want %v", tc.x, got, tc.want)
			}
		})
	}
}

func TestCentroid(t *testing.T) {
	cases := []struct {
		set  FuzzySet
		want float64
	}{
		{Tri(LabelM, 25, 40, 60), 125.0 / 3},
		{Tri(LabelZ, -1, 0, 1), 0},
		{Trap(LabelM, 0, 1, 2, 3), 1.5},
		{Trap(LabelMB, 0, 0, 15, 25), (15*7.5 + 5*(2*15.0+25)/3) / 20},
		{Tri(LabelZ, 3, 3, 3), 3},
	}
	for _, tc := range cases {
		if got := tc.set.Centroid(); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("%s%v centroid = %v, want %v", tc.set.Label(), tc.set.Params(), got, tc.want)
		}
	}
}

func TestNewVariableRejectsCoverageGaps(t *testing.T) {
	cases := map[string][]FuzzySet{
		"zero at domain min": {Tri("a", 0, 1, 2), Tri("b", 1, 2, 4)},
		"touching feet":      {Trap("a", 0, 0, 1, 2), Trap("b", 2, 3, 4, 4)},
		"short of max":       {Trap("a", 0, 0, 1, 3)},
	}
	for name, sets := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewVariable("x", 0, 4, sets...)
			if !errors.Is(err, ErrCoverageGap) {
				t.Fatalf("expected ErrCoverageGap, got %v", err)
			}
		})
	}
}

func TestNewVariableRejectsBadSets(t *testing.T) {
	if _, err := NewVariable("x", 0, 4, Tri("a", 0, 3, 1)); !errors.Is(err, ErrInvalidSet) {
		t.Fatalf("expected ErrInvalidSet for unordered params, got %v", err)
	}
	if _, err := NewVariable("x", 0, 4, Trap("a", 0, 0, 4, 4), Trap("a", 0, 0, 4, 4)); !errors.Is(err, ErrInvalidSet) {
		t.Fatalf("expected ErrInvalidSet for duplicate label, got %v", err)
	}
	if _, err := NewVariable("x", 4, 4, Trap("a", 0, 0, 4, 4)); err == nil {
		t.Fatalf("expected error for empty domain")
	}
}

func TestBoundaryLabelsSaturate(t *testing.T) {
	vs := MustStandardVariables()
	for _, v := range vs.All() {
		lo, hi := v.Domain()
		labels := v.Labels()
		for _, tc := range []struct {
			x     float64
			label string
		}{{lo, labels[0]}, {hi, labels[len(labels)-1]}} {
			d := v.Fuzzify(tc.x)
			for l, deg := range d {
				want := 0.0
				if l == tc.label {
					want = 1
				}
				if deg != want {
					t.Fatalf("%s at %v: %s=%v, want %v", v.Name(), tc.x, l, deg, want)
				}
			}
		}
	}
}

func TestFuzzifyClampsOutsideDomain(t *testing.T) {
	vs := MustStandardVariables()
	d := vs.ExternalTemp.Fuzzify(40)
	if d[LabelMA] != 1 {
		t.Fatalf("expected MA saturated above the domain, got %v", d)
	}
	if x, clamped := vs.ExternalTemp.Clamp(40); !clamped || x != 32 {
		t.Fatalf("Clamp(40) = %v,%v", x, clamped)
	}
	if x, clamped := vs.ThermalLoad.Clamp(40); clamped || x != 40 {
		t.Fatalf("Clamp inside domain moved the value: %v,%v", x, clamped)
	}
}

func TestEveryPointHasSupport(t *testing.T) {
	vs := MustStandardVariables()
	for _, v := range vs.All() {
		lo, hi := v.Domain()
		for i := 0; i <= 2000; i++ {
			x := lo + (hi-lo)*float64(i)/2000
			var sum float64
			for _, deg := range v.Fuzzify(x) {
				if deg < 0 || deg > 1 {
					t.Fatalf("%s(%v) degree %v outside [0,1]", v.Name(), x, deg)
				}
				sum += deg
			}
			if sum == 0 {
				t.Fatalf("%s(%v) has no label", v.Name(), x)
			}
		}
	}
}

func TestCurves(t *testing.T) {
	vs := MustStandardVariables()
	c := vs.ThermalLoad.Curves(0)
	if len(c.X) != DefaultCurvePoints {
		t.Fatalf("expected %d points, got %d", DefaultCurvePoints, len(c.X))
	}
	if c.X[0] != 0 || c.X[len(c.X)-1] != 80 {
		t.Fatalf("curve must span the domain, got [%v,%v]", c.X[0], c.X[len(c.X)-1])
	}
	if len(c.Series) != 5 || len(c.Series[LabelM]) != DefaultCurvePoints {
		t.Fatalf("unexpected series shape: %d labels", len(c.Series))
	}
	if c.Series[LabelMB][0] != 1 || c.Series[LabelMA][len(c.X)-1] != 1 {
		t.Fatalf("boundary sets must saturate at the edges")
	}
	if math.Abs(c.Centroids[LabelM]-40) > 1e-9 {
		t.Fatalf("centroid of symmetric M = %v", c.Centroids[LabelM])
	}
}

func TestPartitionsAlwaysHaveFullLabel(t *testing.T) {
	vs := MustStandardVariables()
	for _, v := range []*Variable{vs.Error, vs.DeltaError, vs.Output} {
		lo, hi := v.Domain()
		for i := 0; i <= 4000; i++ {
			x := lo + (hi-lo)*float64(i)/4000
			_, top := v.Fuzzify(x).Max(v.Labels())
			active := 0
			for _, deg := range v.Fuzzify(x) {
				if deg > 0 {
					active++
				}
			}
			if top != 1 || active > 2 {
				t.Fatalf("%s(%v): max degree %v with %d active labels", v.Name(), x, top, active)
			}
		}
	}
}
