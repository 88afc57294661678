// v0
// internal/fuzzy/rules.go
package fuzzy

import (
	"errors"
	"fmt"
	"slices"
)

var ErrMisconfiguredRuleBase = errors.New("misconfigured rule base")

// Rule maps one antecedent label combination to an output label.
type Rule struct {
	Error        string `json:"error" yaml:"error"`
	DeltaError   string `json:"delta_error" yaml:"delta_error"`
	ExternalTemp string `json:"external_temp" yaml:"external_temp"`
	ThermalLoad  string `json:"thermal_load" yaml:"thermal_load"`
	Output       string `json:"output" yaml:"output"`
}

func (r Rule) String() string {
	return fmt.Sprintf("IF E=%s AND dE=%s AND Text=%s AND Q=%s THEN P=%s",
		r.Error, r.DeltaError, r.ExternalTemp, r.ThermalLoad, r.Output)
}

// Zones marks the label indices of a secondary input that count as low or
// high. Labels in neither zone are neutral.
type Zones struct {
	Low  []int
	High []int
}

func (z Zones) low(i int) bool  { return slices.Contains(z.Low, i) }
func (z Zones) high(i int) bool { return slices.Contains(z.High, i) }

// check rejects out-of-range indices and zones that touch: a low label next
// to a high one would let a single step swing the adjustment by two levels.
func (z Zones) check(name string, n int) error {
	for _, set := range [][]int{z.Low, z.High} {
		for _, i := range set {
			if i < 0 || i >= n {
				return fmt.Errorf("%w: %s zone index %d outside [0,%d)", ErrMisconfiguredRuleBase, name, i, n)
			}
		}
	}
	for _, lo := range z.Low {
		for _, hi := range z.High {
			if lo-hi <= 1 && hi-lo <= 1 {
				return fmt.Errorf("%w: %s low label %d and high label %d are not separated", ErrMisconfiguredRuleBase, name, lo, hi)
			}
		}
	}
	return nil
}

// Policy is the table form of the control strategy. Indices refer to label
// positions in the corresponding variable.
type Policy struct {
	// Ladder gives the base output level per error label.
	Ladder   []int
	Delta    Zones
	External Zones
	Load     Zones
}

// DefaultPolicy is the stock strategy: a non-decreasing ladder on error,
// one step up when any secondary input is high and one step down only when
// all of them are low.
func DefaultPolicy() Policy {
	return Policy{
		Ladder:   []int{0, 0, 1, 2, 3, 4, 4},
		Delta:    Zones{Low: []int{0}, High: []int{6}},
		External: Zones{Low: []int{0, 1}, High: []int{3, 4}},
		Load:     Zones{Low: []int{0, 1}, High: []int{3, 4}},
	}
}

// Adjust is the level shift for one secondary label combination: +1, 0 or -1.
// Moving any one input to a neighbouring label changes it by at most one.
func (p Policy) Adjust(d, t, l int) int {
	switch {
	case p.Delta.high(d) || p.External.high(t) || p.Load.high(l):
		return 1
	case p.Delta.low(d) && p.External.low(t) && p.Load.low(l):
		return -1
	}
	return 0
}

// RuleBase is the complete, validated rule set. It is never mutated after
// construction and is safe for concurrent readers.
type RuleBase struct {
	vars  Variables
	rules []Rule
	// compiled holds label indices: error, delta, ext, load, output.
	compiled [][5]int
	index    map[[4]int]int
}

// GenerateRules expands a policy over every antecedent combination in
// canonical order: error varies slowest, thermal load fastest.
func GenerateRules(vs Variables, p Policy) ([]Rule, error) {
	ne, nd, nt, nl := vs.Error.Len(), vs.DeltaError.Len(), vs.ExternalTemp.Len(), vs.ThermalLoad.Len()
	if len(p.Ladder) != ne {
		return nil, fmt.Errorf("%w: ladder has %d steps, want %d", ErrMisconfiguredRuleBase, len(p.Ladder), ne)
	}
	for _, z := range []struct {
		name  string
		zones Zones
		n     int
	}{{VarDeltaError, p.Delta, nd}, {VarExternalTemp, p.External, nt}, {VarThermalLoad, p.Load, nl}} {
		if err := z.zones.check(z.name, z.n); err != nil {
			return nil, err
		}
	}
	el, dl, tl, ll, ol := vs.Error.Labels(), vs.DeltaError.Labels(), vs.ExternalTemp.Labels(), vs.ThermalLoad.Labels(), vs.Output.Labels()
	top := len(ol) - 1
	rules := make([]Rule, 0, ne*nd*nt*nl)
	for e := 0; e < ne; e++ {
		for d := 0; d < nd; d++ {
			for t := 0; t < nt; t++ {
				for l := 0; l < nl; l++ {
					level := p.Ladder[e] + p.Adjust(d, t, l)
					level = max(0, min(top, level))
					rules = append(rules, Rule{
						Error:        el[e],
						DeltaError:   dl[d],
						ExternalTemp: tl[t],
						ThermalLoad:  ll[l],
						Output:       ol[level],
					})
				}
			}
		}
	}
	return rules, nil
}

// NewRuleBase validates rules against vs and compiles them.
func NewRuleBase(vs Variables, rules []Rule) (*RuleBase, error) {
	for _, v := range vs.All() {
		if v == nil {
			return nil, fmt.Errorf("%w: missing variable", ErrMisconfiguredRuleBase)
		}
	}
	rules = append([]Rule(nil), rules...)
	compiled, index, err := compile(vs, rules)
	if err != nil {
		return nil, err
	}
	return &RuleBase{vars: vs, rules: rules, compiled: compiled, index: index}, nil
}

// DefaultRuleBase builds the stock 7x7x5x5 rule base.
func DefaultRuleBase(vs Variables) (*RuleBase, error) {
	rules, err := GenerateRules(vs, DefaultPolicy())
	if err != nil {
		return nil, err
	}
	return NewRuleBase(vs, rules)
}

// Validate re-checks cardinality, label validity, uniqueness and
// monotonicity of the output in the error label.
func (rb *RuleBase) Validate() error {
	_, _, err := compile(rb.vars, rb.rules)
	return err
}

func compile(vs Variables, rules []Rule) ([][5]int, map[[4]int]int, error) {
	want := vs.Error.Len() * vs.DeltaError.Len() * vs.ExternalTemp.Len() * vs.ThermalLoad.Len()
	if len(rules) != want {
		return nil, nil, fmt.Errorf("%w: %d rules, want %d", ErrMisconfiguredRuleBase, len(rules), want)
	}
	compiled := make([][5]int, len(rules))
	index := make(map[[4]int]int, len(rules))
	for i, r := range rules {
		var c [5]int
		for j, pair := range []struct {
			v     *Variable
			label string
		}{{vs.Error, r.Error}, {vs.DeltaError, r.DeltaError}, {vs.ExternalTemp, r.ExternalTemp}, {vs.ThermalLoad, r.ThermalLoad}, {vs.Output, r.Output}} {
			idx, ok := pair.v.Index(pair.label)
			if !ok {
				return nil, nil, fmt.Errorf("%w: rule %d: unknown %s label %q", ErrMisconfiguredRuleBase, i, pair.v.Name(), pair.label)
			}
			c[j] = idx
		}
		key := [4]int{c[0], c[1], c[2], c[3]}
		if prev, dup := index[key]; dup {
			return nil, nil, fmt.Errorf("%w: rules %d and %d share antecedents %s/%s/%s/%s", ErrMisconfiguredRuleBase,
				prev, i, r.Error, r.DeltaError, r.ExternalTemp, r.ThermalLoad)
		}
		index[key] = i
		compiled[i] = c
	}
	// count matches and no duplicates, so every combination is present
	for d := 0; d < vs.DeltaError.Len(); d++ {
		for t := 0; t < vs.ExternalTemp.Len(); t++ {
			for l := 0; l < vs.ThermalLoad.Len(); l++ {
				prev := -1
				for e := 0; e < vs.Error.Len(); e++ {
					i := index[[4]int{e, d, t, l}]
					if compiled[i][4] < prev {
						return nil, nil, fmt.Errorf("%w: output not monotone in error at %s", ErrMisconfiguredRuleBase, rules[i])
					}
					prev = compiled[i][4]
				}
			}
		}
	}
	return compiled, index, nil
}

func (rb *RuleBase) Len() int             { return len(rb.rules) }
func (rb *RuleBase) Variables() Variables { return rb.vars }

// Rules returns a copy of the ordered rule list.
func (rb *RuleBase) Rules() []Rule { return append([]Rule(nil), rb.rules...) }

// Lookup returns the rule for an antecedent label combination.
func (rb *RuleBase) Lookup(e, de, t, l string) (Rule, bool) {
	vs := rb.vars
	ei, ok1 := vs.Error.Index(e)
	di, ok2 := vs.DeltaError.Index(de)
	ti, ok3 := vs.ExternalTemp.Index(t)
	li, ok4 := vs.ThermalLoad.Index(l)
	if !(ok1 && ok2 && ok3 && ok4) {
		return Rule{}, false
	}
	i, ok := rb.index[[4]int{ei, di, ti, li}]
	if !ok {
		return Rule{}, false
	}
	return rb.rules[i], true
}

// Table is the error x delta-error slice of the rule base for one
// environment condition.
type Table struct {
	ExternalTemp string     `json:"external_temp" yaml:"external_temp"`
	ThermalLoad  string     `json:"thermal_load" yaml:"thermal_load"`
	Errors       []string   `json:"errors" yaml:"errors"`
	DeltaErrors  []string   `json:"delta_errors" yaml:"delta_errors"`
	Outputs      [][]string `json:"outputs" yaml:"outputs"`
}

// Table slices the rule base at a fixed external temperature and thermal load label.
func (rb *RuleBase) Table(externalTemp, thermalLoad string) (Table, error) {
	vs := rb.vars
	if _, ok := vs.ExternalTemp.Index(externalTemp); !ok {
		return Table{}, fmt.Errorf("unknown %s label %q", VarExternalTemp, externalTemp)
	}
	if _, ok := vs.ThermalLoad.Index(thermalLoad); !ok {
		return Table{}, fmt.Errorf("unknown %s label %q", VarThermalLoad, thermalLoad)
	}
	tb := Table{
		ExternalTemp: externalTemp,
		ThermalLoad:  thermalLoad,
		Errors:       vs.Error.Labels(),
		DeltaErrors:  vs.DeltaError.Labels(),
	}
	for _, e := range tb.Errors {
		row := make([]string, 0, len(tb.DeltaErrors))
		for _, de := range tb.DeltaErrors {
			r, _ := rb.Lookup(e, de, externalTemp, thermalLoad)
			row = append(row, r.Output)
		}
		tb.Outputs = append(tb.Outputs, row)
	}
	return tb, nil
}
