// v0
// internal/thermal/model.go
package thermal

// Model is a first-order affine room model advanced in one-minute steps:
//
//	next = Inertia*T - Cooling*P + Load*Q + Ambient*Text + Offset
//
// with T the room temperature (°C), P the cooling power (%), Q the thermal
// load (%) and Text the outside temperature (°C).
type Model struct {
	Inertia float64
	Cooling float64
	Load    float64
	Ambient float64
	Offset  float64

	// MinTemp and MaxTemp bound the result when MinTemp < MaxTemp.
	// The zero value leaves the recurrence unbounded.
	MinTemp float64
	MaxTemp float64
}

// DefaultModel returns the reference coefficients with no clamp: the
// reference recurrence is an unbounded affine map.
func DefaultModel() Model {
	return Model{
		Inertia: 0.9,
		Cooling: 0.08,
		Load:    0.05,
		Ambient: 0.02,
		Offset:  3.5,
	}
}

// Bounded reports whether the clamp is active.
func (m Model) Bounded() bool { return m.MinTemp < m.MaxTemp }

// Next advances the room temperature by one step. It is a pure function of
// its arguments.
func (m Model) Next(current, control, load, external float64) float64 {
	next := m.Inertia*current - m.Cooling*control + m.Load*load + m.Ambient*external + m.Offset
	if m.Bounded() {
		next = max(m.MinTemp, min(m.MaxTemp, next))
	}
	return next
}

// NextTemp applies DefaultModel.
func NextTemp(current, control, load, external float64) float64 {
	return DefaultModel().Next(current, control, load, external)
}

// Equilibrium returns the temperature at which Next leaves T unchanged for
// constant inputs, ignoring the clamp. ok is false when Inertia is 1.
func (m Model) Equilibrium(control, load, external float64) (t float64, ok bool) {
	if m.Inertia == 1 {
		return 0, false
	}
	return (-m.Cooling*control + m.Load*load + m.Ambient*external + m.Offset) / (1 - m.Inertia), true
}
