// v0
// internal/simulation/environment.go
package simulation

import (
	"math"
	"math/rand/v2"
)

// Perturbation kinds recorded on a step.
const (
	PerturbNone         = ""
	PerturbExternalTemp = "external_temp_spike"
	PerturbThermalLoad  = "thermal_load_surge"
	PerturbLoadFlicker  = "thermal_load_fluctuation"
)

// Environment generates the exogenous inputs of a run. Every random draw
// goes through the *rand.Rand handed to its methods.
type Environment struct {
	// external temperature: Mean + Amplitude*sin(2π(h-PhaseHour)/24) + noise
	ExtMean      float64
	ExtAmplitude float64
	ExtPhaseHour float64
	ExtNoise     float64
	ExtMin       float64
	ExtMax       float64

	// thermal load: diurnal base + LoadAmplitude*sin(2πh/24) + noise
	LoadAmplitude float64
	LoadNoise     float64
	LoadMin       float64
	LoadMax       float64

	// PerturbProb is the per-step chance of a shock, split evenly between
	// an external temperature spike and a thermal load surge.
	PerturbProb   float64
	ExtSpikeMin   float64
	ExtSpikeMax   float64
	LoadSurgeMin  float64
	LoadSurgeMax  float64

	// FlickerProb is the per-step chance of a mild load increase when no
	// shock happened.
	FlickerProb   float64
	FlickerMin    float64
	FlickerMax    float64
	NoiseSigmaCap float64
}

func DefaultEnvironment() Environment {
	return Environment{
		ExtMean:       25,
		ExtAmplitude:  4,
		ExtPhaseHour:  6,
		ExtNoise:      1,
		ExtMin:        18,
		ExtMax:        32,
		LoadAmplitude: 10,
		LoadNoise:     3,
		LoadMin:       0,
		LoadMax:       80,
		PerturbProb:   0.008,
		ExtSpikeMin:   2,
		ExtSpikeMax:   5,
		LoadSurgeMin:  1.2,
		LoadSurgeMax:  1.4,
		FlickerProb:   0.05,
		FlickerMin:    1.05,
		FlickerMax:    1.15,
		NoiseSigmaCap: 3,
	}
}

// HourOf maps a minute index onto the 24 h clock.
func HourOf(minute int) float64 { return float64(minute%Steps) / 60 }

// BaseLoad is the stepwise diurnal load profile in percent.
func BaseLoad(hour float64) float64 {
	switch {
	case hour < 6:
		return 30
	case hour < 8:
		return 40
	case hour < 18:
		return 50
	case hour < 22:
		return 40
	default:
		return 30
	}
}

// ExternalTemp draws the outside temperature for a minute.
func (env Environment) ExternalTemp(minute int, r *rand.Rand) float64 {
	h := HourOf(minute)
	t := env.ExtMean + env.ExtAmplitude*math.Sin(2*math.Pi*(h-env.ExtPhaseHour)/24)
	t += env.noise(env.ExtNoise, r)
	return clamp(t, env.ExtMin, env.ExtMax)
}

// ThermalLoad draws the IT heat load for a minute.
func (env Environment) ThermalLoad(minute int, r *rand.Rand) float64 {
	h := HourOf(minute)
	q := BaseLoad(h) + env.LoadAmplitude*math.Sin(2*math.Pi*h/24)
	q += env.noise(env.LoadNoise, r)
	return clamp(q, env.LoadMin, env.LoadMax)
}

// Perturb possibly applies a shock, or failing that a mild load flicker, to
// the drawn inputs. Both are applied after the clamps, so a spike may leave
// the nominal range.
func (env Environment) Perturb(ext, load float64, r *rand.Rand) (float64, float64, string) {
	if r.Float64() >= env.PerturbProb {
		if r.Float64() < env.FlickerProb {
			return ext, load * uniform(env.FlickerMin, env.FlickerMax, r), PerturbLoadFlicker
		}
		return ext, load, PerturbNone
	}
	if r.IntN(2) == 0 {
		return ext + uniform(env.ExtSpikeMin, env.ExtSpikeMax, r), load, PerturbExternalTemp
	}
	return ext, load * uniform(env.LoadSurgeMin, env.LoadSurgeMax, r), PerturbThermalLoad
}

// noise is a Gaussian draw truncated at NoiseSigmaCap standard deviations.
func (env Environment) noise(sigma float64, r *rand.Rand) float64 {
	n := r.NormFloat64()
	if c := env.NoiseSigmaCap; c > 0 {
		n = clamp(n, -c, c)
	}
	return n * sigma
}

func uniform(lo, hi float64, r *rand.Rand) float64 { return lo + (hi-lo)*r.Float64() }

func clamp(v, lo, hi float64) float64 {
	if lo >= hi {
		return v
	}
	return max(lo, min(hi, v))
}
