// v0
// internal/simulation/stats.go
package simulation

import "math"

// Statistics summarises a run. Temperatures are taken after each step.
type Statistics struct {
	TempMean      float64 `json:"temp_mean" yaml:"temp_mean"`
	TempStd       float64 `json:"temp_std" yaml:"temp_std"`
	TempMin       float64 `json:"temp_min" yaml:"temp_min"`
	TempMax       float64 `json:"temp_max" yaml:"temp_max"`
	ErrorMean     float64 `json:"error_mean" yaml:"error_mean"`
	ErrorMax      float64 `json:"error_max" yaml:"error_max"`
	ControlMean   float64 `json:"control_mean" yaml:"control_mean"`
	ControlStd    float64 `json:"control_std" yaml:"control_std"`
	ControlMin    float64 `json:"control_min" yaml:"control_min"`
	ControlMax    float64 `json:"control_max" yaml:"control_max"`
	TotalSteps    int     `json:"total_steps" yaml:"total_steps"`
	Perturbations int     `json:"perturbations" yaml:"perturbations"`
}

type summary struct {
	n          int
	sum, sumSq float64
	min, max   float64
}

func (s *summary) add(v float64) {
	if s.n == 0 || v < s.min {
		s.min = v
	}
	if s.n == 0 || v > s.max {
		s.max = v
	}
	s.n++
	s.sum += v
	s.sumSq += v * v
}

func (s *summary) mean() float64 {
	if s.n == 0 {
		return 0
	}
	return s.sum / float64(s.n)
}

// std is the population standard deviation.
func (s *summary) std() float64 {
	if s.n == 0 {
		return 0
	}
	m := s.mean()
	v := s.sumSq/float64(s.n) - m*m
	if v < 0 {
		return 0
	}
	return math.Sqrt(v)
}

// ComputeStatistics aggregates a step series. An empty series yields zeros.
func ComputeStatistics(steps []StepResult) Statistics {
	var temp, absErr, ctl summary
	st := Statistics{TotalSteps: len(steps)}
	for _, s := range steps {
		temp.add(s.NewTemp)
		absErr.add(math.Abs(s.Error))
		ctl.add(s.ControlOutput)
		if s.Perturbation != PerturbNone {
			st.Perturbations++
		}
	}
	st.TempMean, st.TempStd, st.TempMin, st.TempMax = temp.mean(), temp.std(), temp.min, temp.max
	st.ErrorMean, st.ErrorMax = absErr.mean(), absErr.max
	st.ControlMean, st.ControlStd, st.ControlMin, st.ControlMax = ctl.mean(), ctl.std(), ctl.min, ctl.max
	return st
}
