// v0
// internal/simulation/export.go
package simulation

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

var csvHeader = []string{
	"minute", "timestamp", "current_temp", "new_temp", "setpoint", "external_temp",
	"thermal_load", "control_output", "error", "delta_error", "activated_rules", "perturbation",
}

// WriteCSV writes one header row and one row per step.
func WriteCSV(w io.Writer, steps []StepResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }
	for _, s := range steps {
		row := []string{
			strconv.Itoa(s.Minute),
			s.Timestamp.Format(time.RFC3339),
			f(s.CurrentTemp), f(s.NewTemp), f(s.Setpoint), f(s.ExternalTemp),
			f(s.ThermalLoad), f(s.ControlOutput), f(s.Error), f(s.DeltaError),
			strconv.Itoa(s.ActivatedRules),
			s.Perturbation,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %d: %w", s.Minute, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
