// v0
// internal/api/handlers.go
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"nrgchamp/fuzzycrac/internal/alerts"
	"nrgchamp/fuzzycrac/internal/controller"
	"nrgchamp/fuzzycrac/internal/fuzzy"
	"nrgchamp/fuzzycrac/internal/simulation"
)

// MaxActivatedRules caps the rule trace returned by the control endpoints.
const MaxActivatedRules = 10

const (
	maxBodyBytes  = 1 << 20
	maxCurvePoint = 5000
)

type Handlers struct {
	Log        *slog.Logger
	Engine     *fuzzy.Engine
	Controller *controller.Controller
	Simulator  *simulation.Simulator
	Monitor    *alerts.Monitor
	Bus        *alerts.Bus // nil disables telemetry

	// defaults for /api/simulation
	Setpoint    float64
	InitialTemp float64

	Started time.Time
	Now     func() time.Time
}

var (
	errMissingField = errors.New("missing required field")
	errBadLimit     = errors.New("limit must be a positive integer")
	errBadPoints    = errors.New("points must be an integer between 2 and 5000")
)

func (h *Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "fuzzycrac",
		"message": "fuzzy CRAC controller for data-center cooling",
		"endpoints": map[string]string{
			"health":         "/api/health",
			"control":        "/api/control",
			"manual_control": "/api/manual-control",
			"simulation":     "/api/simulation",
			"membership":     "/api/membership",
			"rules":          "/api/rules",
			"alerts":         "/api/alerts",
			"bus_status":     "/api/bus/status",
			"metrics":        "/metrics",
		},
	})
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.Log.Debug("health check", "path", r.URL.Path)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "healthy",
		"ts":         h.now().UTC(),
		"uptime":     h.now().Sub(h.Started).Round(time.Second).String(),
		"rules":      h.Engine.RuleBase().Len(),
		"resolution": h.Engine.Resolution(),
		"bus":        h.busStatus(),
	})
}

type controlRequest struct {
	CurrentTemp  *float64 `json:"current_temp"`
	ExternalTemp *float64 `json:"external_temp"`
	ThermalLoad  *float64 `json:"thermal_load"`
	Setpoint     *float64 `json:"setpoint"`
}

type manualRequest struct {
	Error        *float64 `json:"error"`
	DeltaError   *float64 `json:"delta_error"`
	ExternalTemp *float64 `json:"external_temp"`
	ThermalLoad  *float64 `json:"thermal_load"`
}

type inferenceResponse struct {
	Power               float64               `json:"crac_power"`
	Setpoint            *float64              `json:"setpoint,omitempty"`
	Error               float64               `json:"error"`
	DeltaError          float64               `json:"delta_error"`
	ActivatedRulesCount int                   `json:"activated_rules_count"`
	ActivatedRules      []fuzzy.ActivatedRule `json:"activated_rules"`
	Fuzzification       fuzzy.Fuzzification   `json:"fuzzy_values"`
	AggregatedOutput    fuzzy.Degrees         `json:"aggregated_output"`
	Clamped             []string              `json:"clamped,omitempty"`
	Fallback            bool                  `json:"fallback"`
	Alerts              []alerts.Alert        `json:"alerts,omitempty"`
}

func newInferenceResponse(res fuzzy.Result) inferenceResponse {
	rules := res.ActivatedRules
	if len(rules) > MaxActivatedRules {
		rules = rules[:MaxActivatedRules]
	}
	return inferenceResponse{
		Power:               res.CrispOutput,
		Error:               res.Inputs.Error,
		DeltaError:          res.Inputs.DeltaError,
		ActivatedRulesCount: len(res.ActivatedRules),
		ActivatedRules:      rules,
		Fuzzification:       res.Fuzzification,
		AggregatedOutput:    res.AggregatedOutput,
		Clamped:             res.Clamped,
		Fallback:            res.Fallback,
	}
}

// Control runs one closed-loop step on the shared controller, publishes
// telemetry and evaluates the alert rules.
func (h *Handlers) Control(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if err := decode(w, r, &req); err != nil {
		h.badRequest(w, err.Error())
		return
	}
	if err := required(map[string]*float64{
		"current_temp":  req.CurrentTemp,
		"external_temp": req.ExternalTemp,
		"thermal_load":  req.ThermalLoad,
	}); err != nil {
		h.badRequest(w, err.Error())
		return
	}
	if req.Setpoint != nil {
		if err := h.Controller.SetSetpoint(*req.Setpoint); err != nil {
			h.badRequest(w, err.Error())
			return
		}
	}
	d, err := h.Controller.Compute(*req.CurrentTemp, *req.ExternalTemp, *req.ThermalLoad)
	if err != nil {
		h.inferenceError(w, err)
		return
	}

	ctx := r.Context()
	ts := h.now().UTC()
	if h.Bus != nil {
		if err := h.Bus.PublishTemperature(ctx, alerts.Temperature{Timestamp: ts, Temperature: d.CurrentTemp, Setpoint: d.Setpoint}); err != nil {
			h.Log.Warn("temperature telemetry not delivered", "err", err)
		}
		if err := h.Bus.PublishControl(ctx, alerts.Control{
			Timestamp:   ts,
			Setpoint:    d.Setpoint,
			CurrentTemp: d.CurrentTemp,
			Error:       d.Error,
			DeltaError:  d.DeltaError,
			Power:       d.Power,
		}); err != nil {
			h.Log.Warn("control telemetry not delivered", "err", err)
		}
	}
	resp := newInferenceResponse(d.Result)
	resp.Setpoint = &d.Setpoint
	if h.Monitor != nil {
		resp.Alerts = h.Monitor.Observe(ctx, alerts.Reading{Temperature: d.CurrentTemp, Setpoint: d.Setpoint, Power: d.Power})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ManualControl infers directly from error and delta error, without
// touching the controller state.
func (h *Handlers) ManualControl(w http.ResponseWriter, r *http.Request) {
	var req manualRequest
	if err := decode(w, r, &req); err != nil {
		h.badRequest(w, err.Error())
		return
	}
	if err := required(map[string]*float64{
		"error":         req.Error,
		"delta_error":   req.DeltaError,
		"external_temp": req.ExternalTemp,
		"thermal_load":  req.ThermalLoad,
	}); err != nil {
		h.badRequest(w, err.Error())
		return
	}
	res, err := h.Engine.Infer(fuzzy.Inputs{
		Error:        *req.Error,
		DeltaError:   *req.DeltaError,
		ExternalTemp: *req.ExternalTemp,
		ThermalLoad:  *req.ThermalLoad,
	})
	if err != nil {
		h.inferenceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newInferenceResponse(res))
}

type simulationRequest struct {
	Setpoint    *float64 `json:"setpoint"`
	InitialTemp *float64 `json:"initial_temp"`
	Seed        *int64   `json:"seed"`
}

type simulationResponse struct {
	*simulation.Run
	TotalIterations int `json:"total_iterations"`
}

// Simulation runs a full day. ?format=csv streams the series as CSV.
func (h *Handlers) Simulation(w http.ResponseWriter, r *http.Request) {
	req := simulationRequest{}
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			h.badRequest(w, err.Error())
			return
		}
	}
	p := simulation.Params{Setpoint: h.Setpoint, InitialTemp: h.InitialTemp, Seed: req.Seed, Start: h.now().UTC().Truncate(time.Minute)}
	if req.Setpoint != nil {
		p.Setpoint = *req.Setpoint
	}
	if req.InitialTemp != nil {
		p.InitialTemp = *req.InitialTemp
	}
	run, err := h.Simulator.Run(r.Context(), p)
	if err != nil {
		var se *simulation.StepError
		if errors.As(err, &se) && errors.Is(se, fuzzy.ErrNonFiniteInput) {
			h.badRequest(w, err.Error())
			return
		}
		h.internalError(w, "simulation failed", err)
		return
	}
	h.Log.Info("simulation served", "id", run.ID, "seed", *run.Seed, "elapsed", run.Elapsed)

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=simulation-%s.csv", run.ID))
		if err := simulation.WriteCSV(w, run.Steps); err != nil {
			h.Log.Error("csv write failed", "id", run.ID, "err", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, simulationResponse{Run: run, TotalIterations: len(run.Steps)})
}

// Membership returns sampled curves for every variable, or only for
// ?variable=name.
func (h *Handlers) Membership(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	points := fuzzy.DefaultCurvePoints
	if raw := q.Get("points"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 2 || n > maxCurvePoint {
			h.badRequest(w, errBadPoints.Error())
			return
		}
		points = n
	}
	vs := h.Engine.Variables()
	out := map[string]fuzzy.Curves{}
	if name := q.Get("variable"); name != "" {
		v, ok := vs.Lookup(name)
		if !ok {
			h.badRequest(w, fmt.Sprintf("unknown variable %q", name))
			return
		}
		out[v.Name()] = v.Curves(points)
	} else {
		for _, v := range vs.All() {
			out[v.Name()] = v.Curves(points)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// Rules returns the ordered rule base (?limit= truncates it) and the
// error x delta-error table at ?external_temp= and ?thermal_load= labels
// (M/M by default).
func (h *Handlers) Rules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rb := h.Engine.RuleBase()
	rules := rb.Rules()
	if raw := q.Get("limit"); raw != "" {
		n, err := parseLimit(raw)
		if err != nil {
			h.badRequest(w, err.Error())
			return
		}
		if n < len(rules) {
			rules = rules[:n]
		}
	}
	ext, load := q.Get("external_temp"), q.Get("thermal_load")
	if ext == "" {
		ext = fuzzy.LabelM
	}
	if load == "" {
		load = fuzzy.LabelM
	}
	table, err := rb.Table(ext, load)
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_rules": rb.Len(),
		"rules":       rules,
		"rules_table": table,
	})
}

func (h *Handlers) Alerts(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := parseLimit(raw)
		if err != nil {
			h.badRequest(w, err.Error())
			return
		}
		limit = n
	}
	var hist []alerts.Alert
	total := 0
	if h.Monitor != nil {
		hist = h.Monitor.History(limit)
		total = len(h.Monitor.History(0))
	}
	if hist == nil {
		hist = []alerts.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": hist, "total": total})
}

func (h *Handlers) BusStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.busStatus())
}

func (h *Handlers) busStatus() alerts.Status {
	if h.Bus == nil {
		return alerts.Status{SimulationMode: true, Sinks: []alerts.SinkStatus{}}
	}
	return h.Bus.Status()
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func required(fields map[string]*float64) error {
	for name, v := range fields {
		if v == nil {
			return fmt.Errorf("%w: %s", errMissingField, name)
		}
	}
	return nil
}

func parseLimit(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid limit %q: %w", raw, errBadLimit)
	}
	return n, nil
}

func (h *Handlers) inferenceError(w http.ResponseWriter, err error) {
	if errors.Is(err, fuzzy.ErrNonFiniteInput) || errors.Is(err, controller.ErrInvalidSetpoint) {
		h.badRequest(w, err.Error())
		return
	}
	h.internalError(w, "inference failed", err)
}

func (h *Handlers) badRequest(w http.ResponseWriter, msg string) {
	h.Log.Warn("bad request", "error", msg)
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func (h *Handlers) internalError(w http.ResponseWriter, msg string, err error) {
	h.Log.Error(msg, "err", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": fmt.Sprintf("%s: %v", msg, err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
