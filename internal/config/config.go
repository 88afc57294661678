// v0
// internal/config/config.go
package config

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"nrgchamp/fuzzycrac/internal/alerts"
	"nrgchamp/fuzzycrac/internal/circuitbreaker"
	"nrgchamp/fuzzycrac/internal/fuzzy"
	"nrgchamp/fuzzycrac/internal/simulation"
	"nrgchamp/fuzzycrac/internal/thermal"
)

type AppConfig struct {
	HTTPBind       string
	PropertiesPath string
	LogPath        string
	LogLevel       string
	MQTTBroker     string
	MQTTClientID   string
	KafkaBrokers   []string
	NATSURL        string
	DialTimeout    time.Duration
	LocalHistory   int

	Setpoint      float64
	InitialTemp   float64
	DefuzzSamples int
	Model         thermal.Model
	Environment   simulation.Environment
	Alerts        alerts.Thresholds
	Circuit       circuitbreaker.Config
}

// Default returns the configuration used when nothing is overridden.
func Default() *AppConfig {
	return &AppConfig{
		HTTPBind:      ":8000",
		LogPath:       "fuzzycrac.log",
		LogLevel:      "info",
		MQTTClientID:  "fuzzycrac",
		DialTimeout:   5 * time.Second,
		LocalHistory:  200,
		Setpoint:      22,
		InitialTemp:   22,
		DefuzzSamples: fuzzy.DefaultResolution,
		Model:         thermal.DefaultModel(),
		Environment:   simulation.DefaultEnvironment(),
		Alerts:        alerts.DefaultThresholds(),
		Circuit:       circuitbreaker.DefaultConfig(),
	}
}

// LoadEnvAndFiles reads the environment and, when FUZZY_PROPERTIES names a
// file, the properties in it. Bad values are logged and skipped.
func LoadEnvAndFiles(log *slog.Logger) (*AppConfig, error) {
	c := Default()
	c.HTTPBind = getenv("HTTP_BIND", c.HTTPBind)
	c.PropertiesPath = getenv("FUZZY_PROPERTIES", "")
	c.LogPath = getenv("LOG_PATH", c.LogPath)
	c.LogLevel = getenv("LOG_LEVEL", c.LogLevel)
	c.MQTTBroker = getenv("MQTT_BROKER", "")
	c.MQTTClientID = getenv("MQTT_CLIENT_ID", c.MQTTClientID)
	c.KafkaBrokers = split(getenv("KAFKA_BROKERS", ""), ",")
	c.NATSURL = getenv("NATS_URL", "")
	c.DialTimeout = time.Duration(geti("BUS_DIAL_TIMEOUT_MS", int(c.DialTimeout/time.Millisecond))) * time.Millisecond
	c.LocalHistory = geti("LOCAL_BUS_HISTORY", c.LocalHistory)
	if c.PropertiesPath == "" {
		return c, nil
	}
	if err := c.LoadProperties(c.PropertiesPath, log); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *AppConfig) LoadProperties(path string, log *slog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	props, err := ParseProperties(f)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	c.Apply(props, log)
	return nil
}

// ParseProperties reads key=value lines, skipping blanks and lines starting
// with # or //. Keys are lower-cased.
func ParseProperties(r io.Reader) (map[string]string, error) {
	out := map[string]string{}
	s := bufio.NewScanner(r)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return out, s.Err()
}

// Apply overlays props on c. Unknown keys are ignored.
func (c *AppConfig) Apply(props map[string]string, log *slog.Logger) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	p := parser{props: props, log: log}

	p.floatKey("setpoint", &c.Setpoint, finite)
	p.floatKey("initial_temp", &c.InitialTemp, finite)
	p.intKey("defuzz.samples", &c.DefuzzSamples, atLeast(2))

	p.floatKey("model.inertia", &c.Model.Inertia, finite)
	p.floatKey("model.cooling", &c.Model.Cooling, finite)
	p.floatKey("model.load", &c.Model.Load, finite)
	p.floatKey("model.ambient", &c.Model.Ambient, finite)
	p.floatKey("model.offset", &c.Model.Offset, finite)
	p.floatKey("model.min_temp", &c.Model.MinTemp, finite)
	p.floatKey("model.max_temp", &c.Model.MaxTemp, finite)

	env := &c.Environment
	p.floatKey("sim.perturb_prob", &env.PerturbProb, probability)
	p.floatKey("sim.ext_spike_min", &env.ExtSpikeMin, finite)
	p.floatKey("sim.ext_spike_max", &env.ExtSpikeMax, finite)
	p.floatKey("sim.load_surge_min", &env.LoadSurgeMin, positive)
	p.floatKey("sim.load_surge_max", &env.LoadSurgeMax, positive)
	p.floatKey("sim.fluctuation_prob", &env.FlickerProb, probability)
	p.floatKey("sim.fluctuation_min", &env.FlickerMin, positive)
	p.floatKey("sim.fluctuation_max", &env.FlickerMax, positive)

	a := &c.Alerts
	p.floatKey("alerts.deviation_critical", &a.DeviationCritical, positive)
	p.floatKey("alerts.deviation_warning", &a.DeviationWarning, positive)
	p.floatKey("alerts.absolute_low", &a.AbsoluteLow, finite)
	p.floatKey("alerts.absolute_high", &a.AbsoluteHigh, finite)
	p.floatKey("alerts.power_saturation", &a.PowerSaturation, positive)
	p.intKey("alerts.power_sustain", &a.PowerSustain, atLeast(1))
	p.intKey("alerts.oscillation_window", &a.OscillationWindow, atLeast(2))
	p.floatKey("alerts.oscillation_std", &a.OscillationStd, positive)
	p.floatKey("alerts.oscillation_amplitude", &a.OscillationSpan, positive)
	p.intKey("alerts.history_size", &a.HistorySize, atLeast(1))
	p.intKey("alerts.power_cooldown_factor", &a.PowerCooldownFactor, atLeast(1))
	var cooldown float64
	if p.floatKey("alerts.cooldown_seconds", &cooldown, func(v float64) bool { return finite(v) && v >= 0 }) {
		a.Cooldown = time.Duration(cooldown * float64(time.Second))
	}

	if cb, err := circuitbreaker.ConfigFromProperties(props); err != nil {
		log.Warn("invalid circuit breaker properties; keeping defaults", "err", err)
	} else {
		c.Circuit = cb
	}
}

type parser struct {
	props map[string]string
	log   *slog.Logger
}

func finite(v float64) bool      { return !math.IsNaN(v) && !math.IsInf(v, 0) }
func positive(v float64) bool    { return finite(v) && v > 0 }
func probability(v float64) bool { return v >= 0 && v <= 1 }
func atLeast(n int) func(int) bool {
	return func(v int) bool { return v >= n }
}

func (p parser) floatKey(key string, dst *float64, ok func(float64) bool) bool {
	raw, found := p.props[key]
	if !found {
		return false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || !ok(v) {
		p.log.Warn("invalid property; keeping default", "key", key, "value", raw, "default", *dst)
		return false
	}
	*dst = v
	return true
}

func (p parser) intKey(key string, dst *int, ok func(int) bool) {
	raw, found := p.props[key]
	if !found {
		return
	}
	v, err := strconv.Atoi(raw)
	if err != nil || !ok(v) {
		p.log.Warn("invalid property; keeping default", "key", key, "value", raw, "default", *dst)
		return
	}
	*dst = v
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
func geti(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return d
}
func split(s, sep string) []string {
	if s == "" {
		return nil
	}
	p := strings.Split(s, sep)
	out := make([]string, 0, len(p))
	for _, x := range p {
		x = strings.TrimSpace(x)
		if x != "" {
			out = append(out, x)
		}
	}
	return out
}
