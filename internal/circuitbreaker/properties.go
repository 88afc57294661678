// v2
// internal/circuitbreaker/properties.go
package circuitbreaker

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// Config holds the breaker tunables.
type Config struct {
	MaxFailures  int           // consecutive failures before opening
	ResetTimeout time.Duration // wait before probing again
}

func DefaultConfig() Config {
	return Config{MaxFailures: 5, ResetTimeout: 30 * time.Second}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxFailures < 1 {
		c.MaxFailures = d.MaxFailures
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = d.ResetTimeout
	}
	return c
}

// ConfigFromProperties reads circuit.maxFailures and circuit.resetSeconds
// (keys are case-insensitive) on top of the defaults.
func ConfigFromProperties(props map[string]string) (Config, error) {
	cfg := DefaultConfig()
	for k, v := range props {
		key := strings.ToLower(strings.TrimSpace(k))
		val := strings.TrimSpace(v)
		switch key {
		case "circuit.maxfailures":
			n, err := strconv.Atoi(val)
			if err != nil || n < 1 {
				return Config{}, errors.New("circuit.maxFailures must be an integer >= 1")
			}
			cfg.MaxFailures = n
		case "circuit.resetseconds":
			secs, err := strconv.ParseFloat(val, 64)
			if err != nil || secs <= 0 {
				return Config{}, errors.New("circuit.resetSeconds must be > 0")
			}
			cfg.ResetTimeout = time.Duration(secs * float64(time.Second))
		}
	}
	return cfg, nil
}
