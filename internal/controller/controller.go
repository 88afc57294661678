// v0
// internal/controller/controller.go
package controller

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"nrgchamp/fuzzycrac/internal/fuzzy"
)

var ErrInvalidSetpoint = errors.New("invalid setpoint")

// Inferer is the part of the fuzzy engine the controller needs.
type Inferer interface {
	Infer(fuzzy.Inputs) (fuzzy.Result, error)
}

// Decision is the outcome of one closed-loop control step.
type Decision struct {
	Setpoint    float64      `json:"setpoint"`
	CurrentTemp float64      `json:"current_temp"`
	Error       float64      `json:"error"`
	DeltaError  float64      `json:"delta_error"`
	Power       float64      `json:"crac_power"`
	Result      fuzzy.Result `json:"-"`
}

// Controller keeps the setpoint and the previous error between calls so
// that successive readings produce a meaningful delta error.
type Controller struct {
	engine Inferer

	mu        sync.Mutex
	setpoint  float64
	lastError float64
	steps     int
}

func New(engine Inferer, setpoint float64) (*Controller, error) {
	if err := checkSetpoint(setpoint); err != nil {
		return nil, err
	}
	return &Controller{engine: engine, setpoint: setpoint}, nil
}

func checkSetpoint(sp float64) error {
	if math.IsNaN(sp) || math.IsInf(sp, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidSetpoint, sp)
	}
	return nil
}

func (c *Controller) Setpoint() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setpoint
}

// SetSetpoint changes the target and forgets the previous error.
func (c *Controller) SetSetpoint(sp float64) error {
	if err := checkSetpoint(sp); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if sp != c.setpoint {
		c.setpoint = sp
		c.lastError = 0
	}
	return nil
}

// Compute runs one control step for a temperature reading. The previous
// error only advances when inference succeeds.
func (c *Controller) Compute(current, external, load float64) (Decision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.setpoint - current
	in := fuzzy.Inputs{Error: e, DeltaError: e - c.lastError, ExternalTemp: external, ThermalLoad: load}
	res, err := c.engine.Infer(in)
	if err != nil {
		return Decision{}, fmt.Errorf("control step: %w", err)
	}
	c.lastError = e
	c.steps++
	return Decision{
		Setpoint:    c.setpoint,
		CurrentTemp: current,
		Error:       e,
		DeltaError:  in.DeltaError,
		Power:       res.CrispOutput,
		Result:      res,
	}, nil
}

// Reset clears the remembered error.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastError = 0
	c.steps = 0
}

// Steps reports how many control steps succeeded since the last reset.
func (c *Controller) Steps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.steps
}
