package service

import (
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/berfenger/batteryplan2mqtt/internal/core/domain"
)

var validate = validator.New()

// ConstraintModel holds validated battery and grid limits and derives the
// per-step energy bounds used by the LP.
type ConstraintModel struct {
	Battery domain.BatteryParams
	Grid    domain.GridParams
	Step    time.Duration
}

func NewConstraintModel(battery domain.BatteryParams, grid domain.GridParams, step time.Duration) (*ConstraintModel, error) {
	if step <= 0 {
		return nil, fmt.Errorf("%w: step must be > 0", domain.ErrInvalidParameter)
	}
	if err := validateParams(battery); err != nil {
		return nil, fmt.Errorf("%w: battery: %v", domain.ErrInvalidParameter, err)
	}
	if err := validateParams(grid); err != nil {
		return nil, fmt.Errorf("%w: grid: %v", domain.ErrInvalidParameter, err)
	}
	return &ConstraintModel{
		Battery: battery,
		Grid:    grid,
		Step:    step,
	}, nil
}

func ValidateThresholds(thresholds domain.Thresholds) error {
	if err := validateParams(thresholds); err != nil {
		return fmt.Errorf("%w: thresholds: %v", domain.ErrInvalidParameter, err)
	}
	return nil
}

func validateParams(params any) error {
	if err := validate.Struct(params); err != nil {
		return err
	}
	return checkFinite(params)
}

// validator tags accept NaN and Inf on some comparisons
func checkFinite(params any) error {
	var values map[string]float64
	switch p := params.(type) {
	case domain.BatteryParams:
		values = map[string]float64{
			"CapacityKWh":        p.CapacityKWh,
			"MinSoCKWh":          p.MinSoCKWh,
			"MaxChargeRateKW":    p.MaxChargeRateKW,
			"MaxDischargeRateKW": p.MaxDischargeRateKW,
			"Efficiency":         p.Efficiency,
		}
	case domain.GridParams:
		values = map[string]float64{
			"FeePerKWh":          p.FeePerKWh,
			"MinSellPrice":       p.MinSellPrice,
			"MinSellQuantityKWh": p.MinSellQuantityKWh,
		}
	case domain.Thresholds:
		values = map[string]float64{
			"MinGridChargeProfit": p.MinGridChargeProfit,
			"MinCycleKWh":         p.MinCycleKWh,
		}
	}
	for name, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s must be a finite number", name)
		}
	}
	return nil
}

func (m *ConstraintModel) StepHours() float64 {
	return m.Step.Hours()
}

func (m *ConstraintModel) MaxChargeEnergy() float64 {
	return m.Battery.MaxChargeRateKW * m.StepHours()
}

func (m *ConstraintModel) MaxDischargeEnergy() float64 {
	return m.Battery.MaxDischargeRateKW * m.StepHours()
}

// StoredEnergy is the energy that ends up in the battery when charging with
// in kWh. The whole round-trip loss is booked on the charge side.
func (m *ConstraintModel) StoredEnergy(in float64) float64 {
	return in * m.Battery.Efficiency
}

// DischargeRequired is the energy drawn from the battery to deliver out kWh.
func (m *ConstraintModel) DischargeRequired(out float64) float64 {
	return out
}

func (m *ConstraintModel) MaxGridEnergy() float64 {
	return float64(m.Grid.MaxLoadWatt) / 1000 * m.StepHours()
}

func (m *ConstraintModel) MinGridEnergy() float64 {
	return float64(m.Grid.MinLoadWatt) / 1000 * m.StepHours()
}

func (m *ConstraintModel) UsableEnergy(soc float64) float64 {
	return math.Max(0, soc-m.Battery.MinSoCKWh)
}

// ClampSoC moves a state of charge reading into [minSoC, capacity].
func (m *ConstraintModel) ClampSoC(soc float64) (float64, error) {
	if math.IsNaN(soc) || math.IsInf(soc, 0) || soc < 0 {
		return 0, fmt.Errorf("%w: state of charge %v", domain.ErrInvalidParameter, soc)
	}
	return math.Min(math.Max(soc, m.Battery.MinSoCKWh), m.Battery.CapacityKWh), nil
}

// EnergyToWatt converts an energy per step into an average power.
func (m *ConstraintModel) EnergyToWatt(kwh float64) uint32 {
	if kwh <= 0 {
		return 0
	}
	return uint32(math.Round(kwh / m.StepHours() * 1000))
}
