package service

import (
	"fmt"
	"math"

	"github.com/berfenger/batteryplan2mqtt/internal/core/domain"
)

// Formulation is the LP of one strategy together with the variable layout
// needed to read the schedule back.
type Formulation struct {
	Program             *LinearProgram
	Horizon             []domain.HorizonPoint
	GridChargingAllowed bool
	InitialSoC          float64
	steps               []stepVariables
}

type stepVariables struct {
	gridCharge    int
	pvToBattery   int
	batteryToLoad int
	batteryToGrid int
	soc           int
	pvToLoad      int
	gridToLoad    int
}

// Formulate builds the LP of one strategy. Both strategies share the same
// variable layout, the disallowed one fixes gridCharge(t) to zero.
func Formulate(horizon []domain.HorizonPoint, initialSoC float64, model *ConstraintModel, allowGridCharging bool) (*Formulation, error) {
	if len(horizon) == 0 {
		return nil, fmt.Errorf("%w: empty horizon", domain.ErrInsufficientData)
	}
	soc0, err := model.ClampSoC(initialSoC)
	if err != nil {
		return nil, err
	}

	p := NewLinearProgram()
	f := &Formulation{
		Program:             p,
		Horizon:             horizon,
		GridChargingAllowed: allowGridCharging,
		InitialSoC:          soc0,
		steps:               make([]stepVariables, len(horizon)),
	}

	battery := model.Battery
	fee := model.Grid.FeePerKWh
	inf := math.Inf(1)

	maxCharge := model.MaxChargeEnergy()
	maxDischarge := model.MaxDischargeEnergy()

	// per-step limits are variable bounds, rows only couple variables
	gridChargeLimit := 0.0
	if allowGridCharging {
		gridChargeLimit = maxCharge
	}

	for t, point := range horizon {
		buyCost := point.Price + fee
		sellValue := point.Price - fee
		pv := math.Max(0, point.PVKWh)

		v := stepVariables{
			gridCharge:    p.AddVariable(fmt.Sprintf("grid_charge[%d]", t), 0, gridChargeLimit, -buyCost),
			pvToBattery:   p.AddVariable(fmt.Sprintf("pv_to_battery[%d]", t), 0, math.Min(pv, maxCharge), 0),
			batteryToLoad: p.AddVariable(fmt.Sprintf("battery_to_load[%d]", t), 0, maxDischarge, 0),
			batteryToGrid: p.AddVariable(fmt.Sprintf("battery_to_grid[%d]", t), 0, maxDischarge, sellValue),
			soc:           p.AddVariable(fmt.Sprintf("soc[%d]", t), battery.MinSoCKWh, battery.CapacityKWh, 0),
			pvToLoad:      p.AddVariable(fmt.Sprintf("pv_to_load[%d]", t), 0, pv, 0),
			gridToLoad:    p.AddVariable(fmt.Sprintf("grid_to_load[%d]", t), 0, inf, -buyCost),
		}
		f.steps[t] = v

		// soc(t) - soc(t-1) - eff*(gc+pb) + bl + bg = 0
		balance := []Term{
			{Var: v.soc, Coef: 1},
			{Var: v.gridCharge, Coef: -model.StoredEnergy(1)},
			{Var: v.pvToBattery, Coef: -model.StoredEnergy(1)},
			{Var: v.batteryToLoad, Coef: model.DischargeRequired(1)},
			{Var: v.batteryToGrid, Coef: model.DischargeRequired(1)},
		}
		balanceRhs := 0.0
		if t == 0 {
			balanceRhs = soc0
		} else {
			balance = append(balance, Term{Var: f.steps[t-1].soc, Coef: -1})
		}
		p.AddConstraint(fmt.Sprintf("energy_balance[%d]", t), Equal, balanceRhs, balance...)

		if allowGridCharging && pv > 0 {
			p.AddConstraint(fmt.Sprintf("charge_rate[%d]", t), LessOrEqual, maxCharge,
				Term{Var: v.gridCharge, Coef: 1}, Term{Var: v.pvToBattery, Coef: 1})
		}
		p.AddConstraint(fmt.Sprintf("discharge_rate[%d]", t), LessOrEqual, maxDischarge,
			Term{Var: v.batteryToLoad, Coef: 1}, Term{Var: v.batteryToGrid, Coef: 1})

		if pv > 0 {
			p.AddConstraint(fmt.Sprintf("pv_available[%d]", t), LessOrEqual, pv,
				Term{Var: v.pvToLoad, Coef: 1}, Term{Var: v.pvToBattery, Coef: 1})
		}

		consumption := math.Max(0, point.ConsumptionKWh)
		p.AddConstraint(fmt.Sprintf("consumption[%d]", t), Equal, consumption,
			Term{Var: v.pvToLoad, Coef: 1}, Term{Var: v.batteryToLoad, Coef: 1}, Term{Var: v.gridToLoad, Coef: 1})

		p.AddConstraint(fmt.Sprintf("grid_max_load[%d]", t), LessOrEqual, model.MaxGridEnergy(),
			Term{Var: v.gridCharge, Coef: 1}, Term{Var: v.gridToLoad, Coef: 1})

		if point.Price < 0 {
			// Capped at the load of the step. With grid charging disallowed
			// the load is the only grid sink, so a floor above it would make
			// that strategy infeasible. The allowed strategy keeps the same
			// cap: its extra sink is charging, which a full battery cannot
			// take either.
			floor := math.Min(math.Min(model.MinGridEnergy(), model.MaxGridEnergy()), consumption)
			if floor > 0 {
				p.AddConstraint(fmt.Sprintf("grid_min_load[%d]", t), GreaterOrEqual, floor,
					Term{Var: v.gridCharge, Coef: 1}, Term{Var: v.gridToLoad, Coef: 1})
			}
		}
	}

	return f, nil
}

// Schedule maps an LP solution back to one decision per horizon step.
func (f *Formulation) Schedule(values []float64) []domain.ScheduleDecision {
	schedule := make([]domain.ScheduleDecision, len(f.steps))
	for t, v := range f.steps {
		point := f.Horizon[t]
		d := domain.ScheduleDecision{
			Start:            point.Start,
			Price:            point.Price,
			GridChargeKWh:    nonNegative(values[v.gridCharge]),
			PVToBatteryKWh:   nonNegative(values[v.pvToBattery]),
			BatteryToLoadKWh: nonNegative(values[v.batteryToLoad]),
			BatteryToGridKWh: nonNegative(values[v.batteryToGrid]),
			SoCKWh:           values[v.soc],
			PVToLoadKWh:      nonNegative(values[v.pvToLoad]),
			GridToLoadKWh:    nonNegative(values[v.gridToLoad]),
		}
		d.PVSurplusKWh = nonNegative(point.PVKWh - d.PVToLoadKWh - d.PVToBatteryKWh)
		schedule[t] = d
	}
	return schedule
}

// solver noise below this is reported as zero
const solutionNoise = 1e-9

func nonNegative(v float64) float64 {
	if v < solutionNoise {
		return 0
	}
	return v
}
