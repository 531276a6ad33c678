package service

import (
	"math"

	"github.com/berfenger/batteryplan2mqtt/internal/core/domain"
)

// first-hour flows at or below this are treated as zero
const activityNoise = 1e-6

type modeRule struct {
	mode    domain.OperatingMode
	matches func(d domain.ScheduleDecision, threshold float64) bool
}

// evaluated in order, first match wins
var modeRules = []modeRule{
	{
		mode: domain.OperatingModeTOUCharge,
		matches: func(d domain.ScheduleDecision, threshold float64) bool {
			return d.GridChargeKWh > threshold
		},
	},
	{
		mode: domain.OperatingModeFeedToGrid,
		matches: func(d domain.ScheduleDecision, threshold float64) bool {
			return d.BatteryToGridKWh > threshold
		},
	},
	{
		mode: domain.OperatingModeSelfConsumption,
		matches: func(d domain.ScheduleDecision, threshold float64) bool {
			return d.PVToBatteryKWh > threshold || d.BatteryToLoadKWh > threshold
		},
	},
	{
		mode: domain.OperatingModeTOUNone,
		matches: func(domain.ScheduleDecision, float64) bool {
			return true
		},
	},
}

func activityThreshold(thresholds domain.Thresholds) float64 {
	return math.Max(thresholds.MinCycleKWh, activityNoise)
}

func ClassifyMode(d domain.ScheduleDecision, thresholds domain.Thresholds) domain.OperatingMode {
	threshold := activityThreshold(thresholds)
	for _, rule := range modeRules {
		if rule.matches(d, threshold) {
			return rule.mode
		}
	}
	return domain.OperatingModeTOUNone
}

// MapDecision turns the first hour of the winning schedule into the decision
// to apply now.
func MapDecision(d domain.ScheduleDecision, model *ConstraintModel, thresholds domain.Thresholds) domain.OperatingDecision {
	mode := ClassifyMode(d, thresholds)
	decision := domain.OperatingDecision{
		Mode:  mode,
		Start: d.Start,
		End:   d.Start.Add(model.Step),
		Price: d.Price,
	}

	switch mode {
	case domain.OperatingModeTOUCharge:
		decision.GridChargeKWh = d.GridChargeKWh
		decision.ChargePowerWatt = model.EnergyToWatt(d.GridChargeKWh)
	case domain.OperatingModeFeedToGrid:
		decision.GridFeedKWh = d.BatteryToGridKWh
	}

	if mode == domain.OperatingModeFeedToGrid {
		decision.FeedGridPowerWatt = min(model.EnergyToWatt(d.BatteryToGridKWh), model.Grid.MaxLoadWatt)
	} else if d.Price < model.Grid.FeePerKWh {
		// exporting would cost money
		decision.FeedGridPowerWatt = model.Grid.MinLoadWatt
	} else {
		decision.FeedGridPowerWatt = model.Grid.MaxLoadWatt
	}
	return decision
}
