package events

import (
	"time"

	. "github.com/berfenger/batteryplan2mqtt/internal/core/domain"
)

const (
	PLANNER_STATUS_OK      = "ok"
	PLANNER_STATUS_RUNNING = "running"
	PLANNER_STATUS_ERROR   = "error"
)

// planAttributes is the JSON document published on the energy planning
// attributes topic.
type planAttributes struct {
	CreatedAt           string             `json:"created_at"`
	Strategy            string             `json:"strategy"`
	SellOverridden      bool               `json:"sell_overridden"`
	Decision            OperatingDecision  `json:"decision"`
	Horizon             []HorizonPoint     `json:"horizon"`
	Schedule            []ScheduleDecision `json:"schedule"`
	ProfitGridCharge    *float64           `json:"profit_grid_charging,omitempty"`
	ProfitNoGridCharge  *float64           `json:"profit_no_grid_charging,omitempty"`
	DecisionWindowStart string             `json:"decision_start"`
	DecisionWindowEnd   string             `json:"decision_end"`
}

func PlanToUpdateEvents(plan *Plan) []any {
	var events []any

	// Operating mode
	events = append(events, TextSensorUpdateEvent{
		SensorRef: Ref(SENSOR_ID_OPERATING_MODE),
		Value:     string(plan.Decision.Mode),
	})
	// Current price
	events = append(events, FloatSensorUpdateEvent{
		SensorRef: Ref(SENSOR_ID_CURRENT_PRICE),
		Value:     plan.Decision.Price,
		Decimals:  4,
	})
	// Profits
	events = append(events, FloatSensorUpdateEvent{
		SensorRef: Ref(SENSOR_ID_PLANNED_PROFIT),
		Value:     plan.Profit(),
		Decimals:  2,
	})
	if plan.AllowedProfit != nil {
		events = append(events, FloatSensorUpdateEvent{
			SensorRef: Ref(SENSOR_ID_PROFIT_GRID_CHARGING),
			Value:     *plan.AllowedProfit,
			Decimals:  2,
		})
	}
	if plan.DisallowedProfit != nil {
		events = append(events, FloatSensorUpdateEvent{
			SensorRef: Ref(SENSOR_ID_PROFIT_NO_GRID_CHARGING),
			Value:     *plan.DisallowedProfit,
			Decimals:  2,
		})
	}
	// Battery powers
	events = append(events, FloatSensorUpdateEvent{
		SensorRef: Ref(SENSOR_ID_CHARGE_POWER),
		Value:     float64(plan.Decision.ChargePowerWatt),
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorRef: Ref(SENSOR_ID_FEED_GRID_POWER),
		Value:     float64(plan.Decision.FeedGridPowerWatt),
	})
	// SoC at the end of the first hour
	if len(plan.Schedule) > 0 {
		events = append(events, FloatSensorUpdateEvent{
			SensorRef: Ref(SENSOR_ID_PLANNED_SOC),
			Value:     plan.Schedule[0].SoCKWh,
			Decimals:  3,
		})
	}
	// Full planning
	events = append(events, TextSensorUpdateEvent{
		SensorRef: Ref(SENSOR_ID_ENERGY_PLANNING),
		Value:     plan.CreatedAt.Format(time.RFC3339),
	})
	events = append(events, AttributesUpdateEvent{
		SensorRef: Ref(SENSOR_ID_ENERGY_PLANNING),
		Value:     planToAttributes(plan),
	})

	return events
}

func planToAttributes(plan *Plan) planAttributes {
	strategy := "grid_charging_disallowed"
	if plan.GridChargingAllowed {
		strategy = "grid_charging_allowed"
	}
	return planAttributes{
		CreatedAt:           plan.CreatedAt.Format(time.RFC3339),
		Strategy:            strategy,
		SellOverridden:      plan.SellOverridden,
		Decision:            plan.Decision,
		Horizon:             plan.Horizon,
		Schedule:            plan.Schedule,
		ProfitGridCharge:    plan.AllowedProfit,
		ProfitNoGridCharge:  plan.DisallowedProfit,
		DecisionWindowStart: plan.Decision.Start.Format("15:04"),
		DecisionWindowEnd:   plan.Decision.End.Format("15:04"),
	}
}

func PlannerStatusUpdateEvent(status string) any {
	return TextSensorUpdateEvent{
		SensorRef: Ref(SENSOR_ID_PLANNER_STATUS),
		Value:     status,
	}
}

func AutoApplySwitchUpdateEvent(enabled bool) any {
	return SwitchSensorUpdateEvent{
		SensorRef: Ref(SWITCH_ID_AUTO_APPLY),
		Value:     enabled,
	}
}

func MinGridChargeProfitUpdateEvent(value float64) any {
	return InputNumberSensorUpdateEvent{
		SensorRef: Ref(INPUT_NUMBER_ID_MIN_GRID_CHARGE_PROFIT),
		Value:     value,
		Decimals:  2,
	}
}
