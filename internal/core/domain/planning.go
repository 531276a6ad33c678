package domain

import "time"

// SeriesPoint is one raw forecast sample covering [Start, Start+Duration).
// For price series Value is a price per kWh, for energy series (PV,
// consumption) Value is the energy in kWh over the whole period.
type SeriesPoint struct {
	Start    time.Time
	Duration time.Duration
	Value    float64
}

func (p SeriesPoint) End() time.Time {
	return p.Start.Add(p.Duration)
}

type HorizonPoint struct {
	Start          time.Time `json:"start"`
	Price          float64   `json:"price"`
	PVKWh          float64   `json:"pv_kwh"`
	ConsumptionKWh float64   `json:"consumption_kwh"`
}

type ScheduleDecision struct {
	Start            time.Time `json:"start"`
	Price            float64   `json:"price"`
	GridChargeKWh    float64   `json:"grid_charge_kwh"`
	PVToBatteryKWh   float64   `json:"pv_to_battery_kwh"`
	BatteryToLoadKWh float64   `json:"battery_to_load_kwh"`
	BatteryToGridKWh float64   `json:"battery_to_grid_kwh"`
	SoCKWh           float64   `json:"soc_kwh"`
	PVToLoadKWh      float64   `json:"pv_to_load_kwh"`
	GridToLoadKWh    float64   `json:"grid_to_load_kwh"`
	PVSurplusKWh     float64   `json:"pv_surplus_kwh"`
	// set on the winning schedule only
	Mode OperatingMode `json:"mode,omitempty"`
}

type SolveStatus string

const (
	SolveStatusOptimal    SolveStatus = "optimal"
	SolveStatusInfeasible SolveStatus = "infeasible"
	SolveStatusUnbounded  SolveStatus = "unbounded"
	SolveStatusFailed     SolveStatus = "failed"
	SolveStatusTimeout    SolveStatus = "timeout"
)

type StrategyResult struct {
	GridChargingAllowed bool               `json:"grid_charging_allowed"`
	Status              SolveStatus        `json:"status"`
	Schedule            []ScheduleDecision `json:"schedule,omitempty"`
	Objective           float64            `json:"objective"`
	Err                 error              `json:"-"`
}

func (r StrategyResult) Optimal() bool {
	return r.Status == SolveStatusOptimal
}

func (r StrategyResult) StrategyName() string {
	if r.GridChargingAllowed {
		return "grid_charging_allowed"
	}
	return "grid_charging_disallowed"
}

type OperatingMode string

const (
	OperatingModeTOUCharge       OperatingMode = "tou_charge"
	OperatingModeFeedToGrid      OperatingMode = "feed_to_grid"
	OperatingModeSelfConsumption OperatingMode = "self_consumption"
	OperatingModeTOUNone         OperatingMode = "tou_none"
)

// OperatingDecision is what gets applied to the battery for the current hour.
type OperatingDecision struct {
	Mode              OperatingMode `json:"mode"`
	Start             time.Time     `json:"start"`
	End               time.Time     `json:"end"`
	Price             float64       `json:"price"`
	GridChargeKWh     float64       `json:"grid_charge_kwh"`
	GridFeedKWh       float64       `json:"grid_feed_kwh"`
	ChargePowerWatt   uint32        `json:"charge_power_watt"`
	FeedGridPowerWatt uint32        `json:"feed_grid_power_watt"`
}

type Plan struct {
	CreatedAt           time.Time          `json:"created_at"`
	Decision            OperatingDecision  `json:"decision"`
	Horizon             []HorizonPoint     `json:"horizon"`
	Schedule            []ScheduleDecision `json:"schedule"`
	GridChargingAllowed bool               `json:"grid_charging_allowed"`
	AllowedProfit       *float64           `json:"allowed_profit,omitempty"`
	DisallowedProfit    *float64           `json:"disallowed_profit,omitempty"`
	SellOverridden      bool               `json:"sell_overridden"`
}

func (p *Plan) Profit() float64 {
	if p.GridChargingAllowed && p.AllowedProfit != nil {
		return *p.AllowedProfit
	}
	if p.DisallowedProfit != nil {
		return *p.DisallowedProfit
	}
	return 0
}

type ForecastInputs struct {
	Prices             []SeriesPoint
	PV                 []SeriesPoint
	Consumption        []SeriesPoint
	ConsumptionProfile ConsumptionProfile
}

type OptimizeRequest struct {
	Now        time.Time
	SoCKWh     float64
	Inputs     ForecastInputs
	Battery    BatteryParams
	Grid       GridParams
	Thresholds Thresholds
}
