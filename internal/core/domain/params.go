package domain

import "time"

const DEFAULT_HOURLY_CONSUMPTION_KWH = 0.62

type BatteryParams struct {
	CapacityKWh        float64 `validate:"gt=0"`
	MinSoCKWh          float64 `validate:"gte=0,ltfield=CapacityKWh"`
	MaxChargeRateKW    float64 `validate:"gt=0"`
	MaxDischargeRateKW float64 `validate:"gt=0"`
	Efficiency         float64 `validate:"gt=0,lte=1"`
}

type GridParams struct {
	MaxLoadWatt        uint32  `validate:"gt=0"`
	MinLoadWatt        uint32  `validate:"ltefield=MaxLoadWatt"`
	FeePerKWh          float64 `validate:"gte=0"`
	MinSellPrice       float64
	MinSellQuantityKWh float64 `validate:"gte=0"`
}

type Thresholds struct {
	// profit the grid-charging strategy must add over the other one
	MinGridChargeProfit float64 `validate:"gte=0"`
	// first-hour energy below this is not considered battery activity
	MinCycleKWh float64 `validate:"gte=0"`
}

// ConsumptionProfile holds the expected household consumption in kWh per
// hour, keyed by month.
type ConsumptionProfile map[time.Month]float64

func (p ConsumptionProfile) HourlyKWh(month time.Month) float64 {
	if v, ok := p[month]; ok {
		return v
	}
	return DEFAULT_HOURLY_CONSUMPTION_KWH
}

func DefaultConsumptionProfile() ConsumptionProfile {
	return ConsumptionProfile{
		time.January:   1.075,
		time.February:  1.075,
		time.March:     0.85,
		time.April:     0.8,
		time.May:       0.65,
		time.June:      0.55,
		time.July:      0.55,
		time.August:    0.55,
		time.September: 0.65,
		time.October:   0.8,
		time.November:  0.95,
		time.December:  1.075,
	}
}
