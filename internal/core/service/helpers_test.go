package service

import (
	"time"

	"go.uber.org/zap"

	"github.com/berfenger/batteryplan2mqtt/internal/core/domain"
)

var testStart = time.Date(2024, time.March, 4, 10, 0, 0, 0, time.UTC)

var testBattery = domain.BatteryParams{
	CapacityKWh:        10,
	MinSoCKWh:          1,
	MaxChargeRateKW:    3,
	MaxDischargeRateKW: 3,
	Efficiency:         0.95,
}

var testGrid = domain.GridParams{
	MaxLoadWatt:        5000,
	MinLoadWatt:        0,
	FeePerKWh:          0.01,
	MinSellPrice:       0,
	MinSellQuantityKWh: 0,
}

var testThresholds = domain.Thresholds{
	MinGridChargeProfit: 0.01,
}

var optimizer = NewBatteryOptimizer(zap.Must(zap.NewDevelopment()))

func genModel(battery domain.BatteryParams, grid domain.GridParams) *ConstraintModel {
	model, err := NewConstraintModel(battery, grid, HORIZON_STEP)
	if err != nil {
		panic(err)
	}
	return model
}

// genHourlySeries builds one point per hour starting at testStart
func genHourlySeries(values ...float64) []domain.SeriesPoint {
	series := make([]domain.SeriesPoint, len(values))
	for i, v := range values {
		series[i] = domain.SeriesPoint{
			Start:    testStart.Add(time.Duration(i) * time.Hour),
			Duration: time.Hour,
			Value:    v,
		}
	}
	return series
}

func genHorizon(prices []float64, pv []float64, consumption float64) []domain.HorizonPoint {
	horizon := make([]domain.HorizonPoint, len(prices))
	for i, p := range prices {
		horizon[i] = domain.HorizonPoint{
			Start:          testStart.Add(time.Duration(i) * time.Hour),
			Price:          p,
			ConsumptionKWh: consumption,
		}
		if pv != nil {
			horizon[i].PVKWh = pv[i]
		}
	}
	return horizon
}

func genFlat(n int, v float64) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = v
	}
	return values
}

func genRequest(soc float64, prices []float64, consumption float64) domain.OptimizeRequest {
	return domain.OptimizeRequest{
		Now:    testStart.Add(5 * time.Minute),
		SoCKWh: soc,
		Inputs: domain.ForecastInputs{
			Prices:      genHourlySeries(prices...),
			Consumption: genHourlySeries(genFlat(len(prices), consumption)...),
		},
		Battery:    testBattery,
		Grid:       testGrid,
		Thresholds: testThresholds,
	}
}

var series = genHourlySeries
var flat = genFlat
