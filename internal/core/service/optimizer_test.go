package service

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berfenger/batteryplan2mqtt/internal/core/domain"
)

const tolerance = 1e-6

func TestFlatPriceEmptyBatteryHoldsMode(t *testing.T) {

	require := require.New(t)

	req := genRequest(testBattery.MinSoCKWh, flat(24, 0.10), 0.5)
	plan, err := optimizer.Optimize(context.Background(), req)
	require.NoError(err)

	require.Equal(domain.OperatingModeTOUNone, plan.Decision.Mode)
	require.False(plan.GridChargingAllowed)
	require.Len(plan.Schedule, 24)
	for _, d := range plan.Schedule {
		require.InDelta(0, d.GridChargeKWh, tolerance)
	}
}

func TestNegativePriceChargesAndSellsLater(t *testing.T) {

	require := require.New(t)

	prices := flat(12, 0.10)
	prices[0], prices[1], prices[2] = -0.02, -0.02, -0.02
	prices[9] = 0.30

	req := genRequest(testBattery.MinSoCKWh, prices, 0.5)
	plan, err := optimizer.Optimize(context.Background(), req)
	require.NoError(err)

	require.Equal(domain.OperatingModeTOUCharge, plan.Decision.Mode)
	require.True(plan.GridChargingAllowed)
	require.InDelta(3, plan.Decision.GridChargeKWh, tolerance)
	require.EqualValues(3000, plan.Decision.ChargePowerWatt)
	require.Greater(plan.Schedule[9].BatteryToGridKWh, tolerance, "sale projected at the price peak")
	require.Equal(plan.Decision.Mode, plan.Schedule[0].Mode)
	require.Equal(domain.OperatingModeFeedToGrid, plan.Schedule[9].Mode)
	for _, d := range plan.Schedule {
		require.Equal(ClassifyMode(d, testThresholds), d.Mode)
	}
	require.NotNil(plan.AllowedProfit)
	require.NotNil(plan.DisallowedProfit)
	require.GreaterOrEqual(*plan.AllowedProfit-*plan.DisallowedProfit, testThresholds.MinGridChargeProfit)
}

func TestPriceSpikeFullBatteryFeedsGrid(t *testing.T) {

	require := require.New(t)

	prices := flat(6, 0.10)
	prices[0] = 0.50

	req := genRequest(testBattery.CapacityKWh, prices, 0.5)
	req.Grid.MinSellPrice = 0.05
	req.Grid.MinSellQuantityKWh = 1

	plan, err := optimizer.Optimize(context.Background(), req)
	require.NoError(err)

	require.Equal(domain.OperatingModeFeedToGrid, plan.Decision.Mode)
	require.False(plan.SellOverridden)
	require.GreaterOrEqual(plan.Decision.GridFeedKWh, 2.5-tolerance)
	require.LessOrEqual(plan.Decision.GridFeedKWh, 3+tolerance)
	require.InDelta(plan.Decision.GridFeedKWh*1000, float64(plan.Decision.FeedGridPowerWatt), 1)
}

func TestSellBelowMinimumQuantityIsOverridden(t *testing.T) {

	require := require.New(t)

	prices := flat(6, 0.10)
	prices[0] = 0.50

	req := genRequest(testBattery.CapacityKWh, prices, 0.5)
	req.Grid.MinSellPrice = 0.05
	req.Grid.MinSellQuantityKWh = 5

	plan, err := optimizer.Optimize(context.Background(), req)
	require.NoError(err)

	require.NotEqual(domain.OperatingModeFeedToGrid, plan.Decision.Mode)
	require.Contains([]domain.OperatingMode{domain.OperatingModeSelfConsumption, domain.OperatingModeTOUNone}, plan.Decision.Mode)
	require.True(plan.SellOverridden)
	require.Zero(plan.Schedule[0].BatteryToGridKWh)
}

func TestOptimizeIsIdempotent(t *testing.T) {

	require := require.New(t)

	prices := flat(24, 0.12)
	prices[3] = 0.02
	prices[18] = 0.35
	req := genRequest(4, prices, 0.7)

	first, err := optimizer.Optimize(context.Background(), req)
	require.NoError(err)
	second, err := optimizer.Optimize(context.Background(), req)
	require.NoError(err)

	require.Equal(first.Decision, second.Decision)
	require.Equal(first.Schedule, second.Schedule)
}

func TestOptimizeErrors(t *testing.T) {

	assert := assert.New(t)

	req := genRequest(2, flat(4, 0.1), 0.5)
	req.Inputs.Prices = nil
	_, err := optimizer.Optimize(context.Background(), req)
	assert.ErrorIs(err, domain.ErrInsufficientData)

	req = genRequest(2, flat(4, 0.1), 0.5)
	req.Battery.MinSoCKWh = 20
	_, err = optimizer.Optimize(context.Background(), req)
	assert.ErrorIs(err, domain.ErrInvalidParameter)

	req = genRequest(2, flat(4, 0.1), 0.5)
	req.Thresholds.MinGridChargeProfit = -1
	_, err = optimizer.Optimize(context.Background(), req)
	assert.ErrorIs(err, domain.ErrInvalidParameter)

	req = genRequest(-3, flat(4, 0.1), 0.5)
	_, err = optimizer.Optimize(context.Background(), req)
	assert.ErrorIs(err, domain.ErrInvalidParameter)
}

func TestOptimizeClampsStateOfCharge(t *testing.T) {

	require := require.New(t)

	plan, err := optimizer.Optimize(context.Background(), genRequest(25, flat(4, 0.1), 0.5))
	require.NoError(err)
	require.LessOrEqual(plan.Schedule[0].SoCKWh, testBattery.CapacityKWh+tolerance)
}

// property checks over seeded random horizons

func TestScheduleStaysWithinBatteryLimits(t *testing.T) {

	require := require.New(t)
	rnd := rand.New(rand.NewPCG(1, 2))
	model := genModel(testBattery, testGrid)

	for i := 0; i < 20; i++ {
		horizon := genRandomHorizon(rnd, 48)
		soc := testBattery.MinSoCKWh + rnd.Float64()*(testBattery.CapacityKWh-testBattery.MinSoCKWh)
		run, err := RunStrategies(context.Background(), horizon, soc, model, optimizer.Solver)
		require.NoError(err)

		for _, r := range []domain.StrategyResult{run.Allowed, run.Disallowed} {
			require.True(r.Optimal(), "%s: %v", r.StrategyName(), r.Err)
			for _, d := range r.Schedule {
				require.GreaterOrEqual(d.SoCKWh, testBattery.MinSoCKWh-tolerance)
				require.LessOrEqual(d.SoCKWh, testBattery.CapacityKWh+tolerance)
				require.LessOrEqual(d.GridChargeKWh+d.PVToBatteryKWh, model.MaxChargeEnergy()+tolerance)
				require.LessOrEqual(d.BatteryToLoadKWh+d.BatteryToGridKWh, model.MaxDischargeEnergy()+tolerance)
			}
		}
	}
}

func TestDisallowingGridChargingNeverPaysMore(t *testing.T) {

	require := require.New(t)
	rnd := rand.New(rand.NewPCG(3, 4))
	grid := testGrid
	grid.MinLoadWatt = 300
	model := genModel(testBattery, grid)

	for i := 0; i < 20; i++ {
		horizon := genRandomHorizon(rnd, 48)
		run, err := RunStrategies(context.Background(), horizon, 3, model, optimizer.Solver)
		require.NoError(err)
		require.True(run.Allowed.Optimal(), run.Allowed.Err)
		require.True(run.Disallowed.Optimal(), run.Disallowed.Err)
		require.LessOrEqual(run.Disallowed.Objective, run.Allowed.Objective+tolerance)
	}
}

func TestNoGridChargeWithoutProfitableTrade(t *testing.T) {

	require := require.New(t)

	model := genModel(testBattery, testGrid)
	run, err := RunStrategies(context.Background(), genHorizon(flat(24, 0.10), nil, 0.5), 5, model, optimizer.Solver)
	require.NoError(err)
	for _, d := range run.Allowed.Schedule {
		require.InDelta(0, d.GridChargeKWh, tolerance)
	}

	// a spread smaller than fee and losses
	battery := testBattery
	battery.Efficiency = 0.9
	grid := testGrid
	grid.FeePerKWh = 0.05
	prices := make([]float64, 24)
	for i := range prices {
		prices[i] = 0.10 + 0.01*float64(i%2)
	}
	model = genModel(battery, grid)
	run, err = RunStrategies(context.Background(), genHorizon(prices, nil, 0.5), battery.MinSoCKWh, model, optimizer.Solver)
	require.NoError(err)
	for _, d := range run.Allowed.Schedule {
		require.InDelta(0, d.GridChargeKWh, tolerance)
	}
}

func TestFullLookaheadSolvesBothStrategies(t *testing.T) {

	require := require.New(t)
	rnd := rand.New(rand.NewPCG(5, 6))
	grid := testGrid
	grid.MinLoadWatt = 200
	model := genModel(testBattery, grid)

	for i := 0; i < 40; i++ {
		horizon := genRandomHorizon(rnd, 48)
		soc := testBattery.MinSoCKWh + rnd.Float64()*(testBattery.CapacityKWh-testBattery.MinSoCKWh)
		run, err := RunStrategies(context.Background(), horizon, soc, model, optimizer.Solver)
		require.NoError(err)
		require.True(run.Allowed.Optimal(), "run %d: %v", i, run.Allowed.Err)
		require.True(run.Disallowed.Optimal(), "run %d: %v", i, run.Disallowed.Err)
		require.Len(run.Allowed.Schedule, 48)
	}
}

func TestFullLookaheadSolveTime(t *testing.T) {

	require := require.New(t)
	rnd := rand.New(rand.NewPCG(7, 8))
	model := genModel(testBattery, testGrid)

	budget := optimizer.Solver.Timeout / 10
	for i := 0; i < 5; i++ {
		run, err := RunStrategies(context.Background(), genRandomHorizon(rnd, 48), 3, model, optimizer.Solver)
		require.NoError(err)
		for allowed, d := range run.Durations {
			require.Less(d, budget, "grid charging allowed=%v", allowed)
		}
	}
}

// scenarios over the default 48 h lookahead

func TestFullLookaheadScenarios(t *testing.T) {

	t.Run("flat price holds", func(t *testing.T) {
		require := require.New(t)
		plan, err := optimizer.Optimize(context.Background(), genRequest(testBattery.MinSoCKWh, flat(48, 0.10), 0.5))
		require.NoError(err)
		require.Len(plan.Schedule, 48)
		require.Equal(domain.OperatingModeTOUNone, plan.Decision.Mode)
		require.False(plan.GridChargingAllowed)
	})

	t.Run("negative price charges", func(t *testing.T) {
		require := require.New(t)
		prices := flat(48, 0.10)
		prices[0], prices[1], prices[2] = -0.02, -0.02, -0.02
		prices[9] = 0.30
		plan, err := optimizer.Optimize(context.Background(), genRequest(testBattery.MinSoCKWh, prices, 0.5))
		require.NoError(err)
		require.Len(plan.Schedule, 48)
		require.Equal(domain.OperatingModeTOUCharge, plan.Decision.Mode)
		require.True(plan.GridChargingAllowed)
		require.InDelta(3, plan.Decision.GridChargeKWh, tolerance)
	})

	t.Run("price spike feeds grid", func(t *testing.T) {
		require := require.New(t)
		prices := flat(48, 0.10)
		prices[0] = 0.50
		req := genRequest(testBattery.CapacityKWh, prices, 0.5)
		req.Grid.MinSellPrice = 0.05
		req.Grid.MinSellQuantityKWh = 1
		plan, err := optimizer.Optimize(context.Background(), req)
		require.NoError(err)
		require.Equal(domain.OperatingModeFeedToGrid, plan.Decision.Mode)
		require.GreaterOrEqual(plan.Decision.GridFeedKWh, 2.5-tolerance)
		require.LessOrEqual(plan.Decision.GridFeedKWh, 3+tolerance)
	})

	t.Run("small sale overridden", func(t *testing.T) {
		require := require.New(t)
		prices := flat(48, 0.10)
		prices[0] = 0.50
		req := genRequest(testBattery.CapacityKWh, prices, 0.5)
		req.Grid.MinSellPrice = 0.05
		req.Grid.MinSellQuantityKWh = 5
		plan, err := optimizer.Optimize(context.Background(), req)
		require.NoError(err)
		require.NotEqual(domain.OperatingModeFeedToGrid, plan.Decision.Mode)
		require.True(plan.SellOverridden)
	})
}

func genRandomHorizon(rnd *rand.Rand, hours int) []domain.HorizonPoint {
	prices := make([]float64, hours)
	pv := make([]float64, hours)
	for i := range prices {
		prices[i] = -0.05 + rnd.Float64()*0.45
		if h := i % 24; h >= 8 && h <= 18 {
			pv[i] = rnd.Float64() * 3
		}
	}
	horizon := genHorizon(prices, pv, 0)
	for i := range horizon {
		horizon[i].ConsumptionKWh = 0.2 + rnd.Float64()*1.3
	}
	return horizon
}
