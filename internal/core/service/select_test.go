package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berfenger/batteryplan2mqtt/internal/core/domain"
)

func genResult(allowed bool, status domain.SolveStatus, objective float64, first domain.ScheduleDecision) domain.StrategyResult {
	r := domain.StrategyResult{
		GridChargingAllowed: allowed,
		Status:              status,
		Objective:           objective,
	}
	if status == domain.SolveStatusOptimal {
		r.Schedule = []domain.ScheduleDecision{first, {}}
	} else {
		r.Err = errors.New(string(status))
	}
	return r
}

var result = genResult

func TestSelectStrategyMargin(t *testing.T) {

	assert := assert.New(t)
	model := genModel(testBattery, testGrid)
	thresholds := domain.Thresholds{MinGridChargeProfit: 0.5}

	charge := domain.ScheduleDecision{GridChargeKWh: 2}
	hold := domain.ScheduleDecision{}

	s, err := SelectStrategy(result(true, domain.SolveStatusOptimal, 1.4, charge), result(false, domain.SolveStatusOptimal, 1.0, hold), model, thresholds)
	assert.NoError(err)
	assert.False(s.Winner.GridChargingAllowed, "gain below margin")

	s, err = SelectStrategy(result(true, domain.SolveStatusOptimal, 1.5, charge), result(false, domain.SolveStatusOptimal, 1.0, hold), model, thresholds)
	assert.NoError(err)
	assert.True(s.Winner.GridChargingAllowed, "gain equal to margin")

	s, err = SelectStrategy(result(true, domain.SolveStatusOptimal, 3, charge), result(false, domain.SolveStatusInfeasible, 0, hold), model, thresholds)
	assert.NoError(err)
	assert.True(s.Winner.GridChargingAllowed, "single survivor")

	s, err = SelectStrategy(result(true, domain.SolveStatusTimeout, 0, charge), result(false, domain.SolveStatusOptimal, -2, hold), model, thresholds)
	assert.NoError(err)
	assert.False(s.Winner.GridChargingAllowed, "single survivor")
}

func TestSelectStrategyBothFailed(t *testing.T) {

	assert := assert.New(t)
	model := genModel(testBattery, testGrid)

	_, err := SelectStrategy(result(true, domain.SolveStatusInfeasible, 0, domain.ScheduleDecision{}),
		result(false, domain.SolveStatusTimeout, 0, domain.ScheduleDecision{}), model, testThresholds)
	assert.ErrorIs(err, domain.ErrOptimizationFailed)
	assert.NotErrorIs(err, domain.ErrOptimizationTimeout)

	_, err = SelectStrategy(result(true, domain.SolveStatusTimeout, 0, domain.ScheduleDecision{}),
		result(false, domain.SolveStatusTimeout, 0, domain.ScheduleDecision{}), model, testThresholds)
	assert.ErrorIs(err, domain.ErrOptimizationTimeout)
}

func TestSellFloor(t *testing.T) {

	require := require.New(t)

	grid := testGrid
	grid.MinSellPrice = 0.10
	grid.MinSellQuantityKWh = 1
	model := genModel(testBattery, grid)

	sale := func(kwh, price float64) domain.StrategyResult {
		return result(false, domain.SolveStatusOptimal, 1, domain.ScheduleDecision{
			Price:            price,
			BatteryToGridKWh: kwh,
			SoCKWh:           6,
		})
	}

	s, err := SelectStrategy(result(true, domain.SolveStatusInfeasible, 0, domain.ScheduleDecision{}), sale(1.5, 0.2), model, testThresholds)
	require.NoError(err)
	require.False(s.SellOverridden)
	require.Equal(1.5, s.Winner.Schedule[0].BatteryToGridKWh)

	// too small
	disallowed := sale(0.5, 0.2)
	s, err = SelectStrategy(result(true, domain.SolveStatusInfeasible, 0, domain.ScheduleDecision{}), disallowed, model, testThresholds)
	require.NoError(err)
	require.True(s.SellOverridden)
	require.Zero(s.Winner.Schedule[0].BatteryToGridKWh)
	require.Equal(6.5, s.Winner.Schedule[0].SoCKWh)
	require.Equal(0.5, disallowed.Schedule[0].BatteryToGridKWh, "input schedule untouched")

	// too cheap after fee
	s, err = SelectStrategy(result(true, domain.SolveStatusInfeasible, 0, domain.ScheduleDecision{}), sale(2, 0.105), model, testThresholds)
	require.NoError(err)
	require.True(s.SellOverridden)
	require.Equal(domain.OperatingModeTOUNone, ClassifyMode(s.Winner.Schedule[0], testThresholds))
}
