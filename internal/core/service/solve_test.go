package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/berfenger/batteryplan2mqtt/internal/core/domain"
)

func TestFormulateStrategyGate(t *testing.T) {

	require := require.New(t)
	model := genModel(testBattery, testGrid)
	horizon := genHorizon(flat(6, 0.1), nil, 0.5)

	allowed, err := Formulate(horizon, 2, model, true)
	require.NoError(err)
	disallowed, err := Formulate(horizon, 2, model, false)
	require.NoError(err)

	require.Equal(allowed.Program.NumVariables(), disallowed.Program.NumVariables())
	require.Equal(7*len(horizon), allowed.Program.NumVariables())
	for _, step := range disallowed.steps {
		lower, upper := disallowed.Program.Bounds(step.gridCharge)
		require.Zero(lower)
		require.Zero(upper)
	}
	_, upper := allowed.Program.Bounds(allowed.steps[0].gridCharge)
	require.InDelta(model.MaxChargeEnergy(), upper, tolerance)

	_, err = Formulate(nil, 2, model, true)
	require.ErrorIs(err, domain.ErrInsufficientData)
}

func TestFormulateNegativePriceFloor(t *testing.T) {

	require := require.New(t)
	grid := testGrid
	grid.MinLoadWatt = 400
	model := genModel(testBattery, grid)

	prices := []float64{0.1, -0.05, -0.05}
	f, err := Formulate(genHorizon(prices, nil, 0.25), 2, model, false)
	require.NoError(err)
	base, err := Formulate(genHorizon(flat(3, 0.1), nil, 0.25), 2, model, false)
	require.NoError(err)
	require.Equal(base.Program.NumConstraints()+2, f.Program.NumConstraints())

	r := SolveFormulation(context.Background(), f, optimizer.Solver)
	require.True(r.Optimal(), r.Err)
	for _, d := range r.Schedule[1:] {
		require.GreaterOrEqual(d.GridToLoadKWh+d.GridChargeKWh, 0.25-tolerance, "floor capped at consumption")
	}
}

func TestNegativePriceFloorWithFullBattery(t *testing.T) {

	require := require.New(t)
	grid := testGrid
	grid.MinLoadWatt = 2000
	model := genModel(testBattery, grid)

	// a full battery takes no grid energy, the load is the only sink
	horizon := genHorizon([]float64{-0.05, -0.05, 0.1}, nil, 0.25)
	run, err := RunStrategies(context.Background(), horizon, testBattery.CapacityKWh, model, optimizer.Solver)
	require.NoError(err)
	for _, r := range []domain.StrategyResult{run.Allowed, run.Disallowed} {
		require.True(r.Optimal(), "%s: %v", r.StrategyName(), r.Err)
		require.GreaterOrEqual(r.Schedule[0].GridToLoadKWh+r.Schedule[0].GridChargeKWh, 0.25-tolerance)
	}
}

func TestSolveFormulationSchedule(t *testing.T) {

	require := require.New(t)
	model := genModel(testBattery, testGrid)

	// morning PV surplus is stored and used for the following hours
	pv := []float64{2, 0, 0, 0}
	f, err := Formulate(genHorizon(flat(4, 0.1), pv, 0.5), 1, model, false)
	require.NoError(err)

	r := SolveFormulation(context.Background(), f, optimizer.Solver)
	require.Equal(domain.SolveStatusOptimal, r.Status)
	require.NoError(r.Err)
	require.Len(r.Schedule, 4)

	first := r.Schedule[0]
	require.Equal(testStart, first.Start)
	require.InDelta(0.5, first.PVToLoadKWh, tolerance)
	require.InDelta(1.5, first.PVToBatteryKWh, tolerance)
	require.InDelta(0, first.BatteryToGridKWh, tolerance)
	require.InDelta(1+1.5*0.95, first.SoCKWh, tolerance)
	require.InDelta(0, first.PVSurplusKWh, tolerance)

	// 1.5 kWh of load after the first hour, 1.425 kWh come from the battery
	require.InDelta(-0.11*0.075, r.Objective, tolerance)
}

func TestSolveFormulationInfeasible(t *testing.T) {

	require := require.New(t)
	grid := testGrid
	grid.MaxLoadWatt = 100
	model := genModel(testBattery, grid)

	// load cannot be served with an empty battery and a weak grid
	f, err := Formulate(genHorizon(flat(3, 0.1), nil, 2), testBattery.MinSoCKWh, model, false)
	require.NoError(err)
	r := SolveFormulation(context.Background(), f, optimizer.Solver)
	require.Equal(domain.SolveStatusInfeasible, r.Status)
	require.ErrorIs(r.Err, domain.ErrInfeasibleModel)
	require.Empty(r.Schedule)
}

func TestSolveFormulationTimeout(t *testing.T) {

	require := require.New(t)
	model := genModel(testBattery, testGrid)

	f, err := Formulate(genHorizon(flat(48, 0.1), nil, 0.5), 2, model, true)
	require.NoError(err)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	r := SolveFormulation(ctx, f, optimizer.Solver)
	require.Equal(domain.SolveStatusTimeout, r.Status)
	require.ErrorIs(r.Err, domain.ErrOptimizationTimeout)
}

func TestRunStrategiesIsolatesFailures(t *testing.T) {

	require := require.New(t)
	grid := testGrid
	grid.MaxLoadWatt = 100
	model := genModel(testBattery, grid)

	run, err := RunStrategies(context.Background(), genHorizon(flat(3, 0.1), nil, 2), testBattery.MinSoCKWh, model, optimizer.Solver)
	require.NoError(err)
	require.Equal(domain.SolveStatusInfeasible, run.Allowed.Status)
	require.Equal(domain.SolveStatusInfeasible, run.Disallowed.Status)
	require.True(run.Allowed.GridChargingAllowed)
	require.False(run.Disallowed.GridChargingAllowed)

	_, err = SelectStrategy(run.Allowed, run.Disallowed, model, testThresholds)
	require.ErrorIs(err, domain.ErrOptimizationFailed)
	require.ErrorIs(err, domain.ErrInfeasibleModel)
}
