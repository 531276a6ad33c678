package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berfenger/batteryplan2mqtt/internal/core/domain"
)

var horizonOpts = HorizonOptions{Lookahead: 48 * time.Hour}

func TestAssembleHorizonAlignsAndTruncates(t *testing.T) {

	require := require.New(t)

	inputs := domain.ForecastInputs{
		Prices:             series(0.1, 0.2, 0.3, 0.4),
		PV:                 series(0, 1, 2),
		ConsumptionProfile: domain.DefaultConsumptionProfile(),
	}
	horizon, err := AssembleHorizon(testStart.Add(42*time.Minute), inputs, horizonOpts)
	require.NoError(err)

	require.Len(horizon, 4, "no price is invented after the known curve")
	require.Equal(testStart, horizon[0].Start)
	require.Equal(testStart.Add(3*time.Hour), horizon[3].Start)
	require.InDelta(0.4, horizon[3].Price, 1e-12)
	require.InDelta(2, horizon[2].PVKWh, 1e-12)
	require.Zero(horizon[3].PVKWh)
	// March profile
	require.InDelta(0.85, horizon[0].ConsumptionKWh, 1e-12)
}

func TestAssembleHorizonResamples(t *testing.T) {

	require := require.New(t)

	// quarter hour prices for two hours
	var prices []domain.SeriesPoint
	for i, v := range []float64{0.10, 0.20, 0.30, 0.40, 0.5, 0.5, 0.5, 0.5} {
		prices = append(prices, domain.SeriesPoint{
			Start:    testStart.Add(time.Duration(i) * 15 * time.Minute),
			Duration: 15 * time.Minute,
			Value:    v,
		})
	}
	// half hour PV energies, the last one is past the horizon
	var pv []domain.SeriesPoint
	for i, v := range []float64{0.4, 0.6, 1.0, 0.8, 0.5} {
		pv = append(pv, domain.SeriesPoint{
			Start:    testStart.Add(time.Duration(i) * 30 * time.Minute),
			Duration: 30 * time.Minute,
			Value:    v,
		})
	}

	horizon, err := AssembleHorizon(testStart, domain.ForecastInputs{
		Prices:      prices,
		PV:          pv,
		Consumption: series(0.3, 0.35),
	}, horizonOpts)
	require.NoError(err)
	require.Len(horizon, 2)

	require.InDelta(0.25, horizon[0].Price, 1e-12)
	require.InDelta(0.5, horizon[1].Price, 1e-12)
	require.InDelta(1.0, horizon[0].PVKWh, 1e-12)
	require.InDelta(1.8, horizon[1].PVKWh, 1e-12)
	require.InDelta(0.3, horizon[0].ConsumptionKWh, 1e-12)
	require.InDelta(0.35, horizon[1].ConsumptionKWh, 1e-12)
}

func TestAssembleHorizonCarriesPVForward(t *testing.T) {

	require := require.New(t)

	yesterday := testStart.Add(-24 * time.Hour)
	inputs := domain.ForecastInputs{
		Prices: series(0.1, 0.1),
		PV: []domain.SeriesPoint{
			{Start: yesterday, Duration: time.Hour, Value: 1.2},
			{Start: testStart.Add(time.Hour), Duration: time.Hour, Value: 0.7},
		},
	}
	horizon, err := AssembleHorizon(testStart, inputs, horizonOpts)
	require.NoError(err)
	require.InDelta(1.2, horizon[0].PVKWh, 1e-12)
	require.InDelta(0.7, horizon[1].PVKWh, 1e-12)
	// nil profile falls back to the default hourly value
	require.InDelta(domain.DEFAULT_HOURLY_CONSUMPTION_KWH, horizon[0].ConsumptionKWh, 1e-12)
}

func TestAssembleHorizonLookahead(t *testing.T) {

	require := require.New(t)

	horizon, err := AssembleHorizon(testStart, domain.ForecastInputs{Prices: series(flat(30, 0.1)...)},
		HorizonOptions{Lookahead: 24 * time.Hour})
	require.NoError(err)
	require.Len(horizon, 24)
}

func TestAssembleHorizonInsufficientData(t *testing.T) {

	assert := assert.New(t)

	_, err := AssembleHorizon(testStart, domain.ForecastInputs{}, horizonOpts)
	assert.ErrorIs(err, domain.ErrInsufficientData)

	// price known only for the next hour
	_, err = AssembleHorizon(testStart.Add(-time.Hour), domain.ForecastInputs{Prices: series(0.1)}, horizonOpts)
	assert.ErrorIs(err, domain.ErrInsufficientData)

	// half an hour of price data
	_, err = AssembleHorizon(testStart, domain.ForecastInputs{Prices: []domain.SeriesPoint{
		{Start: testStart, Duration: 30 * time.Minute, Value: 0.1},
	}}, horizonOpts)
	assert.ErrorIs(err, domain.ErrInsufficientData)

	_, err = AssembleHorizon(testStart, domain.ForecastInputs{Prices: series(0.1)}, HorizonOptions{Lookahead: 30 * time.Minute})
	assert.ErrorIs(err, domain.ErrInsufficientData)
}
