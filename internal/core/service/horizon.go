package service

import (
	"fmt"
	"math"
	"time"

	"github.com/berfenger/batteryplan2mqtt/internal/core/domain"
)

const HORIZON_STEP = time.Hour

// price must cover at least this share of an hour to be used
const minPriceCoverage = 0.999

type HorizonOptions struct {
	Lookahead time.Duration `default:"48h"`
}

// AssembleHorizon resamples the raw forecast series into hourly points
// starting at the hour that contains now. The horizon ends at the first hour
// without a known price.
func AssembleHorizon(now time.Time, inputs domain.ForecastInputs, opts HorizonOptions) ([]domain.HorizonPoint, error) {
	steps := int(opts.Lookahead / HORIZON_STEP)
	if steps < 1 {
		return nil, fmt.Errorf("%w: lookahead %s is shorter than one hour", domain.ErrInsufficientData, opts.Lookahead)
	}

	prices := usablePoints(inputs.Prices)
	pv := usablePoints(inputs.PV)
	consumption := usablePoints(inputs.Consumption)

	start := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
	horizon := make([]domain.HorizonPoint, 0, steps)
	for i := 0; i < steps; i++ {
		from := start.Add(time.Duration(i) * HORIZON_STEP)
		to := from.Add(HORIZON_STEP)

		price, ok := averageOver(prices, from, to)
		if !ok {
			break
		}

		pvKWh, ok := sumOver(pv, from, to)
		if !ok {
			// same hour of the previous day
			pvKWh, ok = sumOver(pv, from.Add(-24*time.Hour), to.Add(-24*time.Hour))
			if !ok {
				pvKWh = 0
			}
		}

		consumptionKWh, ok := sumOver(consumption, from, to)
		if !ok {
			consumptionKWh = inputs.ConsumptionProfile.HourlyKWh(from.Month()) * HORIZON_STEP.Hours()
		}

		horizon = append(horizon, domain.HorizonPoint{
			Start:          from,
			Price:          price,
			PVKWh:          math.Max(0, pvKWh),
			ConsumptionKWh: math.Max(0, consumptionKWh),
		})
	}

	if len(horizon) == 0 {
		return nil, fmt.Errorf("%w: no price known for %s", domain.ErrInsufficientData, start.Format(time.RFC3339))
	}
	return horizon, nil
}

func usablePoints(series []domain.SeriesPoint) []domain.SeriesPoint {
	points := make([]domain.SeriesPoint, 0, len(series))
	for _, p := range series {
		if p.Duration <= 0 || math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			continue
		}
		points = append(points, p)
	}
	return points
}

func overlap(p domain.SeriesPoint, from, to time.Time) time.Duration {
	s := p.Start
	if from.After(s) {
		s = from
	}
	e := p.End()
	if to.Before(e) {
		e = to
	}
	if !e.After(s) {
		return 0
	}
	return e.Sub(s)
}

// averageOver returns the duration weighted mean of the values covering
// [from, to). It fails if the series does not cover the whole interval.
func averageOver(series []domain.SeriesPoint, from, to time.Time) (float64, bool) {
	var covered time.Duration
	var weighted float64
	for _, p := range series {
		o := overlap(p, from, to)
		if o == 0 {
			continue
		}
		covered += o
		weighted += p.Value * o.Seconds()
	}
	total := to.Sub(from)
	if covered.Seconds() < total.Seconds()*minPriceCoverage {
		return 0, false
	}
	return weighted / covered.Seconds(), true
}

// sumOver returns the energy that falls into [from, to), splitting points
// proportionally to their overlap.
func sumOver(series []domain.SeriesPoint, from, to time.Time) (float64, bool) {
	found := false
	var sum float64
	for _, p := range series {
		o := overlap(p, from, to)
		if o == 0 {
			continue
		}
		found = true
		sum += p.Value * o.Seconds() / p.Duration.Seconds()
	}
	return sum, found
}
