package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/berfenger/batteryplan2mqtt/internal/core/domain"
)

// Nordpool style price payload. Either the plain lists (one value per slot,
// starting at local midnight of date) or the raw lists with explicit periods.
type pricePayload struct {
	Date          string          `json:"date"`
	Today         []*float64      `json:"today"`
	Tomorrow      []*float64      `json:"tomorrow"`
	TomorrowValid bool            `json:"tomorrow_valid"`
	RawToday      []priceSlotJSON `json:"raw_today"`
	RawTomorrow   []priceSlotJSON `json:"raw_tomorrow"`
}

type priceSlotJSON struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Value *float64  `json:"value"`
}

// ErrUndatedPrices is returned for plain lists without a date when the
// receive time cannot tell their day.
var ErrUndatedPrices = errors.New("price payload: plain lists without a date")

// ParsePricePayload reads a price curve. Explicit slot periods win, then the
// date field. Without either the plain lists refer to the local day of
// received.
func ParsePricePayload(payload []byte, received time.Time) ([]domain.SeriesPoint, error) {
	return parsePricePayload(payload, received, false)
}

// ParseRetainedPricePayload is ParsePricePayload for a retained message,
// which may have been published on an earlier day. Undated plain lists are
// rejected with ErrUndatedPrices.
func ParseRetainedPricePayload(payload []byte, received time.Time) ([]domain.SeriesPoint, error) {
	return parsePricePayload(payload, received, true)
}

func parsePricePayload(payload []byte, received time.Time, requireDate bool) ([]domain.SeriesPoint, error) {
	trimmed := strings.TrimSpace(string(payload))
	if strings.HasPrefix(trimmed, "[") {
		var slots []priceSlotJSON
		if err := json.Unmarshal([]byte(trimmed), &slots); err != nil {
			return nil, fmt.Errorf("price payload: %w", err)
		}
		return slotsToSeries(slots), nil
	}

	var p pricePayload
	if err := json.Unmarshal([]byte(trimmed), &p); err != nil {
		return nil, fmt.Errorf("price payload: %w", err)
	}
	if len(p.RawToday) > 0 {
		points := slotsToSeries(p.RawToday)
		if p.TomorrowValid || len(p.Tomorrow) == 0 {
			points = append(points, slotsToSeries(p.RawTomorrow)...)
		}
		return sortSeries(points), nil
	}
	if len(p.Today) == 0 {
		return nil, errors.New("price payload: no prices")
	}

	var midnight time.Time
	switch {
	case p.Date != "":
		day, err := time.ParseInLocation(time.DateOnly, p.Date, received.Location())
		if err != nil {
			return nil, fmt.Errorf("price payload: date: %w", err)
		}
		midnight = day
	case requireDate:
		return nil, ErrUndatedPrices
	default:
		midnight = time.Date(received.Year(), received.Month(), received.Day(), 0, 0, 0, 0, received.Location())
	}

	points := dayToSeries(p.Today, midnight)
	if p.TomorrowValid {
		points = append(points, dayToSeries(p.Tomorrow, midnight.AddDate(0, 0, 1))...)
	}
	return points, nil
}

func slotsToSeries(slots []priceSlotJSON) []domain.SeriesPoint {
	points := make([]domain.SeriesPoint, 0, len(slots))
	for _, s := range slots {
		if s.Value == nil || !s.End.After(s.Start) {
			continue
		}
		points = append(points, domain.SeriesPoint{
			Start:    s.Start,
			Duration: s.End.Sub(s.Start),
			Value:    *s.Value,
		})
	}
	return points
}

// dayToSeries spreads values over the calendar day starting at midnight,
// 23 or 25 hours long on DST changes.
func dayToSeries(values []*float64, midnight time.Time) []domain.SeriesPoint {
	if len(values) == 0 {
		return nil
	}
	length := midnight.AddDate(0, 0, 1).Sub(midnight)
	slot := length / time.Duration(len(values))
	points := make([]domain.SeriesPoint, 0, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		points = append(points, domain.SeriesPoint{
			Start:    midnight.Add(time.Duration(i) * slot),
			Duration: slot,
			Value:    *v,
		})
	}
	return points
}

// Solcast forecast entries. pv_estimate is the average power in kW over the
// period.
type pvForecastJSON struct {
	PeriodStart time.Time `json:"period_start"`
	PVEstimate  float64   `json:"pv_estimate"`
}

type pvPayload struct {
	DetailedHourly   []pvForecastJSON `json:"detailedHourly"`
	DetailedForecast []pvForecastJSON `json:"detailedForecast"`
}

// ParsePVPayload reads a PV forecast and returns energies in kWh per period.
func ParsePVPayload(payload []byte) ([]domain.SeriesPoint, error) {
	trimmed := strings.TrimSpace(string(payload))
	var entries []pvForecastJSON
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &entries); err != nil {
			return nil, fmt.Errorf("pv payload: %w", err)
		}
	} else {
		var p pvPayload
		if err := json.Unmarshal([]byte(trimmed), &p); err != nil {
			return nil, fmt.Errorf("pv payload: %w", err)
		}
		entries = p.DetailedForecast
		if len(p.DetailedHourly) > 0 {
			entries = p.DetailedHourly
		}
	}
	if len(entries) == 0 {
		return nil, errors.New("pv payload: no forecast")
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].PeriodStart.Before(entries[j].PeriodStart)
	})
	points := make([]domain.SeriesPoint, 0, len(entries))
	for i, e := range entries {
		period := time.Hour
		if i+1 < len(entries) {
			period = entries[i+1].PeriodStart.Sub(e.PeriodStart)
		} else if i > 0 {
			period = e.PeriodStart.Sub(entries[i-1].PeriodStart)
		}
		if period <= 0 {
			continue
		}
		points = append(points, domain.SeriesPoint{
			Start:    e.PeriodStart,
			Duration: period,
			Value:    math.Max(0, e.PVEstimate) * period.Hours(),
		})
	}
	return points, nil
}

// ParseSoCPayload reads a state of charge in percent.
func ParseSoCPayload(payload []byte) (float64, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(string(payload)), 64)
	if err != nil {
		return 0, fmt.Errorf("soc payload: %w", err)
	}
	if math.IsNaN(value) || value < 0 || value > 100 {
		return 0, fmt.Errorf("soc payload: %v out of range", value)
	}
	return value, nil
}

// MergeSeries combines two series, points of next replace points of prev with
// the same start.
func MergeSeries(prev, next []domain.SeriesPoint) []domain.SeriesPoint {
	byStart := make(map[time.Time]domain.SeriesPoint, len(prev)+len(next))
	for _, p := range prev {
		byStart[p.Start.UTC()] = p
	}
	for _, p := range next {
		byStart[p.Start.UTC()] = p
	}
	merged := make([]domain.SeriesPoint, 0, len(byStart))
	for _, p := range byStart {
		merged = append(merged, p)
	}
	return sortSeries(merged)
}

func sortSeries(points []domain.SeriesPoint) []domain.SeriesPoint {
	sort.Slice(points, func(i, j int) bool {
		return points[i].Start.Before(points[j].Start)
	})
	return points
}
