package service

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/berfenger/batteryplan2mqtt/internal/core/domain"
)

type Selection struct {
	Winner         domain.StrategyResult
	SellOverridden bool
}

// SelectStrategy picks the grid-charging strategy only when it beats the
// other one by at least MinGridChargeProfit, then applies the first-hour
// sell floor to the winning schedule.
func SelectStrategy(allowed, disallowed domain.StrategyResult, model *ConstraintModel, thresholds domain.Thresholds) (*Selection, error) {
	var winner domain.StrategyResult
	switch {
	case allowed.Optimal() && disallowed.Optimal():
		if allowed.Objective-disallowed.Objective >= thresholds.MinGridChargeProfit {
			winner = allowed
		} else {
			winner = disallowed
		}
	case allowed.Optimal():
		winner = allowed
	case disallowed.Optimal():
		winner = disallowed
	default:
		return nil, bothFailed(allowed, disallowed)
	}

	winner.Schedule = slices.Clone(winner.Schedule)
	if len(winner.Schedule) == 0 {
		return nil, fmt.Errorf("%w: %s returned an empty schedule", domain.ErrOptimizationFailed, winner.StrategyName())
	}

	overridden := applySellFloor(&winner.Schedule[0], model)
	return &Selection{
		Winner:         winner,
		SellOverridden: overridden,
	}, nil
}

func bothFailed(allowed, disallowed domain.StrategyResult) error {
	causes := errors.Join(allowed.Err, disallowed.Err)
	if allowed.Status == domain.SolveStatusTimeout && disallowed.Status == domain.SolveStatusTimeout {
		return fmt.Errorf("%w: both strategies: %w", domain.ErrOptimizationTimeout, causes)
	}
	return fmt.Errorf("%w: both strategies: %w", domain.ErrOptimizationFailed, causes)
}

// applySellFloor zeroes a first-hour sale that is too small or too cheap.
// The energy stays in the battery.
func applySellFloor(first *domain.ScheduleDecision, model *ConstraintModel) bool {
	if first.BatteryToGridKWh <= 0 {
		return false
	}
	grid := model.Grid
	if first.BatteryToGridKWh >= grid.MinSellQuantityKWh && first.Price-grid.FeePerKWh >= grid.MinSellPrice {
		return false
	}
	first.SoCKWh = math.Min(first.SoCKWh+first.BatteryToGridKWh, model.Battery.CapacityKWh)
	first.BatteryToGridKWh = 0
	return true
}
