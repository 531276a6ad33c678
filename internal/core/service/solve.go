package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/berfenger/batteryplan2mqtt/internal/core/domain"
)

type SolverOptions struct {
	Timeout   time.Duration `default:"30s"`
	Tolerance float64       `default:"1e-10"`
}

type solveOutcome struct {
	solution *LPSolution
	err      error
}

// SolveFormulation runs the simplex on one formulation. The call is bounded
// by opts.Timeout, the solver goroutine stops at its next context check.
func SolveFormulation(ctx context.Context, f *Formulation, opts SolverOptions) domain.StrategyResult {
	result := domain.StrategyResult{
		GridChargingAllowed: f.GridChargingAllowed,
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	done := make(chan solveOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- solveOutcome{err: fmt.Errorf("solver panic: %v", r)}
			}
		}()
		solution, err := f.Program.SolveContext(ctx, opts.Tolerance)
		done <- solveOutcome{solution: solution, err: err}
	}()

	select {
	case <-ctx.Done():
		result.Status, result.Err = classifySolveError(result.StrategyName(), ctx.Err())
		return result
	case outcome := <-done:
		if outcome.err != nil {
			result.Status, result.Err = classifySolveError(result.StrategyName(), outcome.err)
			return result
		}
		result.Status = domain.SolveStatusOptimal
		result.Objective = outcome.solution.Objective
		result.Schedule = f.Schedule(outcome.solution.Values)
		return result
	}
}

func classifySolveError(strategy string, err error) (domain.SolveStatus, error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.SolveStatusTimeout, fmt.Errorf("%w: %s", domain.ErrOptimizationTimeout, strategy)
	case errors.Is(err, lp.ErrInfeasible):
		return domain.SolveStatusInfeasible, fmt.Errorf("%w: %s: %w", domain.ErrInfeasibleModel, strategy, err)
	case errors.Is(err, lp.ErrUnbounded):
		return domain.SolveStatusUnbounded, fmt.Errorf("%w: %s: %w", domain.ErrOptimizationFailed, strategy, err)
	default:
		return domain.SolveStatusFailed, fmt.Errorf("%w: %s: %w", domain.ErrOptimizationFailed, strategy, err)
	}
}

type StrategyRun struct {
	Allowed    domain.StrategyResult
	Disallowed domain.StrategyResult
	Durations  map[bool]time.Duration
}

// RunStrategies formulates and solves both strategies in parallel. A failure
// of one strategy is reported in its result and never cancels the other.
func RunStrategies(ctx context.Context, horizon []domain.HorizonPoint, initialSoC float64,
	model *ConstraintModel, opts SolverOptions) (*StrategyRun, error) {

	formulations := make([]*Formulation, 2)
	for i, allowed := range []bool{true, false} {
		f, err := Formulate(horizon, initialSoC, model, allowed)
		if err != nil {
			return nil, err
		}
		formulations[i] = f
	}

	results := make([]domain.StrategyResult, 2)
	durations := make([]time.Duration, 2)
	var g errgroup.Group
	for i := range formulations {
		g.Go(func() error {
			start := time.Now()
			results[i] = SolveFormulation(ctx, formulations[i], opts)
			durations[i] = time.Since(start)
			return nil
		})
	}
	_ = g.Wait()

	return &StrategyRun{
		Allowed:    results[0],
		Disallowed: results[1],
		Durations: map[bool]time.Duration{
			true:  durations[0],
			false: durations[1],
		},
	}, nil
}
