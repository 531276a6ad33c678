package port

import (
	"context"
	"time"

	"github.com/berfenger/batteryplan2mqtt/internal/core/domain"
)

type BatteryOptimizer interface {
	Optimize(ctx context.Context, req domain.OptimizeRequest) (*domain.Plan, error)
}

// OptimizerObserver receives the outcome of every solve and invocation.
type OptimizerObserver interface {
	ObserveSolve(strategy string, status domain.SolveStatus, duration time.Duration)
	ObservePlan(plan *domain.Plan)
	ObserveFailure(err error)
}
