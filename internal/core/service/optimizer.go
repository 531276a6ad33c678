package service

import (
	"context"
	"time"

	"github.com/creasty/defaults"
	"go.uber.org/zap"

	"github.com/berfenger/batteryplan2mqtt/internal/core/domain"
	"github.com/berfenger/batteryplan2mqtt/internal/core/port"
)

type DefaultBatteryOptimizer struct {
	Logger   *zap.Logger
	Horizon  HorizonOptions
	Solver   SolverOptions
	Observer port.OptimizerObserver
}

func NewBatteryOptimizer(logger *zap.Logger) *DefaultBatteryOptimizer {
	opt := &DefaultBatteryOptimizer{
		Logger: logger,
	}
	if err := defaults.Set(&opt.Horizon); err != nil {
		panic(err)
	}
	if err := defaults.Set(&opt.Solver); err != nil {
		panic(err)
	}
	return opt
}

// Optimize runs one planning invocation: assemble the horizon, solve both
// strategies, select the winner and map its first hour to a decision.
// No state is kept between calls.
func (o *DefaultBatteryOptimizer) Optimize(ctx context.Context, req domain.OptimizeRequest) (*domain.Plan, error) {
	plan, err := o.optimize(ctx, req)
	if err != nil {
		o.Logger.Warn("optimizer: planning failed", zap.Error(err))
		if o.Observer != nil {
			o.Observer.ObserveFailure(err)
		}
		return nil, err
	}
	if o.Observer != nil {
		o.Observer.ObservePlan(plan)
	}
	return plan, nil
}

func (o *DefaultBatteryOptimizer) optimize(ctx context.Context, req domain.OptimizeRequest) (*domain.Plan, error) {
	model, err := NewConstraintModel(req.Battery, req.Grid, HORIZON_STEP)
	if err != nil {
		return nil, err
	}
	if err := ValidateThresholds(req.Thresholds); err != nil {
		return nil, err
	}
	soc, err := model.ClampSoC(req.SoCKWh)
	if err != nil {
		return nil, err
	}
	if soc != req.SoCKWh {
		o.Logger.Debug("optimizer: state of charge clamped", zap.Float64("reading", req.SoCKWh), zap.Float64("soc", soc))
	}

	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	horizon, err := AssembleHorizon(now, req.Inputs, o.Horizon)
	if err != nil {
		return nil, err
	}
	o.Logger.Debug("optimizer: horizon assembled",
		zap.Int("hours", len(horizon)),
		zap.Time("from", horizon[0].Start),
		zap.Float64("soc", soc))

	run, err := RunStrategies(ctx, horizon, soc, model, o.Solver)
	if err != nil {
		return nil, err
	}
	for _, r := range []domain.StrategyResult{run.Allowed, run.Disallowed} {
		o.Logger.Debug("optimizer: strategy solved",
			zap.String("strategy", r.StrategyName()),
			zap.String("status", string(r.Status)),
			zap.Float64("objective", r.Objective),
			zap.Duration("duration", run.Durations[r.GridChargingAllowed]),
			zap.Error(r.Err))
		if o.Observer != nil {
			o.Observer.ObserveSolve(r.StrategyName(), r.Status, run.Durations[r.GridChargingAllowed])
		}
	}

	selection, err := SelectStrategy(run.Allowed, run.Disallowed, model, req.Thresholds)
	if err != nil {
		return nil, err
	}
	if selection.SellOverridden {
		o.Logger.Info("optimizer: first hour sale below sell floor, overridden")
	}

	for i := range selection.Winner.Schedule {
		selection.Winner.Schedule[i].Mode = ClassifyMode(selection.Winner.Schedule[i], req.Thresholds)
	}
	decision := MapDecision(selection.Winner.Schedule[0], model, req.Thresholds)
	plan := &domain.Plan{
		CreatedAt:           now,
		Decision:            decision,
		Horizon:             horizon,
		Schedule:            selection.Winner.Schedule,
		GridChargingAllowed: selection.Winner.GridChargingAllowed,
		AllowedProfit:       objectiveOf(run.Allowed),
		DisallowedProfit:    objectiveOf(run.Disallowed),
		SellOverridden:      selection.SellOverridden,
	}
	o.Logger.Info("optimizer: plan ready",
		zap.String("mode", string(decision.Mode)),
		zap.String("strategy", selection.Winner.StrategyName()),
		zap.Float64("profit", plan.Profit()),
		zap.Uint32("charge_power", decision.ChargePowerWatt),
		zap.Uint32("feed_grid_power", decision.FeedGridPowerWatt))
	return plan, nil
}

func objectiveOf(r domain.StrategyResult) *float64 {
	if !r.Optimal() {
		return nil
	}
	v := r.Objective
	return &v
}

// ensure interface compliance
var _ port.BatteryOptimizer = (*DefaultBatteryOptimizer)(nil)
