package actor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/batteryplan2mqtt/internal/config"
	"github.com/berfenger/batteryplan2mqtt/internal/core/domain"
	"github.com/berfenger/batteryplan2mqtt/internal/core/events"
	"github.com/berfenger/batteryplan2mqtt/internal/core/port"
	"github.com/berfenger/batteryplan2mqtt/internal/core/service"
	"github.com/berfenger/batteryplan2mqtt/internal/mqtt"
	. "github.com/berfenger/batteryplan2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

var ErrMissingSoC = errors.New("state of charge is not available")

type PlannerActor struct {
	ActorWithStates
	stash       *Stash
	config      *config.Config
	optimizer   port.BatteryOptimizer
	mqttActor   *actor.PID
	modbusActor *actor.PID
	eventStream *eventstream.EventStream
	clock       func() time.Time

	autoApply  bool
	thresholds domain.Thresholds
	profile    domain.ConsumptionProfile
	lastPlan   *domain.Plan
	lastError  error

	logger *zap.Logger
}

type planResult struct {
	plan *domain.Plan
	err  error
}

func NewPlannerActor(config *config.Config, optimizer port.BatteryOptimizer, mqttActor, modbusActor *actor.PID,
	eventStream *eventstream.EventStream, logger *zap.Logger) *PlannerActor {
	profile, err := config.Economics.ConsumptionProfile()
	if err != nil {
		// rejected by config.Check at startup
		profile = domain.DefaultConsumptionProfile()
	}
	act := &PlannerActor{
		config:      config,
		optimizer:   optimizer,
		mqttActor:   mqttActor,
		modbusActor: modbusActor,
		eventStream: eventStream,
		clock:       time.Now,
		stash:       &Stash{},
		autoApply:   config.Planner.AutoApply,
		thresholds:  config.Economics.Thresholds(),
		profile:     profile,
		logger:      ActorLogger(domain.ACTOR_ID_PLANNER, logger),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.OnTransition = func(from, to string) {
		act.logger.Debug("planner: transition", zap.String("from", from), zap.String("to", to))
	}
	act.Become(PlannerIdleState{actor: act})
	return act
}

func (state *PlannerActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// common handling for requests that never wait for a planning run
func (state *PlannerActor) receiveCommon(ctx actor.Context) bool {
	stateName := state.StateName()
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("planner@" + stateName + " started")
		state.publish(events.AutoApplySwitchUpdateEvent(state.autoApply))
		state.publish(events.MinGridChargeProfitUpdateEvent(state.thresholds.MinGridChargeProfit))
	case domain.ActorHealthRequest:
		state.logger.Debug("planner@" + stateName + ": ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_PLANNER,
			Healthy: true,
			State:   stateName,
		})
	case domain.GetLastPlanRequest:
		resp := domain.GetLastPlanResponse{Plan: state.lastPlan}
		if state.lastPlan == nil {
			resp.Error = state.lastError
			if resp.Error == nil {
				resp.Error = errors.New("no plan computed yet")
			}
		}
		ReplierFor(ctx, msg).Reply(ctx, resp)
	default:
		return false
	}
	return true
}

// Idle state

type PlannerIdleState struct {
	ActorState
	actor *PlannerActor
}

func (state PlannerIdleState) Name() string {
	return "idle"
}

func (state PlannerIdleState) Receive(ctx actor.Context) {
	if state.actor.receiveCommon(ctx) {
		return
	}
	switch msg := ctx.Message().(type) {
	case domain.RunPlanRequest:
		state.actor.logger.Info("planner@idle: run", zap.String("trigger", msg.Trigger))
		state.actor.publish(events.PlannerStatusUpdateEvent(events.PLANNER_STATUS_RUNNING))
		state.actor.Become(NewPlannerCollectingState(state.actor, ReplierFor(ctx, msg).PID()).OnEnterAction(ctx))
	case domain.SetAutoApplyRequest:
		state.actor.logger.Sugar().Debugf("planner@idle: cmd auto apply %t", msg.Enable)
		changed := state.actor.autoApply != msg.Enable
		state.actor.autoApply = msg.Enable
		state.actor.publish(events.AutoApplySwitchUpdateEvent(msg.Enable))
		ReplierFor(ctx, msg).Reply(ctx, domain.SetAutoApplyResponse{Changed: changed})
	case domain.SetMinGridChargeProfitRequest:
		state.actor.logger.Sugar().Debugf("planner@idle: cmd min grid charge profit %f", msg.Value)
		thresholds := state.actor.thresholds
		thresholds.MinGridChargeProfit = msg.Value
		if err := service.ValidateThresholds(thresholds); err != nil {
			ReplierFor(ctx, msg).Reply(ctx, domain.SetMinGridChargeProfitResponse{
				ResponseBase: domain.ResponseFailure(err),
				Value:        state.actor.thresholds.MinGridChargeProfit,
			})
			return
		}
		state.actor.thresholds = thresholds
		state.actor.publish(events.MinGridChargeProfitUpdateEvent(msg.Value))
		ReplierFor(ctx, msg).Reply(ctx, domain.SetMinGridChargeProfitResponse{Value: msg.Value})
	default:
		state.actor.logger.Debug("planner@idle: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Collecting state, waits for forecasts and state of charge

func NewPlannerCollectingState(fromActor *PlannerActor, replyTo *actor.PID) PlannerCollectingState {
	return PlannerCollectingState{
		actor:         fromActor,
		replyTo:       replyTo,
		awaitStorage:  fromActor.modbusActor != nil,
		awaitForecast: true,
	}
}

type PlannerCollectingState struct {
	ActorState
	actor         *PlannerActor
	replyTo       *actor.PID
	awaitForecast bool
	awaitStorage  bool
	forecast      *domain.GetForecastInputsResponse
	storage       *domain.GetStorageStateResponse
}

func (state PlannerCollectingState) Name() string {
	return "collecting"
}

func (state PlannerCollectingState) Receive(ctx actor.Context) {
	if state.actor.receiveCommon(ctx) {
		return
	}
	switch msg := ctx.Message().(type) {
	case domain.GetForecastInputsResponse:
		state.awaitForecast = false
		state.forecast = &msg
		state.next(ctx)
	case domain.GetStorageStateResponse:
		state.awaitStorage = false
		state.storage = &msg
		if msg.Failed() {
			state.actor.logger.Warn("planner@collecting: storage state unavailable", zap.Error(msg.Err()))
		}
		state.next(ctx)
	case *actor.ReceiveTimeout:
		ctx.SetReceiveTimeout(0)
		state.actor.finishWithError(ctx, state.replyTo, errors.New("timeout collecting planner inputs"))
	default:
		state.actor.logger.Debug("planner@collecting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

func (state PlannerCollectingState) OnEnterAction(ctx actor.Context) PlannerCollectingState {
	timeout := state.actor.config.Planner.InputTimeout()
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.mqttActor, domain.GetForecastInputsRequest{}, timeout),
		func(err error) any {
			return domain.GetForecastInputsResponse{
				ResponseBase: domain.ResponseFailure(err),
			}
		})
	if state.awaitStorage {
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.modbusActor, domain.GetStorageStateRequest{}, timeout),
			func(err error) any {
				return domain.GetStorageStateResponse{
					ResponseBase: domain.ResponseFailure(err),
				}
			})
	}
	ctx.SetReceiveTimeout(2 * timeout)
	return state
}

func (state PlannerCollectingState) next(ctx actor.Context) {
	if state.awaitForecast || state.awaitStorage {
		state.actor.Become(state)
		return
	}
	ctx.SetReceiveTimeout(0)
	if state.forecast.Failed() {
		state.actor.finishWithError(ctx, state.replyTo, fmt.Errorf("forecast inputs: %w", state.forecast.Err()))
		return
	}
	req, err := state.actor.optimizeRequest(state.forecast, state.storage)
	if err != nil {
		state.actor.finishWithError(ctx, state.replyTo, err)
		return
	}
	state.actor.Become(PlannerOptimizingState{
		actor:   state.actor,
		replyTo: state.replyTo,
	}.OnEnterAction(ctx, req))
}

// Optimizing state, the solver runs in a background task

type PlannerOptimizingState struct {
	ActorState
	actor   *PlannerActor
	replyTo *actor.PID
}

func (state PlannerOptimizingState) Name() string {
	return "optimizing"
}

func (state PlannerOptimizingState) Receive(ctx actor.Context) {
	if state.actor.receiveCommon(ctx) {
		return
	}
	switch msg := ctx.Message().(type) {
	case planResult:
		if msg.err != nil {
			state.actor.finishWithError(ctx, state.replyTo, msg.err)
			return
		}
		plan := msg.plan
		state.actor.logger.Info("planner@optimizing: plan ready",
			zap.String("mode", string(plan.Decision.Mode)),
			zap.Bool("grid_charging", plan.GridChargingAllowed),
			zap.Float64("profit", plan.Profit()))
		state.actor.lastPlan = plan
		state.actor.lastError = nil
		for _, ev := range events.PlanToUpdateEvents(plan) {
			state.actor.publish(ev)
		}
		state.actor.publish(events.PlannerStatusUpdateEvent(events.PLANNER_STATUS_OK))
		if state.replyTo != nil {
			ctx.Send(state.replyTo, domain.RunPlanResponse{Plan: plan})
		}
		if !state.actor.autoApply {
			state.actor.toIdle(ctx)
			return
		}
		applying := NewPlannerApplyingState(state.actor).OnEnterAction(ctx, plan.Decision)
		if applying.pending == 0 {
			state.actor.logger.Debug("planner@optimizing: no actuator configured")
			state.actor.toIdle(ctx)
			return
		}
		state.actor.Become(applying)
	default:
		state.actor.logger.Debug("planner@optimizing: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

func (state PlannerOptimizingState) OnEnterAction(ctx actor.Context, req domain.OptimizeRequest) PlannerOptimizingState {
	optimizer := state.actor.optimizer
	// both strategies run in parallel, each bounded by the solver timeout
	timeout := state.actor.config.Planner.SolverTimeout() + 5*time.Second
	NewTask(func() (planResult, error) {
		taskCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		plan, err := optimizer.Optimize(taskCtx, req)
		return planResult{plan: plan, err: err}, nil
	}).WithTimeout(timeout).PipeTo(ctx, ctx.Self(), func(result planResult, err error) any {
		if err != nil {
			// the task itself panicked or timed out
			return planResult{err: fmt.Errorf("%w: %v", domain.ErrOptimizationFailed, err)}
		}
		return result
	})
	return state
}

// Applying state, sends the decision to the configured actuators

func NewPlannerApplyingState(fromActor *PlannerActor) PlannerApplyingState {
	return PlannerApplyingState{
		actor: fromActor,
	}
}

type PlannerApplyingState struct {
	ActorState
	actor   *PlannerActor
	pending int
}

func (state PlannerApplyingState) Name() string {
	return "applying"
}

func (state PlannerApplyingState) Receive(ctx actor.Context) {
	if state.actor.receiveCommon(ctx) {
		return
	}
	switch msg := ctx.Message().(type) {
	case domain.PublishMessageResponse:
		if msg.Failed() {
			state.actor.logger.Error("planner@applying: decision publish error", zap.Error(msg.Err()))
		}
		state.done(ctx)
	case domain.SetStorageControlResponse:
		if msg.Failed() {
			state.actor.logger.Error("planner@applying: storage control error", zap.Error(msg.Err()))
		}
		state.done(ctx)
	case *actor.ReceiveTimeout:
		state.actor.logger.Warn("planner@applying: ReceiveTimeout")
		state.pending = 1
		state.done(ctx)
	default:
		state.actor.logger.Debug("planner@applying: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

func (state PlannerApplyingState) done(ctx actor.Context) {
	state.pending--
	if state.pending > 0 {
		state.actor.Become(state)
		return
	}
	ctx.SetReceiveTimeout(0)
	state.actor.toIdle(ctx)
}

func (state PlannerApplyingState) OnEnterAction(ctx actor.Context, decision domain.OperatingDecision) PlannerApplyingState {
	cfg := state.actor.config
	timeout := 5 * time.Second

	if cfg.Actuator.DecisionTopicEnable {
		payload, err := json.Marshal(service.DecisionCommandPayload(decision))
		if err != nil {
			state.actor.logger.Error("planner@applying: could not encode decision", zap.Error(err))
		} else {
			state.pending++
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.mqttActor, domain.PublishMessageRequest{
				Topic:   mqtt.Topics{Base: cfg.MQTT.BaseTopic}.Decision(),
				Payload: string(payload),
				Retain:  true,
			}, timeout), func(err error) any {
				return domain.PublishMessageResponse{
					ResponseBase: domain.ResponseFailure(err),
				}
			})
		}
	}
	if cfg.Actuator.ModbusEnable && state.actor.modbusActor != nil {
		params, release := service.StorageControlForDecision(decision, cfg.Actuator.RevertTimeSeconds)
		state.pending++
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.modbusActor, domain.SetStorageControlRequest{
			Params:  params,
			Release: release,
		}, timeout), func(err error) any {
			return domain.SetStorageControlResponse{
				ResponseBase: domain.ResponseFailure(err),
			}
		})
	}
	if state.pending > 0 {
		ctx.SetReceiveTimeout(2 * timeout)
	}
	return state
}

// Other actor function helpers

func (state *PlannerActor) toIdle(ctx actor.Context) {
	state.Become(PlannerIdleState{actor: state})
	state.stash.UnstashAll(ctx)
}

func (state *PlannerActor) finishWithError(ctx actor.Context, replyTo *actor.PID, err error) {
	state.logger.Error("planner: planning failed", zap.Error(err))
	state.lastError = err
	state.publish(events.PlannerStatusUpdateEvent(events.PLANNER_STATUS_ERROR))
	if replyTo != nil {
		ctx.Send(replyTo, domain.RunPlanResponse{
			ResponseBase: domain.ResponseFailure(err),
		})
	}
	state.toIdle(ctx)
}

func (state *PlannerActor) optimizeRequest(forecast *domain.GetForecastInputsResponse, storage *domain.GetStorageStateResponse) (domain.OptimizeRequest, error) {
	battery := state.config.Battery.Params()

	var socKWh float64
	switch {
	case storage != nil && !storage.Failed() && storage.StorageState != nil:
		socKWh = storage.StorageState.StoredEnergyKWh(battery.CapacityKWh)
	case forecast.SoCPercent != nil:
		socKWh = *forecast.SoCPercent / 100 * battery.CapacityKWh
	default:
		return domain.OptimizeRequest{}, ErrMissingSoC
	}

	return domain.OptimizeRequest{
		Now:    state.clock(),
		SoCKWh: socKWh,
		Inputs: domain.ForecastInputs{
			Prices:             forecast.Prices,
			PV:                 forecast.PV,
			ConsumptionProfile: state.profile,
		},
		Battery:    battery,
		Grid:       state.config.Grid.Params(),
		Thresholds: state.thresholds,
	}, nil
}

func (state *PlannerActor) publish(event any) {
	if state.eventStream != nil {
		state.eventStream.Publish(event)
	}
}
