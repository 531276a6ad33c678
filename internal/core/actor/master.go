package actor

import (
	"fmt"
	"time"

	adactor "github.com/berfenger/batteryplan2mqtt/internal/adapter/actor"
	"github.com/berfenger/batteryplan2mqtt/internal/config"
	"github.com/berfenger/batteryplan2mqtt/internal/core/domain"
	"github.com/berfenger/batteryplan2mqtt/internal/core/port"
	. "github.com/berfenger/batteryplan2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

// ModbusActorProvider is nil when the inverter is not reachable over Modbus.
type ModbusActorProvider func() *adactor.ModbusActor

type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck  healthCheckResult
	eventStream         *eventstream.EventStream
	optimizer           port.BatteryOptimizer
	modbusActor         *actor.PID
	mqttActor           *actor.PID
	plannerActor        *actor.PID
	modbusActorProvider ModbusActorProvider
	mqttActorProvider   MQTTActorProvider
	logger              *zap.Logger
}

type healthCheckResult struct {
	expected       map[string]bool
	healthy        map[string]bool
	checksReceived int
	respondTo      *actor.PID
}

func NewMasterOfPuppetsActor(config config.Config, optimizer port.BatteryOptimizer, modbusActorProvider ModbusActorProvider,
	mqttActorProvider MQTTActorProvider, logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:              config,
		behavior:            actor.NewBehavior(),
		stash:               &Stash{},
		logger:              ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:         &eventstream.EventStream{},
		optimizer:           optimizer,
		modbusActorProvider: modbusActorProvider,
		mqttActorProvider:   mqttActorProvider,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		// order matters, the planner needs the adapter PIDs
		if state.modbusActorProvider != nil {
			state.modbusActor = state.spawnChild(ctx, childSpec{
				id:       domain.ACTOR_ID_MODBUS,
				producer: func() actor.Actor { return state.modbusActorProvider() },
				strategy: backoffStrategy(),
			})
		}
		state.mqttActor = state.spawnChild(ctx, childSpec{
			id:       domain.ACTOR_ID_MQTT,
			producer: func() actor.Actor { return state.mqttActorProvider(state.eventStream) },
			strategy: backoffStrategy(),
		})
		state.plannerActor = state.spawnChild(ctx, childSpec{
			id: domain.ACTOR_ID_PLANNER,
			producer: func() actor.Actor {
				return NewPlannerActor(&state.config, state.optimizer, state.mqttActor, state.modbusActor, state.eventStream, state.logger)
			},
			strategy: state.restartStrategy(3),
		})
		if state.config.MQTT.HADiscoveryEnable {
			state.spawnChild(ctx, childSpec{
				id: domain.ACTOR_ID_HA_DISCOVERY,
				producer: func() actor.Actor {
					return NewHADiscoveryActor(&state.config, state.mqttActor, state.logger)
				},
				strategy: state.restartStrategy(1),
			})
		}

		state.currentHealthCheck = newHealthCheckResult(state.healthCheckTargets())

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset()
		state.currentHealthCheck.respondTo = ctx.Sender()
		for id, pid := range state.healthCheckTargets() {
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
				return domain.ActorHealthResponse{
					Id:      id,
					Healthy: false,
				}
			})
		}

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case adactor.ParsedCommand:
		// redirect parsedCommand to planner
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command != nil {
			cmd, err := ParsedMQTTCommandToCommand(*msg.Command)
			if err != nil {
				state.logger.Warn("master@default invalid command", zap.Any("command", msg.Command), zap.Error(err))
				return
			}
			if pcmd, ok := cmd.(domain.PlannerRequest); ok {
				ctx.Send(state.plannerActor, pcmd)
			}
		}
	case domain.PlannerRequest:
		// requests from the scheduler and the HTTP server
		ctx.Forward(state.plannerActor)
	case *actor.Terminated:
		state.logger.Warn("master@default child terminated", zap.String("who", msg.Who.Id))
	default:
		state.logger.Debug("master@default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		ctx.SetReceiveTimeout(0)
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.record(msg)
		if state.currentHealthCheck.allReceived() {
			ctx.SetReceiveTimeout(0)
			state.currentHealthCheck.respond(ctx)

			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) healthCheckTargets() map[string]*actor.PID {
	targets := map[string]*actor.PID{
		domain.ACTOR_ID_MQTT:    state.mqttActor,
		domain.ACTOR_ID_PLANNER: state.plannerActor,
	}
	if state.modbusActor != nil {
		targets[domain.ACTOR_ID_MODBUS] = state.modbusActor
	}
	return targets
}

type childSpec struct {
	id       string
	producer actor.Producer
	strategy actor.SupervisorStrategy
}

// spawnChild panics when the name is already taken.
func (state *MasterOfPuppetsActor) spawnChild(ctx actor.Context, spec childSpec) *actor.PID {
	pid, err := ctx.SpawnNamed(actor.PropsFromProducer(spec.producer, actor.WithSupervisor(spec.strategy)), spec.id)
	if err != nil {
		panic(fmt.Errorf("spawn %s: %w", spec.id, err))
	}
	return pid
}

// adapters reconnect with backoff
func backoffStrategy() actor.SupervisorStrategy {
	return actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)
}

func (state *MasterOfPuppetsActor) restartStrategy(maxRetries int) actor.SupervisorStrategy {
	return actor.NewOneForOneStrategy(maxRetries, 10*time.Second, func(reason interface{}) actor.Directive {
		state.logger.Error("master: child failed, restarting", zap.Any("reason", reason))
		return actor.RestartDirective
	})
}

func newHealthCheckResult(targets map[string]*actor.PID) healthCheckResult {
	result := healthCheckResult{
		expected: make(map[string]bool, len(targets)),
	}
	for id := range targets {
		result.expected[id] = true
	}
	result.reset()
	return result
}

func (state *healthCheckResult) reset() {
	state.healthy = make(map[string]bool, len(state.expected))
	state.checksReceived = 0
}

func (state *healthCheckResult) record(resp domain.ActorHealthResponse) {
	state.checksReceived++
	if resp.Healthy {
		state.healthy[resp.Id] = true
	}
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived >= len(state.expected)
}

func (state *healthCheckResult) allHealthy() bool {
	for id := range state.expected {
		if !state.healthy[id] {
			return false
		}
	}
	return true
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
