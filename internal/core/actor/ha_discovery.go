package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/batteryplan2mqtt/internal/config"
	"github.com/berfenger/batteryplan2mqtt/internal/core/domain"
	"github.com/berfenger/batteryplan2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const discoveryTimeout = 5 * time.Second

var errMQTTUnhealthy = errors.New("mqtt actor is not healthy")

// HADiscoveryActor publishes the Home Assistant discovery documents once the
// MQTT actor reports healthy. A failed attempt crashes the actor and the
// supervisor retries it.
type HADiscoveryActor struct {
	config    *config.Config
	mqttActor *actor.PID
	published bool
	logger    *zap.Logger
}

type discoveryPublished struct {
	err error
}

func NewHADiscoveryActor(config *config.Config, mqttActor *actor.PID, logger *zap.Logger) *HADiscoveryActor {
	return &HADiscoveryActor{
		config:    config,
		mqttActor: mqttActor,
		logger:    actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
}

func (state *HADiscoveryActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery: started")
		state.publish(ctx)
	case discoveryPublished:
		if msg.err != nil {
			panic(fmt.Errorf("hadiscovery: %w", msg.err))
		}
		state.published = true
		state.logger.Info("hadiscovery: discovery published")
	case domain.ActorHealthRequest:
		status := "publishing"
		if state.published {
			status = "done"
		}
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_HA_DISCOVERY,
			Healthy: true,
			State:   status,
		})
	}
}

func (state *HADiscoveryActor) publish(ctx actor.Context) {
	root := ctx.ActorSystem().Root
	request := DiscoveryRequest(state.config)
	actorutil.NewTask(func() (bool, error) {
		health, err := root.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, discoveryTimeout).Result()
		if err != nil {
			return false, err
		}
		if h, ok := health.(domain.ActorHealthResponse); !ok || !h.Healthy {
			return false, errMQTTUnhealthy
		}
		resp, err := root.RequestFuture(state.mqttActor, request, discoveryTimeout).Result()
		if err != nil {
			return false, err
		}
		if r, ok := resp.(domain.PublishDiscoveryResponse); ok && r.Failed() {
			return false, r.Err()
		}
		return true, nil
	}).PipeTo(ctx, ctx.Self(), func(_ bool, err error) any {
		return discoveryPublished{err: err}
	})
}

// DiscoveryRequest lists every entity exposed by the bridge and the planner.
func DiscoveryRequest(cfg *config.Config) domain.PublishDiscoveryRequest {
	var sensors []domain.GenericSensor

	bridgeDevice := domain.BridgeDevice(cfg.MQTT.BaseTopic)
	sensors = append(sensors, domain.BridgeSensors(bridgeDevice)...)

	plannerDevice := domain.PlannerDevice(cfg.MQTT.BaseTopic)
	plannerDevice.ViaDevice = bridgeDevice.Id
	plannerSensors := domain.PlannerSensors(plannerDevice, cfg.Economics.Currency)
	for i := range plannerSensors {
		if i > 0 {
			plannerSensors[i].Device = domain.IdDevice(plannerDevice)
		}
		sensors = append(sensors, plannerSensors[i])
	}

	idDevice := domain.IdDevice(plannerDevice)
	return domain.PublishDiscoveryRequest{
		Sensors:      sensors,
		Switches:     domain.PlannerSwitches(idDevice),
		Buttons:      domain.PlannerButtons(idDevice),
		InputNumbers: domain.PlannerInputNumbers(idDevice, cfg.Economics.Currency, cfg.Economics.MinGridChargeProfit),
	}
}
