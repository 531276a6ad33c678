package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/batteryplan2mqtt/internal/config"
	"github.com/berfenger/batteryplan2mqtt/internal/core/domain"
	"github.com/berfenger/batteryplan2mqtt/internal/mqtt"
	"github.com/berfenger/batteryplan2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

const (
	mqttConnectTimeout   = 10 * time.Second
	mqttSubscribeTimeout = 2 * time.Second
	mqttPublishTimeout   = 5 * time.Second
)

// MQTTActor owns the broker connection. It caches the input topics, turns
// sensor events into state messages and forwards commands to its parent.
// Publishes are pipelined: acks come back as publishAck messages.
type MQTTActor struct {
	config         *config.Config
	behavior       actor.Behavior
	stash          *actorutil.Stash
	client         *mqtt.MQTTClient
	topics         mqtt.Topics
	eventStream    *eventstream.EventStream
	eventStreamSub *eventstream.Subscription
	inputs         *inputCache
	inflight       int
	logger         *zap.Logger
}

type ParsedCommand struct {
	Command *mqtt.ParsedMQTTCommand
}

type mqttConnected struct{}

type commandsSubscribed struct{}

type inputsSubscribed struct{}

type connectionLost struct {
	err error
}

type publishAck struct {
	topic   string
	replyTo *actor.PID
	err     error
}

func NewMQTTActor(config *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) *MQTTActor {
	act := newMQTTActor(config, eventStream, logger)
	act.behavior.Become(act.StartingReceive)
	return act
}

// NewTestMQTTActor never connects to a broker. Inputs can be fed with
// InputMessage and every publish is acknowledged right away.
func NewTestMQTTActor(config *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) *MQTTActor {
	act := newMQTTActor(config, eventStream, logger)
	act.behavior.Become(act.DummyReceive)
	return act
}

func newMQTTActor(config *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) *MQTTActor {
	return &MQTTActor{
		config:      config,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		topics:      mqtt.Topics{Base: config.MQTT.BaseTopic},
		eventStream: eventStream,
		inputs:      newInputCache(config.Inputs),
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
}

func (state *MQTTActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MQTTActor) StartingReceive(ctx actor.Context) {
	self := ctx.Self()
	root := ctx.ActorSystem().Root
	// broker callbacks run on paho goroutines
	toSelf := func(next any) func(error) {
		return func(err error) {
			if err != nil {
				root.Send(self, connectionLost{err: err})
				return
			}
			root.Send(self, next)
		}
	}

	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("mqtt@starting started")
		state.client = mqtt.CreateMQTTClient(state.config, mqtt.NewClientOptions(state.config), func(err error) {
			root.Send(self, connectionLost{err: err})
		})
		state.client.Connect(mqttConnectTimeout, toSelf(mqttConnected{}))
	case mqttConnected:
		state.logger.Debug("mqtt@starting connected")
		state.client.Publish(state.topics.BridgeState(), mqtt.MQTT_PAYLOAD_ONLINE, 0, true, mqttPublishTimeout, func(error) {})
		state.subscribeEventStream(ctx)
		state.client.SubscribeToCommands(func(cmd *mqtt.ParsedMQTTCommand) {
			root.Send(self, ParsedCommand{Command: cmd})
		}, mqttSubscribeTimeout, toSelf(commandsSubscribed{}))
	case commandsSubscribed:
		// retained forecasts arrive right after subscribing
		state.client.SubscribeToInputs(state.inputs.topicList(), func(topic string, payload []byte, retained bool) {
			root.Send(self, InputMessage{Topic: topic, Payload: payload, Received: time.Now(), Retained: retained})
		}, mqttSubscribeTimeout, toSelf(inputsSubscribed{}))
	case inputsSubscribed:
		state.logger.Debug("mqtt@starting subscribed")
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case connectionLost:
		// let the supervisor decide
		state.logger.Error("mqtt@starting connection lost", zap.Error(msg.err))
		panic(msg.err)
	case *actor.Restarting:
		state.stop()
	default:
		state.logger.Debug("mqtt@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting, *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   state.stateName(),
		})
	case ParsedCommand:
		state.logger.Debug("mqtt@default command", zap.Any("command", msg.Command))
		ctx.Send(ctx.Parent(), msg)
	case InputMessage:
		state.receiveInput(msg)
	case domain.GetForecastInputsRequest:
		actorutil.ReplierFor(ctx, msg).Reply(ctx, state.inputs.response())
	case domain.PublishMessageRequest:
		state.publish(ctx, outbound{topic: msg.Topic, payload: msg.Payload, retain: msg.Retain}, actorutil.ReplierFor(ctx, msg).PID())
	case domain.PublishSensorUpdateRequest:
		out, err := encodeSensorEvent(state.topics, msg.Event)
		if err != nil {
			state.logger.Warn("mqtt@default could not encode sensor event", zap.Error(err))
			return
		}
		out.retain = out.retain || msg.Retain
		state.publish(ctx, out, nil)
	case domain.PublishDiscoveryRequest:
		err := state.publishDiscovery(ctx, msg)
		if err != nil {
			state.logger.Error("mqtt@default discovery error", zap.Error(err))
		}
		actorutil.ReplierFor(ctx, msg).Reply(ctx, domain.PublishDiscoveryResponse{
			ResponseBase: domain.ResponseFailure(err),
		})
	case publishAck:
		state.inflight--
		if msg.err != nil {
			state.logger.Error("mqtt@default publish failed", zap.String("topic", msg.topic), zap.Error(msg.err))
		}
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, domain.PublishMessageResponse{
				ResponseBase: domain.ResponseFailure(msg.err),
			})
		}
	case connectionLost:
		state.logger.Error("mqtt@default connection lost", zap.Error(msg.err))
		panic(msg.err)
	default:
		state.logger.Debug("mqtt@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MQTTActor) DummyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.subscribeEventStream(ctx)
	case *actor.Stopping:
		state.unsubscribeEventStream()
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   state.stateName(),
		})
	case InputMessage:
		state.receiveInput(msg)
	case domain.GetForecastInputsRequest:
		actorutil.ReplierFor(ctx, msg).Reply(ctx, state.inputs.response())
	case domain.PublishSensorUpdateRequest:
		if _, err := encodeSensorEvent(state.topics, msg.Event); err != nil {
			state.logger.Warn("mqtt@dummy could not encode sensor event", zap.Error(err))
		}
		if msg.ReplyToRef != nil {
			actorutil.ReplierFor(ctx, msg).Reply(ctx, domain.PublishSensorUpdateResponse{})
		}
	case domain.PublishMessageRequest:
		actorutil.ReplierFor(ctx, msg).Reply(ctx, domain.PublishMessageResponse{})
	case domain.PublishDiscoveryRequest:
		_, err := mqtt.DiscoveryMessages(state.topics, state.config.MQTT.HADiscoveryTopic,
			msg.Sensors, msg.Switches, msg.Buttons, msg.InputNumbers)
		actorutil.ReplierFor(ctx, msg).Reply(ctx, domain.PublishDiscoveryResponse{
			ResponseBase: domain.ResponseFailure(err),
		})
	}
}

func (state *MQTTActor) stateName() string {
	if state.inflight > 0 {
		return fmt.Sprintf("publishing(%d)", state.inflight)
	}
	return "idle"
}

func (state *MQTTActor) subscribeEventStream(ctx actor.Context) {
	if state.eventStream == nil || state.eventStreamSub != nil {
		return
	}
	self := ctx.Self()
	root := ctx.ActorSystem().Root
	state.eventStreamSub = state.eventStream.Subscribe(func(value any) {
		if event, ok := value.(domain.SensorUpdateEvent); ok {
			root.Send(self, domain.PublishSensorUpdateRequest{Event: event})
		}
	})
}

func (state *MQTTActor) unsubscribeEventStream() {
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
}

func (state *MQTTActor) receiveInput(msg InputMessage) {
	if err := state.inputs.update(msg); err != nil {
		state.logger.Warn("mqtt@default invalid input payload", zap.String("topic", msg.Topic), zap.Error(err))
		return
	}
	state.logger.Debug("mqtt@default input updated", zap.String("topic", msg.Topic))
}

func (state *MQTTActor) publish(ctx actor.Context, out outbound, replyTo *actor.PID) {
	self := ctx.Self()
	root := ctx.ActorSystem().Root
	state.inflight++
	state.logger.Debug("mqtt@publish", zap.String("topic", out.topic), zap.String("payload", out.payload))
	state.client.Publish(out.topic, out.payload, 1, out.retain, mqttPublishTimeout, func(err error) {
		root.Send(self, publishAck{topic: out.topic, replyTo: replyTo, err: err})
	})
}

func (state *MQTTActor) publishDiscovery(ctx actor.Context, req domain.PublishDiscoveryRequest) error {
	messages, err := mqtt.DiscoveryMessages(state.topics, state.config.MQTT.HADiscoveryTopic,
		req.Sensors, req.Switches, req.Buttons, req.InputNumbers)
	if err != nil {
		return err
	}
	for _, m := range messages {
		state.publish(ctx, outbound{topic: m.Topic, payload: string(m.Payload), retain: true}, nil)
	}
	return nil
}

func (state *MQTTActor) stop() {
	state.logger.Debug("mqtt: disconnect")
	state.unsubscribeEventStream()
	if state.client != nil {
		state.client.Publish(state.topics.BridgeState(), mqtt.MQTT_PAYLOAD_OFFLINE, 0, true, 500*time.Millisecond, func(error) {})
		state.client.Disconnect(500 * time.Millisecond)
		state.client = nil
	}
}
