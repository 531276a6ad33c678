package domain

import (
	"time"

	"github.com/asynkron/protoactor-go/actor"

	"github.com/berfenger/batteryplan2mqtt/pkg/sunspec_modbus"
)

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_MODBUS       = "modbus"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_PLANNER      = "planner"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

type ActorRef actor.PID

// ActorRequest is implemented by every request message. A nil ReplyTo means
// the response goes to the sender.
type ActorRequest interface {
	ReplyTo() *ActorRef
}

type RequestBase struct {
	ReplyToRef *ActorRef
}

func (r RequestBase) ReplyTo() *ActorRef { return r.ReplyToRef }

type ActorResponse interface {
	Err() error
	Failed() bool
}

type ResponseBase struct {
	Error error
}

// ResponseFailure returns a response base carrying err, or an empty one for nil.
func ResponseFailure(err error) ResponseBase {
	return ResponseBase{Error: err}
}

func (r ResponseBase) Err() error { return r.Error }

func (r ResponseBase) Failed() bool { return r.Error != nil }

// Modbus

type GetStorageStateRequest struct {
	RequestBase
}

type GetStorageStateResponse struct {
	ResponseBase
	StorageState *sunspec_modbus.StorageState
}

type SetStorageControlRequest struct {
	RequestBase
	Params sunspec_modbus.StorageControlParams
	// give control back to the inverter instead of applying Params
	Release bool
}

type SetStorageControlResponse struct {
	ResponseBase
}

// MQTT

type PublishMessageRequest struct {
	RequestBase
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ResponseBase
}

type PublishSensorUpdateRequest struct {
	RequestBase
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ResponseBase
}

type PublishDiscoveryRequest struct {
	RequestBase
	Sensors      []GenericSensor
	Switches     []GenericSwitch
	Buttons      []GenericButton
	InputNumbers []GenericInputNumber
}

type PublishDiscoveryResponse struct {
	ResponseBase
}

type GetForecastInputsRequest struct {
	RequestBase
}

// GetForecastInputsResponse carries the last input payloads received over MQTT.
type GetForecastInputsResponse struct {
	ResponseBase
	Prices     []SeriesPoint
	PV         []SeriesPoint
	SoCPercent *float64
	UpdatedAt  time.Time
}

// Health

type ActorHealthRequest struct {
	RequestBase
}

type ActorHealthResponse struct {
	ResponseBase
	Id      string
	Healthy bool
	State   string
}
