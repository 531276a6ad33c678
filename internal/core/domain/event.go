package domain

// SensorUpdateEvent is a state change of one published entity. Only types
// embedding SensorRef implement it.
type SensorUpdateEvent interface {
	SensorId() string
	sensorUpdate()
}

// SensorRef names the entity an update event belongs to.
type SensorRef struct {
	Id string
}

func (r SensorRef) SensorId() string { return r.Id }

func (SensorRef) sensorUpdate() {}

// Ref is shorthand for a SensorRef literal.
func Ref(id string) SensorRef { return SensorRef{Id: id} }

type FloatSensorUpdateEvent struct {
	SensorRef
	Value    float64
	Decimals uint
}

type SwitchSensorUpdateEvent struct {
	SensorRef
	Value bool
}

type TextSensorUpdateEvent struct {
	SensorRef
	Value string
}

// AttributesUpdateEvent is published as JSON on the sensor attributes topic.
type AttributesUpdateEvent struct {
	SensorRef
	Value any
}

type BridgeStateUpdateEvent struct {
	SensorRef
	Value bool
}

type InputNumberSensorUpdateEvent struct {
	SensorRef
	Value    float64
	Decimals uint
}
