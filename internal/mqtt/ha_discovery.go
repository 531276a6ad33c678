package mqtt

import (
	"encoding/json"
	"fmt"

	"github.com/berfenger/batteryplan2mqtt/internal/core/domain"
)

type HADiscoveryConfig struct {
	Device            HADiscoveryDevice `json:"device"`
	StateTopic        string            `json:"state_topic,omitempty"`
	AttributesTopic   string            `json:"json_attributes_topic,omitempty"`
	CommandTopic      string            `json:"command_topic,omitempty"`
	StateClass        string            `json:"state_class,omitempty"`
	DeviceClass       string            `json:"device_class,omitempty"`
	UnitOfMeasurement string            `json:"unit_of_measurement,omitempty"`
	AvTopic           string            `json:"availability_topic,omitempty"`
	EntityCategory    string            `json:"entity_category,omitempty"`
	Name              string            `json:"name"`
	UniqueId          string            `json:"unique_id"`
	Platform          string            `json:"platform"`
	EnabledByDefault  *bool             `json:"enabled_by_default,omitempty"`
	PayloadOn         string            `json:"payload_on,omitempty"`
	PayloadOff        string            `json:"payload_off,omitempty"`
	Icon              string            `json:"icon,omitempty"`
	Min               float64           `json:"min,omitempty"`
	Max               float64           `json:"max,omitempty"`
	Step              float64           `json:"step,omitempty"`
	Mode              string            `json:"mode,omitempty"`
	PayloadPress      string            `json:"payload_press,omitempty"`
	InitialValue      float64           `json:"initial,omitempty"`
}

type HADiscoveryDevice struct {
	Id           []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Version      string   `json:"sw_version,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name,omitempty"`
	ViaDevice    string   `json:"via_device,omitempty"`
}

// DiscoveryMessage is one retained Home Assistant config message.
type DiscoveryMessage struct {
	Topic   string
	Payload []byte
}

// DiscoveryMessages renders the config messages announcing every entity
// under discoveryTopic.
func DiscoveryMessages(topics Topics, discoveryTopic string, sensors []domain.GenericSensor, switches []domain.GenericSwitch,
	buttons []domain.GenericButton, inputNumbers []domain.GenericInputNumber) ([]DiscoveryMessage, error) {

	messages := make([]DiscoveryMessage, 0, len(sensors)+len(switches)+len(buttons)+len(inputNumbers))
	add := func(component string, entity domain.Entity, cfg HADiscoveryConfig) error {
		payload, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("discovery config for %s: %w", entity.Id, err)
		}
		messages = append(messages, DiscoveryMessage{
			Topic:   fmt.Sprintf("%s/%s/%s/%s/config", discoveryTopic, component, entity.Device.Id, entity.Id),
			Payload: payload,
		})
		return nil
	}

	for _, s := range sensors {
		if err := add(s.SensorType, s.Entity, sensorConfig(topics, s)); err != nil {
			return nil, err
		}
	}
	for _, s := range switches {
		cfg := entityConfig(topics, s.Entity)
		cfg.StateTopic = topics.SwitchState(s.Id)
		cfg.CommandTopic = topics.Command(COMMAND_SWITCH, s.Id)
		cfg.PayloadOn = MQTT_PAYLOAD_ON
		cfg.PayloadOff = MQTT_PAYLOAD_OFF
		if err := add(COMMAND_SWITCH, s.Entity, cfg); err != nil {
			return nil, err
		}
	}
	for _, b := range buttons {
		cfg := entityConfig(topics, b.Entity)
		cfg.CommandTopic = topics.Command(COMMAND_BUTTON, b.Id)
		cfg.PayloadPress = MQTT_PAYLOAD_PRESS
		if err := add(COMMAND_BUTTON, b.Entity, cfg); err != nil {
			return nil, err
		}
	}
	for _, n := range inputNumbers {
		cfg := entityConfig(topics, n.Entity)
		cfg.StateTopic = topics.NumberState(n.Id)
		cfg.CommandTopic = topics.Command(COMMAND_NUMBER, n.Id)
		cfg.Min = n.Min
		cfg.Max = n.Max
		cfg.Step = n.Step
		cfg.Mode = n.Mode
		cfg.UnitOfMeasurement = n.UnitOfMeasurement
		cfg.InitialValue = n.InitialValue
		if err := add(COMMAND_NUMBER, n.Entity, cfg); err != nil {
			return nil, err
		}
	}
	return messages, nil
}

func entityConfig(topics Topics, e domain.Entity) HADiscoveryConfig {
	return HADiscoveryConfig{
		Device: HADiscoveryDevice{
			Id:           []string{e.Device.Id},
			Manufacturer: e.Device.Manufacturer,
			Version:      e.Device.Version,
			Model:        e.Device.Model,
			Name:         e.Device.Name,
			ViaDevice:    e.Device.ViaDevice,
		},
		AvTopic:  topics.BridgeState(),
		Name:     e.Name,
		UniqueId: e.UniqueId,
		Icon:     e.Icon,
		Platform: "mqtt",
	}
}

func sensorConfig(topics Topics, sensor domain.GenericSensor) HADiscoveryConfig {
	cfg := entityConfig(topics, sensor.Entity)
	cfg.StateClass = sensor.StateClass
	cfg.DeviceClass = sensor.DeviceClass
	cfg.UnitOfMeasurement = sensor.UnitOfMeasurement
	cfg.EntityCategory = sensor.EntityCategory
	cfg.EnabledByDefault = sensor.EnabledByDefault

	switch {
	case sensor.Id == domain.SENSOR_ID_BRIDGE_STATE:
		cfg.StateTopic = topics.BridgeState()
		cfg.PayloadOn = MQTT_PAYLOAD_ONLINE
		cfg.PayloadOff = MQTT_PAYLOAD_OFFLINE
	case sensor.SensorType == domain.SENSOR_TYPE_BINARY:
		cfg.StateTopic = topics.BinarySensorState(sensor.Id)
		cfg.PayloadOn = MQTT_PAYLOAD_ON
		cfg.PayloadOff = MQTT_PAYLOAD_OFF
	default:
		cfg.StateTopic = topics.SensorState(sensor.Id)
	}
	if sensor.HasAttributes {
		cfg.AttributesTopic = topics.SensorAttributes(sensor.Id)
	}
	return cfg
}
