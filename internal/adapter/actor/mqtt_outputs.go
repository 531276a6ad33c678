package actor

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/berfenger/batteryplan2mqtt/internal/core/domain"
	"github.com/berfenger/batteryplan2mqtt/internal/mqtt"
)

var errUnsupportedEvent = errors.New("unsupported sensor event")

// outbound is a message ready to be handed to the broker.
type outbound struct {
	topic   string
	payload string
	retain  bool
}

// encodeSensorEvent maps a sensor update to its state topic and payload.
// Switch, number and attribute states are retained so Home Assistant
// restores them after a restart.
func encodeSensorEvent(topics mqtt.Topics, event domain.SensorUpdateEvent) (outbound, error) {
	switch ev := event.(type) {
	case domain.FloatSensorUpdateEvent:
		return outbound{topic: topics.SensorState(ev.Id), payload: formatDecimals(ev.Value, ev.Decimals)}, nil
	case domain.TextSensorUpdateEvent:
		return outbound{topic: topics.SensorState(ev.Id), payload: ev.Value}, nil
	case domain.SwitchSensorUpdateEvent:
		return outbound{topic: topics.SwitchState(ev.Id), payload: onOff(ev.Value), retain: true}, nil
	case domain.InputNumberSensorUpdateEvent:
		return outbound{topic: topics.NumberState(ev.Id), payload: formatDecimals(ev.Value, ev.Decimals), retain: true}, nil
	case domain.AttributesUpdateEvent:
		payload, err := json.Marshal(ev.Value)
		if err != nil {
			return outbound{}, fmt.Errorf("attributes of %s: %w", ev.Id, err)
		}
		return outbound{topic: topics.SensorAttributes(ev.Id), payload: string(payload), retain: true}, nil
	case domain.BridgeStateUpdateEvent:
		payload := mqtt.MQTT_PAYLOAD_OFFLINE
		if ev.Value {
			payload = mqtt.MQTT_PAYLOAD_ONLINE
		}
		return outbound{topic: topics.BridgeState(), payload: payload, retain: true}, nil
	default:
		return outbound{}, fmt.Errorf("%w: %T", errUnsupportedEvent, event)
	}
}

func formatDecimals(value float64, decimals uint) string {
	return strconv.FormatFloat(value, 'f', int(decimals), 64)
}

func onOff(value bool) string {
	if value {
		return mqtt.MQTT_PAYLOAD_ON
	}
	return mqtt.MQTT_PAYLOAD_OFF
}
