package mqtt

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/berfenger/batteryplan2mqtt/internal/config"
)

const (
	MQTT_PAYLOAD_ONLINE  = "online"
	MQTT_PAYLOAD_OFFLINE = "offline"
	MQTT_PAYLOAD_ON      = "on"
	MQTT_PAYLOAD_OFF     = "off"
	MQTT_PAYLOAD_PRESS   = "PRESS"
)

const (
	COMMAND_SWITCH = "switch"
	COMMAND_NUMBER = "number"
	COMMAND_BUTTON = "button"
)

// last topic level accepted for each command kind
var commandSuffix = map[string]string{
	COMMAND_SWITCH: "command",
	COMMAND_NUMBER: "set",
	COMMAND_BUTTON: "press",
}

var (
	entityIdPattern = regexp.MustCompile("^[a-zA-Z0-9_]+$")
	errNotACommand  = errors.New("not a command topic")
)

type ParsedMQTTCommand struct {
	DeviceId string
	Command  string
	Payload  string
}

// Topics builds every topic the bridge publishes or listens to below its
// base topic.
type Topics struct {
	Base string
}

func (t Topics) BridgeState() string {
	return t.join("bridge", "state")
}

func (t Topics) SensorState(id string) string {
	return t.join("sensor", id, "state")
}

func (t Topics) SensorAttributes(id string) string {
	return t.join("sensor", id, "attributes")
}

func (t Topics) BinarySensorState(id string) string {
	return t.join("binary_sensor", id, "state")
}

func (t Topics) SwitchState(id string) string {
	return t.join(COMMAND_SWITCH, id, "state")
}

func (t Topics) NumberState(id string) string {
	return t.join(COMMAND_NUMBER, id, "state")
}

// Decision carries the retained command payload of the last decision.
func (t Topics) Decision() string {
	return t.join("decision")
}

func (t Topics) Command(kind, id string) string {
	return t.join(kind, id, commandSuffix[kind])
}

func (t Topics) commandFilters() map[string]byte {
	filters := make(map[string]byte, len(commandSuffix))
	for kind, suffix := range commandSuffix {
		filters[t.join(kind, "+", suffix)] = 1
	}
	return filters
}

func (t Topics) join(levels ...string) string {
	return t.Base + "/" + strings.Join(levels, "/")
}

// ParseCommand matches topic against <base>/<kind>/<id>/<suffix>. Number
// commands must carry a valid float payload.
func (t Topics) ParseCommand(topic string, payload []byte) (*ParsedMQTTCommand, error) {
	rest, ok := strings.CutPrefix(topic, t.Base+"/")
	if !ok {
		return nil, errNotACommand
	}
	levels := strings.Split(rest, "/")
	if len(levels) != 3 || !entityIdPattern.MatchString(levels[1]) {
		return nil, errNotACommand
	}
	if suffix, known := commandSuffix[levels[0]]; !known || levels[2] != suffix {
		return nil, errNotACommand
	}

	cmd := &ParsedMQTTCommand{
		DeviceId: levels[1],
		Command:  levels[0],
		Payload:  strings.TrimSpace(string(payload)),
	}
	if cmd.Command == COMMAND_NUMBER {
		if _, err := strconv.ParseFloat(cmd.Payload, 64); err != nil {
			return nil, fmt.Errorf("invalid number payload %q: %w", cmd.Payload, err)
		}
	}
	return cmd, nil
}

func NewClientOptions(cfg *config.Config) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTT.Host, cfg.MQTT.Port))
	opts.SetClientID(fmt.Sprintf("batteryplan_%d", rand.IntN(1000)))
	if cfg.MQTT.Username != "" && cfg.MQTT.Password != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}
	// the owning actor restarts on connection loss
	opts.SetAutoReconnect(false)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetWill(Topics{Base: cfg.MQTT.BaseTopic}.BridgeState(), MQTT_PAYLOAD_OFFLINE, 0, true)
	return opts
}

type MQTTClient struct {
	Topics
	client mqtt.Client
}

func CreateMQTTClient(cfg *config.Config, opts *mqtt.ClientOptions, onConnectionLost func(error)) *MQTTClient {
	if onConnectionLost != nil {
		opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			onConnectionLost(err)
		})
	}
	return &MQTTClient{
		Topics: Topics{Base: cfg.MQTT.BaseTopic},
		client: mqtt.NewClient(opts),
	}
}

func (c *MQTTClient) Connect(timeout time.Duration, continuation func(error)) {
	await(c.client.Connect(), timeout, "connect", continuation)
}

func (c *MQTTClient) Publish(topic string, payload any, qos byte, retain bool, timeout time.Duration, continuation func(error)) {
	await(c.client.Publish(topic, qos, retain, payload), timeout, "publish", continuation)
}

// SubscribeToCommands delivers every well formed command of this bridge to
// handler. Malformed ones are dropped.
func (c *MQTTClient) SubscribeToCommands(handler func(*ParsedMQTTCommand), timeout time.Duration, continuation func(error)) {
	token := c.client.SubscribeMultiple(c.commandFilters(), func(_ mqtt.Client, m mqtt.Message) {
		if cmd, err := c.ParseCommand(m.Topic(), m.Payload()); err == nil {
			handler(cmd)
		}
	})
	await(token, timeout, "subscribe", continuation)
}

// SubscribeToInputs subscribes to every non empty topic.
func (c *MQTTClient) SubscribeToInputs(topics []string, handler func(topic string, payload []byte, retained bool), timeout time.Duration, continuation func(error)) {
	filters := make(map[string]byte)
	for _, topic := range topics {
		if topic != "" {
			filters[topic] = 1
		}
	}
	if len(filters) == 0 {
		continuation(nil)
		return
	}
	token := c.client.SubscribeMultiple(filters, func(_ mqtt.Client, m mqtt.Message) {
		handler(m.Topic(), m.Payload(), m.Retained())
	})
	await(token, timeout, "subscribe", continuation)
}

func (c *MQTTClient) Disconnect(timeout time.Duration) {
	c.client.Disconnect(uint(timeout.Milliseconds()))
}

func await(token mqtt.Token, timeout time.Duration, op string, continuation func(error)) {
	go func() {
		if !token.WaitTimeout(timeout) {
			continuation(fmt.Errorf("MQTT %s timed out", op))
			return
		}
		continuation(token.Error())
	}()
}
