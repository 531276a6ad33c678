package mqtt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berfenger/batteryplan2mqtt/internal/core/domain"
)

func TestDiscoveryMessages(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	topics := Topics{Base: "batteryplan"}
	bridge := domain.BridgeDevice("batteryplan")
	planner := domain.PlannerDevice("batteryplan")

	messages, err := DiscoveryMessages(topics, "homeassistant",
		append(domain.BridgeSensors(bridge), domain.PlannerSensors(planner, "EUR")...),
		domain.PlannerSwitches(planner),
		domain.PlannerButtons(planner),
		domain.PlannerInputNumbers(planner, "EUR", 0.5))
	require.NoError(err)

	byTopic := make(map[string]HADiscoveryConfig, len(messages))
	for _, m := range messages {
		var cfg HADiscoveryConfig
		require.NoError(json.Unmarshal(m.Payload, &cfg))
		byTopic[m.Topic] = cfg
	}
	assert.Len(byTopic, len(messages), "one topic per entity")

	bridgeState := byTopic["homeassistant/binary_sensor/"+bridge.Id+"/bridge/config"]
	assert.Equal("batteryplan/bridge/state", bridgeState.StateTopic)
	assert.Equal(MQTT_PAYLOAD_ONLINE, bridgeState.PayloadOn)

	planning := byTopic["homeassistant/sensor/"+planner.Id+"/energy_planning/config"]
	assert.Equal("batteryplan/sensor/energy_planning/state", planning.StateTopic)
	assert.Equal("batteryplan/sensor/energy_planning/attributes", planning.AttributesTopic)
	assert.Equal("batteryplan/bridge/state", planning.AvTopic)

	autoApply := byTopic["homeassistant/switch/"+planner.Id+"/auto_apply/config"]
	assert.Equal("batteryplan/switch/auto_apply/command", autoApply.CommandTopic)
	assert.Equal(MQTT_PAYLOAD_ON, autoApply.PayloadOn)

	optimize := byTopic["homeassistant/button/"+planner.Id+"/optimize/config"]
	assert.Equal("batteryplan/button/optimize/press", optimize.CommandTopic)
	assert.Equal(MQTT_PAYLOAD_PRESS, optimize.PayloadPress)

	margin := byTopic["homeassistant/number/"+planner.Id+"/min_grid_charge_profit/config"]
	assert.Equal("batteryplan/number/min_grid_charge_profit/set", margin.CommandTopic)
	assert.Equal(0.5, margin.InitialValue)
	assert.Equal("EUR", margin.UnitOfMeasurement)
}
