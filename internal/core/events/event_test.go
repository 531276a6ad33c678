package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/berfenger/batteryplan2mqtt/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func genPlan() *domain.Plan {
	start := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	allowed := 1.25
	disallowed := 0.75
	return &domain.Plan{
		CreatedAt: start.Add(3 * time.Minute),
		Decision: domain.OperatingDecision{
			Mode:            domain.OperatingModeTOUCharge,
			Start:           start,
			End:             start.Add(time.Hour),
			Price:           0.0512,
			GridChargeKWh:   3,
			ChargePowerWatt: 3000,
		},
		Schedule: []domain.ScheduleDecision{
			{Start: start, GridChargeKWh: 3, SoCKWh: 5.85, Mode: domain.OperatingModeTOUCharge},
			{Start: start.Add(time.Hour), BatteryToLoadKWh: 0.5, SoCKWh: 5.32, Mode: domain.OperatingModeSelfConsumption},
		},
		GridChargingAllowed: true,
		AllowedProfit:       &allowed,
		DisallowedProfit:    &disallowed,
	}
}

func TestPlanToUpdateEvents(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	evs := PlanToUpdateEvents(genPlan())

	values := map[string]any{}
	for _, ev := range evs {
		switch e := ev.(type) {
		case domain.FloatSensorUpdateEvent:
			values[e.Id] = e.Value
		case domain.TextSensorUpdateEvent:
			values[e.Id] = e.Value
		case domain.AttributesUpdateEvent:
			values[e.Id+"_attributes"] = e.Value
		}
	}

	assert.Equal(string(domain.OperatingModeTOUCharge), values[domain.SENSOR_ID_OPERATING_MODE])
	assert.Equal(0.0512, values[domain.SENSOR_ID_CURRENT_PRICE])
	assert.Equal(1.25, values[domain.SENSOR_ID_PLANNED_PROFIT])
	assert.Equal(0.75, values[domain.SENSOR_ID_PROFIT_NO_GRID_CHARGING])
	assert.Equal(3000.0, values[domain.SENSOR_ID_CHARGE_POWER])
	assert.Equal(0.0, values[domain.SENSOR_ID_FEED_GRID_POWER])
	assert.Equal(5.85, values[domain.SENSOR_ID_PLANNED_SOC])
	assert.Equal("2024-03-04T10:03:00Z", values[domain.SENSOR_ID_ENERGY_PLANNING])

	attrs, ok := values[domain.SENSOR_ID_ENERGY_PLANNING+"_attributes"].(planAttributes)
	require.True(ok)
	assert.Equal("grid_charging_allowed", attrs.Strategy)
	assert.Equal("10:00", attrs.DecisionWindowStart)
	assert.Equal("11:00", attrs.DecisionWindowEnd)
	assert.Len(attrs.Schedule, 2)

	doc, err := json.Marshal(attrs)
	require.NoError(err)
	var decoded struct {
		Schedule []struct {
			Mode string `json:"mode"`
		} `json:"schedule"`
	}
	require.NoError(json.Unmarshal(doc, &decoded))
	require.Len(decoded.Schedule, 2)
	assert.Equal("tou_charge", decoded.Schedule[0].Mode)
	assert.Equal("self_consumption", decoded.Schedule[1].Mode)
}

func TestPlanToUpdateEventsSingleStrategy(t *testing.T) {

	assert := assert.New(t)

	plan := genPlan()
	plan.AllowedProfit = nil
	plan.GridChargingAllowed = false
	plan.Schedule = nil

	evs := PlanToUpdateEvents(plan)
	for _, ev := range evs {
		if e, ok := ev.(domain.FloatSensorUpdateEvent); ok {
			assert.NotEqual(domain.SENSOR_ID_PROFIT_GRID_CHARGING, e.Id)
			assert.NotEqual(domain.SENSOR_ID_PLANNED_SOC, e.Id)
			if e.Id == domain.SENSOR_ID_PLANNED_PROFIT {
				assert.Equal(0.75, e.Value)
			}
		}
	}
}

func TestControlUpdateEvents(t *testing.T) {

	assert := assert.New(t)

	sw := AutoApplySwitchUpdateEvent(true).(domain.SwitchSensorUpdateEvent)
	assert.Equal(domain.SWITCH_ID_AUTO_APPLY, sw.Id)
	assert.True(sw.Value)

	num := MinGridChargeProfitUpdateEvent(0.3).(domain.InputNumberSensorUpdateEvent)
	assert.Equal(domain.INPUT_NUMBER_ID_MIN_GRID_CHARGE_PROFIT, num.Id)
	assert.Equal(0.3, num.Value)

	status := PlannerStatusUpdateEvent(PLANNER_STATUS_ERROR).(domain.TextSensorUpdateEvent)
	assert.Equal(domain.SENSOR_ID_PLANNER_STATUS, status.Id)
	assert.Equal("error", status.Value)
}
