package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE                 = "bridge"
	SENSOR_ID_PLANNER_STATUS               = "planner_status"
	SENSOR_ID_OPERATING_MODE               = "operating_mode"
	SENSOR_ID_ENERGY_PLANNING              = "energy_planning"
	SENSOR_ID_CURRENT_PRICE                = "current_price"
	SENSOR_ID_PLANNED_PROFIT               = "planned_profit"
	SENSOR_ID_PROFIT_GRID_CHARGING         = "profit_grid_charging"
	SENSOR_ID_PROFIT_NO_GRID_CHARGING      = "profit_no_grid_charging"
	SENSOR_ID_CHARGE_POWER                 = "planned_charge_power"
	SENSOR_ID_FEED_GRID_POWER              = "max_feed_grid_power"
	SENSOR_ID_PLANNED_SOC                  = "planned_soc"
	SWITCH_ID_AUTO_APPLY                   = "auto_apply"
	BUTTON_ID_OPTIMIZE                     = "optimize"
	INPUT_NUMBER_ID_MIN_GRID_CHARGE_PROFIT = "min_grid_charge_profit"
	STATE_CLASS_MEASUREMENT                = "measurement"
	STATE_CLASS_TOTAL                      = "total"
	DEVICE_CLASS_ENERGY_STORAGE            = "energy_storage"
	DEVICE_CLASS_POWER                     = "power"
	DEVICE_CLASS_MONETARY                  = "monetary"
	DEVICE_CLASS_CONNECTIVITY              = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC                = "diagnostic"
	ENTITY_CLASS_CONFIG                    = "config"
	SENSOR_TYPE_SENSOR                     = "sensor"
	SENSOR_TYPE_BINARY                     = "binary_sensor"
	INPUT_NUMBER_MODE_BOX                  = "box"
	INPUT_NUMBER_MODE_SLIDER               = "slider"
)

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("batteryplan_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        "BatteryPlan",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("BatteryPlan %s", md5HashShort(baseTopic)),
	}
}

func PlannerDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("batteryplan_planner_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        "Battery planner",
		Version:      versioninfo.Short(),
		Name:         "Battery planner",
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {
	return []GenericSensor{
		{
			Entity:         NewEntity(bridgeDevice, SENSOR_ID_BRIDGE_STATE, "Connection state", ""),
			SensorType:     SENSOR_TYPE_BINARY,
			DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
			EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		},
	}
}

func PlannerSensors(plannerDevice Device, currency string) []GenericSensor {

	sensor := func(id, name, icon string) GenericSensor {
		return GenericSensor{
			Entity:     NewEntity(plannerDevice, id, name, icon),
			SensorType: SENSOR_TYPE_SENSOR,
		}
	}
	money := func(id, name string) GenericSensor {
		s := sensor(id, name, "")
		s.StateClass = STATE_CLASS_TOTAL
		s.DeviceClass = DEVICE_CLASS_MONETARY
		s.UnitOfMeasurement = currency
		return s
	}
	measurement := func(id, name, deviceClass, unit string) GenericSensor {
		s := sensor(id, name, "")
		s.StateClass = STATE_CLASS_MEASUREMENT
		s.DeviceClass = deviceClass
		s.UnitOfMeasurement = unit
		return s
	}

	status := sensor(SENSOR_ID_PLANNER_STATUS, "Planner status", "mdi:clipboard-check-outline")
	status.EntityCategory = ENTITY_CLASS_DIAGNOSTIC

	// full schedule goes to the attributes topic
	planning := sensor(SENSOR_ID_ENERGY_PLANNING, "Energy planning", "mdi:calendar-clock")
	planning.HasAttributes = true

	price := measurement(SENSOR_ID_CURRENT_PRICE, "Current price", "", fmt.Sprintf("%s/kWh", currency))
	price.Icon = "mdi:cash"

	return []GenericSensor{
		status,
		sensor(SENSOR_ID_OPERATING_MODE, "Operating mode", "mdi:home-battery"),
		planning,
		price,
		money(SENSOR_ID_PLANNED_PROFIT, "Planned profit"),
		money(SENSOR_ID_PROFIT_GRID_CHARGING, "Profit with grid charging"),
		money(SENSOR_ID_PROFIT_NO_GRID_CHARGING, "Profit without grid charging"),
		measurement(SENSOR_ID_CHARGE_POWER, "Planned charge power", DEVICE_CLASS_POWER, "W"),
		measurement(SENSOR_ID_FEED_GRID_POWER, "Maximum feed grid power", DEVICE_CLASS_POWER, "W"),
		measurement(SENSOR_ID_PLANNED_SOC, "Planned state of charge", DEVICE_CLASS_ENERGY_STORAGE, "kWh"),
	}
}

func PlannerSwitches(plannerDevice Device) []GenericSwitch {
	return []GenericSwitch{
		{NewEntity(plannerDevice, SWITCH_ID_AUTO_APPLY, "Apply plan", "mdi:robot")},
	}
}

func PlannerButtons(plannerDevice Device) []GenericButton {
	return []GenericButton{
		{NewEntity(plannerDevice, BUTTON_ID_OPTIMIZE, "Optimize now", "mdi:play-circle")},
	}
}

func PlannerInputNumbers(plannerDevice Device, currency string, minGridChargeProfit float64) []GenericInputNumber {
	return []GenericInputNumber{
		{
			Entity:            NewEntity(plannerDevice, INPUT_NUMBER_ID_MIN_GRID_CHARGE_PROFIT, "Minimum grid charge profit", "mdi:cash-plus"),
			Min:               0,
			Max:               10,
			Step:              0.05,
			Mode:              INPUT_NUMBER_MODE_BOX,
			UnitOfMeasurement: currency,
			InitialValue:      minGridChargeProfit,
		},
	}
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}
