package util

import (
	"github.com/berfenger/batteryplan2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		InverterModbusTcp: config.InverterModbusTCPConfig{
			Host:          "-.-.-.-",
			Port:          502,
			StorageId:     1,
			TimeoutMillis: 2000,
		},
		MQTT: config.MQTTConfig{
			Host:             "localhost",
			Port:             1883,
			BaseTopic:        "batteryplan",
			HADiscoveryTopic: "homeassistant",
		},
		Inputs: config.InputsConfig{
			PriceTopic:      "nordpool/prices",
			PVTodayTopic:    "solcast/today",
			PVTomorrowTopic: "solcast/tomorrow",
			SoCTopic:        "battery/soc",
		},
		Battery: config.BatteryConfig{
			CapacityKWh:        10,
			MinSoCKWh:          1,
			MaxChargeRateKW:    3,
			MaxDischargeRateKW: 3,
			Efficiency:         0.95,
		},
		Grid: config.GridConfig{
			MaxLoadPower:       5000,
			MinLoadPower:       0,
			Fee:                0.01,
			MinSellPrice:       0,
			MinSellQuantityKWh: 0,
		},
		Economics: config.EconomicsConfig{
			Currency:            "EUR",
			MinGridChargeProfit: 0.01,
		},
		Planner: config.PlannerConfig{
			LookaheadHours:      24,
			SolverTimeoutMillis: 5000,
			Cron:                "0 0 * * * *",
			AutoApply:           true,
			InputTimeoutMillis:  2000,
		},
		Actuator: config.ActuatorConfig{
			ModbusEnable:        true,
			RevertTimeSeconds:   3900,
			DecisionTopicEnable: true,
		},
		Port: 8080,
	}
}
