package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/berfenger/batteryplan2mqtt/internal/core/domain"
)

type Config struct {
	LogLevel          zapcore.Level
	InverterModbusTcp InverterModbusTCPConfig `mapstructure:"inverter_modbus_tcp"`
	MQTT              MQTTConfig              `mapstructure:"mqtt"`
	Inputs            InputsConfig            `mapstructure:"inputs"`

	Battery   BatteryConfig   `mapstructure:"battery"`
	Grid      GridConfig      `mapstructure:"grid"`
	Economics EconomicsConfig `mapstructure:"economics"`
	Planner   PlannerConfig   `mapstructure:"planner"`
	Actuator  ActuatorConfig  `mapstructure:"actuator"`
	Port      uint            `mapstructure:"port"`
	HttpLog   bool            `mapstructure:"http_log"`
}

type InverterModbusTCPConfig struct {
	Enable        bool
	Host          string
	Port          uint
	StorageId     uint   `mapstructure:"storage_id"`
	Manufacturer  string `mapstructure:"manufacturer"`
	TimeoutMillis uint32 `mapstructure:"timeout_millis"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

// InputsConfig names the MQTT topics the forecasts and readings come from.
// They are full topics, not relative to the base topic.
type InputsConfig struct {
	PriceTopic      string `mapstructure:"price_topic"`
	PVTodayTopic    string `mapstructure:"pv_today_topic"`
	PVTomorrowTopic string `mapstructure:"pv_tomorrow_topic"`
	SoCTopic        string `mapstructure:"soc_topic"`
}

type BatteryConfig struct {
	CapacityKWh        float64 `mapstructure:"capacity_kwh"`
	MinSoCKWh          float64 `mapstructure:"min_soc_kwh"`
	MaxChargeRateKW    float64 `mapstructure:"max_charge_rate_kw"`
	MaxDischargeRateKW float64 `mapstructure:"max_discharge_rate_kw"`
	Efficiency         float64 `mapstructure:"efficiency"`
}

type GridConfig struct {
	MaxLoadPower       uint32  `mapstructure:"max_load_power"`
	MinLoadPower       uint32  `mapstructure:"min_load_power"`
	Fee                float64 `mapstructure:"fee"`
	MinSellPrice       float64 `mapstructure:"min_sell_price"`
	MinSellQuantityKWh float64 `mapstructure:"min_sell_quantity_kwh"`
}

type EconomicsConfig struct {
	Currency            string
	MinGridChargeProfit float64 `mapstructure:"min_grid_charge_profit"`
	MinCycleKWh         float64 `mapstructure:"min_cycle_kwh"`
	// kWh per hour, keyed by lowercase month name
	Consumption map[string]float64 `mapstructure:"consumption"`
}

type PlannerConfig struct {
	LookaheadHours      uint   `mapstructure:"lookahead_hours"`
	SolverTimeoutMillis uint32 `mapstructure:"solver_timeout_millis"`
	Cron                string `mapstructure:"cron"`
	AutoApply           bool   `mapstructure:"auto_apply"`
	InputTimeoutMillis  uint32 `mapstructure:"input_timeout_millis"`
}

type ActuatorConfig struct {
	ModbusEnable        bool   `mapstructure:"modbus_enable"`
	RevertTimeSeconds   uint32 `mapstructure:"revert_time_seconds"`
	DecisionTopicEnable bool   `mapstructure:"decision_topic_enable"`
}

func (c BatteryConfig) Params() domain.BatteryParams {
	return domain.BatteryParams{
		CapacityKWh:        c.CapacityKWh,
		MinSoCKWh:          c.MinSoCKWh,
		MaxChargeRateKW:    c.MaxChargeRateKW,
		MaxDischargeRateKW: c.MaxDischargeRateKW,
		Efficiency:         c.Efficiency,
	}
}

func (c GridConfig) Params() domain.GridParams {
	return domain.GridParams{
		MaxLoadWatt:        c.MaxLoadPower,
		MinLoadWatt:        c.MinLoadPower,
		FeePerKWh:          c.Fee,
		MinSellPrice:       c.MinSellPrice,
		MinSellQuantityKWh: c.MinSellQuantityKWh,
	}
}

func (c EconomicsConfig) Thresholds() domain.Thresholds {
	return domain.Thresholds{
		MinGridChargeProfit: c.MinGridChargeProfit,
		MinCycleKWh:         c.MinCycleKWh,
	}
}

// ConsumptionProfile overlays the configured monthly values on the default
// table.
func (c EconomicsConfig) ConsumptionProfile() (domain.ConsumptionProfile, error) {
	profile := domain.DefaultConsumptionProfile()
	for name, value := range c.Consumption {
		month, err := parseMonth(name)
		if err != nil {
			return nil, err
		}
		if value < 0 {
			return nil, fmt.Errorf("consumption for %s must be >= 0", name)
		}
		profile[month] = value
	}
	return profile, nil
}

func parseMonth(name string) (time.Month, error) {
	for m := time.January; m <= time.December; m++ {
		full := strings.ToLower(m.String())
		if strings.EqualFold(name, full) || strings.EqualFold(name, full[:3]) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown month %q", name)
}

func (c PlannerConfig) Lookahead() time.Duration {
	return time.Duration(c.LookaheadHours) * time.Hour
}

func (c PlannerConfig) SolverTimeout() time.Duration {
	return time.Duration(c.SolverTimeoutMillis) * time.Millisecond
}

func (c PlannerConfig) InputTimeout() time.Duration {
	return time.Duration(c.InputTimeoutMillis) * time.Millisecond
}

// Check validates values that the config loader cannot express as defaults.
func (c *Config) Check() error {
	if c.Planner.LookaheadHours < 1 || c.Planner.LookaheadHours > 72 {
		return errors.New("config param planner.lookahead_hours should be between 1 and 72")
	}
	if c.Planner.SolverTimeoutMillis < 100 {
		return errors.New("config param planner.solver_timeout_millis should be >= 100")
	}
	if c.Planner.Cron == "" {
		return errors.New("config param planner.cron is required")
	}
	if c.Economics.Currency == "" {
		return errors.New("config param economics.currency is required")
	}
	if c.Actuator.ModbusEnable && !c.InverterModbusTcp.Enable {
		return errors.New("config param actuator.modbus_enable requires inverter_modbus_tcp.enable")
	}
	if c.InverterModbusTcp.Enable && c.InverterModbusTcp.Host == "" {
		return errors.New("config param inverter_modbus_tcp.host is required when modbus is enabled")
	}
	if c.Inputs.PriceTopic == "" {
		return errors.New("config param inputs.price_topic is required")
	}
	if c.Inputs.SoCTopic == "" && !c.InverterModbusTcp.Enable {
		return errors.New("one of inputs.soc_topic or inverter_modbus_tcp.enable is required to read the state of charge")
	}
	if _, err := c.Economics.ConsumptionProfile(); err != nil {
		return fmt.Errorf("config param economics.consumption: %w", err)
	}
	return nil
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
