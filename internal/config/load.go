package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

const EnvPrefix = "batteryplan"

var defaults = map[string]any{
	"log_level":                          "warn",
	"inverter_modbus_tcp.enable":         false,
	"inverter_modbus_tcp.port":           502,
	"inverter_modbus_tcp.storage_id":     1,
	"inverter_modbus_tcp.manufacturer":   "Fronius",
	"inverter_modbus_tcp.timeout_millis": 1000,
	"mqtt.ha_discovery_enable":           false,
	"mqtt.base_topic":                    "batteryplan",
	"mqtt.ha_discovery_topic":            "homeassistant",
	"battery.efficiency":                 0.95,
	"grid.fee":                           0,
	"economics.currency":                 "EUR",
	"economics.min_grid_charge_profit":   0.5,
	"economics.min_cycle_kwh":            0,
	"planner.lookahead_hours":            48,
	"planner.solver_timeout_millis":      30000,
	"planner.input_timeout_millis":       5000,
	"planner.cron":                       "0 0 * * * *",
	"planner.auto_apply":                 true,
	"actuator.modbus_enable":             false,
	"actuator.revert_time_seconds":       3900,
	"actuator.decision_topic_enable":     true,
	"port":                               8080,
}

// Load reads the configuration from the environment and, when file is not
// empty, from a YAML file. The result has been normalized and checked.
func Load(v *viper.Viper, file string) (*Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		if _, err := os.Stat(file); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config file %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.LogLevel = parseLogLevel(v.GetString("log_level"))

	var err error
	if cfg.MQTT.BaseTopic, err = CheckMQTTTopic(cfg.MQTT.BaseTopic); err != nil {
		return nil, fmt.Errorf("mqtt.base_topic: %w", err)
	}
	if cfg.MQTT.HADiscoveryTopic, err = CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic); err != nil {
		return nil, fmt.Errorf("mqtt.ha_discovery_topic: %w", err)
	}
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// trace is accepted as an alias of debug, unknown levels fall back to info.
func parseLogLevel(level string) zapcore.Level {
	if strings.EqualFold(level, "trace") {
		return zapcore.DebugLevel
	}
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return parsed
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	c.MQTT.Username = "*redacted*"
	c.MQTT.Password = "*redacted*"
	return c
}
