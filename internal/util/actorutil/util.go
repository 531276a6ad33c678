package actorutil

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/berfenger/batteryplan2mqtt/internal/core/domain"
	"github.com/berfenger/batteryplan2mqtt/internal/mqtt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/lmittmann/tint"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func PipeToSelfWithRecover(ctx actor.Context, future *actor.Future, mapFn func(error) any) {
	ctx.ReenterAfter(future, func(msg any, err error) {
		if err != nil {
			ctx.Send(ctx.Self(), mapFn(err))
			return
		}
		ctx.Send(ctx.Self(), msg)
	})
}

// NewActorSystemWithZapLogger routes the actor system's slog output through
// logger at the same level.
func NewActorSystemWithZapLogger(logger *zap.Logger) *actor.ActorSystem {
	writer := zap.NewStdLog(logger).Writer()
	opts := &tint.Options{
		Level:      slogLevel(logger.Level()),
		TimeFormat: time.DateTime,
		NoColor:    true,
	}
	return actor.NewActorSystem(actor.WithLoggerFactory(func(system *actor.ActorSystem) *slog.Logger {
		return slog.New(tint.NewHandler(writer, opts)).With("system", system.ID)
	}))
}

func slogLevel(level zapcore.Level) slog.Level {
	switch {
	case level <= zapcore.DebugLevel:
		return slog.LevelDebug
	case level == zapcore.InfoLevel:
		return slog.LevelInfo
	case level == zapcore.WarnLevel:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

func ActorLogger(actorName string, logger *zap.Logger) *zap.Logger {
	return logger.With(zap.String("actor", actorName))
}

// ParsedMQTTCommandToCommand maps an entity command received over MQTT to a
// planner request. Unknown entities map to nil.
func ParsedMQTTCommandToCommand(cmd mqtt.ParsedMQTTCommand) (domain.ActorRequest, error) {
	switch {
	case cmd.Command == mqtt.COMMAND_BUTTON && cmd.DeviceId == domain.BUTTON_ID_OPTIMIZE:
		return domain.RunPlanRequest{
			Trigger: domain.TRIGGER_MQTT,
		}, nil
	case cmd.Command == mqtt.COMMAND_SWITCH && cmd.DeviceId == domain.SWITCH_ID_AUTO_APPLY:
		return domain.SetAutoApplyRequest{
			Enable: strings.EqualFold(cmd.Payload, mqtt.MQTT_PAYLOAD_ON),
		}, nil
	case cmd.Command == mqtt.COMMAND_NUMBER && cmd.DeviceId == domain.INPUT_NUMBER_ID_MIN_GRID_CHARGE_PROFIT:
		value, err := strconv.ParseFloat(cmd.Payload, 64)
		if err != nil {
			return nil, err
		}
		if value < 0 {
			return nil, fmt.Errorf("minimum grid charge profit must not be negative: %v", value)
		}
		return domain.SetMinGridChargeProfitRequest{
			Value: value,
		}, nil
	}
	return nil, nil
}
