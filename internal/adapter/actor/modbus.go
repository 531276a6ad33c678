package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/batteryplan2mqtt/internal/core/domain"
	"github.com/berfenger/batteryplan2mqtt/internal/util/actorutil"
	"github.com/berfenger/batteryplan2mqtt/pkg/sunspec_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const (
	modbusTaskTimeout = 2 * time.Second
	// consecutive failed accesses before the actor reports itself unhealthy
	modbusMaxFailures = 3
)

// ModbusActor serialises access to the storage registers. Every access runs
// as a background task; requests received meanwhile are stashed.
type ModbusActor struct {
	behavior actor.Behavior
	stash    *actorutil.Stash
	storage  sunspec_modbus.StorageModbusClient
	failures int
	logger   *zap.Logger
}

// storageReply is the outcome of one register access on its way back to
// the requester.
type storageReply struct {
	replyTo  *actor.PID
	response domain.ActorResponse
}

func NewModbusActor(storage sunspec_modbus.StorageModbusClient, logger *zap.Logger) *ModbusActor {
	act := &ModbusActor{
		storage:  storage,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_MODBUS, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *ModbusActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *ModbusActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("modbus@starting started")
		if err := state.storage.Open(); err != nil {
			panic(err)
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.close()
	default:
		state.logger.Debug("modbus@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *ModbusActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		healthy := state.failures < modbusMaxFailures
		status := "idle"
		if !healthy {
			status = fmt.Sprintf("failing(%d)", state.failures)
		}
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MODBUS,
			Healthy: healthy,
			State:   status,
		})
	case domain.GetStorageStateRequest:
		state.logger.Debug("modbus@default: GetStorageStateRequest")
		accessStorage(state, ctx, actorutil.ReplierFor(ctx, msg).PID(), func() (domain.GetStorageStateResponse, error) {
			storageState, err := state.storage.GetStorageState()
			if err != nil {
				return domain.GetStorageStateResponse{}, fmt.Errorf("read storage state: %w", err)
			}
			return domain.GetStorageStateResponse{StorageState: storageState}, nil
		}, func(err error) domain.GetStorageStateResponse {
			return domain.GetStorageStateResponse{ResponseBase: failedResponse(err)}
		})
	case domain.SetStorageControlRequest:
		state.logger.Debug("modbus@default: SetStorageControlRequest",
			zap.Bool("release", msg.Release), zap.Any("params", msg.Params))
		accessStorage(state, ctx, actorutil.ReplierFor(ctx, msg).PID(), func() (domain.SetStorageControlResponse, error) {
			var err error
			if msg.Release {
				err = state.storage.ReleaseStorageControl()
			} else {
				err = state.storage.SetStorageControl(msg.Params)
			}
			if err != nil {
				return domain.SetStorageControlResponse{}, fmt.Errorf("write storage control: %w", err)
			}
			return domain.SetStorageControlResponse{}, nil
		}, func(err error) domain.SetStorageControlResponse {
			return domain.SetStorageControlResponse{ResponseBase: failedResponse(err)}
		})
	case *actor.Stopping:
		state.close()
	default:
		state.logger.Debug("modbus@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *ModbusActor) WaitingModbus(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case storageReply:
		if msg.response.Failed() {
			state.failures++
			state.logger.Error("modbus@waiting: storage access failed",
				zap.Int("failures", state.failures), zap.Error(msg.response.Err()))
		} else {
			state.failures = 0
		}
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, msg.response)
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		state.close()
	default:
		state.logger.Debug("modbus@waiting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// accessStorage runs fn in the background and waits for its reply. failed
// builds the response sent when fn errors, panics or times out.
func accessStorage[T domain.ActorResponse](state *ModbusActor, ctx actor.Context, replyTo *actor.PID,
	fn func() (T, error), failed func(error) T) {
	actorutil.NewTask(fn).WithTimeout(modbusTaskTimeout).PipeTo(ctx, ctx.Self(), func(resp T, err error) any {
		if err != nil {
			resp = failed(err)
		}
		return storageReply{replyTo: replyTo, response: resp}
	})
	state.behavior.BecomeStacked(state.WaitingModbus)
}

func failedResponse(err error) domain.ResponseBase {
	return domain.ResponseFailure(err)
}

func (state *ModbusActor) close() {
	if err := state.storage.Close(); err != nil {
		state.logger.Warn("modbus: close error", zap.Error(err))
	}
}
