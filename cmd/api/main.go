package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/berfenger/batteryplan2mqtt/internal/adapter/actor"
	"github.com/berfenger/batteryplan2mqtt/internal/adapter/trigger"
	"github.com/berfenger/batteryplan2mqtt/internal/config"
	"github.com/berfenger/batteryplan2mqtt/internal/core/actor"
	"github.com/berfenger/batteryplan2mqtt/internal/core/service"
	"github.com/berfenger/batteryplan2mqtt/internal/metrics"
	"github.com/berfenger/batteryplan2mqtt/internal/server"
	"github.com/berfenger/batteryplan2mqtt/internal/util/actorutil"
	"github.com/berfenger/batteryplan2mqtt/pkg/sunspec_modbus"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/carlmjohnson/versioninfo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// gracefulShutdown waits for SIGINT or SIGTERM and gives in-flight requests
// five seconds to finish.
func gracefulShutdown(apiServer *http.Server, logger *zap.Logger, done chan<- struct{}) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down gracefully, press Ctrl+C again to force")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	close(done)
}

func main() {

	// alias PORT => BATTERYPLAN_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("BATTERYPLAN_PORT", port)
	}
	cfg, err := config.Load(viper.GetViper(), os.Getenv("CONFIG_FILE"))
	if err != nil {
		slog.Error("config errors", "error", err)
		os.Exit(1)
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	logger.Info("starting", zap.String("version", versioninfo.Short()), zap.Any("config", cfg.Redacted()))

	// metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.New(registry)

	// optimizer
	optimizer := service.NewBatteryOptimizer(logger)
	optimizer.Horizon.Lookahead = cfg.Planner.Lookahead()
	optimizer.Solver.Timeout = cfg.Planner.SolverTimeout()
	optimizer.Observer = recorder

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	// init Modbus actor provider
	modbusProv, err := modbusActorProvider(cfg, recorder, logger)
	if err != nil {
		logger.Fatal("modbus client", zap.Error(err))
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, optimizer, modbusProv, mqttActorProvider(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		logger.Fatal("spawn master actor", zap.Error(err))
	}

	// periodic planning
	schedCtx, cancelSched := context.WithCancel(context.Background())
	sched, err := trigger.StartScheduler(schedCtx, cfg.Planner.Cron, trigger.NewPlanJob(ctx, pid, logger))
	if err != nil {
		logger.Fatal("planner schedule", zap.String("cron", cfg.Planner.Cron), zap.Error(err))
	}

	apiServer := server.NewServer(*cfg, ctx, pid, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	done := make(chan struct{})
	go gracefulShutdown(apiServer, logger, done)

	if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server error", zap.Error(err))
	}
	<-done

	sched.Stop()
	cancelSched()

	ctx.Stop(pid)
	as.Shutdown()
	logger.Info("shutdown complete")
}

func modbusActorProvider(cfg *config.Config, recorder *metrics.Recorder, logger *zap.Logger) (actor.ModbusActorProvider, error) {

	if !cfg.InverterModbusTcp.Enable {
		return nil, nil
	}

	storage, err := sunspec_modbus.CreateStorageIntSFModbusClient(cfg.InverterModbusTcp.Host,
		cfg.InverterModbusTcp.Port, uint8(cfg.InverterModbusTcp.StorageId),
		time.Duration(cfg.InverterModbusTcp.TimeoutMillis)*time.Millisecond,
		cfg.InverterModbusTcp.Manufacturer, logger, recorder.ModbusInstrument())

	if err != nil {
		return nil, err
	}

	return func() *adactor.ModbusActor {
		return adactor.NewModbusActor(storage, logger)
	}, nil
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}
