package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	_ "github.com/joho/godotenv/autoload"

	"github.com/berfenger/batteryplan2mqtt/internal/config"
)

type Server struct {
	port        uint
	httpLog     bool
	rootContext *actor.RootContext
	masterActor *actor.PID
	planTimeout time.Duration
	metrics     http.Handler
}

// NewServer builds the HTTP API. A plan request may wait for the input
// collection plus both solver runs, so the write timeout follows the
// planner settings.
func NewServer(cfg config.Config, rootContext *actor.RootContext, masterActor *actor.PID, metrics http.Handler) *http.Server {
	s := &Server{
		port:        cfg.Port,
		httpLog:     cfg.HttpLog,
		rootContext: rootContext,
		masterActor: masterActor,
		planTimeout: cfg.Planner.InputTimeout() + 2*cfg.Planner.SolverTimeout() + 10*time.Second,
		metrics:     metrics,
	}
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: s.planTimeout + 5*time.Second,
	}
}
