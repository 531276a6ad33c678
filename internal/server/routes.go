package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/berfenger/batteryplan2mqtt/internal/core/domain"
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/plan", s.LastPlanHandler)
	e.POST("/plan", s.RunPlanHandler)
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics))
	}

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) LastPlanHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetLastPlanRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorBody(err))
	}
	response, ok := res.(domain.GetLastPlanResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorBody(errors.New("unexpected planner response")))
	}
	if response.Failed() {
		return c.JSON(http.StatusNotFound, errorBody(response.Error))
	}
	return c.JSON(http.StatusOK, response.Plan)
}

func (s *Server) RunPlanHandler(c echo.Context) error {
	req := domain.RunPlanRequest{Trigger: domain.TRIGGER_HTTP}
	res, err := s.rootContext.RequestFuture(s.masterActor, req, s.planTimeout).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorBody(err))
	}
	response, ok := res.(domain.RunPlanResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorBody(errors.New("unexpected planner response")))
	}
	if response.Failed() {
		return c.JSON(planErrorStatus(response.Error), errorBody(response.Error))
	}
	return c.JSON(http.StatusOK, response.Plan)
}

func planErrorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInsufficientData), errors.Is(err, domain.ErrInvalidParameter):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrOptimizationTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}
