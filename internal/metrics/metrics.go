package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/berfenger/batteryplan2mqtt/internal/core/domain"
	"github.com/berfenger/batteryplan2mqtt/internal/core/port"
	"github.com/berfenger/batteryplan2mqtt/pkg/sunspec_modbus"
)

// Recorder exports planner and Modbus metrics to Prometheus.
type Recorder struct {
	solves        *prometheus.CounterVec
	solveDuration *prometheus.HistogramVec
	plans         *prometheus.CounterVec
	failures      *prometheus.CounterVec
	profit        *prometheus.GaugeVec
	lastPlan      prometheus.Gauge
	modbusLatency *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		solves: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batteryplan_solves_total",
				Help: "Total number of LP solves by strategy and status",
			},
			[]string{"strategy", "status"},
		),
		solveDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "batteryplan_solve_duration_seconds",
				Help:    "Duration of a single strategy solve",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
			},
			[]string{"strategy"},
		),
		plans: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batteryplan_plans_total",
				Help: "Total number of plans by selected operating mode",
			},
			[]string{"mode"},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batteryplan_failures_total",
				Help: "Total number of failed planning runs by reason",
			},
			[]string{"reason"},
		),
		profit: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "batteryplan_expected_profit",
				Help: "Expected profit of the last plan by strategy",
			},
			[]string{"strategy"},
		),
		lastPlan: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "batteryplan_last_plan_timestamp_seconds",
				Help: "Unix time of the last successful plan",
			},
		),
		modbusLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "batteryplan_modbus_duration_seconds",
				Help:    "Duration of Modbus operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) ObserveSolve(strategy string, status domain.SolveStatus, duration time.Duration) {
	r.solves.WithLabelValues(strategy, string(status)).Inc()
	r.solveDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}

func (r *Recorder) ObservePlan(plan *domain.Plan) {
	r.plans.WithLabelValues(string(plan.Decision.Mode)).Inc()
	r.lastPlan.Set(float64(plan.CreatedAt.Unix()))
	if plan.AllowedProfit != nil {
		r.profit.WithLabelValues("grid_charging_allowed").Set(*plan.AllowedProfit)
	}
	if plan.DisallowedProfit != nil {
		r.profit.WithLabelValues("grid_charging_disallowed").Set(*plan.DisallowedProfit)
	}
}

func (r *Recorder) ObserveFailure(err error) {
	r.failures.WithLabelValues(failureReason(err)).Inc()
}

// ModbusInstrument records the duration of every Modbus register access.
func (r *Recorder) ModbusInstrument() *sunspec_modbus.ModbusInstrument {
	return &sunspec_modbus.ModbusInstrument{
		RecordTime: func(fnName string, readTime time.Duration) {
			r.modbusLatency.WithLabelValues(fnName).Observe(readTime.Seconds())
		},
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, domain.ErrInvalidParameter):
		return "invalid_parameter"
	case errors.Is(err, domain.ErrInfeasibleModel):
		return "infeasible"
	case errors.Is(err, domain.ErrOptimizationTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrOptimizationFailed):
		return "solver"
	default:
		return "other"
	}
}

var _ port.OptimizerObserver = (*Recorder)(nil)
