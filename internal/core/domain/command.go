package domain

import "fmt"

const (
	TRIGGER_SCHEDULE = "schedule"
	TRIGGER_MQTT     = "mqtt"
	TRIGGER_HTTP     = "http"
)

// PlannerRequest

type PlannerRequest interface {
	ActorRequest
	PlannerCommand() string
}

type PlannerRequestBase struct {
	RequestBase
}

func (r PlannerRequestBase) PlannerCommand() string {
	return fmt.Sprintf("%T", r)
}

// Planner commands

type RunPlanRequest struct {
	PlannerRequestBase
	Trigger string
}

type RunPlanResponse struct {
	ResponseBase
	Plan *Plan
}

type SetAutoApplyRequest struct {
	PlannerRequestBase
	Enable bool
}

type SetAutoApplyResponse struct {
	ResponseBase
	Changed bool
}

type SetMinGridChargeProfitRequest struct {
	PlannerRequestBase
	Value float64
}

type SetMinGridChargeProfitResponse struct {
	ResponseBase
	Value float64
}

type GetLastPlanRequest struct {
	PlannerRequestBase
}

type GetLastPlanResponse struct {
	ResponseBase
	Plan *Plan
}

// ensure interface compliance
var _ PlannerRequest = (*RunPlanRequest)(nil)
