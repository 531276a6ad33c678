package trigger

import (
	"context"
	"fmt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"

	"github.com/berfenger/batteryplan2mqtt/internal/core/domain"
)

const planJobName = "planner"

// PlanJob asks the planner for a new plan every time the cron fires.
type PlanJob struct {
	rootContext *actor.RootContext
	target      *actor.PID
	logger      *zap.Logger
}

func NewPlanJob(rootContext *actor.RootContext, target *actor.PID, logger *zap.Logger) *PlanJob {
	return &PlanJob{
		rootContext: rootContext,
		target:      target,
		logger:      logger,
	}
}

func (j *PlanJob) Execute(_ context.Context) error {
	j.logger.Debug("scheduled plan run")
	j.rootContext.Send(j.target, domain.RunPlanRequest{Trigger: domain.TRIGGER_SCHEDULE})
	return nil
}

func (j *PlanJob) Description() string {
	return fmt.Sprintf("plan run for %s", j.target.Id)
}

// StartScheduler starts a quartz scheduler running job on the cron
// expression. The scheduler stops when ctx is done.
func StartScheduler(ctx context.Context, cronExpr string, job quartz.Job) (quartz.Scheduler, error) {
	trigger, err := quartz.NewCronTrigger(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid planner cron %q: %w", cronExpr, err)
	}

	sched := quartz.NewStdScheduler()
	sched.Start(ctx)

	if err := sched.ScheduleJob(quartz.NewJobDetail(job, quartz.NewJobKey(planJobName)), trigger); err != nil {
		sched.Stop()
		return nil, err
	}
	return sched, nil
}
