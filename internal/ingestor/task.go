package ingestor

import (
	"context"

	"github.com/hibiken/asynq"
)

// TaskTypeUpdateCycle is the asynq task type for one ingestor cycle.
const TaskTypeUpdateCycle = "ingestor:update_cycle"

// NewUpdateCycleTask builds the task asynq.Scheduler re-enqueues on the
// ingestor's update interval.
func NewUpdateCycleTask() *asynq.Task {
	return asynq.NewTask(TaskTypeUpdateCycle, nil)
}

// HandleUpdateCycle is the asynq.HandlerFunc that runs one ingestor
// cycle. It always returns nil: a failed cycle is isolated per-pair and
// logged inside RunCycle/runCycleGuarded, not surfaced as a task error,
// so asynq never applies its own retry backoff on top of the cycle's
// own failure handling.
func (in *Ingestor) HandleUpdateCycle(ctx context.Context, _ *asynq.Task) error {
	if in.stopping.Load() {
		return nil
	}
	in.runCycleGuarded(ctx)
	return nil
}

// Register schedules HandleUpdateCycle with an asynq.Scheduler at the
// ingestor's configured update interval.
func (in *Ingestor) Register(scheduler *asynq.Scheduler) (string, error) {
	return scheduler.Register(toCronSpec(in.interval), NewUpdateCycleTask(), asynq.Queue("ingestor"))
}
