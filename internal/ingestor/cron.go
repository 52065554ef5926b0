package ingestor

import "time"

// toCronSpec renders a duration as the "@every" cron spec robfig/cron
// (and asynq's Scheduler) accepts directly, avoiding a
// hand-rolled minute/hour breakdown for intervals that don't align to
// calendar boundaries.
func toCronSpec(d time.Duration) string {
	return "@every " + d.String()
}
