// Package scheduler fires registered jobs on cron schedules in a configured
// timezone.
//
// A job never overlaps itself: a firing while the previous run is still in
// flight is skipped, not queued, and reported as a task.skipped event. Stop
// removes the cron entries, cancels running jobs through their context and
// waits for them.
package scheduler
