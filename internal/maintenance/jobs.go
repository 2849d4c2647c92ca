package maintenance

import (
	"context"
	"time"
)

// RunCleaner ages out persisted validation runs
type RunCleaner interface {
	CleanupOldRuns(maxAgeDays int) int
	CleanupZombies() int
}

// TaskCleaner ages out terminal async tasks
type TaskCleaner interface {
	CleanupOldTasks(maxAge time.Duration) int
}

// Job names
const (
	JobCleanupRuns  = "cleanup-runs"
	JobCleanupTasks = "cleanup-tasks"
	JobReapZombies  = "reap-zombies"
)

// DefaultJobs builds the housekeeping jobs for a server process. Zombies are
// reaped every minute; the cleanups follow expr.
func DefaultJobs(expr string, runs RunCleaner, maxRunAgeDays int, tasks TaskCleaner, maxTaskAge time.Duration) []Job {
	return []Job{
		{
			Name: JobCleanupRuns,
			Cron: expr,
			Run: func(context.Context) error {
				runs.CleanupOldRuns(maxRunAgeDays)
				return nil
			},
		},
		{
			Name: JobCleanupTasks,
			Cron: expr,
			Run: func(context.Context) error {
				tasks.CleanupOldTasks(maxTaskAge)
				return nil
			},
		},
		{
			Name: JobReapZombies,
			Cron: "* * * * *",
			Run: func(context.Context) error {
				runs.CleanupZombies()
				return nil
			},
		},
	}
}
