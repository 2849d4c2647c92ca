// Package maintenance runs periodic housekeeping for a long-lived lintgate
// process: ageing out runs and tasks, and reaping finished children.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron parses a five-field cron expression
func ParseCron(expr string) (cron.Schedule, error) {
	return cronParser.Parse(expr)
}

// Job is one named housekeeping action
type Job struct {
	Name string
	Cron string
	Run  func(ctx context.Context) error
}

// Validate checks the job has a name, a body and a parseable schedule
func (j Job) Validate() error {
	if j.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if j.Run == nil {
		return fmt.Errorf("job %s: run function is required", j.Name)
	}
	if _, err := ParseCron(j.Cron); err != nil {
		return fmt.Errorf("job %s: invalid cron expression: %w", j.Name, err)
	}
	return nil
}

type jobState struct {
	job      Job
	schedule cron.Schedule
	lastRun  time.Time
	lastErr  error
	running  bool
}

// Status is a snapshot of one job
type Status struct {
	Name      string    `json:"name"`
	Cron      string    `json:"cron"`
	LastRun   time.Time `json:"last_run"`
	NextRun   time.Time `json:"next_run"`
	LastError string    `json:"last_error,omitempty"`
	Running   bool      `json:"running"`
}

// Scheduler checks its jobs once per tick and runs those that are due.
// A job never overlaps with itself.
type Scheduler struct {
	mu     sync.RWMutex
	jobs   map[string]*jobState
	logger *slog.Logger
	now    func() time.Time
	tick   time.Duration
	wg     sync.WaitGroup
}

// NewScheduler validates jobs. Jobs count as last run at construction, so
// the first run happens at the first scheduled time after start.
func NewScheduler(jobs []Job, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		jobs:   make(map[string]*jobState),
		logger: logger,
		now:    time.Now,
		tick:   time.Minute,
	}
	start := s.now()
	for _, job := range jobs {
		if err := job.Validate(); err != nil {
			return nil, err
		}
		if _, dup := s.jobs[job.Name]; dup {
			return nil, fmt.Errorf("duplicate job %s", job.Name)
		}
		sched, _ := ParseCron(job.Cron)
		s.jobs[job.Name] = &jobState{job: job, schedule: sched, lastRun: start}
	}
	return s, nil
}

// NextRun returns the next scheduled time of a job, zero if unknown
func (s *Scheduler) NextRun(name string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.jobs[name]
	if !ok {
		return time.Time{}
	}
	return st.schedule.Next(st.lastRun)
}

// ShouldRun reports whether a job is due and not already running
func (s *Scheduler) ShouldRun(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.jobs[name]
	if !ok || st.running {
		return false
	}
	return !s.now().Before(st.schedule.Next(st.lastRun))
}

func (s *Scheduler) markRunning(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.jobs[name]
	if st.running {
		return false
	}
	st.running = true
	return true
}

func (s *Scheduler) markComplete(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.jobs[name]
	st.running = false
	st.lastRun = s.now()
	st.lastErr = err
}

// Jobs returns job names in sorted order
func (s *Scheduler) Jobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Statuses returns a snapshot of every job
func (s *Scheduler) Statuses() []Status {
	var out []Status
	for _, name := range s.Jobs() {
		s.mu.RLock()
		st := s.jobs[name]
		status := Status{
			Name:    name,
			Cron:    st.job.Cron,
			LastRun: st.lastRun,
			NextRun: st.schedule.Next(st.lastRun),
			Running: st.running,
		}
		if st.lastErr != nil {
			status.LastError = st.lastErr.Error()
		}
		s.mu.RUnlock()
		out = append(out, status)
	}
	return out
}

// RunNow runs a job synchronously regardless of its schedule
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.RLock()
	st, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown job %s", name)
	}
	if !s.markRunning(name) {
		return fmt.Errorf("job %s is already running", name)
	}
	err := s.invoke(ctx, st.job)
	s.markComplete(name, err)
	return err
}

func (s *Scheduler) invoke(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name, r)
		}
	}()
	start := s.now()
	err = job.Run(ctx)
	if err != nil {
		s.logger.Warn("maintenance job failed", "job", job.Name, "error", err)
	} else {
		s.logger.Debug("maintenance job finished", "job", job.Name, "duration", s.now().Sub(start))
	}
	return err
}

// RunDue starts every due job on its own goroutine
func (s *Scheduler) RunDue(ctx context.Context) {
	for _, name := range s.Jobs() {
		if !s.ShouldRun(name) || !s.markRunning(name) {
			continue
		}
		s.mu.RLock()
		job := s.jobs[name].job
		s.mu.RUnlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.markComplete(job.Name, s.invoke(ctx, job))
		}()
	}
}

// Start checks for due jobs every tick until ctx is cancelled, then waits
// for running jobs to finish.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	defer s.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunDue(ctx)
		}
	}
}
