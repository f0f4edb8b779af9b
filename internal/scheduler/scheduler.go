// Package scheduler runs one-shot jobs at absolute wall-clock times on top of
// a robfig/cron runner.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ErrInPast is returned when a job is scheduled at or before the current time
var ErrInPast = errors.New("scheduled time is in the past")

// Job is the work run when a scheduled time arrives
type Job func()

// JobInfo describes a pending job
type JobInfo struct {
	ID string    `json:"id"`
	At time.Time `json:"at"`
}

// onceSchedule fires exactly once at the given instant. Returning the zero
// time afterwards tells cron the entry has no further activations.
type onceSchedule struct {
	at time.Time
}

func (s onceSchedule) Next(t time.Time) time.Time {
	if t.Before(s.at) {
		return s.at
	}
	return time.Time{}
}

type pendingJob struct {
	entryID cron.EntryID
	at      time.Time
}

// Scheduler keeps at most one pending job per id
type Scheduler struct {
	cron   *cron.Cron
	logger zerolog.Logger
	now    func() time.Time

	mu   sync.Mutex
	jobs map[string]pendingJob
}

// Option configures a Scheduler
type Option func(*options)

type options struct {
	now      func() time.Time
	location *time.Location
}

// WithClock overrides the clock used to reject past times
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithLocation sets the location cron evaluates times in
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		o.location = loc
	}
}

// New creates a stopped scheduler
func New(logger zerolog.Logger, opts ...Option) *Scheduler {
	o := options{now: time.Now, location: time.Local}
	for _, opt := range opts {
		opt(&o)
	}

	logger = logger.With().Str("component", "scheduler").Logger()
	cronLogger := zerologCronLogger{logger: logger}

	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(o.location),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger)),
		),
		logger: logger,
		now:    o.now,
		jobs:   make(map[string]pendingJob),
	}
}

// Start begins running jobs in the background
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Msg("Scheduler started")
}

// Stop halts the scheduler. The returned context is done once running jobs
// have finished.
func (s *Scheduler) Stop() context.Context {
	ctx := s.cron.Stop()
	s.logger.Info().Msg("Scheduler stopped")
	return ctx
}

// ScheduleAt registers job to run once at the given time. A pending job with
// the same id is replaced.
func (s *Scheduler) ScheduleAt(id string, at time.Time, job Job) error {
	if id == "" {
		return errors.New("job id is required")
	}
	if job == nil {
		return errors.New("job is required")
	}
	if !at.After(s.now()) {
		return fmt.Errorf("%w: %s", ErrInPast, at.Format(time.RFC3339))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobs[id]; ok {
		s.cron.Remove(existing.entryID)
		s.logger.Debug().Str("job_id", id).Msg("Replacing pending job")
	}

	var entryID cron.EntryID
	entryID = s.cron.Schedule(onceSchedule{at: at}, cron.FuncJob(func() {
		s.finish(id, &entryID)
		s.logger.Debug().Str("job_id", id).Msg("Running job")
		job()
	}))
	s.jobs[id] = pendingJob{entryID: entryID, at: at}

	s.logger.Debug().Str("job_id", id).Time("at", at).Msg("Job scheduled")
	return nil
}

// finish drops the bookkeeping for a job that has started, unless it was
// replaced in the meantime
func (s *Scheduler) finish(id string, entryID *cron.EntryID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.jobs[id]; ok && current.entryID == *entryID {
		delete(s.jobs, id)
	}
	s.cron.Remove(*entryID)
}

// Cancel removes a pending job. It reports whether a job was found.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return false
	}
	s.cron.Remove(job.entryID)
	delete(s.jobs, id)
	s.logger.Debug().Str("job_id", id).Msg("Job cancelled")
	return true
}

// Has reports whether a job with the given id is pending
func (s *Scheduler) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[id]
	return ok
}

// Pending lists pending jobs ordered by time
func (s *Scheduler) Pending() []JobInfo {
	s.mu.Lock()
	out := make([]JobInfo, 0, len(s.jobs))
	for id, job := range s.jobs {
		out = append(out, JobInfo{ID: id, At: job.at})
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].At.Equal(out[j].At) {
			return out[i].ID < out[j].ID
		}
		return out[i].At.Before(out[j].At)
	})
	return out
}

// ReminderJobID is the job id used for a task's reminder
func ReminderJobID(taskID uint) string {
	return fmt.Sprintf("reminder_%d", taskID)
}
