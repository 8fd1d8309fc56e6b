// Package scheduler owns the recurring ingestion jobs. Each job runs with
// at-most-one-concurrent-instance semantics: a trigger that fires while the
// previous run is still going is skipped, not queued.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Well-known job names.
const (
	JobEOD      = "ingest-eod"
	JobIntraday = "ingest-intraday"
)

// Scheduler wraps a timezone-aware cron runner with named, replaceable entries.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// New creates a scheduler evaluating cron expressions in the given timezone.
func New(loc *time.Location, logger *zap.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	cronLogger := &zapCronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger)),
		),
		logger:  logger,
		entries: make(map[string]cron.EntryID),
	}
}

// ScheduleCron registers (or replaces) a job under a 5-field cron expression.
func (s *Scheduler) ScheduleCron(name, spec string, job func()) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron expression %q for job %s: %w", spec, name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(name)
	id, err := s.cron.AddFunc(spec, job)
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}
	s.entries[name] = id
	s.logger.Info("Scheduled job", zap.String("job", name), zap.String("cron", spec))
	return nil
}

// ScheduleEvery registers (or replaces) a fixed-interval job.
func (s *Scheduler) ScheduleEvery(name string, every time.Duration, job func()) error {
	if every <= 0 {
		return fmt.Errorf("invalid interval %s for job %s", every, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(name)
	id, err := s.cron.AddFunc(fmt.Sprintf("@every %s", every), job)
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}
	s.entries[name] = id
	s.logger.Info("Scheduled job", zap.String("job", name), zap.Duration("every", every))
	return nil
}

// Remove unregisters a job; it reports whether the job was scheduled.
func (s *Scheduler) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(name)
}

func (s *Scheduler) removeLocked(name string) bool {
	id, ok := s.entries[name]
	if !ok {
		return false
	}
	s.cron.Remove(id)
	delete(s.entries, name)
	return true
}

// Has reports whether a job is currently scheduled.
func (s *Scheduler) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[name]
	return ok
}

// NextRuns returns the next trigger time per scheduled job. Before Start
// the times are zero.
func (s *Scheduler) NextRuns() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]time.Time, len(s.entries))
	for name, id := range s.entries {
		next[name] = s.cron.Entry(id).Next
	}
	return next
}

// Start begins triggering jobs in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents further triggers. It does not wait for in-flight jobs;
// idempotent upserts make an abandoned run safe to replay.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// zapCronLogger adapts zap to the cron logger interface so skipped overlaps
// show up in the service log.
type zapCronLogger struct {
	logger *zap.Logger
}

func (l *zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg, zap.Any("details", keysAndValues))
}

func (l *zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}
