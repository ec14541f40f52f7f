package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Sentinel errors for scheduling operations.
var (
	ErrStopped         = errors.New("scheduler stopped")
	ErrInvalidInterval = errors.New("interval must be positive")
	ErrDuplicateJob    = errors.New("job already scheduled")
)

// Scheduler runs one periodic job per key.
type Scheduler struct {
	clock   clock.Clock
	step    time.Duration
	logger  *slog.Logger
	mu      sync.Mutex
	jobs    map[string]*Job
	stopped bool
}

// New creates a Scheduler. A nil clock selects the wall clock.
func New(clk clock.Clock, logger *slog.Logger) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	return &Scheduler{
		clock:  clk,
		step:   MaxStep,
		logger: logger.With("component", "scheduler"),
		jobs:   make(map[string]*Job),
	}
}

// SetMaxStep overrides the longest single timer used to compose intervals.
func (s *Scheduler) SetMaxStep(step time.Duration) {
	if step > 0 {
		s.step = step
	}
}

// Every calls fn each time interval elapses until the job is stopped. The
// next tick is armed after fn returns whatever fn did, so fn must hand long
// work off to another goroutine.
func (s *Scheduler) Every(key string, interval time.Duration, fn func()) (*Job, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("schedule %s: %w", key, ErrInvalidInterval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, ErrStopped
	}
	if _, ok := s.jobs[key]; ok {
		return nil, fmt.Errorf("schedule %s: %w", key, ErrDuplicateJob)
	}

	job := &Job{
		key:  key,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	s.jobs[key] = job

	go func() {
		defer close(job.done)
		for wait(s.clock, interval, s.step, job.stop) {
			s.logger.Debug("tick", "job", key, "interval", interval.String())
			fn()
		}
	}()

	return job, nil
}

// Cancel stops the job registered under key.
func (s *Scheduler) Cancel(key string) {
	s.mu.Lock()
	job, ok := s.jobs[key]
	delete(s.jobs, key)
	s.mu.Unlock()
	if ok {
		job.Stop()
	}
}

// Scheduled reports whether a job runs under key.
func (s *Scheduler) Scheduled(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[key]
	return ok
}

// Len returns the number of running jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Stop cancels every job and waits for their goroutines to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	jobs := s.jobs
	s.jobs = make(map[string]*Job)
	s.mu.Unlock()

	for _, job := range jobs {
		job.cancel()
	}
	for _, job := range jobs {
		<-job.done
	}
}
