package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Status is a point-in-time view of a scheduled job.
type Status struct {
	Job                 string    `json:"job"`
	Running             bool      `json:"running"`
	Interval            string    `json:"interval"`
	Runs                int64     `json:"runs"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastRun             time.Time `json:"last_run"`
	LastDurationMS      int64     `json:"last_duration_ms"`
	LastError           string    `json:"last_error,omitempty"`
}

// Scheduler drives a job function on a fixed interval. Runs never overlap:
// a manual RunOnce waits for an in-progress loop run and the other way round.
type Scheduler struct {
	name     string
	interval time.Duration
	job      func(context.Context) error

	// runMu serializes job runs.
	runMu sync.Mutex

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
	status  Status
}

func New(name string, interval time.Duration, job func(context.Context) error) (*Scheduler, error) {
	switch {
	case interval <= 0:
		return nil, errors.New("scheduler: interval must be positive")
	case job == nil:
		return nil, errors.New("scheduler: job is required")
	}
	return &Scheduler{
		name:     name,
		interval: interval,
		job:      job,
		status:   Status{Job: name, Interval: interval.String()},
	}, nil
}

// Start runs the job now and then every interval until Stop is called or
// parent is canceled. A second Start while running is a no-op returning false.
func (s *Scheduler) Start(parent context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return false
	}

	ctx, cancel := context.WithCancel(parent)
	stopped := make(chan struct{})
	s.cancel = cancel
	s.stopped = stopped
	s.status.Running = true

	go s.loop(ctx, stopped)
	return true
}

func (s *Scheduler) loop(ctx context.Context, stopped chan struct{}) {
	defer close(stopped)

	slog.Info("scheduler started", "job", s.name, "interval", s.interval.String())
	_ = s.run(ctx)

	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler loop exited", "job", s.name, "reason", ctx.Err())
			return
		case <-t.C:
			_ = s.run(ctx)
		}
	}
}

// Stop cancels the loop and waits for the current run to return. It reports
// false when the scheduler was not started.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	cancel, stopped := s.cancel, s.stopped
	s.cancel, s.stopped = nil, nil
	s.status.Running = false
	s.mu.Unlock()

	if cancel == nil {
		return false
	}
	cancel()
	<-stopped

	slog.Info("scheduler stopped", "job", s.name)
	return true
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// RunOnce runs the job on the caller's goroutine and returns its error.
// It does not start the loop.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.run(ctx)
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Scheduler) run(ctx context.Context) (err error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
		s.record(start, err)
	}()

	return s.job(ctx)
}

func (s *Scheduler) record(start time.Time, err error) {
	took := time.Since(start)

	s.mu.Lock()
	s.status.Runs++
	s.status.LastRun = start
	s.status.LastDurationMS = took.Milliseconds()
	if err != nil {
		s.status.ConsecutiveFailures++
		s.status.LastError = err.Error()
	} else {
		s.status.ConsecutiveFailures = 0
		s.status.LastError = ""
	}
	failures := s.status.ConsecutiveFailures
	s.mu.Unlock()

	if err != nil {
		slog.Error("scheduled job failed", "job", s.name, "failures", failures, "err", err)
		return
	}
	slog.Debug("scheduled job finished", "job", s.name, "duration_ms", took.Milliseconds())
}
