// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The Arobito Project

package control

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultShutdownDelay is the grace period between a shutdown request and
// the shutdown itself, long enough for the response to reach the client.
const DefaultShutdownDelay = 10 * time.Second

// ShutdownFunc is called when a scheduled shutdown fires.
type ShutdownFunc func()

// Scheduler runs a ShutdownFunc once, after a delay, on the first Schedule
// call. It is safe for concurrent use.
type Scheduler struct {
	mu       sync.Mutex
	delay    time.Duration
	shutdown ShutdownFunc
	timer    *time.Timer
	stopped  bool
	logger   *slog.Logger
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerLogger sets the logger.
func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewScheduler creates a Scheduler. A non-positive delay selects
// DefaultShutdownDelay.
func NewScheduler(delay time.Duration, shutdown ShutdownFunc, opts ...SchedulerOption) *Scheduler {
	if delay <= 0 {
		delay = DefaultShutdownDelay
	}
	s := &Scheduler{
		delay:    delay,
		shutdown: shutdown,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Delay returns the configured grace period.
func (s *Scheduler) Delay() time.Duration {
	return s.delay
}

// Schedule arms the shutdown timer and returns immediately. It returns false
// when a shutdown is already pending or the scheduler was stopped.
func (s *Scheduler) Schedule() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || s.timer != nil {
		return false
	}
	s.timer = time.AfterFunc(s.delay, s.fire)
	s.logger.Warn("shutdown scheduled", "delay", s.delay)
	return true
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.logger.Warn("shutting down")
	if s.shutdown != nil {
		s.shutdown()
	}
}

// Pending reports whether a shutdown has been scheduled and not cancelled.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil && !s.stopped
}

// Stop cancels a pending shutdown and disables further scheduling.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
	}
}
