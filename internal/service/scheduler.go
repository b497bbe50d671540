package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler owns the process's background timers: recurring jobs such as
// the vault sweep, and one-shot delayed jobs such as self-destruct deletions.
// Everything it starts is cancelled and joined by Stop.
type Scheduler struct {
	logger *zap.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	jobs    []job
	timers  map[*time.Timer]struct{}
	started bool
	wg      sync.WaitGroup
}

type job struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context, now time.Time)
}

// NewScheduler creates a scheduler
func NewScheduler(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		logger: logger.Named("scheduler"),
		timers: make(map[*time.Timer]struct{}),
	}
}

// Every registers a recurring job; jobs registered after Start begin at once
func (s *Scheduler) Every(name string, interval time.Duration, fn func(ctx context.Context, now time.Time)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := job{name: name, interval: interval, fn: fn}
	s.jobs = append(s.jobs, j)
	if s.started {
		s.wg.Add(1)
		go s.loop(s.ctx, j)
	}
}

// After runs fn once after delay. Returns false when the scheduler is not
// running, in which case fn never runs.
func (s *Scheduler) After(delay time.Duration, fn func(ctx context.Context)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return false
	}
	ctx := s.ctx
	s.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		defer s.wg.Done()
		s.mu.Lock()
		_, pending := s.timers[t]
		delete(s.timers, t)
		s.mu.Unlock()
		if !pending || ctx.Err() != nil {
			return
		}
		fn(ctx)
	})
	s.timers[t] = struct{}{}
	return true
}

// Pending returns the number of armed one-shot timers
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Start starts the recurring jobs
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true

	s.wg.Add(len(s.jobs))
	for _, j := range s.jobs {
		go s.loop(s.ctx, j)
	}
	s.logger.Info("started", zap.Int("jobs", len(s.jobs)))
}

// Stop cancels every job and armed timer and waits for running ones
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.cancel()
	for t := range s.timers {
		if t.Stop() {
			// the callback will never run, release its slot
			s.wg.Done()
		}
		delete(s.timers, t)
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("stopped")
}

func (s *Scheduler) loop(ctx context.Context, j job) {
	defer s.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.run(ctx, j, now)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, j job, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked", zap.String("job", j.name), zap.Any("panic", r))
		}
	}()
	j.fn(ctx, now)
}
