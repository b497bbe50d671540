package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestSchedulerEvery(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewScheduler(zap.NewNop())
	var ticks atomic.Int32
	s.Every("tick", 5*time.Millisecond, func(ctx context.Context, now time.Time) {
		ticks.Add(1)
	})
	s.Start(context.Background())

	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, time.Millisecond)
	s.Stop()
}

func TestSchedulerEveryAfterStart(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewScheduler(zap.NewNop())
	s.Start(context.Background())
	defer s.Stop()

	done := make(chan struct{})
	var once atomic.Bool
	s.Every("late", 5*time.Millisecond, func(ctx context.Context, now time.Time) {
		if once.CompareAndSwap(false, true) {
			close(done)
		}
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job registered after Start never ran")
	}
}

func TestSchedulerJobPanicIsRecovered(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewScheduler(zap.NewNop())
	var runs atomic.Int32
	s.Every("flaky", 5*time.Millisecond, func(ctx context.Context, now time.Time) {
		if runs.Add(1) == 1 {
			panic("first run")
		}
	})
	s.Start(context.Background())

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, time.Millisecond)
	s.Stop()
}

func TestSchedulerAfter(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewScheduler(zap.NewNop())
	assert.False(t, s.After(time.Millisecond, func(ctx context.Context) {}), "After before Start must refuse")

	s.Start(context.Background())
	fired := make(chan struct{})
	require.True(t, s.After(5*time.Millisecond, func(ctx context.Context) { close(fired) }))

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("delayed job never ran")
	}
	require.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, time.Millisecond)
	s.Stop()
}

func TestSchedulerStopCancelsPending(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewScheduler(zap.NewNop())
	s.Start(context.Background())

	var ran atomic.Bool
	require.True(t, s.After(time.Hour, func(ctx context.Context) { ran.Store(true) }))
	assert.Equal(t, 1, s.Pending())

	s.Stop()
	assert.Equal(t, 0, s.Pending())
	assert.False(t, ran.Load())
	assert.False(t, s.After(time.Millisecond, func(ctx context.Context) {}), "After on a stopped scheduler must refuse")
}
