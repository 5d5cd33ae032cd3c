package bench

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntervalScheduler_RunOnce(t *testing.T) {
	var calls atomic.Int32
	scheduler := NewIntervalScheduler(10*time.Millisecond, true, log.New())
	scheduler.RegisterCallback(func(context.Context) error {
		calls.Add(1)
		return nil
	})

	require.NoError(t, scheduler.Start(context.Background()))
	assert.Equal(t, int32(1), calls.Load())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load(), "run-once mode never repeats")
}

func TestIntervalScheduler_RunOnceError(t *testing.T) {
	boom := errors.New("boom")
	scheduler := NewIntervalScheduler(0, true, log.New())
	scheduler.RegisterCallback(func(context.Context) error { return boom })
	require.ErrorIs(t, scheduler.Start(context.Background()), boom)
}

func TestIntervalScheduler_Periodic(t *testing.T) {
	calls := make(chan struct{}, 10)
	scheduler := NewIntervalScheduler(10*time.Millisecond, false, log.New())
	scheduler.RegisterCallback(func(context.Context) error {
		select {
		case calls <- struct{}{}:
		default:
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, scheduler.Start(ctx))

	for i := 0; i < 4; i++ {
		select {
		case <-calls:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for call %d", i+1)
		}
	}

	require.NoError(t, scheduler.Stop())
	assert.True(t, scheduler.Stopped())
	require.NoError(t, scheduler.WaitForShutdown(context.Background()))
	require.NoError(t, scheduler.Stop(), "stopping twice is a no-op")
}

func TestIntervalScheduler_PeriodicErrorsAreLogged(t *testing.T) {
	var calls atomic.Int32
	scheduler := NewIntervalScheduler(5*time.Millisecond, false, log.New())
	scheduler.RegisterCallback(func(context.Context) error {
		if calls.Add(1) > 1 {
			return errors.New("periodic failure")
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, scheduler.Start(ctx))
	require.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, scheduler.WaitForShutdown(context.Background()))
	assert.True(t, scheduler.Stopped())
}

func TestIntervalScheduler_FirstRunError(t *testing.T) {
	scheduler := NewIntervalScheduler(time.Hour, false, log.New())
	scheduler.RegisterCallback(func(context.Context) error { return errors.New("first run failed") })
	require.Error(t, scheduler.Start(context.Background()))
}

func TestIntervalScheduler_RequiresCallback(t *testing.T) {
	scheduler := NewIntervalScheduler(time.Second, false, log.New())
	require.Error(t, scheduler.Start(context.Background()))
}

func TestIntervalScheduler_WaitForShutdownTimeout(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	scheduler := NewIntervalScheduler(time.Millisecond, false, log.New())
	scheduler.RegisterCallback(func(context.Context) error {
		if calls.Add(1) > 1 {
			<-release
		}
		return nil
	})
	require.NoError(t, scheduler.Start(context.Background()))
	require.Eventually(t, func() bool { return calls.Load() >= 2 }, 2*time.Second, time.Millisecond)

	require.NoError(t, scheduler.Stop())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, scheduler.WaitForShutdown(ctx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, scheduler.WaitForShutdown(context.Background()))
}
