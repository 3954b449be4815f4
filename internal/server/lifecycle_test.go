package server

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func blockingService(started *atomic.Bool) Service {
	return FuncService(func(ctx context.Context) error {
		started.Store(true)
		<-ctx.Done()
		return ctx.Err()
	})
}

func TestLifecycle_RunsUntilCancelled(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	var s1, s2 atomic.Bool
	lc.Add("svc1", blockingService(&s1))
	lc.Add("svc2", blockingService(&s2))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()

	require.Eventually(t, func() bool { return s1.Load() && s2.Load() }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("lifecycle did not stop")
	}
}

func TestLifecycle_FailureCancelsOthers(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	var s atomic.Bool
	boom := errors.New("boom")
	lc.Add("blocker", blockingService(&s))
	lc.Add("failer", FuncService(func(ctx context.Context) error { return boom }))

	err := lc.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "service failer")
}

func TestLifecycle_CompletesWhenServicesFinish(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	var calls atomic.Int32
	for _, name := range []string{"a", "b", "c"} {
		lc.Add(name, FuncService(func(ctx context.Context) error {
			calls.Add(1)
			return nil
		}))
	}
	require.NoError(t, lc.Run(context.Background()))
	assert.Equal(t, int32(3), calls.Load())
}

func TestEvery_RepeatsAndLogsFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	var calls atomic.Int32
	svc := Every(5*time.Millisecond, zap.New(core), func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			return errors.New("first run fails")
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, 1, logs.FilterMessage("periodic run failed").Len())
}
