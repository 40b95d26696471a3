package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	wardenErrors "github.com/harunnryd/warden/internal/errors"
)

func TestScheduler_RejectsInvalidSchedule(t *testing.T) {
	s := NewScheduler(time.Second)
	err := s.Add("bad", "every now and then", func(context.Context) {})
	assert.ErrorIs(t, err, wardenErrors.ErrInvalidInput)
	assert.Empty(t, s.Jobs())
}

func TestScheduler_RunsJobsAndStopsCleanly(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewScheduler(2 * time.Second)
	var calls atomic.Int32
	require.NoError(t, s.Add("sweep", "@every 1s", func(ctx context.Context) {
		calls.Add(1)
	}))
	assert.Equal(t, map[string]string{"sweep": "@every 1s"}, s.Jobs())

	require.Error(t, s.Health(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	assert.NoError(t, s.Health(context.Background()))

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))
	assert.False(t, s.IsRunning())
	assert.GreaterOrEqual(t, s.Runs("sweep"), 1)

	require.NoError(t, s.Stop(context.Background()))
}

func TestScheduler_StopCancelsJobContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewScheduler(3 * time.Second)
	started := make(chan struct{})
	var cancelled atomic.Bool
	require.NoError(t, s.Add("slow", "@every 1s", func(ctx context.Context) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		cancelled.Store(true)
	}))
	require.NoError(t, s.Start(context.Background()))

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("job never ran")
	}
	require.NoError(t, s.Stop(context.Background()))
	assert.True(t, cancelled.Load())
}
