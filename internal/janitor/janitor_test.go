package janitor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadSchedule(t *testing.T) {
	_, err := New("")
	require.Error(t, err)

	_, err = New("every minute please")
	require.Error(t, err)

	_, err = New("@every 1m")
	require.NoError(t, err)

	_, err = New("*/5 * * * *")
	require.NoError(t, err)
}

func TestRunOnceContinuesAfterFailure(t *testing.T) {
	var order []string
	j, err := New("@every 1m",
		Task{Name: "first", Run: func(context.Context) error {
			order = append(order, "first")
			return errors.New("boom")
		}},
		Task{Name: "second", Run: func(context.Context) error {
			order = append(order, "second")
			return nil
		}},
	)
	require.NoError(t, err)

	j.RunOnce(context.Background())
	require.Equal(t, []string{"first", "second"}, order)
}

func TestRunOnceStopsWhenCancelled(t *testing.T) {
	var runs atomic.Int32
	j, err := New("@every 1m", Task{Name: "count", Run: func(context.Context) error {
		runs.Add(1)
		return nil
	}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	j.RunOnce(ctx)
	require.Zero(t, runs.Load())
}

func TestStartFiresAndStops(t *testing.T) {
	var runs atomic.Int32
	j, err := New("@every 1s", Task{Name: "count", Run: func(context.Context) error {
		runs.Add(1)
		return nil
	}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- j.Start(ctx) }()

	require.Eventually(t, func() bool { return runs.Load() > 0 }, 3*time.Second, 20*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not stop")
	}
}
