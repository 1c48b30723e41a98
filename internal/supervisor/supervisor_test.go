package supervisor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRun_InvokesTaskBodyRepeatedly(t *testing.T) {
	s := New(nil)
	var calls atomic.Int64

	task := Task{
		Name:     "test_loop",
		Interval: 5 * time.Millisecond,
		Body: func(ctx context.Context) error {
			calls.Add(1)
			return nil
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.Run(ctx, []Task{task})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop within timeout")
	}

	require.Greater(t, calls.Load(), int64(2))
}

func TestStop_ExitsWithinSleepSlice(t *testing.T) {
	s := New(nil)
	task := Task{
		Name:     "long_loop",
		Interval: time.Hour,
		Body: func(ctx context.Context) error {
			return nil
		},
	}

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		s.Run(ctx, []Task{task})
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	start := time.Now()
	s.Stop()

	select {
	case <-done:
		require.Less(t, time.Since(start), 500*time.Millisecond)
	case <-time.After(1 * time.Second):
		t.Fatal("stop was not observed in time")
	}
}

func TestInvoke_RecoversFromPanic(t *testing.T) {
	s := New(nil)
	task := Task{
		Name: "panicky",
		Body: func(ctx context.Context) error {
			panic("boom")
		},
	}
	outcome := s.invoke(context.Background(), task)
	require.Equal(t, "panic", outcome)
}
