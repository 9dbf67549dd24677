package cleanup

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type countingSweeper struct {
	calls atomic.Int32
}

func (s *countingSweeper) Sweep(context.Context) int {
	s.calls.Add(1)
	return 1
}

func TestCleanerSweepsUntilCanceled(t *testing.T) {
	sweeper := &countingSweeper{}
	c := NewCleaner(5*time.Millisecond, sweeper)

	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for sweeper.calls.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected at least 3 sweeps, got %d", sweeper.calls.Load())
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("cleaner did not stop")
	}

	stopped := sweeper.calls.Load()
	time.Sleep(20 * time.Millisecond)
	if sweeper.calls.Load() != stopped {
		t.Error("cleaner kept sweeping after stop")
	}
}

func TestNewCleanerDefaultInterval(t *testing.T) {
	c := NewCleaner(0, &countingSweeper{})
	if c.interval != time.Minute {
		t.Errorf("expected 1m default, got %s", c.interval)
	}
}

func TestCleanerRunsEverySweeper(t *testing.T) {
	sessions, containers := &countingSweeper{}, &countingSweeper{}
	c := NewCleaner(time.Hour, sessions, containers)

	c.cleanup(context.Background())
	c.cleanup(context.Background())

	if sessions.calls.Load() != 2 || containers.calls.Load() != 2 {
		t.Errorf("expected two sweeps each, got %d and %d", sessions.calls.Load(), containers.calls.Load())
	}
}
