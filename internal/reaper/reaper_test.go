package reaper

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type countingSweeper struct {
	calls int32
}

func (s *countingSweeper) ReapIdle(ctx context.Context, threshold time.Duration, now time.Time) {
	atomic.AddInt32(&s.calls, 1)
}

func TestReaperTicksUntilCancelled(t *testing.T) {
	s := &countingSweeper{}
	r := New(s, 10*time.Millisecond, 60*time.Second, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	time.Sleep(55 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}

	if atomic.LoadInt32(&s.calls) < 2 {
		t.Errorf("expected at least 2 sweeps in 55ms at a 10ms interval, got %d", s.calls)
	}
}
