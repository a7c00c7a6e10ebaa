package controller

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

// newTestPool builds a Pool with n bare slots, bypassing NewPool's
// subprocess spawn (startSlot) entirely — acquire/release/broadcast only
// touch atomic state and the wake channel, so they're testable without a
// real jjs-worker binary.
func newTestPool(n int) *Pool {
	p := &Pool{wake: make(chan struct{})}
	for i := 0; i < n; i++ {
		p.slots = append(p.slots, &slot{state: stateIdle})
	}
	return p
}

func TestAcquireLocksAFreeSlot(t *testing.T) {
	t.Parallel()
	p := newTestPool(2)
	s, err := p.acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if atomic.LoadUint32(&s.state) != stateLocked {
		t.Fatalf("acquired slot state = %d, want stateLocked", s.state)
	}
}

func TestAcquireBlocksUntilRelease(t *testing.T) {
	t.Parallel()
	p := newTestPool(1)
	s, err := p.acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	done := make(chan struct{})
	go func() {
		s2, err := p.acquire(context.Background())
		if err != nil {
			t.Errorf("second acquire: %v", err)
		}
		if s2 != s {
			t.Errorf("second acquire returned a different slot than the one released")
		}
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("second acquire must block while the only slot is held")
	case <-time.After(20 * time.Millisecond):
	}

	p.release(s, false)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("second acquire did not unblock after release broadcast")
	}
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	t.Parallel()
	p := newTestPool(1)
	if _, err := p.acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := p.acquire(ctx)
		errCh <- err
	}()
	cancel()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Fatalf("acquire() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("acquire did not return after its context was cancelled")
	}
}

func TestReleaseWithoutCrashReturnsToIdle(t *testing.T) {
	t.Parallel()
	p := newTestPool(1)
	s, _ := p.acquire(context.Background())
	p.release(s, false)
	if atomic.LoadUint32(&s.state) != stateIdle {
		t.Fatalf("released slot state = %d, want stateIdle", s.state)
	}
}
