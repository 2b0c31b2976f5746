package infra

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestVariantLocks_SameKeyIsExclusive(t *testing.T) {
	locks := NewVariantLocks()

	var active, maxActive atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, ok := locks.Acquire(context.Background(), "42")
			if !ok {
				t.Errorf("expected acquire to succeed")
				return
			}
			defer release()

			n := active.Add(1)
			for {
				m := maxActive.Load()
				if n <= m || maxActive.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			active.Add(-1)
		}()
	}
	wg.Wait()

	if got := maxActive.Load(); got != 1 {
		t.Fatalf("expected at most 1 holder at a time, saw %d", got)
	}
	if locks.Len() != 0 {
		t.Fatalf("expected registry to be empty after all releases, got %d", locks.Len())
	}
}

func TestVariantLocks_DifferentKeysDoNotWait(t *testing.T) {
	locks := NewVariantLocks()

	release, ok := locks.Acquire(context.Background(), "a")
	if !ok {
		t.Fatalf("expected acquire a")
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	releaseB, ok := locks.Acquire(ctx, "b")
	if !ok {
		t.Fatalf("expected b to be acquired while a is held")
	}
	releaseB()
}

func TestVariantLocks_WaiterGivesUpOnContext(t *testing.T) {
	locks := NewVariantLocks()

	release, _ := locks.Acquire(context.Background(), "42")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, ok := locks.Acquire(ctx, "42"); ok {
		t.Fatalf("expected second acquire to time out")
	}
	if !locks.Busy("42") {
		t.Fatalf("expected 42 still busy while first holder is active")
	}

	release()
	if locks.Busy("42") {
		t.Fatalf("expected 42 to be removed after release")
	}
}

func TestVariantLocks_ReleaseIsIdempotent(t *testing.T) {
	locks := NewVariantLocks()

	release, _ := locks.Acquire(context.Background(), "42")
	release()
	release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	r1, ok := locks.Acquire(ctx, "42")
	if !ok {
		t.Fatalf("expected acquire after double release")
	}
	// um segundo holder não pode entrar: o release duplo não abriu vaga extra
	ctx2, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	if _, ok := locks.Acquire(ctx2, "42"); ok {
		t.Fatalf("expected exclusive lock after double release")
	}
	r1()
}

func TestVariantLocks_WaiterGetsLockAfterRelease(t *testing.T) {
	locks := NewVariantLocks()

	release, _ := locks.Acquire(context.Background(), "42")

	got := make(chan struct{})
	go func() {
		r, ok := locks.Acquire(context.Background(), "42")
		if ok {
			r()
		}
		close(got)
	}()

	select {
	case <-got:
		t.Fatalf("waiter acquired while lock was held")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	select {
	case <-got:
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("waiter did not acquire after release")
	}
}

func TestChanPool_CanceledContextDoesNotAcquire(t *testing.T) {
	p := NewChanPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, ok := p.Acquire(ctx); ok {
		t.Fatalf("expected canceled ctx not to acquire")
	}
}
