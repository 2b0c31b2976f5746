package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"protection-relay/protection/domain"

	"github.com/shopspring/decimal"
)

type blockingLocker struct{}

func (blockingLocker) Acquire(ctx context.Context, key string) (func(), bool) {
	select {
	case <-ctx.Done():
		return nil, false
	case <-time.After(5 * time.Second):
		// não deve chegar aqui nos testes
		return nil, false
	}
}

type countingLocker struct {
	mu       sync.Mutex
	acquired map[string]int
	released map[string]int
}

func newCountingLocker() *countingLocker {
	return &countingLocker{acquired: map[string]int{}, released: map[string]int{}}
}

func (l *countingLocker) Acquire(ctx context.Context, key string) (func(), bool) {
	l.mu.Lock()
	l.acquired[key]++
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		l.released[key]++
		l.mu.Unlock()
	}, true
}

type fakeWriter struct {
	mu       sync.Mutex
	calls    []string
	err      error
	deadline bool
	block    chan struct{}
}

func (w *fakeWriter) UpdatePrice(ctx context.Context, variantID string, price decimal.Decimal) (domain.UpdatedVariant, error) {
	w.mu.Lock()
	w.calls = append(w.calls, variantID+"="+price.StringFixed(2))
	_, w.deadline = ctx.Deadline()
	w.mu.Unlock()

	if w.block != nil {
		select {
		case <-w.block:
		case <-ctx.Done():
			return domain.UpdatedVariant{}, ctx.Err()
		}
	}
	if w.err != nil {
		return domain.UpdatedVariant{}, w.err
	}
	return domain.UpdatedVariant{ID: variantID, Price: price.StringFixed(2)}, nil
}

func TestSerializedUpdater_ReleasesOnSuccess(t *testing.T) {
	locks := newCountingLocker()
	w := &fakeWriter{}
	u := SerializedUpdater{Locks: locks, Writer: w}

	v, err := u.Update(context.Background(), "42", dec("4.51"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Price != "4.51" || v.ID != "42" {
		t.Fatalf("unexpected variant %+v", v)
	}
	if locks.acquired["42"] != 1 || locks.released["42"] != 1 {
		t.Fatalf("expected one acquire and one release, got %d/%d", locks.acquired["42"], locks.released["42"])
	}
	if !w.deadline {
		t.Fatalf("expected remote call to run with a deadline")
	}
}

func TestSerializedUpdater_ReleasesOnRemoteError(t *testing.T) {
	locks := newCountingLocker()
	w := &fakeWriter{err: &domain.RemoteError{Status: 422, Body: `{"errors":"price invalid"}`}}
	u := SerializedUpdater{Locks: locks, Writer: w}

	_, err := u.Update(context.Background(), "42", dec("4.51"))
	var re *domain.RemoteError
	if !errors.As(err, &re) || re.Status != 422 {
		t.Fatalf("expected RemoteError 422, got %v", err)
	}
	if locks.released["42"] != 1 {
		t.Fatalf("expected lock released after remote error")
	}
}

func TestSerializedUpdater_CallTimeoutReleasesLock(t *testing.T) {
	locks := newCountingLocker()
	w := &fakeWriter{block: make(chan struct{})}
	u := SerializedUpdater{Locks: locks, Writer: w, CallTimeout: 20 * time.Millisecond}

	_, err := u.Update(context.Background(), "42", dec("1"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if locks.released["42"] != 1 {
		t.Fatalf("expected lock released after timeout")
	}
}

func TestSerializedUpdater_AcquireTimeoutIsBusy(t *testing.T) {
	w := &fakeWriter{}
	u := SerializedUpdater{Locks: blockingLocker{}, Writer: w, AcquireTimeout: 10 * time.Millisecond}

	_, err := u.Update(context.Background(), "42", dec("1"))
	if !errors.Is(err, domain.ErrVariantBusy) {
		t.Fatalf("expected ErrVariantBusy, got %v", err)
	}
	if len(w.calls) != 0 {
		t.Fatalf("expected no remote call, got %v", w.calls)
	}
}

func TestSerializedUpdater_CanceledContextWhileWaiting(t *testing.T) {
	w := &fakeWriter{}
	u := SerializedUpdater{Locks: blockingLocker{}, Writer: w}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := u.Update(ctx, "42", dec("1"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected ctx error, got %v", err)
	}
	if len(w.calls) != 0 {
		t.Fatalf("expected no remote call, got %v", w.calls)
	}
}

func TestSerializedUpdater_NoLocksDelegatesToWriter(t *testing.T) {
	w := &fakeWriter{}
	u := SerializedUpdater{Writer: w}

	if _, err := u.Update(context.Background(), "7", dec("2.17")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(w.calls) != 1 || w.calls[0] != "7=2.17" {
		t.Fatalf("unexpected calls %v", w.calls)
	}
}
