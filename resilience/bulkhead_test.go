package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// occupy holds one slot of b until the returned release func is called.
func occupy(t *testing.T, b *Bulkhead) func() {
	t.Helper()
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.Execute(context.Background(), func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	return func() {
		close(release)
		<-done
	}
}

func TestBulkhead_CapsConcurrency(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{Name: "batch", MaxConcurrent: 2, MaxWait: -1})

	var running, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := b.Execute(context.Background(), func() error {
				n := atomic.AddInt32(&running, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				return nil
			})
			if err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		}()
	}
	wg.Wait()

	if peak > 2 {
		t.Errorf("expected at most 2 concurrent executions, saw %d", peak)
	}
}

func TestBulkhead_RejectsWhenFull(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{Name: "batch", MaxConcurrent: 1})
	release := occupy(t, b)
	defer release()

	err := b.Execute(context.Background(), func() error { return nil })
	if !errors.Is(err, ErrBulkheadFull) {
		t.Errorf("expected ErrBulkheadFull, got %v", err)
	}
}

func TestBulkhead_TimesOutWaiting(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{Name: "batch", MaxConcurrent: 1, MaxWait: 10 * time.Millisecond})
	release := occupy(t, b)
	defer release()

	err := b.Execute(context.Background(), func() error { return nil })
	if !errors.Is(err, ErrBulkheadTimeout) {
		t.Errorf("expected ErrBulkheadTimeout, got %v", err)
	}
}

func TestBulkhead_WaitsUntilContextDone(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{Name: "batch", MaxConcurrent: 1, MaxWait: -1})
	release := occupy(t, b)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := b.Execute(ctx, func() error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestBulkhead_PropagatesFnError(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 1})
	boom := errors.New("boom")
	if err := b.Execute(context.Background(), func() error { return boom }); !errors.Is(err, boom) {
		t.Errorf("expected fn error, got %v", err)
	}
	if b.InUse() != 0 {
		t.Errorf("slot should be released after failure, in use %d", b.InUse())
	}
}

func TestBulkhead_AvailableAndInUse(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{Name: "batch", MaxConcurrent: 3})
	if b.Available() != 3 || b.InUse() != 0 {
		t.Fatalf("expected 3 available, got %d/%d", b.Available(), b.InUse())
	}

	release := occupy(t, b)
	if b.Available() != 2 || b.InUse() != 1 {
		t.Errorf("expected 2 available and 1 in use, got %d/%d", b.Available(), b.InUse())
	}
	release()

	if b.Available() != 3 {
		t.Errorf("expected 3 available after release, got %d", b.Available())
	}
	if b.MaxConcurrent() != 3 {
		t.Errorf("expected MaxConcurrent 3, got %d", b.MaxConcurrent())
	}
}

func TestNewBulkhead_DefaultsToOneSlot(t *testing.T) {
	if NewBulkhead(BulkheadConfig{}).MaxConcurrent() != 1 {
		t.Error("expected non-positive MaxConcurrent to default to 1")
	}
}
