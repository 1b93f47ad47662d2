package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestBulkhead_CapsConcurrency(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{Name: "test", MaxConcurrent: 3, MaxWait: WaitForever})

	var current, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := b.Execute(context.Background(), func() error {
				n := atomic.AddInt32(&current, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&current, -1)
				return nil
			})
			if err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		}()
	}
	wg.Wait()

	if peak > 3 {
		t.Errorf("observed %d concurrent calls, cap is 3", peak)
	}
	if b.Peak() > 3 || b.Peak() < 1 {
		t.Errorf("Peak() = %d", b.Peak())
	}
	if b.InUse() != 0 || b.Available() != 3 {
		t.Errorf("after completion InUse=%d Available=%d", b.InUse(), b.Available())
	}
}

func TestBulkhead_RejectsWhenFull(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{Name: "test", MaxConcurrent: 1, MaxWait: 0})

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = b.Execute(context.Background(), func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := b.Execute(context.Background(), func() error { return nil })
	if !errors.Is(err, ErrBulkheadFull) {
		t.Errorf("expected ErrBulkheadFull, got %v", err)
	}
	close(release)
}

func TestBulkhead_TimesOutWaiting(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{Name: "test", MaxConcurrent: 1, MaxWait: 10 * time.Millisecond})

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = b.Execute(context.Background(), func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	defer close(release)

	if err := b.Execute(context.Background(), func() error { return nil }); !errors.Is(err, ErrBulkheadTimeout) {
		t.Errorf("expected ErrBulkheadTimeout, got %v", err)
	}
}

func TestBulkhead_WaitForeverUntilSlotFrees(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{Name: "test", MaxConcurrent: 1, MaxWait: WaitForever})

	started := make(chan struct{})
	go func() {
		_ = b.Execute(context.Background(), func() error {
			close(started)
			time.Sleep(20 * time.Millisecond)
			return nil
		})
	}()
	<-started

	start := time.Now()
	if err := b.Execute(context.Background(), func() error { return nil }); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("expected to wait for the slot, waited %v", elapsed)
	}
}

func TestBulkhead_WaitForeverRespectsContext(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{Name: "test", MaxConcurrent: 1, MaxWait: WaitForever})

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = b.Execute(context.Background(), func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	ran := false
	err := b.Execute(ctx, func() error {
		ran = true
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
	if ran {
		t.Error("fn must not run without a slot")
	}
	if b.InUse() != 1 {
		t.Errorf("a cancelled wait must not take or free a slot, InUse=%d", b.InUse())
	}
}

func TestBulkhead_CancelledContextNeverAcquires(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{Name: "test", MaxConcurrent: 2, MaxWait: WaitForever})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := b.Execute(ctx, func() error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if b.Peak() != 0 {
		t.Errorf("Peak() = %d, want 0", b.Peak())
	}
}

func TestBulkhead_ReleasesOnError(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{Name: "test", MaxConcurrent: 1})
	boom := errors.New("boom")

	if err := b.Execute(context.Background(), func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if b.Available() != 1 {
		t.Errorf("slot not released, Available=%d", b.Available())
	}
}

func TestBulkhead_Callbacks(t *testing.T) {
	var acquired, released, rejected int32
	b := NewBulkhead(BulkheadConfig{
		Name:          "cb",
		MaxConcurrent: 1,
		OnAcquire:     func(string) { atomic.AddInt32(&acquired, 1) },
		OnRelease:     func(string) { atomic.AddInt32(&released, 1) },
		OnReject: func(name string, err error) {
			if name != "cb" || !errors.Is(err, ErrBulkheadFull) {
				t.Errorf("OnReject(%q, %v)", name, err)
			}
			atomic.AddInt32(&rejected, 1)
		},
	})

	_ = b.Execute(context.Background(), func() error {
		_ = b.Execute(context.Background(), func() error { return nil })
		return nil
	})

	if acquired != 1 || released != 1 || rejected != 1 {
		t.Errorf("acquired=%d released=%d rejected=%d", acquired, released, rejected)
	}
}

func TestBulkhead_Defaults(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{Name: "d"})
	if b.MaxConcurrent() != 10 || b.Name() != "d" {
		t.Errorf("MaxConcurrent=%d Name=%q", b.MaxConcurrent(), b.Name())
	}
	if cfg := DefaultBulkheadConfig("x"); cfg.MaxWait != WaitForever {
		t.Errorf("default MaxWait = %v", cfg.MaxWait)
	}
}

func TestExecuteWithResult(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{Name: "test", MaxConcurrent: 1})
	got, err := ExecuteWithResult(b, context.Background(), func() (int, error) { return 42, nil })
	if err != nil || got != 42 {
		t.Errorf("got %d, %v", got, err)
	}
}
