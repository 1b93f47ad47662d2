package scheduler

import (
	"bytes"
	"context"
	stderrors "errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/kbukum/chainkit/chain"
	"github.com/kbukum/chainkit/errors"
	"github.com/kbukum/chainkit/logger"
)

func newScheduler(t testing.TB, maxParallel int, opts ...Option) *Scheduler {
	t.Helper()
	opts = append([]Option{WithLogger(logger.NewNop())}, opts...)
	s, err := New(Config{MaxParallel: maxParallel, Name: "test"}, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func ok(payload any) chain.TaskResult {
	return chain.TaskResult{Status: chain.TaskExecuted, Payload: payload}
}

func TestNewRejectsNonPositiveMaxParallel(t *testing.T) {
	for _, n := range []int{0, -1} {
		_, err := New(Config{MaxParallel: n})
		if !errors.IsCode(err, errors.ErrCodeInvalidConfig) {
			t.Errorf("MaxParallel=%d: expected INVALID_CONFIG, got %v", n, err)
		}
	}
	s, err := New(Config{MaxParallel: 2}, WithLogger(logger.NewNop()))
	if err != nil {
		t.Fatal(err)
	}
	if s.Name() != DefaultName || s.MaxParallel() != 2 {
		t.Fatalf("got name %q, max %d", s.Name(), s.MaxParallel())
	}
}

func TestRunParallelEmpty(t *testing.T) {
	s := newScheduler(t, 2)
	results, err := s.RunParallel(context.Background(), nil, func(context.Context, string, *chain.Context) (chain.TaskResult, error) {
		t.Fatal("run called for empty block")
		return chain.TaskResult{}, nil
	}, chain.NewContext(nil))
	if results != nil || err != nil {
		t.Fatalf("got %v, %v", results, err)
	}
}

func TestRunParallelInputOrderAndCompletionOrder(t *testing.T) {
	s := newScheduler(t, 3)
	c := chain.NewContext(nil)

	// B finishes first, then A, then C.
	waitExecuted := func(view *chain.Context, n int) {
		for len(view.Executed()) < n {
			time.Sleep(time.Millisecond)
		}
	}
	run := func(_ context.Context, name string, view *chain.Context) (chain.TaskResult, error) {
		switch name {
		case "A":
			waitExecuted(view, 1)
		case "C":
			waitExecuted(view, 2)
		}
		return ok(name), nil
	}
	results, err := s.RunParallel(context.Background(), []string{"A", "B", "C"}, run, c)
	if err != nil {
		t.Fatalf("RunParallel: %v", err)
	}
	for i, name := range []string{"A", "B", "C"} {
		if results[i].Task != name || results[i].Payload != name || results[i].Status != chain.TaskExecuted {
			t.Errorf("results[%d] = %+v", i, results[i])
		}
	}
	if got := c.Executed(); !reflect.DeepEqual(got, []string{"B", "A", "C"}) {
		t.Fatalf("Executed() = %v, want completion order [B A C]", got)
	}
}

func TestRunParallelBoundsConcurrency(t *testing.T) {
	s := newScheduler(t, 2)
	var current, peak atomic.Int64
	run := func(context.Context, string, *chain.Context) (chain.TaskResult, error) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		current.Add(-1)
		return ok(nil), nil
	}
	names := []string{"A", "B", "C", "D", "E", "F"}
	if _, err := s.RunParallel(context.Background(), names, run, chain.NewContext(nil)); err != nil {
		t.Fatal(err)
	}
	if peak.Load() > 2 || s.Peak() > 2 {
		t.Fatalf("peak %d (bulkhead %d), want <= 2", peak.Load(), s.Peak())
	}
	if s.InFlight() != 0 {
		t.Fatalf("InFlight() = %d after completion", s.InFlight())
	}
}

func TestRunParallelCapIsSharedAcrossCalls(t *testing.T) {
	s := newScheduler(t, 3)
	var current, peak atomic.Int64
	run := func(context.Context, string, *chain.Context) (chain.TaskResult, error) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		current.Add(-1)
		return ok(nil), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.RunParallel(context.Background(), []string{"A", "B", "C", "D"}, run, chain.NewContext(nil))
		}()
	}
	wg.Wait()
	if peak.Load() > 3 {
		t.Fatalf("peak %d across concurrent calls, want <= 3", peak.Load())
	}
}

func TestRunParallelFailComplete(t *testing.T) {
	s := newScheduler(t, 3)
	errA := stderrors.New("A failed")
	errC := stderrors.New("C failed")
	var ran atomic.Int64
	run := func(_ context.Context, name string, _ *chain.Context) (chain.TaskResult, error) {
		ran.Add(1)
		switch name {
		case "A":
			time.Sleep(30 * time.Millisecond)
			return chain.TaskResult{}, errA
		case "C":
			return chain.TaskResult{}, errC
		}
		time.Sleep(10 * time.Millisecond)
		return ok(name), nil
	}
	results, err := s.RunParallel(context.Background(), []string{"A", "B", "C"}, run, chain.NewContext(nil))
	if !stderrors.Is(err, errA) {
		t.Fatalf("expected first error by input index (A), got %v", err)
	}
	if ran.Load() != 3 {
		t.Fatalf("ran %d tasks, want 3", ran.Load())
	}
	want := []chain.TaskStatus{chain.TaskFailed, chain.TaskExecuted, chain.TaskFailed}
	for i, r := range results {
		if r.Status != want[i] {
			t.Errorf("results[%d].Status = %s, want %s", i, r.Status, want[i])
		}
	}
	if !stderrors.Is(results[2].Err, errC) {
		t.Errorf("results[2].Err = %v", results[2].Err)
	}
}

func TestRunParallelStatusWithoutError(t *testing.T) {
	tests := []struct {
		name   string
		status chain.TaskStatus
		code   errors.ErrorCode
	}{
		{"failed", chain.TaskFailed, errors.ErrCodeTaskFailed},
		{"cancelled", chain.TaskCancelled, errors.ErrCodeCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newScheduler(t, 2)
			c := chain.NewContext(nil)
			run := func(_ context.Context, name string, _ *chain.Context) (chain.TaskResult, error) {
				if name == "quiet" {
					return chain.TaskResult{Status: tt.status}, nil
				}
				return ok(name), nil
			}
			results, err := s.RunParallel(context.Background(), []string{"fine", "quiet"}, run, c)
			if !errors.IsCode(err, tt.code) {
				t.Fatalf("err = %v, want %s", err, tt.code)
			}
			if results[1].Status != tt.status || !errors.IsCode(results[1].Err, tt.code) {
				t.Fatalf("results[1] = %+v", results[1])
			}
			if got := c.Executed(); !reflect.DeepEqual(got, []string{"fine"}) {
				t.Fatalf("executed = %v", got)
			}
		})
	}
}

func TestRunParallelRecoversPanics(t *testing.T) {
	s := newScheduler(t, 2)
	run := func(_ context.Context, name string, _ *chain.Context) (chain.TaskResult, error) {
		if name == "boom" {
			panic("kaboom")
		}
		return ok(nil), nil
	}
	results, err := s.RunParallel(context.Background(), []string{"fine", "boom"}, run, chain.NewContext(nil))
	if !errors.IsCode(err, errors.ErrCodeTaskFailed) {
		t.Fatalf("expected TASK_FAILED, got %v", err)
	}
	if results[0].Status != chain.TaskExecuted || results[1].Status != chain.TaskFailed {
		t.Fatalf("results = %+v", results)
	}
	if s.InFlight() != 0 {
		t.Fatal("panicking task leaked its slot")
	}
}

func TestRunParallelCancelledWaitersNeverRun(t *testing.T) {
	s := newScheduler(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan string, 3)
	run := func(ctx context.Context, name string, _ *chain.Context) (chain.TaskResult, error) {
		started <- name
		<-ctx.Done()
		return chain.TaskResult{Status: chain.TaskCancelled, Err: ctx.Err()}, ctx.Err()
	}

	type outcome struct {
		results []chain.TaskResult
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := s.RunParallel(ctx, []string{"A", "B", "C"}, run, chain.NewContext(nil))
		done <- outcome{r, err}
	}()

	first := <-started
	cancel()
	out := <-done

	if out.err == nil {
		t.Fatal("expected an error after cancellation")
	}
	if len(started) != 0 {
		t.Fatalf("a waiting task started after cancellation: %s", <-started)
	}
	for _, r := range out.results {
		if r.Status != chain.TaskCancelled {
			t.Errorf("%s status = %s, want cancelled", r.Task, r.Status)
		}
		if r.Task != first && !errors.IsCode(r.Err, errors.ErrCodeCancelled) {
			t.Errorf("%s err = %v, want CANCELLED", r.Task, r.Err)
		}
	}
}

func TestRunParallelCommitsViewsInInputOrder(t *testing.T) {
	s := newScheduler(t, 3)
	c := chain.NewContext(map[string]any{"owner": "root"})
	run := func(_ context.Context, name string, view *chain.Context) (chain.TaskResult, error) {
		if name == "A" {
			time.Sleep(20 * time.Millisecond)
		}
		view.Set("owner", name)
		view.Set("seen-"+name, true)
		if name == "C" {
			return chain.TaskResult{}, stderrors.New("C failed")
		}
		return ok(nil), nil
	}
	_, _ = s.RunParallel(context.Background(), []string{"A", "B", "C"}, run, c)

	if v, _ := c.Get("owner"); v != "B" {
		t.Fatalf("owner = %v, want B (last executed by input order)", v)
	}
	if _, ok := c.Get("seen-C"); ok {
		t.Fatal("failed task's writes were committed")
	}
	if got := c.Keys(); !reflect.DeepEqual(got, []string{"owner", "seen-A", "seen-B"}) {
		t.Fatalf("Keys() = %v", got)
	}
}

func TestJournal(t *testing.T) {
	var buf bytes.Buffer
	s := newScheduler(t, 2, WithJournal(&buf))
	s.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	run := func(_ context.Context, name string, _ *chain.Context) (chain.TaskResult, error) {
		if name == "B" {
			return chain.TaskResult{}, stderrors.New("nope")
		}
		return ok(nil), nil
	}
	_, _ = s.RunParallel(context.Background(), []string{"A", "B"}, run, chain.NewContext(nil))

	want := "## Execution 2024-05-01T12:00:00Z\n\n- A: executed\n- B: failed\n\n"
	if buf.String() != want {
		t.Fatalf("journal = %q, want %q", buf.String(), want)
	}
}

func TestRunParallelProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxParallel := rapid.IntRange(1, 4).Draw(t, "max")
		n := rapid.IntRange(1, 8).Draw(t, "n")
		fails := rapid.SliceOfN(rapid.Bool(), n, n).Draw(t, "fails")

		s, err := New(Config{MaxParallel: maxParallel}, WithLogger(logger.NewNop()))
		if err != nil {
			t.Fatal(err)
		}
		names := make([]string, n)
		index := make(map[string]int, n)
		for i := range names {
			names[i] = string(rune('A' + i))
			index[names[i]] = i
		}

		var current, peak atomic.Int64
		run := func(_ context.Context, name string, _ *chain.Context) (chain.TaskResult, error) {
			c := current.Add(1)
			for {
				p := peak.Load()
				if c <= p || peak.CompareAndSwap(p, c) {
					break
				}
			}
			defer current.Add(-1)
			if fails[index[name]] {
				return chain.TaskResult{}, errors.TaskExecution(name, stderrors.New("x"))
			}
			return ok(name), nil
		}

		c := chain.NewContext(nil)
		results, err := s.RunParallel(context.Background(), names, run, c)

		if len(results) != n {
			t.Fatalf("got %d results, want %d", len(results), n)
		}
		firstFail, successes := -1, 0
		for i, r := range results {
			if r.Task != names[i] {
				t.Fatalf("results[%d].Task = %s, want %s", i, r.Task, names[i])
			}
			if fails[i] {
				if firstFail < 0 {
					firstFail = i
				}
				if r.Status != chain.TaskFailed {
					t.Fatalf("%s should have failed", r.Task)
				}
			} else {
				successes++
			}
		}
		if firstFail < 0 && err != nil {
			t.Fatalf("unexpected error %v", err)
		}
		if firstFail >= 0 {
			appErr, ok := errors.AsAppError(err)
			if !ok || appErr.Details["task"] != names[firstFail] {
				t.Fatalf("err = %v, want failure of %s", err, names[firstFail])
			}
		}
		if len(c.Executed()) != successes {
			t.Fatalf("executed %v, want %d entries", c.Executed(), successes)
		}
		if peak.Load() > int64(min(n, maxParallel)) {
			t.Fatalf("peak %d exceeds bound %d", peak.Load(), min(n, maxParallel))
		}
	})
}
