package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fentz26/gapforge/internal/audit"
	"github.com/fentz26/gapforge/internal/models"
	"github.com/fentz26/gapforge/internal/performance"
	"github.com/fentz26/gapforge/internal/store"
	"go.uber.org/goleak"
)

func testConfig(globalMax int) *Config {
	return &Config{Tick: 5 * time.Millisecond, GlobalMax: globalMax}
}

// waitFor polls cond until it holds or two seconds pass.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func countingJob(name string, every time.Duration, n *int32) Job {
	return Job{
		Name:  name,
		Every: every,
		Run: func(ctx context.Context) error {
			atomic.AddInt32(n, 1)
			return nil
		},
	}
}

func TestScheduler_RunsImmediatelyThenWaits(t *testing.T) {
	defer goleak.VerifyNone(t)

	var n int32
	sch := New(testConfig(2), nil, countingJob("slow", time.Hour, &n))
	sch.Start()

	waitFor(t, "first run", func() bool { return atomic.LoadInt32(&n) == 1 })
	time.Sleep(50 * time.Millisecond)
	sch.Stop()

	if got := atomic.LoadInt32(&n); got != 1 {
		t.Errorf("job ran %d times, want 1", got)
	}
	if st := sch.Stats()["slow"]; st.Runs != 1 || st.Running {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestScheduler_RerunsAfterInterval(t *testing.T) {
	defer goleak.VerifyNone(t)

	var n int32
	sch := New(testConfig(2), nil, countingJob("fast", 10*time.Millisecond, &n))
	sch.Start()
	defer sch.Stop()

	waitFor(t, "three runs", func() bool { return atomic.LoadInt32(&n) >= 3 })
}

func TestScheduler_GlobalMaxBoundsWorkers(t *testing.T) {
	defer goleak.VerifyNone(t)

	var started int32
	block := func(name string) Job {
		return Job{
			Name:  name,
			Every: time.Millisecond,
			Run: func(ctx context.Context) error {
				atomic.AddInt32(&started, 1)
				<-ctx.Done()
				return nil
			},
		}
	}

	sch := New(testConfig(1), nil, block("a"), block("b"))
	sch.Start()

	waitFor(t, "one active worker", func() bool { return sch.ActiveWorkers() == 1 })
	time.Sleep(50 * time.Millisecond)

	if got := sch.ActiveWorkers(); got != 1 {
		t.Errorf("active workers = %d, want 1", got)
	}
	if got := atomic.LoadInt32(&started); got != 1 {
		t.Errorf("started %d jobs, want 1", got)
	}

	sch.Stop()
	if got := sch.ActiveWorkers(); got != 0 {
		t.Errorf("active workers after stop = %d, want 0", got)
	}
}

func TestScheduler_RecordsFailures(t *testing.T) {
	sch := New(testConfig(1), nil, Job{
		Name:  "broken",
		Every: time.Hour,
		Run:   func(ctx context.Context) error { return errors.New("database is locked") },
	})
	sch.Start()
	waitFor(t, "failed run", func() bool { return sch.Stats()["broken"].Runs == 1 })
	sch.Stop()

	st := sch.Stats()["broken"]
	if st.Failures != 1 || st.LastErr != "database is locked" {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestConfig_IntervalFor(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.IntervalFor(JobRetireReview, time.Minute); got != 24*time.Hour {
		t.Errorf("retire interval = %v", got)
	}
	if got := cfg.IntervalFor("unknown", time.Minute); got != time.Minute {
		t.Errorf("fallback interval = %v", got)
	}

	sch := New(&Config{Tick: time.Second, GlobalMax: 1, Intervals: map[string]time.Duration{"x": time.Minute}}, nil,
		Job{Name: "x", Every: time.Hour, Run: func(context.Context) error { return nil }})
	if sch.jobs[0].Every != time.Minute {
		t.Errorf("override not applied: %v", sch.jobs[0].Every)
	}
}

type fakeBudget struct{ calls int32 }

func (f *fakeBudget) Status(ctx context.Context) ([]models.BudgetStatus, error) {
	atomic.AddInt32(&f.calls, 1)
	return nil, nil
}

func TestBudgetRollover(t *testing.T) {
	b := &fakeBudget{}
	job := BudgetRollover(b)
	if job.Name != JobBudgetRollover {
		t.Errorf("name = %q", job.Name)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if b.calls != 1 {
		t.Errorf("status called %d times", b.calls)
	}
}

func TestRetireReview(t *testing.T) {
	ctx := context.Background()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	perf := performance.New(s, nil, performance.WithClock(func() time.Time { return now }))
	for i := 0; i < 12; i++ {
		_, err := perf.RecordUsage(ctx, models.UsageRecord{
			Tool: "flaky", Capability: "Gap Analysis", Success: i < 3, Score: 0.1, Timestamp: now,
		})
		if err != nil {
			t.Fatal(err)
		}
		_, err = perf.RecordUsage(ctx, models.UsageRecord{
			Tool: "solid", Capability: "Gap Analysis", Success: true, Score: 0.9, Timestamp: now,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	job := RetireReview(perf, audit.NewPDRWriter(s), 10, nil)
	if err := job.Run(ctx); err != nil {
		t.Fatal(err)
	}

	entries, err := s.ListPDR(ctx, "Gap Analysis", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d review records, want 1", len(entries))
	}
	if entries[0].Action != audit.ActionReview || entries[0].Outcome != "retire" {
		t.Errorf("unexpected record %+v", entries[0])
	}
}
