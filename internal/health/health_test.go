package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestReportAllHealthy(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register("postgres", func(ctx context.Context) error { return nil })
	r.Register("vector_index", func(ctx context.Context) error { return nil })

	report := r.Report(context.Background())

	if report.Status != AggregateOK {
		t.Errorf("Status = %q, want %q", report.Status, AggregateOK)
	}
	if len(report.Dependencies) != 2 {
		t.Fatalf("Dependencies = %d, want 2", len(report.Dependencies))
	}
	for name, c := range report.Dependencies {
		if c.Status != StatusOK {
			t.Errorf("dependency %s status = %q, want ok", name, c.Status)
		}
	}
}

func TestReportDegradedOnCheckFailure(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register("postgres", func(ctx context.Context) error { return nil })
	r.Register("vector_index", func(ctx context.Context) error { return errors.New("connection refused") })

	report := r.Report(context.Background())

	if report.Status != AggregateDegraded {
		t.Errorf("Status = %q, want %q", report.Status, AggregateDegraded)
	}
	c := report.Dependencies["vector_index"]
	if c.Status != StatusError || c.Error == "" {
		t.Errorf("vector_index = %+v, want error status with detail", c)
	}
	if report.Dependencies["postgres"].Status != StatusOK {
		t.Errorf("healthy dependency should stay ok")
	}
}

func TestCheckTimeout(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	start := time.Now()
	report := r.Report(context.Background())
	elapsed := time.Since(start)

	if report.Status != AggregateDegraded {
		t.Errorf("Status = %q, want degraded for timed-out check", report.Status)
	}
	if elapsed > checkTimeout+time.Second {
		t.Errorf("Report took %v, check timeout not enforced", elapsed)
	}
}

func TestProbeLifecycle(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	p := r.NewProbe("embedding")

	// No observations yet: unknown, but not degraded.
	report := r.Report(context.Background())
	if got := report.Dependencies["embedding"].Status; got != StatusUnknown {
		t.Errorf("unobserved probe status = %q, want unknown", got)
	}
	if report.Status != AggregateOK {
		t.Errorf("Status = %q, unknown probes must not degrade", report.Status)
	}

	p.RecordFailure(40*time.Millisecond, errors.New("deadline exceeded"))
	report = r.Report(context.Background())
	c := report.Dependencies["embedding"]
	if c.Status != StatusError || c.LatencyMS != 40 {
		t.Errorf("probe after failure = %+v", c)
	}
	if report.Status != AggregateDegraded {
		t.Errorf("Status = %q, want degraded", report.Status)
	}

	// Recovery on next successful call.
	p.RecordSuccess(25 * time.Millisecond)
	report = r.Report(context.Background())
	if report.Dependencies["embedding"].Status != StatusOK {
		t.Errorf("probe should recover after success")
	}
	if report.Status != AggregateOK {
		t.Errorf("Status = %q, want ok after recovery", report.Status)
	}
}
