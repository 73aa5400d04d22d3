package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveJob(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newSchedulerMetrics(registry, Config{
		ServiceName: "revrec",
		Environment: "test",
	})

	m.ObserveJob("snapshot_refresh", 250*time.Millisecond, nil)
	m.ObserveJob("snapshot_refresh", time.Second, errors.New("boom"))
	m.ObserveJob("snapshot_refresh", time.Second, context.DeadlineExceeded)

	if got := testutil.ToFloat64(m.jobRuns.WithLabelValues("snapshot_refresh")); got != 3 {
		t.Fatalf("expected 3 runs, got %v", got)
	}
	if got := testutil.ToFloat64(m.jobTimeouts.WithLabelValues("snapshot_refresh")); got != 1 {
		t.Fatalf("expected 1 timeout, got %v", got)
	}
	if got := testutil.ToFloat64(m.jobErrors.WithLabelValues("snapshot_refresh", SchedulerErrorTypeUnknown)); got != 1 {
		t.Fatalf("expected 1 unknown error, got %v", got)
	}
}

func TestClassifyJobError(t *testing.T) {
	if got := classifyJobError(errors.New("sql: connection closed")); got != SchedulerErrorTypeDB {
		t.Fatalf("expected db, got %q", got)
	}
	if got := classifyJobError(errors.New("invalid_month: \"x\"")); got != SchedulerErrorTypeBusinessRule {
		t.Fatalf("expected business_rule, got %q", got)
	}
	if got := classifyJobError(errors.New("boom")); got != SchedulerErrorTypeUnknown {
		t.Fatalf("expected unknown, got %q", got)
	}
}
