package metrics

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smallbiznis/allotment/pkg/apperr"
)

func TestClassifyJobError(t *testing.T) {
	cases := map[string]error{
		JobReasonDeadlineExceeded: fmt.Errorf("renewal: %w", context.DeadlineExceeded),
		JobReasonConflict:         apperr.Conflict("allocation changed"),
		JobReasonUndefinedState:   apperr.UndefinedState("Transaction unsuccessful: FAILED"),
		JobReasonUnknown:          fmt.Errorf("boom"),
	}
	for want, err := range cases {
		if got := ClassifyJobError(err); got != want {
			t.Fatalf("expected %s, got %s", want, got)
		}
	}
}

func TestJobMetricsRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewJobMetrics(reg)
	if err != nil {
		t.Fatalf("new job metrics: %v", err)
	}
	m.IncRun("renewal")
	m.IncRun("renewal")
	m.IncSkipped("catalog_refresh")
	m.ObserveDuration("renewal", 2*time.Second)
	m.IncError("renewal", apperr.Conflict("stale"))

	if got := testutil.ToFloat64(m.runs.WithLabelValues("renewal")); got != 2 {
		t.Fatalf("expected 2 runs, got %v", got)
	}
	if got := testutil.ToFloat64(m.errors.WithLabelValues("renewal", JobReasonConflict)); got != 1 {
		t.Fatalf("expected 1 conflict error, got %v", got)
	}

	again, err := NewJobMetrics(reg)
	if err != nil {
		t.Fatalf("re-register should reuse collectors: %v", err)
	}
	again.IncRun("renewal")
	if got := testutil.ToFloat64(m.runs.WithLabelValues("renewal")); got != 3 {
		t.Fatalf("expected shared collector, got %v", got)
	}
}

func TestHTTPMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewHTTPMetrics(reg)
	if err != nil {
		t.Fatalf("new http metrics: %v", err)
	}
	m.Observe("/subscriptions/info", "get", 200, 15*time.Millisecond)
	if got := testutil.ToFloat64(m.requests.WithLabelValues("/subscriptions/info", "GET", "200")); got != 1 {
		t.Fatalf("expected 1 request, got %v", got)
	}
}
