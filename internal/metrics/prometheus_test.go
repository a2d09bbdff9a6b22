package metrics

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRecordSweepExposesCounters(t *testing.T) {
	collector := NewMetricsCollector(nil)
	collector.RecordSweep(250*time.Millisecond, 3, 1)
	collector.UpdateBudgetUsage("groceries", "EUR", 0.5)

	rec := httptest.NewRecorder()
	collector.GetHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		"recurring_executions_total 3",
		"recurring_executions_failed_total 1",
		`budget_usage_rate{budget="groceries",currency="EUR"} 0.5`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestShutdown(t *testing.T) {
	collector := NewMetricsCollector(nil)
	if err := collector.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown without server: %v", err)
	}

	collector.StartMetricsServer("127.0.0.1:0")
	if err := collector.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown after start: %v", err)
	}
}
