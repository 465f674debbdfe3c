package otel

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRecordHelpers_noopWithoutInit(t *testing.T) {
	// Must not panic when the daemon runs without a metrics listener.
	ctx := context.Background()
	RecordBidSubmitted(ctx, "jr-1", "bluefin")
	RecordBidSkipped(ctx, "jr-1", "already_bid")
	RecordHeartbeat(ctx, "jr-1", "bluefin")
	RecordPollCycle(ctx, "jr-1", 25*time.Millisecond)
	RecordLearningUpdate(ctx, "jr-1", "security", "success")
}

func TestInitMetrics_record(t *testing.T) {
	ctx := context.Background()
	handler, err := InitMeterProvider(ctx, "metrics-test")
	if err != nil {
		t.Fatalf("InitMeterProvider: %v", err)
	}
	if err := InitMetrics(ctx); err != nil {
		t.Fatalf("InitMetrics: %v", err)
	}

	RecordBidSubmitted(ctx, "jr-1", "bluefin")
	RecordBidSkipped(ctx, "jr-1", "store_error")
	RecordHeartbeat(ctx, "jr-1", "bluefin")
	RecordPollCycle(ctx, "jr-1", 100*time.Millisecond)
	RecordLearningUpdate(ctx, "jr-1", "testing", "failed")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("/metrics status: %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Error("/metrics body empty")
	}
}

func TestInitMetricsWithAssignedGauge(t *testing.T) {
	ctx := context.Background()
	_, _ = InitMeterProvider(ctx, "gauge-test")
	err := InitMetricsWithAssignedGauge(ctx, "jr-1", func() int64 { return 2 })
	if err != nil {
		t.Fatalf("InitMetricsWithAssignedGauge: %v", err)
	}
}

func TestInitMetricsWithAssignedGauge_nilFunc(t *testing.T) {
	ctx := context.Background()
	_, _ = InitMeterProvider(ctx, "gauge-nil-test")
	if err := InitMetricsWithAssignedGauge(ctx, "jr-1", nil); err != nil {
		t.Fatalf("InitMetricsWithAssignedGauge(nil): %v", err)
	}
}
