package otel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
)

var (
	initMetricsOnce   sync.Once
	bidsCounter       metric.Int64Counter
	bidsSkipped       metric.Int64Counter
	heartbeatsCounter metric.Int64Counter
	pollDuration      metric.Float64Histogram
	learningCounter   metric.Int64Counter
)

// InitMetrics creates the meter instruments. Safe to call multiple times; only runs once.
// Call after InitMeterProvider.
func InitMetrics(ctx context.Context) error {
	var err error
	initMetricsOnce.Do(func() {
		m := Meter()
		bidsCounter, err = m.Int64Counter("jrbid_bids_submitted_total", metric.WithDescription("Total bids submitted"))
		if err != nil {
			return
		}
		bidsSkipped, err = m.Int64Counter("jrbid_bids_skipped_total", metric.WithDescription("Open tasks skipped without a new bid (already bid, or store error)"))
		if err != nil {
			return
		}
		heartbeatsCounter, err = m.Int64Counter("jrbid_heartbeats_total", metric.WithDescription("Total agent heartbeat writes"))
		if err != nil {
			return
		}
		pollDuration, err = m.Float64Histogram("jrbid_poll_cycle_duration_seconds", metric.WithDescription("Poll cycle duration in seconds"))
		if err != nil {
			return
		}
		learningCounter, err = m.Int64Counter("jrbid_learning_updates_total", metric.WithDescription("Learning metric snapshots appended"))
		if err != nil {
			return
		}
	})
	return err
}

// AssignedCountFunc returns the agent's live assigned-task count.
type AssignedCountFunc func() int64

// InitMetricsWithAssignedGauge creates instruments and registers an observable
// gauge for the agent's assigned-task count. If count is nil, the gauge is not
// reported.
func InitMetricsWithAssignedGauge(ctx context.Context, agentID string, count AssignedCountFunc) error {
	if err := InitMetrics(ctx); err != nil {
		return err
	}
	if count == nil {
		return nil
	}
	m := Meter()
	gauge, err := m.Int64ObservableGauge("jrbid_assigned_tasks", metric.WithDescription("Announcements currently assigned to this agent"))
	if err != nil {
		return err
	}
	_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		o.ObserveInt64(gauge, count(), metric.WithAttributes(AttrAgent.String(agentID)))
		return nil
	}, gauge)
	return err
}

// RecordBidSubmitted records one stored bid.
func RecordBidSubmitted(ctx context.Context, agentID, node string) {
	if bidsCounter == nil {
		return
	}
	bidsCounter.Add(ctx, 1, metric.WithAttributes(AttrAgent.String(agentID), AttrNode.String(node)))
}

// RecordBidSkipped records an open task passed over without a new bid.
func RecordBidSkipped(ctx context.Context, agentID, reason string) {
	if bidsSkipped == nil {
		return
	}
	bidsSkipped.Add(ctx, 1, metric.WithAttributes(AttrAgent.String(agentID), AttrReason.String(reason)))
}

// RecordHeartbeat records one heartbeat write.
func RecordHeartbeat(ctx context.Context, agentID, node string) {
	if heartbeatsCounter == nil {
		return
	}
	heartbeatsCounter.Add(ctx, 1, metric.WithAttributes(AttrAgent.String(agentID), AttrNode.String(node)))
}

// RecordPollCycle records one poll cycle and its duration.
func RecordPollCycle(ctx context.Context, agentID string, duration time.Duration) {
	if pollDuration == nil {
		return
	}
	pollDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(AttrAgent.String(agentID)))
}

// RecordLearningUpdate records one appended learning snapshot.
func RecordLearningUpdate(ctx context.Context, agentID, skill, outcome string) {
	if learningCounter == nil {
		return
	}
	learningCounter.Add(ctx, 1, metric.WithAttributes(AttrAgent.String(agentID), AttrSkill.String(skill), AttrOutcome.String(outcome)))
}
