// Package bidder implements the bidding side of the task allocation protocol:
// each agent process polls open announcements, scores its own fitness for each
// task, and submits at most one bid per task while heartbeating liveness.
package bidder

import (
	"context"
	"log/slog"
	"time"

	"github.com/dereadi/ganuda-ai-sub006/internal/otel"
	"github.com/dereadi/ganuda-ai-sub006/internal/store"
	"github.com/dereadi/ganuda-ai-sub006/pkg/models"
)

// Capabilities is an agent's view of its own capability record, with safe
// defaults substituted when the record is missing or unreadable.
type Capabilities struct {
	Specialization string
	Scores         map[string]float64
	SuccessRate    float64
}

// DefaultCapabilities is used when an agent has no stored state (or the store
// read fails): general specialization, no capability scores, neutral success rate.
func DefaultCapabilities() Capabilities {
	return Capabilities{
		Specialization: models.DefaultSpecialization,
		Scores:         map[string]float64{},
		SuccessRate:    models.DefaultSuccessRate,
	}
}

// Agent is one bidding worker. It is single-threaded: tasks are evaluated
// sequentially within one poll cycle, never concurrently.
type Agent struct {
	AgentID  string
	NodeName string
	Store    store.Store

	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	OpenTaskLimit     int

	// nextHeartbeat gates heartbeat writes locally so the store is touched at
	// most once per heartbeat interval, not on every poll iteration.
	nextHeartbeat time.Time
}

// New returns an Agent with default intervals applied.
func New(st store.Store, agentID, nodeName string) *Agent {
	return &Agent{
		AgentID:           agentID,
		NodeName:          nodeName,
		Store:             st,
		PollInterval:      10 * time.Second,
		HeartbeatInterval: 60 * time.Second,
		OpenTaskLimit:     models.DefaultOpenTaskLimit,
	}
}

// LoadCapabilities reads the agent's capability record. A missing record or a
// store error is never fatal: the defaults are returned instead.
func (a *Agent) LoadCapabilities(ctx context.Context) Capabilities {
	state, err := a.Store.GetAgentState(ctx, a.AgentID)
	if err != nil {
		slog.Warn("load capabilities failed, using defaults", "agent_id", a.AgentID, "err", err)
		return DefaultCapabilities()
	}
	if state == nil {
		return DefaultCapabilities()
	}
	scores := state.SpecializationScores
	if scores == nil {
		scores = map[string]float64{}
	}
	return Capabilities{
		Specialization: state.Specialization,
		Scores:         scores,
		SuccessRate:    state.SuccessRate,
	}
}

// Heartbeat upserts last_active, creating the agent row with the default
// specialization when absent. The local gate advances even when the write
// fails so a broken store is not hammered on every poll.
func (a *Agent) Heartbeat(ctx context.Context) {
	now := time.Now()
	if now.Before(a.nextHeartbeat) {
		return
	}
	a.nextHeartbeat = now.Add(a.HeartbeatInterval)
	if err := a.Store.UpsertAgentHeartbeat(ctx, a.AgentID, a.NodeName); err != nil {
		slog.Warn("heartbeat failed", "agent_id", a.AgentID, "err", err)
		return
	}
	otel.RecordHeartbeat(ctx, a.AgentID, a.NodeName)
}

// AlreadyBid reports whether this agent has a stored bid for the task. On a
// store error it fails open (reports "not yet bid"): a duplicate submission is
// harmless because the store enforces uniqueness on (task_id, agent_id), while
// failing closed would silently drop bids.
func (a *Agent) AlreadyBid(ctx context.Context, taskID string) bool {
	has, err := a.Store.HasBid(ctx, taskID, a.AgentID)
	if err != nil {
		slog.Warn("bid existence check failed, assuming not bid", "task_id", taskID, "agent_id", a.AgentID, "err", err)
		return false
	}
	return has
}

// CalculateBid computes this agent's bid for a task from its capabilities and
// its current assigned-task count.
func (a *Agent) CalculateBid(task store.TaskAnnouncement, caps Capabilities, assignedCount int) store.Bid {
	capability := capabilityScore(task.RequiredCapabilities, caps.Scores)
	experience := caps.SuccessRate
	load := loadScore(assignedCount)
	confidence := confidenceScore(task.Content)

	composite := models.WeightCapability*capability +
		models.WeightExperience*experience +
		models.WeightLoad*load +
		models.WeightConfidence*confidence
	if task.PreferredNode != "" && task.PreferredNode == a.NodeName {
		// Applied after the weighted sum; the result is intentionally not
		// clamped back into [0,1] so a preferred-node bid can outrank any
		// non-preferred bid with perfect component scores.
		composite *= models.PreferredNodeBonus
	}

	return store.Bid{
		TaskID:          task.TaskID,
		AgentID:         a.AgentID,
		NodeName:        a.NodeName,
		CapabilityScore: capability,
		ExperienceScore: experience,
		LoadScore:       load,
		Confidence:      confidence,
		CompositeScore:  composite,
		SubmittedAt:     time.Now().UTC(),
	}
}

// SubmitBid stores the bid. A duplicate-key conflict is absorbed by the store
// and never surfaces here.
func (a *Agent) SubmitBid(ctx context.Context, b store.Bid) error {
	return a.Store.CreateBid(ctx, b)
}

// RunOnce executes a single poll cycle: heartbeat, list open tasks, and bid on
// each task not already bid on. Every store failure is isolated: it is logged
// and the cycle moves on to the next task. Returns the number of bids placed.
func (a *Agent) RunOnce(ctx context.Context) int {
	start := time.Now()
	a.Heartbeat(ctx)

	tasks, err := a.Store.ListOpenTasks(ctx, a.OpenTaskLimit)
	if err != nil {
		slog.Warn("poll open tasks failed", "agent_id", a.AgentID, "err", err)
		otel.RecordPollCycle(ctx, a.AgentID, time.Since(start))
		return 0
	}

	placed := 0
	for _, task := range tasks {
		if a.AlreadyBid(ctx, task.TaskID) {
			otel.RecordBidSkipped(ctx, a.AgentID, "already_bid")
			continue
		}

		caps := a.LoadCapabilities(ctx)
		assigned, err := a.Store.CountAssignedTasks(ctx, a.AgentID)
		if err != nil {
			slog.Warn("assigned count failed, skipping task", "task_id", task.TaskID, "err", err)
			otel.RecordBidSkipped(ctx, a.AgentID, "store_error")
			continue
		}

		bid := a.CalculateBid(task, caps, assigned)
		if err := a.SubmitBid(ctx, bid); err != nil {
			slog.Warn("bid submit failed", "task_id", task.TaskID, "agent_id", a.AgentID, "err", err)
			otel.RecordBidSkipped(ctx, a.AgentID, "store_error")
			continue
		}
		placed++
		otel.RecordBidSubmitted(ctx, a.AgentID, a.NodeName)
		slog.Info("bid submitted", "task_id", task.TaskID, "agent_id", a.AgentID, "composite_score", bid.CompositeScore)
	}

	otel.RecordPollCycle(ctx, a.AgentID, time.Since(start))
	return placed
}

// Run loops until ctx is cancelled. Cancellation is cooperative: it is checked
// at the top of each iteration and during the sleep, while store calls inside
// an iteration run on an uncancellable context so in-flight writes finish
// before shutdown.
func (a *Agent) Run(ctx context.Context) {
	slog.Info("bidding agent starting", "agent_id", a.AgentID, "node", a.NodeName, "poll_interval", a.PollInterval)
	iterCtx := context.WithoutCancel(ctx)
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("bidding agent stopping", "agent_id", a.AgentID)
			return
		case <-timer.C:
		}
		a.RunOnce(iterCtx)
		timer.Reset(a.PollInterval)
	}
}
