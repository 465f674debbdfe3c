// Package learning wraps one task's lifecycle per agent into a permanent audit
// record and an updated per-(agent, skill) proficiency time series.
package learning

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/dereadi/ganuda-ai-sub006/internal/otel"
	"github.com/dereadi/ganuda-ai-sub006/internal/store"
	"github.com/dereadi/ganuda-ai-sub006/pkg/models"
)

// Result is one validated step of a completed mission. The validation score is
// the fraction of results that succeeded.
type Result struct {
	Success bool
	Detail  string
}

// Tracker records one in-flight mission for one agent. It is a single-slot
// accumulator: use one Tracker per concurrent mission, not a shared instance.
type Tracker struct {
	AgentID    string
	AssignedBy string
	Store      store.Store

	mission *mission
}

type mission struct {
	historyID int64
	taskType  string
	startTime time.Time
}

// NewTracker returns a Tracker for one agent's missions.
func NewTracker(st store.Store, agentID string) *Tracker {
	return &Tracker{AgentID: agentID, AssignedBy: "resolver", Store: st}
}

// StartMission records the mission start: the start time is kept locally and a
// task_history row is inserted with outcome in_progress. Returns the history
// row id, or 0 when the insert fails; completion tolerates the missing row and
// still updates learning metrics.
func (t *Tracker) StartMission(ctx context.Context, missionID, title string, items []string, sourceMemoryRef string) int64 {
	taskType := DetectTaskType(title, items)
	now := time.Now().UTC()

	rec := store.TaskHistoryRecord{
		TaskID:          missionID,
		AgentID:         t.AgentID,
		TaskType:        taskType,
		TaskDescription: truncate(describe(title, items), models.DefaultDescriptionTruncateAt),
		AssignedBy:      t.AssignedBy,
		AssignedAt:      now,
		StartedAt:       &now,
		Outcome:         models.OutcomeInProgress,
	}
	if sourceMemoryRef != "" {
		rec.ExternalMemoryRef = &sourceMemoryRef
		rec.LearnedFromTask = true
	}

	historyID, err := t.Store.CreateTaskHistory(ctx, rec)
	if err != nil {
		slog.Warn("task history insert failed", "mission_id", missionID, "agent_id", t.AgentID, "err", err)
		historyID = 0
	}

	t.mission = &mission{historyID: historyID, taskType: taskType, startTime: now}
	return historyID
}

// CompleteMission closes the in-flight mission: it writes the completion
// fields to the history row (skipped when the start insert failed), then
// updates the learning metrics, and finally resets the tracker so it can be
// reused for the next mission. The metric update is best-effort and never
// blocks or rolls back the completion write.
func (t *Tracker) CompleteMission(ctx context.Context, success bool, results []Result) {
	m := t.mission
	if m == nil {
		slog.Warn("complete mission called with no mission in progress", "agent_id", t.AgentID)
		return
	}
	t.mission = nil

	duration := int64(time.Since(m.startTime).Seconds())
	validation := validationScore(success, results)

	outcome := models.OutcomeFailed
	if success {
		outcome = models.OutcomeSuccess
	}

	if m.historyID != 0 {
		if err := t.Store.CompleteTaskHistory(ctx, m.historyID, outcome, duration, validation); err != nil {
			slog.Warn("task history completion failed", "history_id", m.historyID, "err", err)
		}
	}

	if err := UpdateMetrics(ctx, t.Store, t.AgentID, m.taskType, success, duration, validation); err != nil {
		slog.Warn("learning metric update failed", "agent_id", t.AgentID, "skill", m.taskType, "err", err)
		return
	}
	otel.RecordLearningUpdate(ctx, t.AgentID, m.taskType, outcome)
}

// validationScore is the success fraction of the results, or a 1.0/0.0 default
// from the overall outcome when no per-step results were reported.
func validationScore(success bool, results []Result) float64 {
	if len(results) == 0 {
		if success {
			return 1.0
		}
		return 0.0
	}
	ok := 0
	for _, r := range results {
		if r.Success {
			ok++
		}
	}
	return float64(ok) / float64(len(results))
}

func describe(title string, items []string) string {
	if len(items) == 0 {
		return title
	}
	return title + " | " + strings.Join(items, "; ")
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
