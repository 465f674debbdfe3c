package store

import (
	"context"
	"testing"
	"time"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func ptr[T any](v T) *T { return &v }

func TestAnnouncementCRUD(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	deadline := time.Now().UTC().Add(2 * time.Hour).Truncate(time.Second)
	err := st.CreateAnnouncement(ctx, TaskAnnouncement{
		TaskID:               "task-1",
		TaskType:             "testing",
		Content:              "run the integration suite",
		RequiredCapabilities: []string{"testing", "ci"},
		PreferredNode:        "bluefin",
		Priority:             3,
		Deadline:             &deadline,
	})
	if err != nil {
		t.Fatalf("CreateAnnouncement: %v", err)
	}

	got, err := st.GetAnnouncement(ctx, "task-1")
	if err != nil {
		t.Fatalf("GetAnnouncement: %v", err)
	}
	if got == nil {
		t.Fatal("GetAnnouncement: got nil")
	}
	if got.Status != "open" {
		t.Errorf("Status: got %q, want open", got.Status)
	}
	if got.PreferredNode != "bluefin" {
		t.Errorf("PreferredNode: got %q", got.PreferredNode)
	}
	if len(got.RequiredCapabilities) != 2 || got.RequiredCapabilities[0] != "testing" {
		t.Errorf("RequiredCapabilities: got %v", got.RequiredCapabilities)
	}
	if got.Deadline == nil || !got.Deadline.Equal(deadline) {
		t.Errorf("Deadline: got %v, want %v", got.Deadline, deadline)
	}
	if got.AssignedTo != nil {
		t.Errorf("AssignedTo: got %v, want nil", got.AssignedTo)
	}

	missing, err := st.GetAnnouncement(ctx, "no-such-task")
	if err != nil {
		t.Fatalf("GetAnnouncement missing: %v", err)
	}
	if missing != nil {
		t.Errorf("GetAnnouncement missing: got %+v, want nil", missing)
	}

	if err := st.CreateAnnouncement(ctx, TaskAnnouncement{}); err == nil {
		t.Error("CreateAnnouncement without task_id: want error")
	}
}

func TestListOpenTasks_orderAndLimit(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	announce := func(id string, priority int, offset time.Duration) {
		t.Helper()
		err := st.CreateAnnouncement(ctx, TaskAnnouncement{
			TaskID:      id,
			TaskType:    "general",
			Priority:    priority,
			AnnouncedAt: base.Add(offset),
		})
		if err != nil {
			t.Fatalf("CreateAnnouncement %s: %v", id, err)
		}
	}
	announce("low-old", 8, 0)
	announce("urgent-new", 1, 2*time.Minute)
	announce("urgent-old", 1, time.Minute)
	announce("mid", 5, 0)

	tasks, err := st.ListOpenTasks(ctx, 10)
	if err != nil {
		t.Fatalf("ListOpenTasks: %v", err)
	}
	var ids []string
	for _, a := range tasks {
		ids = append(ids, a.TaskID)
	}
	want := []string{"urgent-old", "urgent-new", "mid", "low-old"}
	if len(ids) != len(want) {
		t.Fatalf("ListOpenTasks: got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ListOpenTasks order: got %v, want %v", ids, want)
		}
	}

	limited, err := st.ListOpenTasks(ctx, 2)
	if err != nil {
		t.Fatalf("ListOpenTasks limit: %v", err)
	}
	if len(limited) != 2 || limited[0].TaskID != "urgent-old" {
		t.Errorf("ListOpenTasks limit 2: got %v", limited)
	}

	// Assigned tasks drop out of the open list.
	if ok, err := st.AssignTask(ctx, "urgent-old", "jr-1"); err != nil || !ok {
		t.Fatalf("AssignTask: ok=%v err=%v", ok, err)
	}
	after, _ := st.ListOpenTasks(ctx, 10)
	for _, a := range after {
		if a.TaskID == "urgent-old" {
			t.Error("assigned task still listed as open")
		}
	}
}

func TestAssignTask_onlyOnce(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.CreateAnnouncement(ctx, TaskAnnouncement{TaskID: "task-1"}); err != nil {
		t.Fatalf("CreateAnnouncement: %v", err)
	}

	ok, err := st.AssignTask(ctx, "task-1", "jr-1")
	if err != nil || !ok {
		t.Fatalf("first AssignTask: ok=%v err=%v", ok, err)
	}
	ok, err = st.AssignTask(ctx, "task-1", "jr-2")
	if err != nil {
		t.Fatalf("second AssignTask: %v", err)
	}
	if ok {
		t.Error("second AssignTask succeeded; assignment must be first-wins")
	}

	got, _ := st.GetAnnouncement(ctx, "task-1")
	if got.Status != "assigned" || got.AssignedTo == nil || *got.AssignedTo != "jr-1" {
		t.Errorf("announcement after assign: %+v", got)
	}

	ok, err = st.AssignTask(ctx, "no-such-task", "jr-1")
	if err != nil || ok {
		t.Errorf("AssignTask on missing task: ok=%v err=%v", ok, err)
	}
}

func TestExpireOverdueAnnouncements(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	future := time.Now().UTC().Add(time.Hour)
	mustAnnounce := func(a TaskAnnouncement) {
		t.Helper()
		if err := st.CreateAnnouncement(ctx, a); err != nil {
			t.Fatalf("CreateAnnouncement %s: %v", a.TaskID, err)
		}
	}
	mustAnnounce(TaskAnnouncement{TaskID: "overdue", Deadline: &past})
	mustAnnounce(TaskAnnouncement{TaskID: "fresh", Deadline: &future})
	mustAnnounce(TaskAnnouncement{TaskID: "no-deadline"})
	mustAnnounce(TaskAnnouncement{TaskID: "overdue-assigned", Deadline: &past})
	if ok, _ := st.AssignTask(ctx, "overdue-assigned", "jr-1"); !ok {
		t.Fatal("AssignTask overdue-assigned")
	}

	n, err := st.ExpireOverdueAnnouncements(ctx)
	if err != nil {
		t.Fatalf("ExpireOverdueAnnouncements: %v", err)
	}
	if n != 1 {
		t.Errorf("expired count: got %d, want 1", n)
	}
	for id, want := range map[string]string{
		"overdue":          "expired",
		"fresh":            "open",
		"no-deadline":      "open",
		"overdue-assigned": "assigned",
	} {
		a, _ := st.GetAnnouncement(ctx, id)
		if a.Status != want {
			t.Errorf("%s: status %q, want %q", id, a.Status, want)
		}
	}
}

func TestBids_duplicateAbsorbed(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	has, err := st.HasBid(ctx, "task-1", "jr-1")
	if err != nil || has {
		t.Fatalf("HasBid before submit: has=%v err=%v", has, err)
	}

	first := Bid{
		TaskID: "task-1", AgentID: "jr-1", NodeName: "bluefin",
		CapabilityScore: 0.9, ExperienceScore: 0.8, LoadScore: 1.0, Confidence: 0.9,
		CompositeScore: 0.89,
	}
	if err := st.CreateBid(ctx, first); err != nil {
		t.Fatalf("CreateBid: %v", err)
	}
	has, err = st.HasBid(ctx, "task-1", "jr-1")
	if err != nil || !has {
		t.Fatalf("HasBid after submit: has=%v err=%v", has, err)
	}

	// A second bid for the same pair must be a silent no-op.
	dup := first
	dup.CompositeScore = 0.2
	if err := st.CreateBid(ctx, dup); err != nil {
		t.Fatalf("duplicate CreateBid: %v", err)
	}
	bids, err := st.ListBidsForTask(ctx, "task-1")
	if err != nil {
		t.Fatalf("ListBidsForTask: %v", err)
	}
	if len(bids) != 1 {
		t.Fatalf("bids for task-1: got %d, want 1", len(bids))
	}
	if bids[0].CompositeScore != 0.89 {
		t.Errorf("first bid must win: composite %v, want 0.89", bids[0].CompositeScore)
	}

	if err := st.CreateBid(ctx, Bid{TaskID: "task-1"}); err == nil {
		t.Error("CreateBid without agent_id: want error")
	}
}

func TestCountAssignedTasks(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := st.CreateAnnouncement(ctx, TaskAnnouncement{TaskID: id}); err != nil {
			t.Fatalf("CreateAnnouncement: %v", err)
		}
	}
	if _, err := st.AssignTask(ctx, "a", "jr-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := st.AssignTask(ctx, "b", "jr-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := st.AssignTask(ctx, "c", "jr-2"); err != nil {
		t.Fatal(err)
	}

	n, err := st.CountAssignedTasks(ctx, "jr-1")
	if err != nil {
		t.Fatalf("CountAssignedTasks: %v", err)
	}
	if n != 2 {
		t.Errorf("assigned count for jr-1: got %d, want 2", n)
	}
	n, _ = st.CountAssignedTasks(ctx, "jr-9")
	if n != 0 {
		t.Errorf("assigned count for unknown agent: got %d, want 0", n)
	}
}

func TestAgentHeartbeat_upsertDefaults(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	state, err := st.GetAgentState(ctx, "jr-1")
	if err != nil {
		t.Fatalf("GetAgentState: %v", err)
	}
	if state != nil {
		t.Fatalf("state before heartbeat: got %+v, want nil", state)
	}

	if err := st.UpsertAgentHeartbeat(ctx, "jr-1", "bluefin"); err != nil {
		t.Fatalf("UpsertAgentHeartbeat: %v", err)
	}
	state, err = st.GetAgentState(ctx, "jr-1")
	if err != nil || state == nil {
		t.Fatalf("GetAgentState after heartbeat: state=%v err=%v", state, err)
	}
	if state.Specialization != "general" {
		t.Errorf("Specialization: got %q, want general", state.Specialization)
	}
	if state.SuccessRate != 0.5 {
		t.Errorf("SuccessRate: got %v, want 0.5", state.SuccessRate)
	}
	if len(state.SpecializationScores) != 0 {
		t.Errorf("SpecializationScores: got %v, want empty", state.SpecializationScores)
	}
	if state.LastActive.IsZero() {
		t.Error("LastActive not set")
	}

	// A later heartbeat moves the node but never touches scores.
	if err := st.UpsertAgentHeartbeat(ctx, "jr-1", "redfin"); err != nil {
		t.Fatalf("second heartbeat: %v", err)
	}
	state, _ = st.GetAgentState(ctx, "jr-1")
	if state.NodeName != "redfin" {
		t.Errorf("NodeName after move: got %q, want redfin", state.NodeName)
	}
	if state.SuccessRate != 0.5 {
		t.Errorf("SuccessRate after second heartbeat: got %v, want 0.5", state.SuccessRate)
	}

	if err := st.UpsertAgentHeartbeat(ctx, "", "bluefin"); err == nil {
		t.Error("heartbeat without agent_id: want error")
	}
}

func TestTaskHistory_lifecycle(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	started := time.Now().UTC().Truncate(time.Second)
	id, err := st.CreateTaskHistory(ctx, TaskHistoryRecord{
		TaskID:            "task-1",
		AgentID:           "jr-1",
		TaskType:          "security",
		TaskDescription:   "rotate the signing keys",
		AssignedBy:        "resolver",
		StartedAt:         &started,
		LearnedFromTask:   true,
		ExternalMemoryRef: ptr("mem-77"),
	})
	if err != nil {
		t.Fatalf("CreateTaskHistory: %v", err)
	}
	if id <= 0 {
		t.Fatalf("history id: got %d", id)
	}

	rec, err := st.GetTaskHistory(ctx, id)
	if err != nil || rec == nil {
		t.Fatalf("GetTaskHistory: rec=%v err=%v", rec, err)
	}
	if rec.Outcome != "in_progress" {
		t.Errorf("initial outcome: got %q, want in_progress", rec.Outcome)
	}
	if rec.CompletedAt != nil || rec.DurationSeconds != nil || rec.ValidationScore != nil {
		t.Errorf("completion fields set before completion: %+v", rec)
	}
	if !rec.LearnedFromTask || rec.ExternalMemoryRef == nil || *rec.ExternalMemoryRef != "mem-77" {
		t.Errorf("memory linkage: %+v", rec)
	}

	if err := st.CompleteTaskHistory(ctx, id, "success", 42, 0.95); err != nil {
		t.Fatalf("CompleteTaskHistory: %v", err)
	}
	rec, _ = st.GetTaskHistory(ctx, id)
	if rec.Outcome != "success" {
		t.Errorf("outcome: got %q, want success", rec.Outcome)
	}
	if rec.DurationSeconds == nil || *rec.DurationSeconds != 42 {
		t.Errorf("duration: got %v, want 42", rec.DurationSeconds)
	}
	if rec.ValidationScore == nil || *rec.ValidationScore != 0.95 {
		t.Errorf("validation: got %v, want 0.95", rec.ValidationScore)
	}
	if rec.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}

	missing, err := st.GetTaskHistory(ctx, 9999)
	if err != nil || missing != nil {
		t.Errorf("GetTaskHistory missing: rec=%v err=%v", missing, err)
	}
}

func TestLearningMetrics_appendOnlySeries(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	latest, err := st.LatestLearningMetric(ctx, "jr-1", "security")
	if err != nil || latest != nil {
		t.Fatalf("LatestLearningMetric empty: m=%v err=%v", latest, err)
	}

	rows := []LearningMetric{
		{AgentID: "jr-1", SkillCategory: "security", ProficiencyScore: 0.6, TaskCount: 1, SuccessCount: 1, AvgValidationScore: 0.9},
		{AgentID: "jr-1", SkillCategory: "security", ProficiencyScore: 0.56, TaskCount: 2, SuccessCount: 1, AvgValidationScore: 0.7, ImprovementRate: -0.04},
		{AgentID: "jr-1", SkillCategory: "testing", ProficiencyScore: 0.3, TaskCount: 1},
		{AgentID: "jr-2", SkillCategory: "security", ProficiencyScore: 0.8, TaskCount: 4},
	}
	for i, m := range rows {
		if err := st.AppendLearningMetric(ctx, m); err != nil {
			t.Fatalf("AppendLearningMetric %d: %v", i, err)
		}
	}

	latest, err = st.LatestLearningMetric(ctx, "jr-1", "security")
	if err != nil || latest == nil {
		t.Fatalf("LatestLearningMetric: m=%v err=%v", latest, err)
	}
	if latest.TaskCount != 2 || latest.ProficiencyScore != 0.56 {
		t.Errorf("latest snapshot: %+v", latest)
	}
	if latest.ImprovementRate != -0.04 {
		t.Errorf("ImprovementRate: got %v, want -0.04", latest.ImprovementRate)
	}

	series, err := st.ListLearningMetrics(ctx, "jr-1", "security", 0)
	if err != nil {
		t.Fatalf("ListLearningMetrics: %v", err)
	}
	if len(series) != 2 || series[0].TaskCount != 1 || series[1].TaskCount != 2 {
		t.Errorf("series: %+v", series)
	}

	all, _ := st.ListLearningMetrics(ctx, "jr-1", "", 0)
	if len(all) != 3 {
		t.Errorf("all skills for jr-1: got %d rows, want 3", len(all))
	}

	if err := st.AppendLearningMetric(ctx, LearningMetric{AgentID: "jr-1"}); err == nil {
		t.Error("AppendLearningMetric without skill: want error")
	}
}

func TestEnsureSchema_idempotent(t *testing.T) {
	t.Parallel()
	home := t.TempDir()
	if err := EnsureSchema(home); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if err := EnsureSchema(home); err != nil {
		t.Fatalf("EnsureSchema second run: %v", err)
	}
	st, err := Open(home)
	if err != nil {
		t.Fatalf("Open after EnsureSchema: %v", err)
	}
	defer func() { _ = st.Close() }()
	if _, err := st.ListOpenTasks(context.Background(), 5); err != nil {
		t.Fatalf("ListOpenTasks: %v", err)
	}
}
