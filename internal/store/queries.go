package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/dereadi/ganuda-ai-sub006/pkg/models"
)

func encodeCapabilities(caps []string) string {
	if len(caps) == 0 {
		return "[]"
	}
	b, err := json.Marshal(caps)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeCapabilities(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func encodeScores(scores map[string]float64) string {
	if len(scores) == 0 {
		return "{}"
	}
	b, err := json.Marshal(scores)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func decodeScores(raw string) map[string]float64 {
	out := make(map[string]float64)
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func unixPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	u := t.UTC().Unix()
	return &u
}

func timePtr(u *int64) *time.Time {
	if u == nil {
		return nil
	}
	t := time.Unix(*u, 0).UTC()
	return &t
}

func (s *sqliteStore) CreateAnnouncement(ctx context.Context, a TaskAnnouncement) error {
	if a.TaskID == "" {
		return errors.New("task_id required")
	}
	if a.Status == "" {
		a.Status = models.StatusOpen
	}
	announcedAt := a.AnnouncedAt
	if announcedAt.IsZero() {
		announcedAt = time.Now().UTC()
	}
	var preferred any
	if a.PreferredNode != "" {
		preferred = a.PreferredNode
	}
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO task_announcements(task_id, task_type, task_content, required_capabilities, preferred_node, priority, deadline, status, announced_at, assigned_to)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		a.TaskID, a.TaskType, a.Content, encodeCapabilities(a.RequiredCapabilities),
		preferred, a.Priority, unixPtr(a.Deadline), a.Status, announcedAt.Unix())
	return err
}

// scanAnnouncementRow scans one task_announcements row (used by GetAnnouncement and ListOpenTasks).
func scanAnnouncementRow(row interface{ Scan(dest ...any) error }) (*TaskAnnouncement, error) {
	var a TaskAnnouncement
	var caps string
	var preferred, assignedTo *string
	var deadline *int64
	var announcedAt int64
	if err := row.Scan(&a.TaskID, &a.TaskType, &a.Content, &caps, &preferred, &a.Priority, &deadline, &a.Status, &announcedAt, &assignedTo); err != nil {
		return nil, err
	}
	a.RequiredCapabilities = decodeCapabilities(caps)
	if preferred != nil {
		a.PreferredNode = *preferred
	}
	a.Deadline = timePtr(deadline)
	a.AnnouncedAt = time.Unix(announcedAt, 0).UTC()
	a.AssignedTo = assignedTo
	return &a, nil
}

func (s *sqliteStore) GetAnnouncement(ctx context.Context, taskID string) (*TaskAnnouncement, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT task_id, task_type, task_content, required_capabilities, preferred_node, priority, deadline, status, announced_at, assigned_to
FROM task_announcements WHERE task_id = ?`, taskID)
	a, err := scanAnnouncementRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

func (s *sqliteStore) ListOpenTasks(ctx context.Context, limit int) ([]TaskAnnouncement, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.stmtListOpenTasks.QueryContext(ctx, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []TaskAnnouncement
	for rows.Next() {
		a, err := scanAnnouncementRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AssignTask(ctx context.Context, taskID, agentID string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `UPDATE task_announcements SET status = 'assigned', assigned_to = ? WHERE task_id = ? AND status = 'open'`, agentID, taskID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteStore) ExpireOverdueAnnouncements(ctx context.Context) (int, error) {
	now := time.Now().UTC().Unix()
	res, err := s.DB.ExecContext(ctx, `UPDATE task_announcements SET status = 'expired' WHERE status = 'open' AND deadline IS NOT NULL AND deadline < ?`, now)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *sqliteStore) HasBid(ctx context.Context, taskID, agentID string) (bool, error) {
	var one int
	err := s.stmtHasBid.QueryRowContext(ctx, taskID, agentID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *sqliteStore) CreateBid(ctx context.Context, b Bid) error {
	if b.TaskID == "" || b.AgentID == "" {
		return errors.New("task_id and agent_id required")
	}
	submittedAt := b.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now().UTC()
	}
	// INSERT OR IGNORE: a duplicate (task_id, agent_id) keeps the first row.
	_, err := s.stmtCreateBid.ExecContext(ctx,
		b.TaskID, b.AgentID, b.NodeName,
		b.CapabilityScore, b.ExperienceScore, b.LoadScore, b.Confidence, b.CompositeScore,
		submittedAt.Unix())
	return err
}

func (s *sqliteStore) ListBidsForTask(ctx context.Context, taskID string) ([]Bid, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT task_id, agent_id, node_name, capability_score, experience_score, load_score, confidence, composite_score, submitted_at
FROM task_bids WHERE task_id = ? ORDER BY submitted_at ASC, agent_id ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Bid
	for rows.Next() {
		var b Bid
		var submittedAt int64
		if err := rows.Scan(&b.TaskID, &b.AgentID, &b.NodeName, &b.CapabilityScore, &b.ExperienceScore, &b.LoadScore, &b.Confidence, &b.CompositeScore, &submittedAt); err != nil {
			return nil, err
		}
		b.SubmittedAt = time.Unix(submittedAt, 0).UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *sqliteStore) CountAssignedTasks(ctx context.Context, agentID string) (int, error) {
	var n int
	if err := s.stmtCountAssigned.QueryRowContext(ctx, agentID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *sqliteStore) GetAgentState(ctx context.Context, agentID string) (*AgentState, error) {
	var a AgentState
	var scores string
	var lastActive int64
	err := s.DB.QueryRowContext(ctx, `
SELECT agent_id, node_name, specialization, specialization_scores, success_rate, last_active
FROM agent_state WHERE agent_id = ?`, agentID).
		Scan(&a.AgentID, &a.NodeName, &a.Specialization, &scores, &a.SuccessRate, &lastActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	a.SpecializationScores = decodeScores(scores)
	a.LastActive = time.Unix(lastActive, 0).UTC()
	return &a, nil
}

func (s *sqliteStore) UpsertAgentHeartbeat(ctx context.Context, agentID, nodeName string) error {
	if agentID == "" {
		return errors.New("agent_id required")
	}
	_, err := s.stmtHeartbeat.ExecContext(ctx, agentID, nodeName, time.Now().UTC().Unix())
	return err
}

func (s *sqliteStore) CreateTaskHistory(ctx context.Context, rec TaskHistoryRecord) (int64, error) {
	if rec.TaskID == "" || rec.AgentID == "" {
		return 0, errors.New("task_id and agent_id required")
	}
	if rec.Outcome == "" {
		rec.Outcome = models.OutcomeInProgress
	}
	assignedAt := rec.AssignedAt
	if assignedAt.IsZero() {
		assignedAt = time.Now().UTC()
	}
	res, err := s.DB.ExecContext(ctx, `
INSERT INTO task_history(task_id, agent_id, task_type, task_description, assigned_by, assigned_at, started_at, outcome, learned_from_task, external_memory_ref)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TaskID, rec.AgentID, rec.TaskType, rec.TaskDescription, rec.AssignedBy,
		assignedAt.Unix(), unixPtr(rec.StartedAt), rec.Outcome, rec.LearnedFromTask, rec.ExternalMemoryRef)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) CompleteTaskHistory(ctx context.Context, id int64, outcome string, durationSeconds int64, validationScore float64) error {
	now := time.Now().UTC().Unix()
	_, err := s.DB.ExecContext(ctx, `
UPDATE task_history SET outcome = ?, completed_at = ?, duration_seconds = ?, validation_score = ? WHERE id = ?`,
		outcome, now, durationSeconds, validationScore, id)
	return err
}

func (s *sqliteStore) GetTaskHistory(ctx context.Context, id int64) (*TaskHistoryRecord, error) {
	var rec TaskHistoryRecord
	var assignedAt int64
	var startedAt, completedAt, duration *int64
	var learned int
	err := s.DB.QueryRowContext(ctx, `
SELECT id, task_id, agent_id, task_type, task_description, assigned_by, assigned_at, started_at, completed_at, duration_seconds, outcome, validation_score, learned_from_task, external_memory_ref
FROM task_history WHERE id = ?`, id).
		Scan(&rec.ID, &rec.TaskID, &rec.AgentID, &rec.TaskType, &rec.TaskDescription, &rec.AssignedBy,
			&assignedAt, &startedAt, &completedAt, &duration, &rec.Outcome, &rec.ValidationScore, &learned, &rec.ExternalMemoryRef)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rec.AssignedAt = time.Unix(assignedAt, 0).UTC()
	rec.StartedAt = timePtr(startedAt)
	rec.CompletedAt = timePtr(completedAt)
	rec.DurationSeconds = duration
	rec.LearnedFromTask = learned != 0
	return &rec, nil
}

func (s *sqliteStore) LatestLearningMetric(ctx context.Context, agentID, skillCategory string) (*LearningMetric, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT agent_id, skill_category, proficiency_score, task_count, success_count, avg_completion_time_seconds, avg_validation_score, improvement_rate, plateau_detected, measured_at
FROM learning_metrics WHERE agent_id = ? AND skill_category = ? ORDER BY metric_id DESC LIMIT 1`, agentID, skillCategory)
	m, err := scanLearningMetric(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

func scanLearningMetric(row interface{ Scan(dest ...any) error }) (*LearningMetric, error) {
	var m LearningMetric
	var plateau int
	var measuredAt int64
	if err := row.Scan(&m.AgentID, &m.SkillCategory, &m.ProficiencyScore, &m.TaskCount, &m.SuccessCount,
		&m.AvgCompletionTimeSeconds, &m.AvgValidationScore, &m.ImprovementRate, &plateau, &measuredAt); err != nil {
		return nil, err
	}
	m.PlateauDetected = plateau != 0
	m.MeasuredAt = time.Unix(measuredAt, 0).UTC()
	return &m, nil
}

func (s *sqliteStore) AppendLearningMetric(ctx context.Context, m LearningMetric) error {
	if m.AgentID == "" || m.SkillCategory == "" {
		return errors.New("agent_id and skill_category required")
	}
	measuredAt := m.MeasuredAt
	if measuredAt.IsZero() {
		measuredAt = time.Now().UTC()
	}
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO learning_metrics(agent_id, skill_category, proficiency_score, task_count, success_count, avg_completion_time_seconds, avg_validation_score, improvement_rate, plateau_detected, measured_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.AgentID, m.SkillCategory, m.ProficiencyScore, m.TaskCount, m.SuccessCount,
		m.AvgCompletionTimeSeconds, m.AvgValidationScore, m.ImprovementRate, m.PlateauDetected, measuredAt.Unix())
	return err
}

func (s *sqliteStore) ListLearningMetrics(ctx context.Context, agentID, skillCategory string, limit int) ([]LearningMetric, error) {
	q := `
SELECT agent_id, skill_category, proficiency_score, task_count, success_count, avg_completion_time_seconds, avg_validation_score, improvement_rate, plateau_detected, measured_at
FROM learning_metrics WHERE agent_id = ?`
	args := []any{agentID}
	if skillCategory != "" {
		q += ` AND skill_category = ?`
		args = append(args, skillCategory)
	}
	q += ` ORDER BY metric_id ASC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []LearningMetric
	for rows.Next() {
		m, err := scanLearningMetric(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}
