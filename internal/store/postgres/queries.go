package postgres

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dereadi/ganuda-ai-sub006/internal/store"
	"github.com/dereadi/ganuda-ai-sub006/pkg/models"
)

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

func (s *Store) CreateAnnouncement(ctx context.Context, a store.TaskAnnouncement) error {
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
	caps := a.RequiredCapabilities
	if caps == nil {
		caps = []string{}
	}
	var preferred any
	if a.PreferredNode != "" {
		preferred = a.PreferredNode
	}
	_, err := s.Pool.Exec(ctx, `
INSERT INTO task_announcements(task_id, task_type, task_content, required_capabilities, preferred_node, priority, deadline, status, announced_at, assigned_to)
VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, NULL)`,
		a.TaskID, a.TaskType, a.Content, caps, preferred, a.Priority, unixPtr(a.Deadline), a.Status, announcedAt.Unix())
	return err
}

func scanAnnouncementRow(row interface{ Scan(dest ...any) error }) (*store.TaskAnnouncement, error) {
	var a store.TaskAnnouncement
	var caps []string
	var preferred, assignedTo *string
	var deadline *int64
	var announcedAt int64
	if err := row.Scan(&a.TaskID, &a.TaskType, &a.Content, &caps, &preferred, &a.Priority, &deadline, &a.Status, &announcedAt, &assignedTo); err != nil {
		return nil, err
	}
	a.RequiredCapabilities = caps
	if preferred != nil {
		a.PreferredNode = *preferred
	}
	a.Deadline = timePtr(deadline)
	a.AnnouncedAt = time.Unix(announcedAt, 0).UTC()
	a.AssignedTo = assignedTo
	return &a, nil
}

func (s *Store) GetAnnouncement(ctx context.Context, taskID string) (*store.TaskAnnouncement, error) {
	row := s.Pool.QueryRow(ctx, `
SELECT task_id, task_type, task_content, required_capabilities, preferred_node, priority, deadline, status, announced_at, assigned_to
FROM task_announcements WHERE task_id = $1`, taskID)
	a, err := scanAnnouncementRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

func (s *Store) ListOpenTasks(ctx context.Context, limit int) ([]store.TaskAnnouncement, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.Pool.Query(ctx, `
SELECT task_id, task_type, task_content, required_capabilities, preferred_node, priority, deadline, status, announced_at, assigned_to
FROM task_announcements WHERE status = 'open' ORDER BY priority ASC, announced_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.TaskAnnouncement
	for rows.Next() {
		a, err := scanAnnouncementRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *Store) AssignTask(ctx context.Context, taskID, agentID string) (bool, error) {
	res, err := s.Pool.Exec(ctx, `UPDATE task_announcements SET status = 'assigned', assigned_to = $1 WHERE task_id = $2 AND status = 'open'`, agentID, taskID)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (s *Store) ExpireOverdueAnnouncements(ctx context.Context) (int, error) {
	now := time.Now().UTC().Unix()
	res, err := s.Pool.Exec(ctx, `UPDATE task_announcements SET status = 'expired' WHERE status = 'open' AND deadline IS NOT NULL AND deadline < $1`, now)
	if err != nil {
		return 0, err
	}
	return int(res.RowsAffected()), nil
}

func (s *Store) HasBid(ctx context.Context, taskID, agentID string) (bool, error) {
	var one int
	err := s.Pool.QueryRow(ctx, `SELECT 1 FROM task_bids WHERE task_id = $1 AND agent_id = $2`, taskID, agentID).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) CreateBid(ctx context.Context, b store.Bid) error {
	if b.TaskID == "" || b.AgentID == "" {
		return errors.New("task_id and agent_id required")
	}
	submittedAt := b.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now().UTC()
	}
	// ON CONFLICT DO NOTHING: a duplicate (task_id, agent_id) keeps the first row.
	_, err := s.Pool.Exec(ctx, `
INSERT INTO task_bids(task_id, agent_id, node_name, capability_score, experience_score, load_score, confidence, composite_score, submitted_at)
VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (task_id, agent_id) DO NOTHING`,
		b.TaskID, b.AgentID, b.NodeName,
		b.CapabilityScore, b.ExperienceScore, b.LoadScore, b.Confidence, b.CompositeScore,
		submittedAt.Unix())
	return err
}

func (s *Store) ListBidsForTask(ctx context.Context, taskID string) ([]store.Bid, error) {
	rows, err := s.Pool.Query(ctx, `
SELECT task_id, agent_id, node_name, capability_score, experience_score, load_score, confidence, composite_score, submitted_at
FROM task_bids WHERE task_id = $1 ORDER BY submitted_at ASC, agent_id ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.Bid
	for rows.Next() {
		var b store.Bid
		var submittedAt int64
		if err := rows.Scan(&b.TaskID, &b.AgentID, &b.NodeName, &b.CapabilityScore, &b.ExperienceScore, &b.LoadScore, &b.Confidence, &b.CompositeScore, &submittedAt); err != nil {
			return nil, err
		}
		b.SubmittedAt = time.Unix(submittedAt, 0).UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) CountAssignedTasks(ctx context.Context, agentID string) (int, error) {
	var n int
	if err := s.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM task_announcements WHERE assigned_to = $1 AND status = 'assigned'`, agentID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) GetAgentState(ctx context.Context, agentID string) (*store.AgentState, error) {
	var a store.AgentState
	var scores map[string]float64
	var lastActive int64
	err := s.Pool.QueryRow(ctx, `
SELECT agent_id, node_name, specialization, specialization_scores, success_rate, last_active
FROM agent_state WHERE agent_id = $1`, agentID).
		Scan(&a.AgentID, &a.NodeName, &a.Specialization, &scores, &a.SuccessRate, &lastActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if scores == nil {
		scores = make(map[string]float64)
	}
	a.SpecializationScores = scores
	a.LastActive = time.Unix(lastActive, 0).UTC()
	return &a, nil
}

func (s *Store) UpsertAgentHeartbeat(ctx context.Context, agentID, nodeName string) error {
	if agentID == "" {
		return errors.New("agent_id required")
	}
	_, err := s.Pool.Exec(ctx, `
INSERT INTO agent_state(agent_id, node_name, specialization, specialization_scores, success_rate, last_active)
VALUES($1, $2, 'general', '{}', 0.5, $3)
ON CONFLICT (agent_id) DO UPDATE SET node_name = EXCLUDED.node_name, last_active = EXCLUDED.last_active`,
		agentID, nodeName, time.Now().UTC().Unix())
	return err
}

func (s *Store) CreateTaskHistory(ctx context.Context, rec store.TaskHistoryRecord) (int64, error) {
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
	var id int64
	err := s.Pool.QueryRow(ctx, `
INSERT INTO task_history(task_id, agent_id, task_type, task_description, assigned_by, assigned_at, started_at, outcome, learned_from_task, external_memory_ref)
VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		rec.TaskID, rec.AgentID, rec.TaskType, rec.TaskDescription, rec.AssignedBy,
		assignedAt.Unix(), unixPtr(rec.StartedAt), rec.Outcome, rec.LearnedFromTask, rec.ExternalMemoryRef).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) CompleteTaskHistory(ctx context.Context, id int64, outcome string, durationSeconds int64, validationScore float64) error {
	now := time.Now().UTC().Unix()
	_, err := s.Pool.Exec(ctx, `
UPDATE task_history SET outcome = $1, completed_at = $2, duration_seconds = $3, validation_score = $4 WHERE id = $5`,
		outcome, now, durationSeconds, validationScore, id)
	return err
}

func (s *Store) GetTaskHistory(ctx context.Context, id int64) (*store.TaskHistoryRecord, error) {
	var rec store.TaskHistoryRecord
	var assignedAt int64
	var startedAt, completedAt, duration *int64
	err := s.Pool.QueryRow(ctx, `
SELECT id, task_id, agent_id, task_type, task_description, assigned_by, assigned_at, started_at, completed_at, duration_seconds, outcome, validation_score, learned_from_task, external_memory_ref
FROM task_history WHERE id = $1`, id).
		Scan(&rec.ID, &rec.TaskID, &rec.AgentID, &rec.TaskType, &rec.TaskDescription, &rec.AssignedBy,
			&assignedAt, &startedAt, &completedAt, &duration, &rec.Outcome, &rec.ValidationScore, &rec.LearnedFromTask, &rec.ExternalMemoryRef)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rec.AssignedAt = time.Unix(assignedAt, 0).UTC()
	rec.StartedAt = timePtr(startedAt)
	rec.CompletedAt = timePtr(completedAt)
	rec.DurationSeconds = duration
	return &rec, nil
}

func scanLearningMetric(row interface{ Scan(dest ...any) error }) (*store.LearningMetric, error) {
	var m store.LearningMetric
	var measuredAt int64
	if err := row.Scan(&m.AgentID, &m.SkillCategory, &m.ProficiencyScore, &m.TaskCount, &m.SuccessCount,
		&m.AvgCompletionTimeSeconds, &m.AvgValidationScore, &m.ImprovementRate, &m.PlateauDetected, &measuredAt); err != nil {
		return nil, err
	}
	m.MeasuredAt = time.Unix(measuredAt, 0).UTC()
	return &m, nil
}

func (s *Store) LatestLearningMetric(ctx context.Context, agentID, skillCategory string) (*store.LearningMetric, error) {
	row := s.Pool.QueryRow(ctx, `
SELECT agent_id, skill_category, proficiency_score, task_count, success_count, avg_completion_time_seconds, avg_validation_score, improvement_rate, plateau_detected, measured_at
FROM learning_metrics WHERE agent_id = $1 AND skill_category = $2 ORDER BY metric_id DESC LIMIT 1`, agentID, skillCategory)
	m, err := scanLearningMetric(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

func (s *Store) AppendLearningMetric(ctx context.Context, m store.LearningMetric) error {
	if m.AgentID == "" || m.SkillCategory == "" {
		return errors.New("agent_id and skill_category required")
	}
	measuredAt := m.MeasuredAt
	if measuredAt.IsZero() {
		measuredAt = time.Now().UTC()
	}
	_, err := s.Pool.Exec(ctx, `
INSERT INTO learning_metrics(agent_id, skill_category, proficiency_score, task_count, success_count, avg_completion_time_seconds, avg_validation_score, improvement_rate, plateau_detected, measured_at)
VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		m.AgentID, m.SkillCategory, m.ProficiencyScore, m.TaskCount, m.SuccessCount,
		m.AvgCompletionTimeSeconds, m.AvgValidationScore, m.ImprovementRate, m.PlateauDetected, measuredAt.Unix())
	return err
}

func (s *Store) ListLearningMetrics(ctx context.Context, agentID, skillCategory string, limit int) ([]store.LearningMetric, error) {
	q := `
SELECT agent_id, skill_category, proficiency_score, task_count, success_count, avg_completion_time_seconds, avg_validation_score, improvement_rate, plateau_detected, measured_at
FROM learning_metrics WHERE agent_id = $1`
	args := []any{agentID}
	if skillCategory != "" {
		q += ` AND skill_category = $2`
		args = append(args, skillCategory)
	}
	q += ` ORDER BY metric_id ASC`
	if limit > 0 {
		q += ` LIMIT $` + strconv.Itoa(len(args)+1)
		args = append(args, limit)
	}
	rows, err := s.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.LearningMetric
	for rows.Next() {
		m, err := scanLearningMetric(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}
