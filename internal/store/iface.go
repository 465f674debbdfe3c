package store

import "context"

// Store is the persistence interface for announcements, bids, agent state,
// task history, and learning metrics.
// Implementations: *sqliteStore (SQLite) and *postgres.Store (PostgreSQL).
type Store interface {
	// Announcements
	CreateAnnouncement(ctx context.Context, a TaskAnnouncement) error
	GetAnnouncement(ctx context.Context, taskID string) (*TaskAnnouncement, error)
	// ListOpenTasks returns up to limit open announcements, most urgent first
	// (priority ascending, announced_at ascending within a priority band).
	ListOpenTasks(ctx context.Context, limit int) ([]TaskAnnouncement, error)
	// AssignTask flips an announcement open -> assigned for the given agent.
	// Returns false when the task is no longer open (someone else won, or expired).
	AssignTask(ctx context.Context, taskID, agentID string) (bool, error)
	// ExpireOverdueAnnouncements marks open announcements past their deadline as
	// expired and returns how many rows changed.
	ExpireOverdueAnnouncements(ctx context.Context) (int, error)

	// Bids
	HasBid(ctx context.Context, taskID, agentID string) (bool, error)
	// CreateBid inserts a bid. A duplicate (task_id, agent_id) is silently
	// absorbed: the first stored row wins and no error is returned.
	CreateBid(ctx context.Context, b Bid) error
	ListBidsForTask(ctx context.Context, taskID string) ([]Bid, error)
	// CountAssignedTasks returns the live number of announcements assigned to
	// the agent and still in status assigned.
	CountAssignedTasks(ctx context.Context, agentID string) (int, error)

	// Agent state
	// GetAgentState returns (nil, nil) when the agent has no record.
	GetAgentState(ctx context.Context, agentID string) (*AgentState, error)
	// UpsertAgentHeartbeat creates the agent row with the default
	// specialization when absent, and refreshes node_name and last_active.
	// Specialization scores and success rate are never touched by a heartbeat.
	UpsertAgentHeartbeat(ctx context.Context, agentID, nodeName string) error

	// Task history
	CreateTaskHistory(ctx context.Context, rec TaskHistoryRecord) (int64, error)
	// CompleteTaskHistory performs the single allowed mutation of a history row:
	// outcome, completed_at, duration_seconds, validation_score.
	CompleteTaskHistory(ctx context.Context, id int64, outcome string, durationSeconds int64, validationScore float64) error
	GetTaskHistory(ctx context.Context, id int64) (*TaskHistoryRecord, error)

	// Learning metrics (append-only time series)
	LatestLearningMetric(ctx context.Context, agentID, skillCategory string) (*LearningMetric, error)
	AppendLearningMetric(ctx context.Context, m LearningMetric) error
	ListLearningMetrics(ctx context.Context, agentID, skillCategory string, limit int) ([]LearningMetric, error)

	// Lifecycle
	Close() error
}
