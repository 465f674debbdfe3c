// Package store defines the persistence interface and shared models for task
// announcements, bids, agent state, task history, and learning metrics.
package store

import "time"

// TaskAnnouncement is an open unit of work posted for competitive bidding.
// Announcements are created by an external collaborator; this core only reads
// them (and the resolver flips status open -> assigned/expired).
type TaskAnnouncement struct {
	TaskID               string
	TaskType             string
	Content              string
	RequiredCapabilities []string
	PreferredNode        string // empty when the announcer has no preference
	Priority             int    // lower value = more urgent
	Deadline             *time.Time
	Status               string // open, assigned, completed, expired
	AnnouncedAt          time.Time
	AssignedTo           *string
}

// Bid is one agent's scored offer to perform one task. At most one bid exists
// per (task_id, agent_id); the store enforces this with a uniqueness constraint.
type Bid struct {
	TaskID          string
	AgentID         string
	NodeName        string
	CapabilityScore float64
	ExperienceScore float64
	LoadScore       float64
	Confidence      float64
	CompositeScore  float64 // weighted blend; may exceed 1.0 after the preferred-node bonus
	SubmittedAt     time.Time
}

// AgentState is an agent's capability record: specialization scores used for
// capability matching and the running success rate used as the experience score.
type AgentState struct {
	AgentID              string
	NodeName             string
	Specialization       string
	SpecializationScores map[string]float64
	SuccessRate          float64
	LastActive           time.Time
}

// TaskHistoryRecord is the permanent audit row for one assignment. It is
// created at mission start, mutated exactly once at completion, and immutable
// afterward.
type TaskHistoryRecord struct {
	ID                int64
	TaskID            string
	AgentID           string
	TaskType          string
	TaskDescription   string
	AssignedBy        string
	AssignedAt        time.Time
	StartedAt         *time.Time
	CompletedAt       *time.Time
	DurationSeconds   *int64
	Outcome           string // success, failed, in_progress
	ValidationScore   *float64
	LearnedFromTask   bool
	ExternalMemoryRef *string // optional foreign key into the external knowledge archive
}

// LearningMetric is one row of the append-only (agent, skill) proficiency time
// series. Updates append a new row; prior rows are never mutated.
type LearningMetric struct {
	AgentID                  string
	SkillCategory            string
	ProficiencyScore         float64
	TaskCount                int
	SuccessCount             int
	AvgCompletionTimeSeconds float64
	AvgValidationScore       float64
	ImprovementRate          float64
	PlateauDetected          bool
	MeasuredAt               time.Time
}
