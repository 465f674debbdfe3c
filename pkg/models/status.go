// Package models provides shared constants for the bidding and learning core:
// announcement statuses, mission outcomes, and the scoring parameters that
// form the bid contract between agents and the assignment resolver.
package models

// Announcement statuses.
const (
	StatusOpen      = "open"
	StatusAssigned  = "assigned"
	StatusCompleted = "completed"
	StatusExpired   = "expired"
)

// Mission outcomes recorded in task history.
const (
	OutcomeSuccess    = "success"
	OutcomeFailed     = "failed"
	OutcomeInProgress = "in_progress"
)

// DefaultSpecialization is assigned to an agent on its first heartbeat.
const DefaultSpecialization = "general"

// Composite-score weights. The weighted sum stays in [0,1]; the preferred-node
// bonus is applied after the sum and the result is intentionally not clamped.
const (
	WeightCapability = 0.40
	WeightExperience = 0.30
	WeightLoad       = 0.20
	WeightConfidence = 0.10

	PreferredNodeBonus = 1.1
)

// Bid sub-score parameters.
const (
	// DefaultCapabilityScore applies when a task declares no required capabilities.
	DefaultCapabilityScore = 0.7
	// DefaultSuccessRate is the experience score for an agent with no stored state.
	DefaultSuccessRate = 0.5
	// LoadScoreFloor is the minimum load score regardless of assigned count.
	LoadScoreFloor = 0.1
	// LoadCapacity is the assigned-task count at which load score bottoms out.
	LoadCapacity = 3.0
)

// Default limits.
const (
	DefaultOpenTaskLimit         = 10
	DefaultDescriptionTruncateAt = 500
)
