package bidder

import (
	"unicode/utf8"

	"github.com/dereadi/ganuda-ai-sub006/pkg/models"
)

// capabilityScore is the fraction of required capabilities the agent knows.
// Membership only: a capability counts if it appears in the agent's score map,
// regardless of its magnitude. A task with no requirements scores the default.
func capabilityScore(required []string, known map[string]float64) float64 {
	if len(required) == 0 {
		return models.DefaultCapabilityScore
	}
	matched := 0
	for _, capability := range required {
		if _, ok := known[capability]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(required))
}

// loadScore degrades linearly with the agent's live assigned-task count and
// never drops below the floor.
func loadScore(assignedCount int) float64 {
	score := 1.0 - float64(assignedCount)/models.LoadCapacity
	if score < models.LoadScoreFloor {
		return models.LoadScoreFloor
	}
	return score
}

// confidenceScore is a coarse estimate from task content length: short task
// descriptions are assumed better understood than sprawling ones.
func confidenceScore(content string) float64 {
	switch n := utf8.RuneCountInString(content); {
	case n < 500:
		return 0.9
	case n < 2000:
		return 0.7
	default:
		return 0.5
	}
}
