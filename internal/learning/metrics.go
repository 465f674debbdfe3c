package learning

import (
	"context"
	"math"
	"time"

	"github.com/dereadi/ganuda-ai-sub006/internal/store"
)

// Proficiency constants. The bootstrap values seed the very first snapshot of
// a skill and are independent of the blend formula used afterward.
const (
	bootstrapSuccessProficiency = 0.6
	bootstrapFailureProficiency = 0.3

	successRateWeight = 0.7
	validationWeight  = 0.3

	// A skill plateaus when proficiency moves less than this between snapshots
	// after enough task volume.
	plateauThreshold = 0.01
	plateauMinTasks  = 5
)

// UpdateMetrics appends the next snapshot of the (agent, skill) proficiency
// time series. Running averages are unweighted cumulative means over every
// observation since the first task of the skill; this is a deliberate numeric
// contract, not an exponential moving average.
func UpdateMetrics(ctx context.Context, st store.Store, agentID, skillCategory string, success bool, durationSeconds int64, validation float64) error {
	prev, err := st.LatestLearningMetric(ctx, agentID, skillCategory)
	if err != nil {
		return err
	}

	next := store.LearningMetric{
		AgentID:       agentID,
		SkillCategory: skillCategory,
		MeasuredAt:    time.Now().UTC(),
	}

	if prev == nil {
		// First task of this skill: seed with the bootstrap constant.
		next.TaskCount = 1
		next.AvgCompletionTimeSeconds = float64(durationSeconds)
		next.AvgValidationScore = validation
		if success {
			next.SuccessCount = 1
			next.ProficiencyScore = bootstrapSuccessProficiency
		} else {
			next.ProficiencyScore = bootstrapFailureProficiency
		}
		return st.AppendLearningMetric(ctx, next)
	}

	oldCount := float64(prev.TaskCount)
	next.TaskCount = prev.TaskCount + 1
	newCount := float64(next.TaskCount)

	next.SuccessCount = prev.SuccessCount
	if success {
		next.SuccessCount++
	}

	next.AvgCompletionTimeSeconds = (prev.AvgCompletionTimeSeconds*oldCount + float64(durationSeconds)) / newCount
	next.AvgValidationScore = (prev.AvgValidationScore*oldCount + validation) / newCount

	successRate := float64(next.SuccessCount) / newCount
	next.ProficiencyScore = successRateWeight*successRate + validationWeight*next.AvgValidationScore
	next.ImprovementRate = next.ProficiencyScore - prev.ProficiencyScore
	next.PlateauDetected = math.Abs(next.ImprovementRate) < plateauThreshold && next.TaskCount > plateauMinTasks

	return st.AppendLearningMetric(ctx, next)
}
