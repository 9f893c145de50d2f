package pivot

import (
	"github.com/ShayCichocki/hollon/pkg/models"
)

// Scoring constants.
const (
	baseScore        = 50.0
	keywordWeight    = 15.0
	costPerAlignment = 0.5
	maxFilePenalty   = 10
	filePenalty      = 2.0
	depthPenalty     = 5.0
)

// Level buckets the combined impact of a pivot on a task.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// LevelFor buckets a combined impact score.
func LevelFor(score float64) Level {
	switch {
	case score >= 75:
		return LevelCritical
	case score >= 60:
		return LevelHigh
	case score >= 40:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Recommendation is what to do with a task after the pivot.
type Recommendation string

const (
	RecommendContinue Recommendation = "continue"
	RecommendAdapt    Recommendation = "adapt"
	RecommendDefer    Recommendation = "defer"
	RecommendCancel   Recommendation = "cancel"
)

// Disposition is what happens to a task's assets.
type Disposition string

const (
	DispositionReuse   Disposition = "reuse"
	DispositionArchive Disposition = "archive"
	DispositionDiscard Disposition = "discard"
)

// DispositionFor maps a recommendation to its asset disposition.
func DispositionFor(r Recommendation) Disposition {
	switch r {
	case RecommendContinue, RecommendAdapt:
		return DispositionReuse
	case RecommendCancel:
		return DispositionDiscard
	default:
		return DispositionArchive
	}
}

func statusBonus(s models.TaskStatus) float64 {
	switch s {
	case models.TaskStatusInProgress:
		return 10
	case models.TaskStatusReadyForReview:
		return 15
	default:
		return 0
	}
}

func progressPenalty(s models.TaskStatus) float64 {
	switch s {
	case models.TaskStatusInProgress:
		return 15
	case models.TaskStatusReadyForReview:
		return 20
	case models.TaskStatusBlocked:
		return 5
	default:
		return 0
	}
}

func complexityPenalty(t *models.Task) float64 {
	files := len(t.AffectedFiles)
	if files > maxFilePenalty {
		files = maxFilePenalty
	}
	return float64(files)*filePenalty + float64(t.Depth)*depthPenalty
}

// Alignment scores how well a task fits the new direction given how many of
// its keywords overlap the new and old directions.
func Alignment(status models.TaskStatus, newOverlap, oldOverlap int) float64 {
	return clamp(baseScore+keywordWeight*float64(newOverlap)-keywordWeight*float64(oldOverlap)+statusBonus(status), 0, 100)
}

// AdaptationCost scores the effort of bringing a task in line with the new direction.
func AdaptationCost(t *models.Task, alignment float64) float64 {
	cost := baseScore + (baseScore-alignment)*costPerAlignment + progressPenalty(t.Status) + complexityPenalty(t)
	return clamp(cost, 0, 100)
}

// ImpactScore combines alignment and cost into a single 0-100 impact.
func ImpactScore(alignment, cost float64) float64 {
	return (100 - alignment + cost) / 2
}

// Recommend applies the recommendation rules. A task that is mid-execution is
// deferred rather than cancelled.
func Recommend(status models.TaskStatus, alignment, cost float64) Recommendation {
	switch {
	case alignment >= 70 && cost < 30:
		return RecommendContinue
	case alignment >= 40 && cost < 60:
		return RecommendAdapt
	case alignment < 40 && cost >= 60:
		if status == models.TaskStatusInProgress {
			return RecommendDefer
		}
		return RecommendCancel
	default:
		return RecommendDefer
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
