package matcher

import (
	"strings"

	"github.com/ShayCichocki/hollon/pkg/models"
)

// Component ceilings. The total is clamped to [0, MaxScore].
const (
	MaxSkillPoints      = 50.0
	NoSkillsPoints      = 25.0
	KnowledgePoints     = 20.0
	MaxExperiencePoints = 10.0
	MaxWorkloadPoints   = 10.0
	MaxStatusPoints     = 10.0
	MaxScore            = 100.0
)

// Breakdown is a match score split into its components.
type Breakdown struct {
	Skills     float64 `json:"skills" yaml:"skills"`
	Knowledge  float64 `json:"knowledge" yaml:"knowledge"`
	Experience float64 `json:"experience" yaml:"experience"`
	Workload   float64 `json:"workload" yaml:"workload"`
	Status     float64 `json:"status" yaml:"status"`
	Total      float64 `json:"total" yaml:"total"`
}

// Signals are the per-worker facts a score is computed from.
type Signals struct {
	Role         *models.Role
	Status       models.WorkerStatus
	ActiveTasks  int
	HasKnowledge bool
}

// ComputeScore scores a task against a worker's signals. It performs no I/O.
func ComputeScore(task *models.Task, sig Signals) Breakdown {
	b := Breakdown{
		Skills:    skillScore(task.RequiredSkills, sig.Role),
		Workload:  workloadScore(sig.ActiveTasks),
		Status:    statusScore(sig.Status),
		Knowledge: 0,
	}
	if sig.HasKnowledge {
		b.Knowledge = KnowledgePoints
	}
	if sig.Role != nil {
		b.Experience = clamp(sig.Role.Tier.ExperiencePoints(), 0, MaxExperiencePoints)
	}
	b.Total = clamp(b.Skills+b.Knowledge+b.Experience+b.Workload+b.Status, 0, MaxScore)
	return b
}

func skillScore(required []string, role *models.Role) float64 {
	unique := make(map[string]bool)
	for _, s := range required {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			unique[s] = true
		}
	}
	if len(unique) == 0 {
		return NoSkillsPoints
	}
	if role == nil {
		return 0
	}
	matched := 0
	for s := range unique {
		if role.HasCapability(s) {
			matched++
		}
	}
	return float64(matched) / float64(len(unique)) * MaxSkillPoints
}

func workloadScore(active int) float64 {
	if active < 0 {
		active = 0
	}
	return clamp(MaxWorkloadPoints-float64(active), 0, MaxWorkloadPoints)
}

func statusScore(s models.WorkerStatus) float64 {
	switch s {
	case models.WorkerStatusIdle:
		return 10
	case models.WorkerStatusWorking:
		return 5
	case models.WorkerStatusPaused:
		return 2
	default:
		return 0
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
