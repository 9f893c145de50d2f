package models

// Tier represents a worker's experience level.
type Tier string

const (
	TierJunior    Tier = "junior"
	TierMid       Tier = "mid"
	TierSenior    Tier = "senior"
	TierLead      Tier = "lead"
	TierPrincipal Tier = "principal"
)

// Valid returns true if the tier is a known value.
func (t Tier) Valid() bool {
	switch t {
	case TierJunior, TierMid, TierSenior, TierLead, TierPrincipal:
		return true
	default:
		return false
	}
}

// tierPoints is the experience component of a match score (out of 10).
var tierPoints = map[Tier]float64{
	TierJunior:    2,
	TierMid:       4,
	TierSenior:    6,
	TierLead:      8,
	TierPrincipal: 10,
}

// ExperiencePoints returns the experience score for the tier, 0 for unknown tiers.
func (t Tier) ExperiencePoints() float64 {
	return tierPoints[t]
}
