package scoring

import (
	"fmt"
	"math"

	"admitcore/pkg/domain"
)

// WeightProfile selects the blend applied to the final application score.
type WeightProfile string

// Application-level weighting profiles.
const (
	ProfileStandard  WeightProfile = "STANDARD"
	ProfileMerit     WeightProfile = "MERIT"
	ProfileInclusion WeightProfile = "INCLUSION"
)

// meritBonusThreshold triggers the MERIT profile's flat bonus.
const meritBonusThreshold = 700.0

// ParseWeightProfile resolves a profile name.
func ParseWeightProfile(name string) (WeightProfile, error) {
	switch p := WeightProfile(name); p {
	case ProfileStandard, ProfileMerit, ProfileInclusion:
		return p, nil
	default:
		return "", domain.ValidationError{Field: "weight_profile", Message: fmt.Sprintf("unknown weight profile %q", name)}
	}
}

// ComputeApplication blends the normalized secondary-school grade (grade ×
// 100), the evaluation score and the merit score under the profile's weights,
// applies the profile bonus, caps at MaxScore after summation, and rounds
// half-up to two decimals. This surface is independent of the per-evaluation
// strategies above.
func ComputeApplication(profile WeightProfile, grade, evalScore, meritScore float64) (float64, error) {
	if err := validateRange("grade", grade, 0, maxGrade); err != nil {
		return 0, err
	}
	if err := validateRange("evaluation_score", evalScore, 0, MaxScore); err != nil {
		return 0, err
	}
	if err := validateRange("merit_score", meritScore, 0, MaxScore); err != nil {
		return 0, err
	}

	normalizedGrade := grade * 100

	var score float64
	switch profile {
	case ProfileStandard:
		score = normalizedGrade*0.30 + evalScore*0.50 + meritScore*0.20
	case ProfileMerit:
		score = normalizedGrade*0.25 + evalScore*0.45 + meritScore*0.30
		if meritScore > meritBonusThreshold {
			score += 50
		}
	case ProfileInclusion:
		score = normalizedGrade*0.20 + evalScore*0.40 + meritScore*0.40
		score += 100
	default:
		return 0, domain.ValidationError{Field: "weight_profile", Message: fmt.Sprintf("unknown weight profile %q", profile)}
	}

	return roundScore(math.Min(score, MaxScore)), nil
}
