// Package scoring computes bounded admission scores. Two independent
// surfaces exist: per-evaluation strategies (ComputeEvaluation) and
// application-level weight profiles (ComputeApplication). They share the
// weighted-sum-plus-bonus shape but operate on different input triples and
// carry different bonus conditions, so they are kept apart on purpose.
package scoring

import (
	"fmt"
	"math"

	"admitcore/pkg/domain"
)

// MaxScore is the caller-level upper bound applied to every computed score.
const MaxScore = 1000.0

// Input domains accepted by the evaluation strategies.
const (
	maxGrade     = 10.0
	maxExam      = 1000.0
	maxInterview = 100.0
)

// Strategy selects an evaluation weighting formula at runtime.
type Strategy string

// Evaluation strategies. The set is closed; selection happens through
// dispatch, not registration.
const (
	StrategyStandard      Strategy = "STANDARD"
	StrategyAcademicMerit Strategy = "ACADEMIC_MERIT"
	StrategyInclusion     Strategy = "INCLUSION"
	StrategySports        Strategy = "SPORTS"
)

// ParseStrategy resolves a strategy name.
func ParseStrategy(name string) (Strategy, error) {
	switch s := Strategy(name); s {
	case StrategyStandard, StrategyAcademicMerit, StrategyInclusion, StrategySports:
		return s, nil
	default:
		return "", domain.ValidationError{Field: "strategy", Message: fmt.Sprintf("unknown strategy %q", name)}
	}
}

// SportsLevel is the achievement level keying the SPORTS flat bonus.
type SportsLevel string

// Sports achievement levels.
const (
	SportsInternational SportsLevel = "INTERNATIONAL"
	SportsNational      SportsLevel = "NATIONAL"
	SportsProvincial    SportsLevel = "PROVINCIAL"
	SportsLocal         SportsLevel = "LOCAL"
	SportsNone          SportsLevel = "NONE"
)

var sportsBonus = map[SportsLevel]float64{
	SportsInternational: 500,
	SportsNational:      350,
	SportsProvincial:    200,
	SportsLocal:         100,
	SportsNone:          0,
}

// Extras carries the optional named factors consumed by bonus clauses.
// Unused fields are ignored by strategies that do not read them.
type Extras struct {
	HonorRoll         bool        `json:"honor_roll,omitempty"`
	DisabilityPercent float64     `json:"disability_percent,omitempty"`
	EthnicGroupMember bool        `json:"ethnic_group_member,omitempty"`
	RuralZone         bool        `json:"rural_zone,omitempty"`
	SportsLevel       SportsLevel `json:"sports_level,omitempty"`
}

// ComputeEvaluation applies the strategy's weighting formula to the raw
// inputs and returns the score capped at MaxScore and rounded half-up to two
// decimals. Out-of-range input is rejected before computation, never clamped.
// Recomputation with identical inputs is idempotent.
func ComputeEvaluation(strategy Strategy, grade, exam, interview float64, extras Extras) (float64, error) {
	if err := validateRange("grade", grade, 0, maxGrade); err != nil {
		return 0, err
	}
	if err := validateRange("exam", exam, 0, maxExam); err != nil {
		return 0, err
	}
	if err := validateRange("interview", interview, 0, maxInterview); err != nil {
		return 0, err
	}

	var score float64
	switch strategy {
	case StrategyStandard:
		score = exam*0.60 + grade*10*0.25 + interview*0.15
	case StrategyAcademicMerit:
		score = exam*0.40 + grade*10*0.50 + interview*0.10
		if extras.HonorRoll {
			score += 50
		}
		if grade >= 9.5 {
			score += 30
		}
	case StrategyInclusion:
		score = exam*0.50 + grade*10*0.20 + interview*0.10
		if err := validateRange("disability_percent", extras.DisabilityPercent, 0, 100); err != nil {
			return 0, err
		}
		score += extras.DisabilityPercent * 2
		if extras.EthnicGroupMember {
			score += 100
		}
		if extras.RuralZone {
			score += 50
		}
	case StrategySports:
		score = exam*0.30 + grade*10*0.20
		level := extras.SportsLevel
		if level == "" {
			level = SportsNone
		}
		bonus, ok := sportsBonus[level]
		if !ok {
			return 0, domain.ValidationError{Field: "sports_level", Message: fmt.Sprintf("unknown sports level %q", level)}
		}
		score += bonus
	default:
		return 0, domain.ValidationError{Field: "strategy", Message: fmt.Sprintf("unknown strategy %q", strategy)}
	}

	return roundScore(math.Min(score, MaxScore)), nil
}

func validateRange(field string, value, low, high float64) error {
	if value < low || value > high {
		return domain.ValidationError{
			Field:   field,
			Message: fmt.Sprintf("value %v outside [%v, %v]", value, low, high),
		}
	}
	return nil
}

// roundScore rounds half-up to two decimal places.
func roundScore(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}
