package scoring

import (
	"errors"
	"testing"

	"admitcore/pkg/domain"
)

func TestComputeApplication_Standard(t *testing.T) {
	got, err := ComputeApplication(ProfileStandard, 8, 452, 500)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	// 800*0.30 + 452*0.50 + 500*0.20 = 240 + 226 + 100
	if got != 566 {
		t.Fatalf("score = %v, want 566", got)
	}
}

func TestComputeApplication_MeritBonusThreshold(t *testing.T) {
	// 900*0.25 + 700*0.45 + merit*0.30, +50 only above 700.
	atThreshold, err := ComputeApplication(ProfileMerit, 9, 700, 700)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if atThreshold != 750 {
		t.Fatalf("score at threshold = %v, want 750 (no bonus)", atThreshold)
	}
	aboveThreshold, err := ComputeApplication(ProfileMerit, 9, 700, 750)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if aboveThreshold != 815 {
		t.Fatalf("score above threshold = %v, want 815 (bonus applied)", aboveThreshold)
	}
}

func TestComputeApplication_InclusionCapped(t *testing.T) {
	// 1000*0.20 + 1000*0.40 + 1000*0.40 + 100 = 1100, capped at 1000.
	got, err := ComputeApplication(ProfileInclusion, 10, 1000, 1000)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if got != MaxScore {
		t.Fatalf("score = %v, want cap %v", got, MaxScore)
	}
}

func TestComputeApplication_InclusionFlatBonus(t *testing.T) {
	got, err := ComputeApplication(ProfileInclusion, 5, 400, 300)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	// 500*0.20 + 400*0.40 + 300*0.40 = 380, + 100
	if got != 480 {
		t.Fatalf("score = %v, want 480", got)
	}
}

func TestComputeApplication_RejectsOutOfRange(t *testing.T) {
	cases := []struct {
		name               string
		grade, eval, merit float64
	}{
		{"grade above ten", 11, 500, 500},
		{"eval negative", 8, -1, 500},
		{"eval above cap", 8, 1001, 500},
		{"merit above cap", 8, 500, 1001},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ComputeApplication(ProfileStandard, tc.grade, tc.eval, tc.merit)
			var verr domain.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestParseWeightProfile(t *testing.T) {
	for _, name := range []string{"STANDARD", "MERIT", "INCLUSION"} {
		if _, err := ParseWeightProfile(name); err != nil {
			t.Fatalf("parse %s: %v", name, err)
		}
	}
	if _, err := ParseWeightProfile("SPORTS"); err == nil {
		t.Fatalf("expected unknown profile rejection")
	}
}
