package segment

import (
	"testing"

	"admitcore/pkg/domain"
)

func markers(ms ...domain.Marker) domain.MarkerSet {
	set := make(domain.MarkerSet, len(ms))
	for _, m := range ms {
		set[m] = true
	}
	return set
}

func TestClassify_Chain(t *testing.T) {
	cases := []struct {
		name string
		in   domain.MarkerSet
		want domain.Tier
	}{
		{"empty set falls through to general", nil, domain.TierGeneral},
		{"socioeconomic condition", markers(domain.MarkerSocioeconomicCondition), domain.TierQuota},
		{"rurality", markers(domain.MarkerRurality), domain.TierQuota},
		{"disability", markers(domain.MarkerDisability), domain.TierQuota},
		{"ethnic group", markers(domain.MarkerEthnicGroup), domain.TierQuota},
		{"violence victim", markers(domain.MarkerViolenceVictim), domain.TierQuota},
		{"returnee migrant", markers(domain.MarkerReturneeMigrant), domain.TierQuota},
		{"vulnerability", markers(domain.MarkerVulnerability), domain.TierVulnerability},
		{"academic merit", markers(domain.MarkerAcademicMerit), domain.TierAcademicMerit},
		{"senior ethnic group", markers(domain.MarkerSeniorEthnicGroup), domain.TierEthnicGroups},
		{"graduating senior", markers(domain.MarkerGraduatingSenior), domain.TierGraduatingSeniors},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.in); got != tc.want {
				t.Fatalf("Classify = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestClassify_FirstMatchWins(t *testing.T) {
	// Disability is a quota marker, so the quota step fires before the
	// vulnerability step regardless of map iteration order.
	set := markers(domain.MarkerDisability, domain.MarkerVulnerability)
	if got := Classify(set); got != domain.TierQuota {
		t.Fatalf("Classify = %s, want %s", got, domain.TierQuota)
	}

	set = markers(domain.MarkerVulnerability, domain.MarkerAcademicMerit, domain.MarkerGraduatingSenior)
	if got := Classify(set); got != domain.TierVulnerability {
		t.Fatalf("Classify = %s, want %s", got, domain.TierVulnerability)
	}
}

func TestClassify_Deterministic(t *testing.T) {
	set := markers(domain.MarkerAcademicMerit, domain.MarkerGraduatingSenior)
	first := Classify(set)
	for i := 0; i < 100; i++ {
		if got := Classify(set); got != first {
			t.Fatalf("classification changed between calls: %s vs %s", got, first)
		}
	}
	if first != domain.TierAcademicMerit {
		t.Fatalf("Classify = %s, want %s", first, domain.TierAcademicMerit)
	}
}

func TestClassify_DoesNotMutateInput(t *testing.T) {
	set := markers(domain.MarkerRurality)
	_ = Classify(set)
	if len(set) != 1 || !set.Has(domain.MarkerRurality) {
		t.Fatalf("input marker set mutated: %v", set)
	}
}
