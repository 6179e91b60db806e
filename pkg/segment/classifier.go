// Package segment derives a candidate's priority tier from eligibility
// markers using a fixed, ordered first-match rule chain.
package segment

import "admitcore/pkg/domain"

// quotaMarkers is the disjunction tested for the QUOTA tier. Any single
// marker suffices.
var quotaMarkers = []domain.Marker{
	domain.MarkerSocioeconomicCondition,
	domain.MarkerRurality,
	domain.MarkerDisability,
	domain.MarkerEthnicGroup,
	domain.MarkerViolenceVictim,
	domain.MarkerReturneeMigrant,
}

type step struct {
	tier  domain.Tier
	match func(domain.MarkerSet) bool
}

// chain is evaluated in order with early exit; order is load-bearing. A
// candidate matching several conditions is classified by the first step only.
// RECOGNITIONS has no predicate and is never produced by classification.
var chain = []step{
	{domain.TierQuota, anyOf(quotaMarkers...)},
	{domain.TierVulnerability, has(domain.MarkerVulnerability)},
	{domain.TierAcademicMerit, has(domain.MarkerAcademicMerit)},
	{domain.TierEthnicGroups, has(domain.MarkerSeniorEthnicGroup)},
	{domain.TierGraduatingSeniors, has(domain.MarkerGraduatingSenior)},
}

func has(marker domain.Marker) func(domain.MarkerSet) bool {
	return func(m domain.MarkerSet) bool { return m.Has(marker) }
}

func anyOf(markers ...domain.Marker) func(domain.MarkerSet) bool {
	return func(m domain.MarkerSet) bool {
		for _, marker := range markers {
			if m.Has(marker) {
				return true
			}
		}
		return false
	}
}

// Classify returns the priority tier for the marker set. It is a pure, total
// function: identical marker sets always yield identical tiers, and GENERAL
// is the catch-all when no step matches.
func Classify(markers domain.MarkerSet) domain.Tier {
	for _, s := range chain {
		if s.match(markers) {
			return s.tier
		}
	}
	return domain.TierGeneral
}
