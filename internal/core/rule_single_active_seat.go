package core

import (
	"context"
	"fmt"

	"admitcore/pkg/domain"
)

const ruleNameSingleActiveSeat = "single_active_seat"

// NewSingleActiveSeatRule returns the rule enforcing that a candidate holds
// at most one assigned seat system-wide.
func NewSingleActiveSeatRule() domain.Rule {
	return singleActiveSeatRule{}
}

type singleActiveSeatRule struct{}

func (singleActiveSeatRule) Name() string { return ruleNameSingleActiveSeat }

func (singleActiveSeatRule) Evaluate(_ context.Context, view domain.LedgerView, _ []domain.Change) (domain.Result, error) {
	active := make(map[string]int)
	for _, rec := range view.ListAllocations() {
		if rec.State == domain.StateAssigned {
			active[rec.CandidateID]++
		}
	}

	res := domain.Result{}
	for candidate, count := range active {
		if count > 1 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     ruleNameSingleActiveSeat,
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("candidate %s holds %d assigned seats", candidate, count),
				Entity:   domain.EntityAllocation,
				EntityID: candidate,
			})
		}
	}
	return res, nil
}
