package core

import (
	"context"
	"fmt"

	"admitcore/pkg/domain"
)

// NewStateTransitionRule returns the rule blocking illegal allocation state
// transitions recorded by a scope's change set.
func NewStateTransitionRule() domain.Rule {
	return stateTransitionRule{}
}

type stateTransitionRule struct{}

func (stateTransitionRule) Name() string { return "state_transition" }

// allowedTransitions is the allocation state machine. Cancelled and completed
// are terminal; rejected may still be closed administratively as cancelled.
var allowedTransitions = map[domain.AllocationState]map[domain.AllocationState]struct{}{
	domain.StatePending: {
		domain.StateAssigned:  {},
		domain.StateRejected:  {},
		domain.StateCancelled: {},
	},
	domain.StateAssigned: {
		domain.StateCancelled: {},
		domain.StateCompleted: {},
	},
	domain.StateRejected: {
		domain.StateCancelled: {},
	},
	domain.StateCancelled: {},
	domain.StateCompleted: {},
}

func validState(state domain.AllocationState) bool {
	_, ok := allowedTransitions[state]
	return ok
}

func (stateTransitionRule) Evaluate(_ context.Context, _ domain.LedgerView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityAllocation {
			continue
		}
		after, ok := change.After.(domain.AllocationRecord)
		if !ok {
			continue
		}
		if !validState(after.State) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "state_transition",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("allocation %d has unknown state %q", after.ID, after.State),
				Entity:   domain.EntityAllocation,
				EntityID: fmt.Sprintf("%d", after.ID),
			})
			continue
		}
		if change.Action != domain.ActionUpdate {
			continue
		}
		before, ok := change.Before.(domain.AllocationRecord)
		if !ok || before.State == after.State {
			continue
		}
		if _, legal := allowedTransitions[before.State][after.State]; !legal {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "state_transition",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("allocation %d illegal transition %s -> %s", after.ID, before.State, after.State),
				Entity:   domain.EntityAllocation,
				EntityID: fmt.Sprintf("%d", after.ID),
			})
		}
	}
	return res, nil
}
