package core

import "admitcore/pkg/domain"

// NewDefaultRulesEngine builds a rules engine with the built-in invariant set
// enforced on every ledger scope.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewSeatCapacityRule())
	engine.Register(NewSingleActiveSeatRule())
	engine.Register(NewStateTransitionRule())
	return engine
}
