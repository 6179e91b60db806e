package domain

import "context"

// LedgerView provides read-only access to ledger state for rule evaluation
// and projections.
type LedgerView interface {
	ListOffers() []ProgramOffer
	ListAllocations() []AllocationRecord
	FindOffer(id string) (ProgramOffer, bool)
	FindAllocation(id int64) (AllocationRecord, bool)
}

// Rule defines an invariant evaluated against the post-mutation view before
// a ledger scope commits.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, view LedgerView, changes []Change) (Result, error)
}

// RulesEngine orchestrates rule evaluation.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Evaluate executes all registered rules and aggregates their results.
func (e *RulesEngine) Evaluate(ctx context.Context, view LedgerView, changes []Change) (Result, error) {
	var combined Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, view, changes)
		if err != nil {
			return Result{}, err
		}
		combined.Merge(res)
	}
	return combined, nil
}
