package domain

import "fmt"

// ValidationError reports malformed or out-of-range caller input. No state
// change occurs when one is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// InvariantViolationError reports an internal consistency defect, such as a
// seat refund pushing remaining capacity above total. It indicates a bug in
// concurrency control, not a business outcome, and is never recovered.
type InvariantViolationError struct {
	Message string
}

func (e InvariantViolationError) Error() string {
	return "invariant violation: " + e.Message
}

// NotFoundError is returned when a mutating path references an unknown
// offer or allocation. Read paths return absent results instead.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// RuleViolationError is returned when a ledger scope produced blocking rule
// violations and was rolled back.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "ledger scope blocked by rules"
}
