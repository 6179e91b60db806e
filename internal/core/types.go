package core

import "admitcore/pkg/domain"

type (
	Tier             = domain.Tier
	Marker           = domain.Marker
	MarkerSet        = domain.MarkerSet
	ProgramOffer     = domain.ProgramOffer
	AllocationRecord = domain.AllocationRecord
	AllocationState  = domain.AllocationState
	LedgerStats      = domain.LedgerStats
	Change           = domain.Change
	Violation        = domain.Violation
	Result           = domain.Result
	Ledger           = domain.Ledger
	LedgerView       = domain.LedgerView
	RulesEngine      = domain.RulesEngine
	Rule             = domain.Rule
)

const (
	StatePending   = domain.StatePending
	StateAssigned  = domain.StateAssigned
	StateRejected  = domain.StateRejected
	StateCancelled = domain.StateCancelled
	StateCompleted = domain.StateCompleted
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)
