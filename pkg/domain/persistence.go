package domain

import "context"

// OfferTx exposes the mutations a ledger implementation must support inside
// one serialized per-offer scope. Capacity may only change through
// TryReserveSeat and RefundSeat.
type OfferTx interface {
	// Offer returns the working copy of the scoped offer.
	Offer() ProgramOffer
	// TryReserveSeat decrements remaining capacity if any seat is left and
	// reports whether it succeeded.
	TryReserveSeat() bool
	// RefundSeat increments remaining capacity. Exceeding the offer total is
	// an InvariantViolationError.
	RefundSeat() error
	CreateAllocation(AllocationRecord) (AllocationRecord, error)
	UpdateAllocation(id int64, mutator func(*AllocationRecord) error) (AllocationRecord, error)
	FindAllocation(id int64) (AllocationRecord, bool)
	// ActiveSeatFor returns the candidate's assigned record, searching across
	// all offers, staged mutations included.
	ActiveSeatFor(candidateID string) (AllocationRecord, bool)
}

// Ledger is the authoritative record of per-offer capacity and per-candidate
// allocation state. One logical instance exists per running service.
type Ledger interface {
	// ConfigureOffer creates an offer or resets its capacity. Negative totals
	// are rejected; lowering total below the currently assigned count is
	// rejected to preserve capacity conservation.
	ConfigureOffer(ctx context.Context, offer ProgramOffer) (ProgramOffer, Result, error)
	// RunInOfferScope executes fn under the offer's serialized critical
	// section, evaluates rules against the mutated view, and commits only
	// when fn succeeds and no blocking violations were raised. Scopes on
	// distinct offers proceed in parallel.
	RunInOfferScope(ctx context.Context, offerID string, fn func(OfferTx) error) (Result, error)
	// View executes fn against a read-only snapshot of committed state.
	View(ctx context.Context, fn func(LedgerView) error) error
	FindOffer(id string) (ProgramOffer, bool)
	ListOffers() []ProgramOffer
	// RemainingSeats returns the offer's remaining capacity, 0 when unknown.
	RemainingSeats(offerID string) int
	FindAllocation(id int64) (AllocationRecord, bool)
	ListAllocations() []AllocationRecord
	ListAllocationsForOffer(offerID string) []AllocationRecord
	ListAllocationsForCandidate(candidateID string) []AllocationRecord
	Stats() LedgerStats
}
