package memory

import (
	"fmt"
	"time"

	"admitcore/pkg/domain"
)

// offerTx is the working set of one per-offer scope. It mutates copies only;
// the store publishes them after rule evaluation succeeds.
type offerTx struct {
	store    *Store
	original domain.ProgramOffer
	offer    domain.ProgramOffer
	staged   map[int64]domain.AllocationRecord
	changes  []domain.Change
	now      time.Time
}

var _ domain.OfferTx = (*offerTx)(nil)

func (tx *offerTx) Offer() domain.ProgramOffer { return cloneOffer(tx.offer) }

// TryReserveSeat is the only capacity-decrementing primitive. The enclosing
// offer lock makes check-and-decrement atomic with respect to every other
// scope on the same offer.
func (tx *offerTx) TryReserveSeat() bool {
	if tx.offer.RemainingSeats <= 0 {
		return false
	}
	tx.offer.RemainingSeats--
	return true
}

// RefundSeat returns a seat on cancellation. Exceeding the configured total
// means a refund was issued for a seat that was never reserved; that is a
// caller bug and fails loudly.
func (tx *offerTx) RefundSeat() error {
	if tx.offer.RemainingSeats >= tx.offer.TotalSeats {
		return domain.InvariantViolationError{
			Message: fmt.Sprintf("seat refund for offer %s would exceed total capacity %d", tx.offer.ID, tx.offer.TotalSeats),
		}
	}
	tx.offer.RemainingSeats++
	return nil
}

// CreateAllocation stages a new record keyed by the next ledger sequence
// number, which also fixes the record's merit order.
func (tx *offerTx) CreateAllocation(rec domain.AllocationRecord) (domain.AllocationRecord, error) {
	if rec.OfferID == "" {
		rec.OfferID = tx.offer.ID
	}
	if rec.OfferID != tx.offer.ID {
		return domain.AllocationRecord{}, domain.ValidationError{
			Field:   "offer_id",
			Message: fmt.Sprintf("allocation targets offer %s outside scope %s", rec.OfferID, tx.offer.ID),
		}
	}
	if rec.CandidateID == "" {
		return domain.AllocationRecord{}, domain.ValidationError{Field: "candidate_id", Message: "candidate id required"}
	}
	if rec.State == "" {
		rec.State = domain.StatePending
	}
	rec.ID = tx.store.nextSeq()
	rec.MeritOrder = rec.ID
	rec.CreatedAt = tx.now
	tx.staged[rec.ID] = cloneAllocation(rec)
	tx.changes = append(tx.changes, domain.Change{
		Entity: domain.EntityAllocation,
		Action: domain.ActionCreate,
		After:  cloneAllocation(rec),
	})
	return cloneAllocation(rec), nil
}

// UpdateAllocation mutates a record belonging to the scoped offer.
func (tx *offerTx) UpdateAllocation(id int64, mutator func(*domain.AllocationRecord) error) (domain.AllocationRecord, error) {
	current, ok := tx.FindAllocation(id)
	if !ok {
		return domain.AllocationRecord{}, domain.NotFoundError{Entity: domain.EntityAllocation, ID: fmt.Sprintf("%d", id)}
	}
	if current.OfferID != tx.offer.ID {
		return domain.AllocationRecord{}, domain.ValidationError{
			Field:   "allocation_id",
			Message: fmt.Sprintf("allocation %d belongs to offer %s outside scope %s", id, current.OfferID, tx.offer.ID),
		}
	}
	before := cloneAllocation(current)
	if err := mutator(&current); err != nil {
		return domain.AllocationRecord{}, err
	}
	current.ID = id
	current.OfferID = before.OfferID
	current.MeritOrder = before.MeritOrder
	current.CreatedAt = before.CreatedAt
	tx.staged[id] = cloneAllocation(current)
	tx.changes = append(tx.changes, domain.Change{
		Entity: domain.EntityAllocation,
		Action: domain.ActionUpdate,
		Before: before,
		After:  cloneAllocation(current),
	})
	return cloneAllocation(current), nil
}

// FindAllocation consults staged mutations first, then committed state.
func (tx *offerTx) FindAllocation(id int64) (domain.AllocationRecord, bool) {
	if rec, ok := tx.staged[id]; ok {
		return cloneAllocation(rec), true
	}
	return tx.store.FindAllocation(id)
}

// ActiveSeatFor searches every offer for the candidate's assigned record,
// staged mutations included.
func (tx *offerTx) ActiveSeatFor(candidateID string) (domain.AllocationRecord, bool) {
	for _, rec := range tx.staged {
		if rec.CandidateID == candidateID && rec.State == domain.StateAssigned {
			return cloneAllocation(rec), true
		}
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	for id, rec := range tx.store.state.allocations {
		if _, overridden := tx.staged[id]; overridden {
			continue
		}
		if rec.CandidateID == candidateID && rec.State == domain.StateAssigned {
			return cloneAllocation(rec), true
		}
	}
	return domain.AllocationRecord{}, false
}

// overlayView exposes committed state with the scope's working copies laid on
// top, for rule evaluation before commit. When locked is set the caller
// already holds the store write lock for an atomic evaluate-and-commit, so
// the view must not take the read lock itself.
type overlayView struct {
	store   *Store
	offerID string
	offer   domain.ProgramOffer
	staged  map[int64]domain.AllocationRecord
	locked  bool
}

var _ domain.LedgerView = (*overlayView)(nil)

func (v *overlayView) lockShared() func() {
	if v.locked {
		return func() {}
	}
	v.store.mu.RLock()
	return v.store.mu.RUnlock
}

func (v *overlayView) ListOffers() []domain.ProgramOffer {
	unlock := v.lockShared()
	defer unlock()
	out := make([]domain.ProgramOffer, 0, len(v.store.state.offers)+1)
	seen := false
	for id, offer := range v.store.state.offers {
		if id == v.offerID {
			out = append(out, cloneOffer(v.offer))
			seen = true
			continue
		}
		out = append(out, cloneOffer(offer))
	}
	if !seen {
		out = append(out, cloneOffer(v.offer))
	}
	return out
}

func (v *overlayView) ListAllocations() []domain.AllocationRecord {
	unlock := v.lockShared()
	defer unlock()
	out := make([]domain.AllocationRecord, 0, len(v.store.state.allocations)+len(v.staged))
	for id, rec := range v.store.state.allocations {
		if _, overridden := v.staged[id]; overridden {
			continue
		}
		out = append(out, cloneAllocation(rec))
	}
	for _, rec := range v.staged {
		out = append(out, cloneAllocation(rec))
	}
	return out
}

func (v *overlayView) FindOffer(id string) (domain.ProgramOffer, bool) {
	if id == v.offerID {
		return cloneOffer(v.offer), true
	}
	unlock := v.lockShared()
	defer unlock()
	offer, ok := v.store.state.offers[id]
	if !ok {
		return domain.ProgramOffer{}, false
	}
	return cloneOffer(offer), true
}

func (v *overlayView) FindAllocation(id int64) (domain.AllocationRecord, bool) {
	if rec, ok := v.staged[id]; ok {
		return cloneAllocation(rec), true
	}
	unlock := v.lockShared()
	defer unlock()
	rec, ok := v.store.state.allocations[id]
	if !ok {
		return domain.AllocationRecord{}, false
	}
	return cloneAllocation(rec), true
}

// snapshotView is the detached read-only view handed to View callbacks.
type snapshotView struct {
	offers      map[string]domain.ProgramOffer
	allocations map[int64]domain.AllocationRecord
}

var _ domain.LedgerView = snapshotView{}

func (v snapshotView) ListOffers() []domain.ProgramOffer {
	out := make([]domain.ProgramOffer, 0, len(v.offers))
	for _, offer := range v.offers {
		out = append(out, offer)
	}
	return out
}

func (v snapshotView) ListAllocations() []domain.AllocationRecord {
	out := make([]domain.AllocationRecord, 0, len(v.allocations))
	for _, rec := range v.allocations {
		out = append(out, rec)
	}
	return out
}

func (v snapshotView) FindOffer(id string) (domain.ProgramOffer, bool) {
	offer, ok := v.offers[id]
	return offer, ok
}

func (v snapshotView) FindAllocation(id int64) (domain.AllocationRecord, bool) {
	rec, ok := v.allocations[id]
	return rec, ok
}
