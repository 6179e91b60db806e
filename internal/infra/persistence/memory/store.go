// Package memory provides the in-memory allocation ledger used as the
// authoritative store for ephemeral deployments and as the transactional
// engine embedded by the durable backends.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"admitcore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the ledger interface.
var _ domain.Ledger = (*Store)(nil)

type ledgerState struct {
	offers      map[string]domain.ProgramOffer
	allocations map[int64]domain.AllocationRecord
	seq         int64
}

func newLedgerState() ledgerState {
	return ledgerState{
		offers:      make(map[string]domain.ProgramOffer),
		allocations: make(map[int64]domain.AllocationRecord),
	}
}

func cloneOffer(o domain.ProgramOffer) domain.ProgramOffer { return o }

func cloneAllocation(r domain.AllocationRecord) domain.AllocationRecord {
	cp := r
	cp.AssignedAt = cloneTime(r.AssignedAt)
	cp.CancelledAt = cloneTime(r.CancelledAt)
	cp.CompletedAt = cloneTime(r.CompletedAt)
	return cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

// Snapshot captures a point-in-time clone of the ledger state for the
// snapshotting persistence backends.
type Snapshot struct {
	Offers      map[string]domain.ProgramOffer    `json:"offers"`
	Allocations map[int64]domain.AllocationRecord `json:"allocations"`
	Seq         int64                             `json:"seq"`
}

// Store is the in-memory ledger. Mutations run inside per-offer critical
// sections so unrelated offers allocate in parallel; the store mutex guards
// only the shared maps for short commit and read windows.
type Store struct {
	mu     sync.RWMutex
	state  ledgerState
	engine *domain.RulesEngine
	nowFn  func() time.Time

	lockMu     sync.Mutex
	offerLocks map[string]*sync.Mutex
}

// NewStore constructs an in-memory ledger backed by the provided rules
// engine. A nil engine means no invariant checks, which only tests should use.
func NewStore(engine *domain.RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:      newLedgerState(),
		engine:     engine,
		nowFn:      func() time.Time { return time.Now().UTC() },
		offerLocks: make(map[string]*sync.Mutex),
	}
}

// SetNowFunc overrides the clock, for tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		s.nowFn = fn
	}
}

func (s *Store) offerLock(offerID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.offerLocks[offerID]
	if !ok {
		lock = &sync.Mutex{}
		s.offerLocks[offerID] = lock
	}
	return lock
}

func (s *Store) nextSeq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.seq++
	return s.state.seq
}

// ConfigureOffer creates or reconfigures a seat pool. Reconfiguration resets
// remaining capacity to total minus the currently assigned count so the
// conservation invariant keeps holding.
func (s *Store) ConfigureOffer(ctx context.Context, offer domain.ProgramOffer) (domain.ProgramOffer, domain.Result, error) {
	if offer.ID == "" {
		return domain.ProgramOffer{}, domain.Result{}, domain.ValidationError{Field: "offer_id", Message: "offer id required"}
	}
	if offer.TotalSeats < 0 {
		return domain.ProgramOffer{}, domain.Result{}, domain.ValidationError{Field: "total_seats", Message: fmt.Sprintf("negative capacity %d", offer.TotalSeats)}
	}

	lock := s.offerLock(offer.ID)
	lock.Lock()
	defer lock.Unlock()

	now := s.nowFn()

	s.mu.RLock()
	existing, exists := s.state.offers[offer.ID]
	assigned := 0
	for _, rec := range s.state.allocations {
		if rec.OfferID == offer.ID && rec.State == domain.StateAssigned {
			assigned++
		}
	}
	s.mu.RUnlock()

	if offer.TotalSeats < assigned {
		return domain.ProgramOffer{}, domain.Result{}, domain.ValidationError{
			Field:   "total_seats",
			Message: fmt.Sprintf("total %d below %d seats already assigned", offer.TotalSeats, assigned),
		}
	}

	next := offer
	next.RemainingSeats = offer.TotalSeats - assigned
	next.UpdatedAt = now
	change := domain.Change{Entity: domain.EntityProgramOffer}
	if exists {
		next.CreatedAt = existing.CreatedAt
		if next.Name == "" {
			next.Name = existing.Name
		}
		change.Action = domain.ActionUpdate
		change.Before = cloneOffer(existing)
	} else {
		next.CreatedAt = now
		change.Action = domain.ActionCreate
	}
	change.After = cloneOffer(next)

	s.mu.Lock()
	defer s.mu.Unlock()
	view := &overlayView{store: s, offerID: next.ID, offer: next, locked: true}
	res, err := s.engine.Evaluate(ctx, view, []domain.Change{change})
	if err != nil {
		return domain.ProgramOffer{}, domain.Result{}, err
	}
	if res.HasBlocking() {
		return domain.ProgramOffer{}, res, domain.RuleViolationError{Result: res}
	}

	s.state.offers[next.ID] = cloneOffer(next)
	return cloneOffer(next), res, nil
}

// RunInOfferScope executes fn within the offer's serialized critical section.
// The scope works on copies; nothing is published until fn returns nil and no
// registered rule raised a blocking violation.
func (s *Store) RunInOfferScope(ctx context.Context, offerID string, fn func(domain.OfferTx) error) (domain.Result, error) {
	lock := s.offerLock(offerID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	offer, ok := s.state.offers[offerID]
	s.mu.RUnlock()
	if !ok {
		return domain.Result{}, domain.NotFoundError{Entity: domain.EntityProgramOffer, ID: offerID}
	}

	tx := &offerTx{
		store:    s,
		original: cloneOffer(offer),
		offer:    cloneOffer(offer),
		staged:   make(map[int64]domain.AllocationRecord),
		now:      s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}

	if tx.offer != tx.original {
		tx.offer.UpdatedAt = tx.now
		tx.changes = append(tx.changes, domain.Change{
			Entity: domain.EntityProgramOffer,
			Action: domain.ActionUpdate,
			Before: cloneOffer(tx.original),
			After:  cloneOffer(tx.offer),
		})
	}

	// Evaluation and commit share one write-lock window: a scope on another
	// offer cannot commit between the rule check and publication, so
	// ledger-wide rules such as the single active seat hold across offers.
	s.mu.Lock()
	defer s.mu.Unlock()
	view := &overlayView{store: s, offerID: offerID, offer: tx.offer, staged: tx.staged, locked: true}
	res, err := s.engine.Evaluate(ctx, view, tx.changes)
	if err != nil {
		return domain.Result{}, err
	}
	if res.HasBlocking() {
		return res, domain.RuleViolationError{Result: res}
	}

	s.state.offers[offerID] = cloneOffer(tx.offer)
	for id, rec := range tx.staged {
		s.state.allocations[id] = cloneAllocation(rec)
	}
	return res, nil
}

// View executes fn against a read-only snapshot of committed state.
func (s *Store) View(ctx context.Context, fn func(domain.LedgerView) error) error {
	_ = ctx
	s.mu.RLock()
	snapshot := snapshotView{offers: make(map[string]domain.ProgramOffer, len(s.state.offers)), allocations: make(map[int64]domain.AllocationRecord, len(s.state.allocations))}
	for id, offer := range s.state.offers {
		snapshot.offers[id] = cloneOffer(offer)
	}
	for id, rec := range s.state.allocations {
		snapshot.allocations[id] = cloneAllocation(rec)
	}
	s.mu.RUnlock()
	return fn(snapshot)
}

// Read helpers ---------------------------------------------------------------

// FindOffer retrieves an offer by ID from committed state.
func (s *Store) FindOffer(id string) (domain.ProgramOffer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	offer, ok := s.state.offers[id]
	if !ok {
		return domain.ProgramOffer{}, false
	}
	return cloneOffer(offer), true
}

// ListOffers returns all offers sorted by ID.
func (s *Store) ListOffers() []domain.ProgramOffer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ProgramOffer, 0, len(s.state.offers))
	for _, offer := range s.state.offers {
		out = append(out, cloneOffer(offer))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RemainingSeats returns the offer's remaining capacity, 0 when unknown.
func (s *Store) RemainingSeats(offerID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.offers[offerID].RemainingSeats
}

// FindAllocation retrieves an allocation record by ID.
func (s *Store) FindAllocation(id int64) (domain.AllocationRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.state.allocations[id]
	if !ok {
		return domain.AllocationRecord{}, false
	}
	return cloneAllocation(rec), true
}

// ListAllocations returns every record sorted by creation sequence.
func (s *Store) ListAllocations() []domain.AllocationRecord {
	return s.listAllocations(func(domain.AllocationRecord) bool { return true })
}

// ListAllocationsForOffer returns the offer's records in creation order.
func (s *Store) ListAllocationsForOffer(offerID string) []domain.AllocationRecord {
	return s.listAllocations(func(r domain.AllocationRecord) bool { return r.OfferID == offerID })
}

// ListAllocationsForCandidate returns the candidate's records in creation order.
func (s *Store) ListAllocationsForCandidate(candidateID string) []domain.AllocationRecord {
	return s.listAllocations(func(r domain.AllocationRecord) bool { return r.CandidateID == candidateID })
}

func (s *Store) listAllocations(keep func(domain.AllocationRecord) bool) []domain.AllocationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.AllocationRecord
	for _, rec := range s.state.allocations {
		if keep(rec) {
			out = append(out, cloneAllocation(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stats aggregates ledger-wide counters.
func (s *Store) Stats() domain.LedgerStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := domain.LedgerStats{
		Offers:  len(s.state.offers),
		ByState: make(map[domain.AllocationState]int),
	}
	for _, offer := range s.state.offers {
		stats.TotalSeats += offer.TotalSeats
		stats.RemainingSeats += offer.RemainingSeats
	}
	for _, rec := range s.state.allocations {
		stats.ByState[rec.State]++
	}
	return stats
}

// ExportState clones the committed state for snapshot persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Offers:      make(map[string]domain.ProgramOffer, len(s.state.offers)),
		Allocations: make(map[int64]domain.AllocationRecord, len(s.state.allocations)),
		Seq:         s.state.seq,
	}
	for id, offer := range s.state.offers {
		snap.Offers[id] = cloneOffer(offer)
	}
	for id, rec := range s.state.allocations {
		snap.Allocations[id] = cloneAllocation(rec)
	}
	return snap
}

// ImportState replaces the committed state from a snapshot.
func (s *Store) ImportState(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := newLedgerState()
	state.seq = snap.Seq
	for id, offer := range snap.Offers {
		state.offers[id] = cloneOffer(offer)
	}
	for id, rec := range snap.Allocations {
		state.allocations[id] = cloneAllocation(rec)
		if id > state.seq {
			state.seq = id
		}
	}
	s.state = state
}
