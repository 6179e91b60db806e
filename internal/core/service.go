package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"admitcore/pkg/domain"
	"admitcore/pkg/scoring"
	"admitcore/pkg/segment"
)

// MinAdmissibleScore is the floor below which an assignment attempt is
// rejected before any capacity is touched.
const MinAdmissibleScore = 600.0

// Outcome notes recorded on allocation records.
const (
	noteAssigned          = "assignment successful"
	noteInsufficientScore = "insufficient score (minimum 600)"
	noteNoCapacity        = "no seats available"
	noteRaceLost          = "seats exhausted concurrently"
	noteActiveSeatHeld    = "candidate already holds an active seat"
	noteCancelled         = "allocation cancelled, seat refunded"
	noteClosed            = "allocation cancelled"
	noteCompleted         = "allocation completed"
)

// Service is the allocation engine: it orchestrates classification, scoring
// and ledger mutation behind the operations the request layer consumes.
type Service struct {
	ledger  domain.Ledger
	logger  Logger
	metrics MetricsRecorder
	nowFn   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger installs a structured logger (no-op by default).
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics installs a metrics recorder (none by default).
func WithMetrics(rec MetricsRecorder) Option {
	return func(s *Service) { s.metrics = rec }
}

// WithNowFunc overrides the clock, for tests.
func WithNowFunc(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.nowFn = fn
		}
	}
}

// NewService constructs a service backed by the supplied ledger.
func NewService(ledger domain.Ledger, opts ...Option) *Service {
	s := &Service{
		ledger: ledger,
		logger: noopLogger{},
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ledger returns the underlying ledger implementation.
func (s *Service) Ledger() domain.Ledger { return s.ledger }

func (s *Service) observe(ctx context.Context, op string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.Observe(ctx, op, err == nil, time.Since(start))
	}
}

// ConfigureCapacity creates or reconfigures a program's seat pool.
func (s *Service) ConfigureCapacity(ctx context.Context, offerID, name string, totalSeats int) (ProgramOffer, Result, error) {
	start := s.nowFn()
	offer, res, err := s.ledger.ConfigureOffer(ctx, domain.ProgramOffer{
		Base:       domain.Base{ID: offerID},
		Name:       name,
		TotalSeats: totalSeats,
	})
	s.observe(ctx, "configure_capacity", start, err)
	if err != nil {
		s.logger.Warn("capacity configuration rejected", "offer", offerID, "total", totalSeats, "err", err)
		return ProgramOffer{}, res, err
	}
	s.logger.Info("capacity configured", "offer", offerID, "total", totalSeats, "remaining", offer.RemainingSeats)
	return offer, res, nil
}

// Classify derives a candidate's priority tier from eligibility markers.
func (s *Service) Classify(markers MarkerSet) Tier {
	return segment.Classify(markers)
}

// ComputeEvaluationScore computes a per-evaluation score under the named
// strategy. Swapping strategies recomputes and supersedes the previous value.
func (s *Service) ComputeEvaluationScore(strategyName string, grade, exam, interview float64, extras scoring.Extras) (float64, error) {
	strategy, err := scoring.ParseStrategy(strategyName)
	if err != nil {
		return 0, err
	}
	return scoring.ComputeEvaluation(strategy, grade, exam, interview, extras)
}

// ComputeApplicationScore computes the final application score under the
// named weight profile.
func (s *Service) ComputeApplicationScore(profileName string, grade, evalScore, meritScore float64) (float64, error) {
	profile, err := scoring.ParseWeightProfile(profileName)
	if err != nil {
		return 0, err
	}
	return scoring.ComputeApplication(profile, grade, evalScore, meritScore)
}

// Assign attempts to seat a candidate in the offer. Business rejections
// (insufficient score, exhausted capacity, active seat elsewhere) come back
// as REJECTED records with an outcome note, not as errors. The whole
// decision runs inside the offer's serialized critical section.
func (s *Service) Assign(ctx context.Context, candidateID, offerID string, tier Tier, score float64) (AllocationRecord, Result, error) {
	start := s.nowFn()
	if candidateID == "" {
		return AllocationRecord{}, Result{}, domain.ValidationError{Field: "candidate_id", Message: "candidate id required"}
	}
	if !tier.Valid() {
		return AllocationRecord{}, Result{}, domain.ValidationError{Field: "tier", Message: fmt.Sprintf("unknown tier %q", tier)}
	}
	if score < 0 || score > scoring.MaxScore {
		return AllocationRecord{}, Result{}, domain.ValidationError{Field: "score", Message: fmt.Sprintf("score %v outside [0, %v]", score, scoring.MaxScore)}
	}

	var record AllocationRecord
	attempt := func() (Result, error) {
		return s.ledger.RunInOfferScope(ctx, offerID, func(tx domain.OfferTx) error {
			reject := func(note string) error {
				var createErr error
				record, createErr = tx.CreateAllocation(domain.AllocationRecord{
					CandidateID: candidateID,
					OfferID:     offerID,
					Tier:        tier,
					Score:       score,
					State:       StateRejected,
					Note:        note,
				})
				return createErr
			}

			if held, ok := tx.ActiveSeatFor(candidateID); ok {
				return reject(fmt.Sprintf("%s (allocation %d)", noteActiveSeatHeld, held.ID))
			}
			if score < MinAdmissibleScore {
				return reject(noteInsufficientScore)
			}
			if tx.Offer().RemainingSeats == 0 {
				return reject(noteNoCapacity)
			}
			if !tx.TryReserveSeat() {
				return reject(noteRaceLost)
			}

			assignedAt := s.nowFn()
			var createErr error
			record, createErr = tx.CreateAllocation(domain.AllocationRecord{
				CandidateID: candidateID,
				OfferID:     offerID,
				Tier:        tier,
				Score:       score,
				State:       StateAssigned,
				Note:        noteAssigned,
				AssignedAt:  &assignedAt,
			})
			return createErr
		})
	}

	res, err := attempt()
	// A scope on another offer can seat the candidate between this scope's
	// duplicate check and its commit; the single-seat rule then rolls this
	// scope back. Retrying observes the committed seat and records the
	// rejection instead.
	for tries := 0; tries < 2 && blockedBySingleSeatRule(err, candidateID); tries++ {
		res, err = attempt()
	}
	s.observe(ctx, "assign", start, err)
	if err != nil {
		s.logger.Error("assignment failed", "candidate", candidateID, "offer", offerID, "err", err)
		return AllocationRecord{}, res, err
	}
	s.logger.Info("assignment decided", "candidate", candidateID, "offer", offerID, "state", record.State, "note", record.Note)
	return record, res, nil
}

// blockedBySingleSeatRule reports whether err is a blocking violation of the
// single-active-seat rule for the given candidate.
func blockedBySingleSeatRule(err error, candidateID string) bool {
	var rve domain.RuleViolationError
	if !errors.As(err, &rve) {
		return false
	}
	for _, v := range rve.Result.Violations {
		if v.Rule == ruleNameSingleActiveSeat && v.EntityID == candidateID {
			return true
		}
	}
	return false
}

// Cancel transitions a record to CANCELLED. Cancelling an assigned record
// refunds its seat; cancelling an already cancelled record is a no-op.
func (s *Service) Cancel(ctx context.Context, allocationID int64) (AllocationRecord, Result, error) {
	start := s.nowFn()
	current, ok := s.ledger.FindAllocation(allocationID)
	if !ok {
		err := domain.NotFoundError{Entity: domain.EntityAllocation, ID: fmt.Sprintf("%d", allocationID)}
		s.observe(ctx, "cancel", start, err)
		return AllocationRecord{}, Result{}, err
	}

	var updated AllocationRecord
	res, err := s.ledger.RunInOfferScope(ctx, current.OfferID, func(tx domain.OfferTx) error {
		rec, ok := tx.FindAllocation(allocationID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityAllocation, ID: fmt.Sprintf("%d", allocationID)}
		}
		switch rec.State {
		case StateCancelled:
			updated = rec
			return nil
		case StateCompleted:
			return domain.ValidationError{Field: "allocation_id", Message: fmt.Sprintf("allocation %d already completed", allocationID)}
		case StateAssigned:
			if err := tx.RefundSeat(); err != nil {
				return err
			}
			return s.transitionCancelled(tx, allocationID, noteCancelled, &updated)
		default:
			return s.transitionCancelled(tx, allocationID, noteClosed, &updated)
		}
	})
	s.observe(ctx, "cancel", start, err)
	if err != nil {
		s.logger.Error("cancellation failed", "allocation", allocationID, "err", err)
		return AllocationRecord{}, res, err
	}
	s.logger.Info("allocation cancelled", "allocation", allocationID, "offer", updated.OfferID)
	return updated, res, nil
}

func (s *Service) transitionCancelled(tx domain.OfferTx, id int64, note string, out *AllocationRecord) error {
	cancelledAt := s.nowFn()
	rec, err := tx.UpdateAllocation(id, func(r *AllocationRecord) error {
		r.State = StateCancelled
		r.CancelledAt = &cancelledAt
		r.Note = note
		return nil
	})
	if err != nil {
		return err
	}
	*out = rec
	return nil
}

// Complete administratively finalizes an assigned record. The seat stays
// consumed; the record becomes terminal.
func (s *Service) Complete(ctx context.Context, allocationID int64) (AllocationRecord, Result, error) {
	start := s.nowFn()
	current, ok := s.ledger.FindAllocation(allocationID)
	if !ok {
		err := domain.NotFoundError{Entity: domain.EntityAllocation, ID: fmt.Sprintf("%d", allocationID)}
		s.observe(ctx, "complete", start, err)
		return AllocationRecord{}, Result{}, err
	}

	var updated AllocationRecord
	res, err := s.ledger.RunInOfferScope(ctx, current.OfferID, func(tx domain.OfferTx) error {
		rec, ok := tx.FindAllocation(allocationID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityAllocation, ID: fmt.Sprintf("%d", allocationID)}
		}
		if rec.State != StateAssigned {
			return domain.ValidationError{Field: "allocation_id", Message: fmt.Sprintf("allocation %d is %s, only assigned allocations complete", allocationID, rec.State)}
		}
		completedAt := s.nowFn()
		var updErr error
		updated, updErr = tx.UpdateAllocation(allocationID, func(r *AllocationRecord) error {
			r.State = StateCompleted
			r.CompletedAt = &completedAt
			r.Note = noteCompleted
			return nil
		})
		return updErr
	})
	s.observe(ctx, "complete", start, err)
	if err != nil {
		return AllocationRecord{}, res, err
	}
	s.logger.Info("allocation completed", "allocation", allocationID, "offer", updated.OfferID)
	return updated, res, nil
}

// GetAllocation retrieves one allocation record.
func (s *Service) GetAllocation(id int64) (AllocationRecord, bool) {
	return s.ledger.FindAllocation(id)
}

// ListForCandidate returns the candidate's records in creation order.
func (s *Service) ListForCandidate(candidateID string) []AllocationRecord {
	return s.ledger.ListAllocationsForCandidate(candidateID)
}

// ListForOffer returns the offer's records in creation order.
func (s *Service) ListForOffer(offerID string) []AllocationRecord {
	return s.ledger.ListAllocationsForOffer(offerID)
}

// RemainingCapacity returns the offer's remaining seats, 0 when unknown.
func (s *Service) RemainingCapacity(offerID string) int {
	return s.ledger.RemainingSeats(offerID)
}

// Stats aggregates record counts by state and seat totals across offers.
func (s *Service) Stats() LedgerStats {
	return s.ledger.Stats()
}
