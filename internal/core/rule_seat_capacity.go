package core

import (
	"context"
	"fmt"

	"admitcore/pkg/domain"
)

// NewSeatCapacityRule returns the in-scope rule enforcing seat conservation:
// for every offer, remaining + assigned == total and 0 <= remaining <= total.
func NewSeatCapacityRule() domain.Rule {
	return seatCapacityRule{}
}

type seatCapacityRule struct{}

func (seatCapacityRule) Name() string { return "seat_capacity" }

func (seatCapacityRule) Evaluate(_ context.Context, view domain.LedgerView, _ []domain.Change) (domain.Result, error) {
	assigned := make(map[string]int)
	for _, rec := range view.ListAllocations() {
		if rec.State == domain.StateAssigned {
			assigned[rec.OfferID]++
		}
	}

	res := domain.Result{}
	for _, offer := range view.ListOffers() {
		if offer.RemainingSeats < 0 || offer.RemainingSeats > offer.TotalSeats {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "seat_capacity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("offer %s remaining %d outside [0, %d]", offer.ID, offer.RemainingSeats, offer.TotalSeats),
				Entity:   domain.EntityProgramOffer,
				EntityID: offer.ID,
			})
			continue
		}
		if offer.RemainingSeats+assigned[offer.ID] != offer.TotalSeats {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "seat_capacity",
				Severity: domain.SeverityBlock,
				Message: fmt.Sprintf("offer %s seats not conserved: remaining %d + assigned %d != total %d",
					offer.ID, offer.RemainingSeats, assigned[offer.ID], offer.TotalSeats),
				Entity:   domain.EntityProgramOffer,
				EntityID: offer.ID,
			})
		}
	}
	return res, nil
}
