// Package ranking builds read-only leaderboard projections over the
// allocation ledger.
package ranking

import (
	"context"
	"sort"

	"admitcore/pkg/domain"
)

// Entry is one leaderboard row.
type Entry struct {
	Position     int                    `json:"position"`
	AllocationID int64                  `json:"allocation_id"`
	CandidateID  string                 `json:"candidate_id"`
	OfferID      string                 `json:"offer_id"`
	Tier         domain.Tier            `json:"tier"`
	Score        float64                `json:"score"`
	MeritOrder   int64                  `json:"merit_order"`
	State        domain.AllocationState `json:"state"`
}

// Projector derives ranked leaderboards from ledger state. It is stateless;
// every call snapshots the ledger so concurrent allocation traffic never
// skews an in-progress projection.
type Projector struct {
	ledger domain.Ledger
}

// NewProjector constructs a projector over the supplied ledger.
func NewProjector(ledger domain.Ledger) *Projector {
	return &Projector{ledger: ledger}
}

// Rank returns the offer's leaderboard ordered by score descending, then
// tier precedence, then merit order. All records are included regardless of
// state; positions are 1-based and contiguous.
func (p *Projector) Rank(ctx context.Context, offerID string) ([]Entry, error) {
	var records []domain.AllocationRecord
	err := p.ledger.View(ctx, func(view domain.LedgerView) error {
		for _, rec := range view.ListAllocations() {
			if rec.OfferID == offerID {
				records = append(records, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return project(records), nil
}

// RankAll returns a single leaderboard across every offer, ordered the same
// way as Rank.
func (p *Projector) RankAll(ctx context.Context) ([]Entry, error) {
	var records []domain.AllocationRecord
	err := p.ledger.View(ctx, func(view domain.LedgerView) error {
		records = view.ListAllocations()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return project(records), nil
}

func project(records []domain.AllocationRecord) []Entry {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		ra, rb := a.Tier.Rank(), b.Tier.Rank()
		if ra != rb {
			return ra < rb
		}
		return a.MeritOrder < b.MeritOrder
	})
	entries := make([]Entry, 0, len(records))
	for i, rec := range records {
		entries = append(entries, Entry{
			Position:     i + 1,
			AllocationID: rec.ID,
			CandidateID:  rec.CandidateID,
			OfferID:      rec.OfferID,
			Tier:         rec.Tier,
			Score:        rec.Score,
			MeritOrder:   rec.MeritOrder,
			State:        rec.State,
		})
	}
	return entries
}
