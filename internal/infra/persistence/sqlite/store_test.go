package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"admitcore/pkg/domain"
)

func newTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	s := newTestStore(t, path)
	if _, _, err := s.ConfigureOffer(ctx, domain.ProgramOffer{Base: domain.Base{ID: "PROG-1"}, Name: "Engineering", TotalSeats: 3}); err != nil {
		t.Fatalf("configure: %v", err)
	}
	var rec domain.AllocationRecord
	_, err := s.RunInOfferScope(ctx, "PROG-1", func(tx domain.OfferTx) error {
		if !tx.TryReserveSeat() {
			t.Fatalf("reserve failed")
		}
		var createErr error
		rec, createErr = tx.CreateAllocation(domain.AllocationRecord{
			CandidateID: "cand-1",
			Tier:        domain.TierQuota,
			Score:       812.5,
			State:       domain.StateAssigned,
		})
		return createErr
	})
	if err != nil {
		t.Fatalf("scope: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := newTestStore(t, path)
	defer reopened.Close()

	offer, ok := reopened.FindOffer("PROG-1")
	if !ok {
		t.Fatalf("offer not restored")
	}
	if offer.Name != "Engineering" || offer.TotalSeats != 3 || offer.RemainingSeats != 2 {
		t.Fatalf("restored offer = %+v", offer)
	}
	got, ok := reopened.FindAllocation(rec.ID)
	if !ok {
		t.Fatalf("allocation not restored")
	}
	if got.CandidateID != "cand-1" || got.Tier != domain.TierQuota || got.Score != 812.5 || got.State != domain.StateAssigned {
		t.Fatalf("restored allocation = %+v", got)
	}

	// Sequence resumes past restored records.
	var next domain.AllocationRecord
	_, err = reopened.RunInOfferScope(ctx, "PROG-1", func(tx domain.OfferTx) error {
		var createErr error
		next, createErr = tx.CreateAllocation(domain.AllocationRecord{CandidateID: "cand-2", Tier: domain.TierGeneral, Score: 700, State: domain.StatePending})
		return createErr
	})
	if err != nil {
		t.Fatalf("scope after reopen: %v", err)
	}
	if next.ID <= rec.ID {
		t.Fatalf("sequence regressed: %d after %d", next.ID, rec.ID)
	}
}

func TestStore_FreshDatabaseStartsEmpty(t *testing.T) {
	s := newTestStore(t, filepath.Join(t.TempDir(), "fresh.db"))
	defer s.Close()
	if len(s.ListOffers()) != 0 || len(s.ListAllocations()) != 0 {
		t.Fatalf("fresh store should be empty")
	}
}

func TestStore_SnapshotWrittenPerMutation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	s := newTestStore(t, path)
	defer s.Close()
	ctx := context.Background()

	if _, _, err := s.ConfigureOffer(ctx, domain.ProgramOffer{Base: domain.Base{ID: "PROG-1"}, TotalSeats: 1}); err != nil {
		t.Fatalf("configure: %v", err)
	}

	var buckets int
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM state`).Scan(&buckets); err != nil {
		t.Fatalf("count buckets: %v", err)
	}
	if buckets != 3 {
		t.Fatalf("buckets = %d, want 3", buckets)
	}
	if s.Path() != path {
		t.Fatalf("path = %s", s.Path())
	}
}
