package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"admitcore/pkg/domain"
)

// stubConn is a minimal driver connection recording executed statements and
// emulating the single-table snapshot schema.
type stubConn struct {
	mu      sync.Mutex
	execs   []string
	buckets map[string][]byte
}

type stubDriver struct {
	conn *stubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

func newStubDB() (*sql.DB, *stubConn) {
	conn := &stubConn{buckets: make(map[string][]byte)}
	name := fmt.Sprintf("stubpg%d", time.Now().UnixNano())
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

func (c *stubConn) Prepare(string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare unsupported")
}

func (c *stubConn) Close() error               { return nil }
func (c *stubConn) Begin() (driver.Tx, error)  { return stubTx{}, nil }
func (c *stubConn) Ping(context.Context) error { return nil }

type stubTx struct{}

func (stubTx) Commit() error   { return nil }
func (stubTx) Rollback() error { return nil }

func (c *stubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.execs = append(c.execs, query)
	if strings.HasPrefix(query, "INSERT INTO state") {
		bucket, _ := args[0].Value.(string)
		payload, _ := args[1].Value.([]byte)
		cp := make([]byte, len(payload))
		copy(cp, payload)
		c.buckets[bucket] = cp
	}
	return driver.RowsAffected(1), nil
}

func (c *stubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	if !strings.Contains(query, "FROM state") {
		return nil, fmt.Errorf("unexpected query %q", query)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rows := &stubRows{}
	for bucket, payload := range c.buckets {
		cp := make([]byte, len(payload))
		copy(cp, payload)
		rows.data = append(rows.data, [2]driver.Value{bucket, cp})
	}
	return rows, nil
}

type stubRows struct {
	data [][2]driver.Value
	pos  int
}

func (r *stubRows) Columns() []string { return []string{"bucket", "payload"} }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.data) {
		return io.EOF
	}
	dest[0] = r.data[r.pos][0]
	dest[1] = r.data[r.pos][1]
	r.pos++
	return nil
}

func (c *stubConn) bucket(t *testing.T, name string) []byte {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	payload, ok := c.buckets[name]
	if !ok {
		t.Fatalf("bucket %s not persisted", name)
	}
	return payload
}

func TestNewStore_EnsuresTableAndHydrates(t *testing.T) {
	db, conn := newStubDB()

	offers := map[string]domain.ProgramOffer{
		"PROG-1": {Base: domain.Base{ID: "PROG-1"}, Name: "Engineering", TotalSeats: 3, RemainingSeats: 2},
	}
	allocations := map[int64]domain.AllocationRecord{
		7: {ID: 7, CandidateID: "cand-1", OfferID: "PROG-1", Tier: domain.TierQuota, Score: 812.5, MeritOrder: 7, State: domain.StateAssigned},
	}
	for bucket, value := range map[string]any{"offers": offers, "allocations": allocations, "seq": int64(7)} {
		payload, err := json.Marshal(value)
		if err != nil {
			t.Fatalf("marshal %s: %v", bucket, err)
		}
		conn.buckets[bucket] = payload
	}

	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	store, err := NewStore("", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	var sawDDL bool
	for _, stmt := range conn.execs {
		if strings.Contains(strings.ToUpper(stmt), "CREATE TABLE") {
			sawDDL = true
			break
		}
	}
	if !sawDDL {
		t.Fatalf("state table DDL not applied, execs: %v", conn.execs)
	}

	offer, ok := store.FindOffer("PROG-1")
	if !ok || offer.RemainingSeats != 2 {
		t.Fatalf("offer not hydrated: %+v", offer)
	}
	rec, ok := store.FindAllocation(7)
	if !ok || rec.CandidateID != "cand-1" || rec.Score != 812.5 {
		t.Fatalf("allocation not hydrated: %+v", rec)
	}
}

func TestMutationsSnapshotState(t *testing.T) {
	db, conn := newStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	store, err := NewStore("ignored", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	if _, _, err := store.ConfigureOffer(ctx, domain.ProgramOffer{Base: domain.Base{ID: "PROG-1"}, TotalSeats: 2}); err != nil {
		t.Fatalf("configure: %v", err)
	}
	_, err = store.RunInOfferScope(ctx, "PROG-1", func(tx domain.OfferTx) error {
		if !tx.TryReserveSeat() {
			t.Fatalf("reserve failed")
		}
		_, createErr := tx.CreateAllocation(domain.AllocationRecord{CandidateID: "cand-1", Tier: domain.TierGeneral, Score: 700, State: domain.StateAssigned})
		return createErr
	})
	if err != nil {
		t.Fatalf("scope: %v", err)
	}

	var offers map[string]domain.ProgramOffer
	if err := json.Unmarshal(conn.bucket(t, "offers"), &offers); err != nil {
		t.Fatalf("decode offers: %v", err)
	}
	if offers["PROG-1"].RemainingSeats != 1 {
		t.Fatalf("persisted offer = %+v", offers["PROG-1"])
	}
	var allocations map[int64]domain.AllocationRecord
	if err := json.Unmarshal(conn.bucket(t, "allocations"), &allocations); err != nil {
		t.Fatalf("decode allocations: %v", err)
	}
	if len(allocations) != 1 {
		t.Fatalf("persisted allocations = %+v", allocations)
	}
	var seq int64
	if err := json.Unmarshal(conn.bucket(t, "seq"), &seq); err != nil {
		t.Fatalf("decode seq: %v", err)
	}
	if seq != 1 {
		t.Fatalf("persisted seq = %d", seq)
	}
}

func TestFailedMutationSkipsSnapshot(t *testing.T) {
	db, conn := newStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	store, err := NewStore("", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, _, err := store.ConfigureOffer(context.Background(), domain.ProgramOffer{TotalSeats: 1}); err == nil {
		t.Fatalf("expected validation error")
	}
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if len(conn.buckets) != 0 {
		t.Fatalf("rejected mutation must not snapshot: %v", conn.buckets)
	}
}
