// Package sqlite provides a SQLite-backed allocation ledger. It reuses the
// in-memory ledger for all transactional semantics and snapshots the full
// state to a single table as JSON blobs after every successful mutation.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"admitcore/internal/infra/persistence/memory"
	"admitcore/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ domain.Ledger = (*Store)(nil)

// Store persists ledger state to a SQLite file.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore constructs a snapshotting SQLite-backed ledger.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = "admitcore.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{Store: memory.NewStore(engine), db: db, path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

var sqliteBuckets = []string{"offers", "allocations", "seq"}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	snapshot := memory.Snapshot{}
	loaded := false
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan state: %w", err)
		}
		if len(payload) == 0 {
			continue
		}
		switch bucket {
		case "offers":
			if err := json.Unmarshal(payload, &snapshot.Offers); err != nil {
				return fmt.Errorf("decode offers: %w", err)
			}
			loaded = true
		case "allocations":
			if err := json.Unmarshal(payload, &snapshot.Allocations); err != nil {
				return fmt.Errorf("decode allocations: %w", err)
			}
			loaded = true
		case "seq":
			if err := json.Unmarshal(payload, &snapshot.Seq); err != nil {
				return fmt.Errorf("decode seq: %w", err)
			}
			loaded = true
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	if !loaded {
		return nil
	}
	s.ImportState(snapshot)
	return nil
}

func (s *Store) persist() (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range sqliteBuckets {
		var data []byte
		switch bucket {
		case "offers":
			data, err = json.Marshal(snapshot.Offers)
		case "allocations":
			data, err = json.Marshal(snapshot.Allocations)
		case "seq":
			data, err = json.Marshal(snapshot.Seq)
		}
		if err != nil {
			retErr = err
			return retErr
		}
		if _, err = tx.Exec(`INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			retErr = fmt.Errorf("upsert %s: %w", bucket, err)
			return retErr
		}
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	return nil
}

// ConfigureOffer creates or reconfigures an offer, then snapshots state to
// SQLite if successful.
func (s *Store) ConfigureOffer(ctx context.Context, offer domain.ProgramOffer) (domain.ProgramOffer, domain.Result, error) {
	out, res, err := s.Store.ConfigureOffer(ctx, offer)
	if err != nil {
		return out, res, err
	}
	if pErr := s.persist(); pErr != nil {
		return out, res, pErr
	}
	return out, res, nil
}

// RunInOfferScope applies the provided function within an offer scope, then
// snapshots state to SQLite if successful.
func (s *Store) RunInOfferScope(ctx context.Context, offerID string, fn func(tx domain.OfferTx) error) (domain.Result, error) {
	res, err := s.Store.RunInOfferScope(ctx, offerID, fn)
	if err != nil {
		return res, err
	}
	if pErr := s.persist(); pErr != nil {
		return res, pErr
	}
	return res, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close closes the database handle.
func (s *Store) Close() error { return s.db.Close() }
