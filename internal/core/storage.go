package core

import (
	"fmt"
	"os"

	"admitcore/internal/infra/persistence/memory"
	"admitcore/internal/infra/persistence/postgres"
	"admitcore/internal/infra/persistence/sqlite"
	"admitcore/pkg/domain"
)

// StorageDriver identifies a concrete ledger storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenLedger selects a ledger backend using environment variables.
// Defaults to sqlite when unset.
//
//	ADMITCORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	ADMITCORE_SQLITE_PATH: path to sqlite file (default ./admitcore.db)
//	ADMITCORE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenLedger(engine *domain.RulesEngine) (domain.Ledger, error) {
	driver := os.Getenv("ADMITCORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		path := os.Getenv("ADMITCORE_SQLITE_PATH")
		return sqlite.NewStore(path, engine)
	case StoragePostgres:
		dsn := os.Getenv("ADMITCORE_POSTGRES_DSN")
		return postgres.NewStore(dsn, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
