// Package remote delivers batches of events to a tabular store. Delivery is
// best-effort: failures are counted and reported on the diagnostic logger,
// never re-logged into the pipeline.
package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/neogan74/tracelog/internal/logger"
)

var (
	// ErrUnknownTable is returned for a table outside the schema.
	ErrUnknownTable = errors.New("unknown log table")
	// ErrInsertTimeout is returned when a store call outlives its deadline.
	ErrInsertTimeout = errors.New("remote insert deadline exceeded")
	// ErrBreakerOpen is returned while the circuit breaker rejects calls.
	ErrBreakerOpen = errors.New("remote store circuit open")
)

// Store inserts rows into one of the log tables. A batch is one call.
type Store interface {
	Insert(ctx context.Context, table string, rows []Row) error
	Close() error
}

// StoreConfig selects and configures a Store.
type StoreConfig struct {
	Type string // "memory", "postgres", "rest", "badger"

	// postgres
	DSN         string
	AutoMigrate bool
	MaxOpenConn int

	// rest
	RESTURL string
	RESTKey string

	// badger
	BadgerDir  string
	SyncWrites bool

	// memory
	MemoryMaxRows int
}

// NewStore creates the store named by cfg.Type.
func NewStore(cfg StoreConfig, log logger.Logger) (Store, error) {
	switch cfg.Type {
	case "memory":
		log.Info("Using in-memory log store", logger.Int("max_rows", cfg.MemoryMaxRows))
		return NewMemoryStore(cfg.MemoryMaxRows), nil
	case "postgres":
		log.Info("Using PostgreSQL log store", logger.Bool("auto_migrate", cfg.AutoMigrate))
		return OpenPostgres(cfg.DSN, cfg.MaxOpenConn, cfg.AutoMigrate)
	case "rest":
		log.Info("Using REST log store", logger.String("url", cfg.RESTURL))
		return NewRESTStore(cfg.RESTURL, cfg.RESTKey), nil
	case "badger":
		log.Info("Using BadgerDB log store", logger.String("dir", cfg.BadgerDir))
		return OpenBadger(cfg.BadgerDir, cfg.SyncWrites, log)
	default:
		return nil, fmt.Errorf("unsupported log store type: %s", cfg.Type)
	}
}

func checkTable(table string) error {
	if Columns(table) == nil {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return nil
}
