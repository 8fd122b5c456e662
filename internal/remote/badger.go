package remote

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/neogan74/tracelog/internal/logger"
)

// BadgerStore keeps rows in an embedded BadgerDB, keyed by table and
// timestamp so a prefix scan returns a table in insertion order.
type BadgerStore struct {
	db   *badger.DB
	log  logger.Logger
	stop chan struct{}
}

// OpenBadger opens (or creates) a store under dir.
func OpenBadger(dir string, syncWrites bool, log logger.Logger) (*BadgerStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("badger log store requires a directory")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	opts := badger.DefaultOptions(dir)
	opts.SyncWrites = syncWrites
	opts.Logger = nil
	opts.ValueLogFileSize = 64 << 20
	opts.MemTableSize = 32 << 20

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	s := &BadgerStore{db: db, log: log, stop: make(chan struct{})}
	go s.runGarbageCollection()
	return s, nil
}

func (s *BadgerStore) runGarbageCollection() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			err := s.db.RunValueLogGC(0.5)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.log.Warn("BadgerDB garbage collection failed", logger.Error(err))
			}
		}
	}
}

func rowKey(table string, row Row) []byte {
	var nanos int64
	if ts, ok := row["timestamp"].(time.Time); ok {
		nanos = ts.UnixNano()
	}
	id, _ := row["id"].(string)
	return []byte(fmt.Sprintf("%s:%020d:%s", table, nanos, id))
}

func (s *BadgerStore) Insert(ctx context.Context, table string, rows []Row) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("encode row for %s: %w", table, err)
		}
		if err := wb.Set(rowKey(table, row), data); err != nil {
			return fmt.Errorf("insert into %s: %w", table, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

// Rows returns the rows of table in key order. Values are decoded from
// JSON, so timestamps come back as strings.
func (s *BadgerStore) Rows(table string) ([]Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	var out []Row
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(table + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var row Row
				if err := json.Unmarshal(val, &row); err != nil {
					return err
				}
				out = append(out, row)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

func (s *BadgerStore) Close() error {
	close(s.stop)
	return s.db.Close()
}
