package remote

import (
	"context"
	"sync"
)

// DefaultMemoryMaxRows bounds each table of a MemoryStore.
const DefaultMemoryMaxRows = 10000

// Insert is one recorded MemoryStore call.
type Insert struct {
	Table string
	Rows  int
}

// MemoryStore keeps rows in process. Each table holds at most maxRows,
// oldest rows are discarded first.
type MemoryStore struct {
	mu      sync.Mutex
	maxRows int
	tables  map[string][]Row
	inserts []Insert
	fail    error
	block   chan struct{}
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(maxRows int) *MemoryStore {
	if maxRows <= 0 {
		maxRows = DefaultMemoryMaxRows
	}
	return &MemoryStore{
		maxRows: maxRows,
		tables:  make(map[string][]Row),
	}
}

func (m *MemoryStore) Insert(ctx context.Context, table string, rows []Row) error {
	if err := checkTable(table); err != nil {
		return err
	}

	m.mu.Lock()
	block := m.block
	fail := m.fail
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if fail != nil {
		return fail
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	stored := append(m.tables[table], rows...)
	if over := len(stored) - m.maxRows; over > 0 {
		stored = append([]Row(nil), stored[over:]...)
	}
	m.tables[table] = stored
	m.inserts = append(m.inserts, Insert{Table: table, Rows: len(rows)})
	return nil
}

// Rows returns a copy of the rows stored in table.
func (m *MemoryStore) Rows(table string) []Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Row(nil), m.tables[table]...)
}

// Inserts returns the calls that succeeded, in order.
func (m *MemoryStore) Inserts() []Insert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Insert(nil), m.inserts...)
}

// FailWith makes subsequent inserts return err. A nil err clears it.
func (m *MemoryStore) FailWith(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

// Block makes inserts wait until the returned release func is called.
func (m *MemoryStore) Block() (release func()) {
	ch := make(chan struct{})
	m.mu.Lock()
	m.block = ch
	m.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			m.block = nil
			m.mu.Unlock()
			close(ch)
		})
	}
}

func (m *MemoryStore) Close() error { return nil }
