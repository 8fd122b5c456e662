package remote

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/lib/pq"
)

// PostgresStore writes rows with one multi-row INSERT per batch.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres opens a connection pool for dsn. The database does not need
// to be reachable yet; failed inserts are counted by the Sink.
func OpenPostgres(dsn string, maxOpen int, autoMigrate bool) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres log store requires a DSN")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if maxOpen <= 0 {
		maxOpen = 10
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen / 2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &PostgresStore{db: db}
	if autoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, table string, rows []Row) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	query, args, err := buildInsert(table, rows)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

// buildInsert renders a parameterized INSERT covering every column of table.
func buildInsert(table string, rows []Row) (string, []any, error) {
	cols := Columns(table)
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(quoteIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(cols)*len(rows))
	n := 1
	for r, row := range rows {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for i, c := range cols {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", n)
			n++
			v, err := columnValue(c, row[c])
			if err != nil {
				return "", nil, err
			}
			args = append(args, v)
		}
		b.WriteByte(')')
	}
	return b.String(), args, nil
}

func columnValue(column string, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if IsJSONColumn(column) {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", column, err)
		}
		return string(data), nil
	}
	return v, nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Stats reports the connection pool state.
func (s *PostgresStore) Stats() sql.DBStats {
	return s.db.Stats()
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
