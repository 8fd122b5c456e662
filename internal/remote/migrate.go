package remote

import (
	"context"
	"fmt"
	"strings"
)

var columnTypes = map[string]string{
	"id":                "UUID PRIMARY KEY",
	"timestamp":         "TIMESTAMPTZ NOT NULL",
	"source":            "VARCHAR(16) NOT NULL",
	"level":             "VARCHAR(16) NOT NULL",
	"message":           "TEXT NOT NULL",
	"line_number":       "INTEGER",
	"request_data":      "JSONB",
	"response_status":   "INTEGER",
	"duration_ms":       "DOUBLE PRECISION",
	"extra_data":        "JSONB",
	"exception_details": "JSONB",
	"stack_trace":       "TEXT",
	"exception_message": "TEXT",
	"process_id":        "INTEGER",
}

// DDL returns the CREATE statements for table and its indexes.
func DDL(table string) []string {
	cols := Columns(table)
	if cols == nil {
		return nil
	}
	defs := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		typ, ok := columnTypes[c]
		if !ok {
			typ = "VARCHAR(255)"
		}
		defs = append(defs, quoteIdent(c)+" "+typ)
	}
	defs = append(defs, `"created_at" TIMESTAMPTZ NOT NULL DEFAULT NOW()`)

	stmts := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", table, strings.Join(defs, ",\n  ")),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_timestamp ON %s ("timestamp")`, table, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_trace_id ON %s ("trace_id")`, table, table),
	}
	if table == "audit_logs" {
		stmts = append(stmts,
			`CREATE INDEX IF NOT EXISTS idx_audit_logs_user_id ON audit_logs ("user_id")`,
			`CREATE INDEX IF NOT EXISTS idx_audit_logs_resource ON audit_logs ("resource_type", "resource_id")`)
	}
	return stmts
}

// Migrate creates any missing log tables.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, table := range Tables() {
		for _, stmt := range DDL(table) {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migrate %s: %w", table, err)
			}
		}
	}
	return nil
}
