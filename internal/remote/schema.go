package remote

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/neogan74/tracelog/internal/event"
	"github.com/neogan74/tracelog/internal/format"
)

// Row is one record handed to a Store, keyed by column name.
type Row map[string]any

var commonColumns = []string{
	"id",
	"timestamp", "source", "level", "message",
	"layer", "module", "function", "line_number", "file_path",
	"trace_id", "request_id", "user_id", "ip_address", "user_agent",
	"request_method", "request_path", "request_data", "response_status", "duration_ms",
	"extra_data",
}

var tableColumns = map[string][]string{
	"app_logs":    commonColumns,
	"error_logs":  append(append([]string{}, commonColumns...), "exception_type", "exception_message", "error_code", "stack_trace", "exception_details"),
	"audit_logs":  append(append([]string{}, commonColumns...), "action", "resource_type", "resource_id"),
	"system_logs": append(append([]string{}, commonColumns...), "logger_name", "process_id", "thread_name"),
}

var jsonColumns = map[string]bool{
	"request_data":      true,
	"exception_details": true,
	"extra_data":        true,
}

// Tables returns the known table names in sorted order.
func Tables() []string {
	out := make([]string, 0, len(tableColumns))
	for t := range tableColumns {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Columns returns the column list of table, or nil for an unknown table.
func Columns(table string) []string {
	return tableColumns[table]
}

// IsJSONColumn reports whether column holds nested JSON.
func IsJSONColumn(column string) bool {
	return jsonColumns[column]
}

func hasColumn(table, column string) bool {
	for _, c := range tableColumns[table] {
		if c == column {
			return true
		}
	}
	return false
}

// RowFromEnvelope maps e onto the columns of table. Fields the table does
// not have are dropped; the timestamp is kept as a time value so every
// store can encode it natively.
func RowFromEnvelope(table string, e *event.Envelope) Row {
	row := Row{"id": uuid.NewString()}
	for _, p := range format.Pairs(e) {
		if !hasColumn(table, p.Key) {
			continue
		}
		row[p.Key] = p.Value
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = event.Now()
	}
	row["timestamp"] = ts.In(event.KST).Truncate(time.Millisecond)
	return row
}

// Complete returns a copy of row holding every column of table, with
// missing columns set to nil.
func Complete(table string, row Row) Row {
	out := make(Row, len(tableColumns[table]))
	for _, c := range tableColumns[table] {
		out[c] = row[c]
	}
	return out
}
