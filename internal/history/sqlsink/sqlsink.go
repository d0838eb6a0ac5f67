// Package sqlsink stores history events in a database/sql table. The sqlite
// and postgres sinks share it and differ only in their Dialect.
package sqlsink

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/loykin/runkeeper/internal/history"
)

const DefaultTable = "runner_history"

var columns = []string{"occurred_at", "type", "runner", "pid", "state", "previous", "last_exit"}

// Dialect covers the SQL differences between drivers.
type Dialect struct {
	Timestamp   string           // column type of occurred_at
	Now         string           // default expression for occurred_at
	Placeholder func(int) string // 1-based bind parameter
}

func question(int) string { return "?" }

func dollar(n int) string { return "$" + strconv.Itoa(n) }

var (
	SQLite   = Dialect{Timestamp: "TIMESTAMP", Now: "(CURRENT_TIMESTAMP)", Placeholder: question}
	Postgres = Dialect{Timestamp: "TIMESTAMPTZ", Now: "NOW()", Placeholder: dollar}
)

// Table is a prepared history table.
type Table struct {
	db     *sql.DB
	insert string
	count  string
}

// Open creates the table and its runner index when missing.
func Open(ctx context.Context, db *sql.DB, d Dialect, name string) (*Table, error) {
	ddl := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s(
			occurred_at %s NOT NULL DEFAULT %s,
			type TEXT NOT NULL,
			runner TEXT NOT NULL,
			pid INTEGER NOT NULL,
			state TEXT NOT NULL,
			previous TEXT NOT NULL,
			last_exit TEXT
		)`, name, d.Timestamp, d.Now),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_runner ON %s(runner)`, name, name),
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return nil, fmt.Errorf("create %s: %w", name, err)
		}
	}

	binds := make([]string, len(columns))
	for i := range binds {
		binds[i] = d.Placeholder(i + 1)
	}
	return &Table{
		db: db,
		insert: fmt.Sprintf("INSERT INTO %s(%s) VALUES(%s)",
			name, strings.Join(columns, ", "), strings.Join(binds, ", ")),
		count: fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE runner = %s", name, d.Placeholder(1)),
	}, nil
}

// Insert stores e. An empty last exit is stored as NULL.
func (t *Table) Insert(ctx context.Context, e history.Event) error {
	r := e.Record
	lastExit := sql.NullString{String: r.LastExit, Valid: r.LastExit != ""}
	if _, err := t.db.ExecContext(ctx, t.insert,
		e.OccurredAt.UTC(), string(e.Type), r.Runner, r.PID, r.State, r.Previous, lastExit); err != nil {
		return fmt.Errorf("insert %s event: %w", e.Type, err)
	}
	return nil
}

// Count returns the number of stored events for runner.
func (t *Table) Count(ctx context.Context, runner string) (int, error) {
	var n int
	err := t.db.QueryRowContext(ctx, t.count, runner).Scan(&n)
	return n, err
}
