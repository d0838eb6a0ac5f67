package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/loykin/runkeeper/internal/history"
	"github.com/loykin/runkeeper/internal/history/sqlsink"
)

// Sink keeps history events in a local SQLite file or in memory.
type Sink struct {
	db    *sql.DB
	table *sqlsink.Table
}

// New opens the database named by dsn, which is a path, ":memory:", or either
// of them behind a "sqlite://" prefix.
func New(dsn string) (*Sink, error) {
	path := strings.TrimSpace(dsn)
	if len(path) >= len("sqlite://") && strings.EqualFold(path[:len("sqlite://")], "sqlite://") {
		path = path[len("sqlite://"):]
	}
	if path == "" {
		return nil, errors.New("empty SQLite DSN")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one connection: writes are serialized and :memory: stays a single database
	db.SetMaxOpenConns(1)

	t, err := sqlsink.Open(context.Background(), db, sqlsink.SQLite, sqlsink.DefaultTable)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Sink{db: db, table: t}, nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error { return s.table.Insert(ctx, e) }

// Count returns the number of stored events for runner.
func (s *Sink) Count(ctx context.Context, runner string) (int, error) {
	return s.table.Count(ctx, runner)
}

func (s *Sink) Close() error { return s.db.Close() }
