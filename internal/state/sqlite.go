package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"github.com/fwmesh/fwmesh/internal/graph"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS resources (
	kind        TEXT NOT NULL,
	name        TEXT NOT NULL,
	provider_id TEXT NOT NULL,
	attrs       TEXT NOT NULL,
	depends_on  TEXT NOT NULL DEFAULT '[]',
	updated_at  TEXT NOT NULL,
	PRIMARY KEY (kind, name)
);
`

// SQLite is a durable store backed by a local SQLite database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed initializes) the state database at path.
// Use ":memory:" for an ephemeral database in tests.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	// sqlite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY churn under the executor's worker pool.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize state schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Save implements Store.
func (s *SQLite) Save(ctx context.Context, rec Record) error {
	attrs, err := json.Marshal(rec.Attrs)
	if err != nil {
		return fmt.Errorf("failed to encode attributes for %s: %w", rec.ID, err)
	}
	deps, err := json.Marshal(rec.DependsOn)
	if err != nil {
		return fmt.Errorf("failed to encode dependencies for %s: %w", rec.ID, err)
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO resources (kind, name, provider_id, attrs, depends_on, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		string(rec.ID.Kind), rec.ID.Name, rec.ProviderID, string(attrs), string(deps), rec.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save state for %s: %w", rec.ID, err)
	}
	return nil
}

// Lookup implements Store.
func (s *SQLite) Lookup(ctx context.Context, id graph.Identity) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT provider_id, attrs, depends_on, updated_at FROM resources WHERE kind = ? AND name = ?`,
		string(id.Kind), id.Name,
	)
	rec, err := scanRecord(row, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to look up state for %s: %w", id, err)
	}
	return rec, nil
}

// Remove implements Store.
func (s *SQLite) Remove(ctx context.Context, id graph.Identity) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM resources WHERE kind = ? AND name = ?`,
		string(id.Kind), id.Name,
	)
	if err != nil {
		return fmt.Errorf("failed to remove state for %s: %w", id, err)
	}
	return nil
}

// List implements Store. Records are ordered by kind then name.
func (s *SQLite) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, name, provider_id, attrs, depends_on, updated_at FROM resources ORDER BY kind, name`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list state records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var kind, name, providerID, attrs, deps, updatedAt string
		if err := rows.Scan(&kind, &name, &providerID, &attrs, &deps, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan state record: %w", err)
		}
		rec, err := decodeRecord(graph.Identity{Kind: graph.Kind(kind), Name: name}, providerID, attrs, deps, updatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate state records: %w", err)
	}
	return out, nil
}

// Close implements Store.
func (s *SQLite) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner, id graph.Identity) (Record, error) {
	var providerID, attrs, deps, updatedAt string
	if err := row.Scan(&providerID, &attrs, &deps, &updatedAt); err != nil {
		return Record{}, err
	}
	return decodeRecord(id, providerID, attrs, deps, updatedAt)
}

func decodeRecord(id graph.Identity, providerID, attrs, deps, updatedAt string) (Record, error) {
	rec := Record{ID: id, ProviderID: providerID}
	if err := json.Unmarshal([]byte(attrs), &rec.Attrs); err != nil {
		return Record{}, fmt.Errorf("corrupt attributes for %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(deps), &rec.DependsOn); err != nil {
		return Record{}, fmt.Errorf("corrupt dependencies for %s: %w", id, err)
	}
	ts, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return Record{}, fmt.Errorf("corrupt timestamp for %s: %w", id, err)
	}
	rec.UpdatedAt = ts
	return rec, nil
}
