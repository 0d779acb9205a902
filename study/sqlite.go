package study

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"

	"github.com/neutronics-workshop/gptools/pkg/errors"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps records in a single SQLite table, one JSON payload per
// row.
type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

// NewSQLiteStore returns a store backed by the database file at path.
func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

// Init opens the database and creates the records table.
func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return errors.Wrapf(err, "open sqlite database %s", s.path)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return errors.Wrapf(err, "open sqlite database %s", s.path)
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return errors.WithStack(err)
	}

	s.db = db
	return nil
}

// Save inserts rec or replaces the row with the same ID.
func (s *SQLiteStore) Save(ctx context.Context, rec Record) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrapf(err, "encode record %s", rec.ID)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO records (id, iteration, value, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			iteration = excluded.iteration,
			value = excluded.value,
			payload = excluded.payload
	`, rec.ID, rec.Iteration, rec.Value, payload)
	return errors.WithStack(err)
}

// Get returns the record with the given ID. ok is false when none exists.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Record, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return Record{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM records WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, errors.WithStack(err)
	}

	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return Record{}, false, errors.Wrapf(err, "decode record %s", id)
	}
	return rec, true, nil
}

// List returns every record in insertion order.
func (s *SQLiteStore) List(ctx context.Context) ([]Record, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT id, payload FROM records ORDER BY rowid`)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			id      string
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, errors.WithStack(err)
		}
		var rec Record
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, errors.Wrapf(err, "decode record %s", id)
		}
		out = append(out, rec)
	}
	return out, errors.WithStack(rows.Err())
}

// Close releases the database handle. The store can be initialised again.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errNotInitialized
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			iteration INTEGER NOT NULL,
			value REAL NOT NULL,
			payload BLOB NOT NULL
		);
	`)
	return err
}
