// Package store persists schema-free records in the five fixed
// collections, one SQLite table per collection.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/lifeos/tasks/internal/db"
	"github.com/lifeos/tasks/internal/domain"
	"github.com/lifeos/tasks/internal/record"
)

// Store provides record access over the database.
type Store struct {
	db *db.DB
}

// New creates a Store wrapping the given database connection.
func New(database *db.DB) *Store {
	return &Store{db: database}
}

// DB returns the underlying database connection.
func (s *Store) DB() *db.DB {
	return s.db
}

// tableFor maps a collection name to its table. Collection names are
// fixed; anything else is a programming error surfaced as an error.
func tableFor(collection string) (string, error) {
	if !domain.ValidCollection(collection) {
		return "", fmt.Errorf("unknown collection: %q", collection)
	}
	return collection, nil
}

// Get returns the record with the given id, or ok=false if absent.
func (s *Store) Get(collection, id string) (record.Record, bool, error) {
	return getRecord(s.db.DB, collection, id)
}

// GetTx is Get evaluated inside a transaction.
func GetTx(tx *sql.Tx, collection, id string) (record.Record, bool, error) {
	return getRecord(tx, collection, id)
}

type querier interface {
	QueryRow(query string, args ...any) *sql.Row
}

func getRecord(q querier, collection, id string) (record.Record, bool, error) {
	table, err := tableFor(collection)
	if err != nil {
		return nil, false, err
	}

	var data string
	err = q.QueryRow(fmt.Sprintf("SELECT data FROM %s WHERE id = ?", table), id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s/%s: %w", collection, id, err)
	}

	rec, err := record.DecodeRecord([]byte(data))
	if err != nil {
		return nil, false, fmt.Errorf("corrupt record %s/%s: %w", collection, id, err)
	}
	return rec, true, nil
}

// ExistingIDs returns the subset of ids present in the collection,
// evaluated against the store at call time. No side effects.
func (s *Store) ExistingIDs(collection string, ids []string) (map[string]bool, error) {
	table, err := tableFor(collection)
	if err != nil {
		return nil, err
	}

	existing := make(map[string]bool)
	if len(ids) == 0 {
		return existing, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.Query(fmt.Sprintf("SELECT id FROM %s WHERE id IN (%s)", table, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s ids: %w", collection, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		existing[id] = true
	}
	return existing, rows.Err()
}

// ListIDs returns all record ids in the collection, sorted.
func (s *Store) ListIDs(collection string) ([]string, error) {
	table, err := tableFor(collection)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(fmt.Sprintf("SELECT id FROM %s ORDER BY id", table))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s ids: %w", collection, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// List returns all records in the collection ordered by id, for
// deterministic export output.
func (s *Store) List(collection string) ([]record.Record, error) {
	table, err := tableFor(collection)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(fmt.Sprintf("SELECT id, data FROM %s ORDER BY id", table))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	defer rows.Close()

	var records []record.Record
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec, err := record.DecodeRecord([]byte(data))
		if err != nil {
			return nil, fmt.Errorf("corrupt record %s/%s: %w", collection, id, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Count returns the number of records in the collection.
func (s *Store) Count(collection string) (int, error) {
	table, err := tableFor(collection)
	if err != nil {
		return 0, err
	}

	var count int
	if err := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", collection, err)
	}
	return count, nil
}

// FindByField returns records whose top-level field equals the given
// string value, ordered by id.
func (s *Store) FindByField(collection, field, value string) ([]record.Record, error) {
	table, err := tableFor(collection)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(
		fmt.Sprintf("SELECT data FROM %s WHERE json_extract(data, ?) = ? ORDER BY id", table),
		"$."+field, value)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s by %s: %w", collection, field, err)
	}
	defer rows.Close()

	var records []record.Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec, err := record.DecodeRecord([]byte(data))
		if err != nil {
			return nil, fmt.Errorf("corrupt record in %s: %w", collection, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Put upserts a single record outside of any caller-managed transaction.
func (s *Store) Put(collection string, rec record.Record) error {
	return s.WithTx(func(tx *sql.Tx) error {
		return UpsertTx(tx, collection, rec)
	})
}

// UpsertTx inserts or replaces a record inside a transaction. The
// record must carry a usable id.
func UpsertTx(tx *sql.Tx, collection string, rec record.Record) error {
	table, err := tableFor(collection)
	if err != nil {
		return err
	}

	id, ok := rec.Key()
	if !ok {
		return fmt.Errorf("%s: record has no usable id", collection)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", collection, id, err)
	}

	_, err = tx.Exec(fmt.Sprintf(`
		INSERT INTO %s (id, data) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data
	`, table), id, string(data))
	if err != nil {
		return fmt.Errorf("failed to upsert %s/%s: %w", collection, id, err)
	}
	return nil
}

// WithTx executes fn within a transaction. If fn returns nil, the
// transaction is committed; otherwise it is rolled back.
func (s *Store) WithTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

// SortedIDs returns the keys of an id set, sorted.
func SortedIDs(ids map[string]bool) []string {
	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
