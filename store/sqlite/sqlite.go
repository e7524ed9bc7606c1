// Package sqlite provides a SQLite implementation of store.Store.
//
// Each collection is a table of (id, body) rows where body is the JSON-encoded
// record. Criteria are evaluated with json_extract, so matching, counting and
// conditional updates happen inside a single SQL statement.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/jacentio/docmap/store"
)

var collectionName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_\-]*$`)

// Store is a SQLite-backed store.Store.
type Store struct {
	db *sql.DB

	mu      sync.Mutex
	ensured map[string]bool
}

var _ store.Store = (*Store)(nil)

// Open creates a new SQLite database connection and wraps it in a Store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Set pragmas for performance
	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	return New(db), nil
}

// New wraps an existing database handle.
func New(db *sql.DB) *Store {
	return &Store{
		db:      db,
		ensured: make(map[string]bool),
	}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// table validates the collection name, creates its table on first use and
// returns the quoted identifier.
func (s *Store) table(ctx context.Context, collection string) (string, error) {
	if !collectionName.MatchString(collection) {
		return "", fmt.Errorf("%w: %q", store.ErrInvalidCollection, collection)
	}
	quoted := `"` + collection + `"`

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured[collection] {
		return quoted, nil
	}

	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+quoted+` (
		id TEXT PRIMARY KEY,
		body TEXT NOT NULL
	)`)
	if err != nil {
		return "", fmt.Errorf("create table %s: %w", collection, err)
	}
	s.ensured[collection] = true
	return quoted, nil
}

// FindOne returns the first matching record in insertion order.
func (s *Store) FindOne(ctx context.Context, collection string, criteria store.Criteria) (store.Record, error) {
	recs, err := s.query(ctx, collection, criteria, 1)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, store.ErrNotFound
	}
	return recs[0], nil
}

// Find returns every matching record in insertion order.
func (s *Store) Find(ctx context.Context, collection string, criteria store.Criteria) ([]store.Record, error) {
	return s.query(ctx, collection, criteria, 0)
}

// Upsert inserts or replaces the record by identity.
func (s *Store) Upsert(ctx context.Context, collection string, record store.Record) (string, error) {
	t, err := s.table(ctx, collection)
	if err != nil {
		return "", err
	}
	id, body, err := encodeRecord(record)
	if err != nil {
		return "", err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO `+t+` (id, body) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET body = excluded.body`, id, body)
	if err != nil {
		return "", fmt.Errorf("upsert: %w", err)
	}
	return id, nil
}

// Insert creates the record, failing with store.ErrAlreadyExists on a duplicate identity.
func (s *Store) Insert(ctx context.Context, collection string, record store.Record) (string, error) {
	t, err := s.table(ctx, collection)
	if err != nil {
		return "", err
	}
	id, body, err := encodeRecord(record)
	if err != nil {
		return "", err
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO `+t+` (id, body) VALUES (?, ?)`, id, body)
	if err != nil {
		var sqlErr sqlite3.Error
		if errors.As(err, &sqlErr) && sqlErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return "", store.ErrAlreadyExists
		}
		return "", fmt.Errorf("insert: %w", err)
	}
	return id, nil
}

// RemoveByIdentity deletes one record.
func (s *Store) RemoveByIdentity(ctx context.Context, collection string, id string) error {
	if id == "" {
		return store.ErrMissingIdentity
	}
	t, err := s.table(ctx, collection)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM `+t+` WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

// RemoveMatching deletes every matching record in one statement.
func (s *Store) RemoveMatching(ctx context.Context, collection string, criteria store.Criteria) (int64, error) {
	t, err := s.table(ctx, collection)
	if err != nil {
		return 0, err
	}
	where, args, err := whereClause(criteria)
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM `+t+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete matching: %w", err)
	}
	return res.RowsAffected()
}

// ConditionalUpdate patches every matching record with json_set in a single
// UPDATE, so the match and the write are atomic.
func (s *Store) ConditionalUpdate(ctx context.Context, collection string, match store.Criteria, set store.Record) (int64, error) {
	t, err := s.table(ctx, collection)
	if err != nil {
		return 0, err
	}

	var setArgs []any
	var pairs []string
	for _, k := range store.Criteria(set).Keys() {
		if k == store.IDField {
			continue
		}
		raw, err := json.Marshal(set[k])
		if err != nil {
			return 0, fmt.Errorf("marshal %q: %w", k, err)
		}
		pairs = append(pairs, "?, json(?)")
		setArgs = append(setArgs, jsonPath(k), string(raw))
	}
	if len(pairs) == 0 {
		return 0, nil
	}

	where, whereArgs, err := whereClause(match)
	if err != nil {
		return 0, err
	}

	stmt := `UPDATE ` + t + ` SET body = json_set(body, ` + strings.Join(pairs, ", ") + `)` + where
	res, err := s.db.ExecContext(ctx, stmt, append(setArgs, whereArgs...)...)
	if err != nil {
		return 0, fmt.Errorf("conditional update: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of matching records.
func (s *Store) Count(ctx context.Context, collection string, criteria store.Criteria) (int64, error) {
	t, err := s.table(ctx, collection)
	if err != nil {
		return 0, err
	}
	where, args, err := whereClause(criteria)
	if err != nil {
		return 0, err
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+t+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

func (s *Store) query(ctx context.Context, collection string, criteria store.Criteria, limit int) ([]store.Record, error) {
	t, err := s.table(ctx, collection)
	if err != nil {
		return nil, err
	}
	where, args, err := whereClause(criteria)
	if err != nil {
		return nil, err
	}

	stmt := `SELECT id, body FROM ` + t + where + ` ORDER BY rowid`
	if limit > 0 {
		stmt += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var recs []store.Record
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		var rec store.Record
		if err := json.Unmarshal([]byte(body), &rec); err != nil {
			return nil, fmt.Errorf("decode %s: %w", id, err)
		}
		if rec == nil {
			rec = store.Record{}
		}
		rec[store.IDField] = id
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// whereClause builds " WHERE ..." (or "") with its arguments.
func whereClause(criteria store.Criteria) (string, []any, error) {
	if len(criteria) == 0 {
		return "", nil, nil
	}

	var clauses []string
	var args []any
	for _, k := range criteria.Keys() {
		v := store.Normalize(criteria[k])
		path := jsonPath(k)

		switch x := v.(type) {
		case nil:
			if k == store.IDField {
				clauses = append(clauses, "id IS NULL")
				continue
			}
			clauses = append(clauses, "(json_type(body, ?) IS NULL OR json_type(body, ?) = 'null')")
			args = append(args, path, path)
		case map[string]any, []any:
			raw, err := json.Marshal(x)
			if err != nil {
				return "", nil, fmt.Errorf("marshal criteria %q: %w", k, err)
			}
			clauses = append(clauses, "json_extract(body, ?) = json(?)")
			args = append(args, path, string(raw))
		default:
			if k == store.IDField {
				clauses = append(clauses, "id = ?")
				args = append(args, fmt.Sprint(x))
				continue
			}
			if t, ok := x.(interface{ MarshalText() ([]byte, error) }); ok {
				// time.Time and friends are stored as their JSON string form.
				b, err := t.MarshalText()
				if err != nil {
					return "", nil, fmt.Errorf("marshal criteria %q: %w", k, err)
				}
				x = string(b)
			}
			clauses = append(clauses, "json_extract(body, ?) = ?")
			args = append(args, path, x)
		}
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

// jsonPath quotes a top-level key as a SQLite JSON path.
func jsonPath(key string) string {
	return `$."` + strings.ReplaceAll(key, `"`, `\"`) + `"`
}

// encodeRecord assigns an identity if needed and returns the JSON body.
func encodeRecord(record store.Record) (string, string, error) {
	id := record.Identity()
	if id == "" {
		id = uuid.NewString()
	}

	rec := make(map[string]any, len(record)+1)
	for k, v := range record {
		rec[k] = v
	}
	rec[store.IDField] = id

	body, err := json.Marshal(rec)
	if err != nil {
		return "", "", fmt.Errorf("encode record: %w", err)
	}
	return id, string(body), nil
}
