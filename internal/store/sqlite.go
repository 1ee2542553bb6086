package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite is the sqlite-backed document store. One instance per process;
// safe for concurrent use.
type SQLite struct {
	db *sql.DB
	// Serializes the read-modify-write inside MergeDocument.
	mu sync.Mutex
}

func OpenSQLite(dbPath string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *SQLite) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			body TEXT NOT NULL DEFAULT '{}',
			updated_at TEXT NOT NULL DEFAULT (datetime('now')),
			PRIMARY KEY (collection, id)
		)`,
		`CREATE TABLE IF NOT EXISTS contexts (
			user_id TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (user_id, key)
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			type TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			amount REAL NOT NULL DEFAULT 0,
			occurred_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_user_time ON transactions(user_id, occurred_at)`,
		`CREATE TABLE IF NOT EXISTS exemplar_vectors (
			model TEXT NOT NULL,
			revision TEXT NOT NULL,
			intent TEXT NOT NULL,
			position INTEGER NOT NULL,
			vector BLOB NOT NULL,
			PRIMARY KEY (model, revision, intent, position)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// GetDocument returns the document body, reporting absence without error.
func (s *SQLite) GetDocument(ctx context.Context, collection, id string) (Document, bool, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND id = ?`,
		collection, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get document %s/%s: %w", collection, id, err)
	}

	var doc Document
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, false, fmt.Errorf("decode document %s/%s: %w", collection, id, err)
	}
	return doc, true, nil
}

// MergeDocument merge-writes fields into the document, creating it when
// absent. Sibling keys survive; nested maps merge recursively.
func (s *SQLite) MergeDocument(ctx context.Context, collection, id string, fields Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, _, err := s.GetDocument(ctx, collection, id)
	if err != nil {
		return err
	}
	if existing == nil {
		existing = Document{}
	}

	mergeInto(existing, fields)

	body, err := json.Marshal(existing)
	if err != nil {
		return fmt.Errorf("encode document %s/%s: %w", collection, id, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, body, updated_at)
		VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT (collection, id) DO UPDATE SET
			body = excluded.body,
			updated_at = excluded.updated_at
	`, collection, id, string(body))
	if err != nil {
		return fmt.Errorf("merge document %s/%s: %w", collection, id, err)
	}
	return nil
}

func mergeInto(dst, src Document) {
	for key, value := range src {
		srcMap, srcIsMap := value.(map[string]any)
		if !srcIsMap {
			if d, ok := value.(Document); ok {
				srcMap, srcIsMap = map[string]any(d), true
			}
		}
		if srcIsMap {
			if dstMap, ok := dst[key].(map[string]any); ok {
				mergeInto(dstMap, srcMap)
				continue
			}
			copied := map[string]any{}
			mergeInto(copied, srcMap)
			dst[key] = copied
			continue
		}
		dst[key] = value
	}
}

// SetContext upserts a single context key for the user. The statement is the
// atomicity boundary: concurrent writers to the same key last-write-win
// without touching sibling keys.
func (s *SQLite) SetContext(ctx context.Context, userID, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contexts (user_id, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, userID, key, value, sqliteTime(time.Now()))
	if err != nil {
		return fmt.Errorf("set context %s/%s: %w", userID, key, err)
	}
	return nil
}

func (s *SQLite) GetContext(ctx context.Context, userID, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM contexts WHERE user_id = ? AND key = ?`,
		userID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get context %s/%s: %w", userID, key, err)
	}
	return value, true, nil
}

func (s *SQLite) ClearContext(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM contexts WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("clear context %s: %w", userID, err)
	}
	return nil
}

// ClearStaleContexts removes the full context of every user whose newest
// context write predates cutoff. Returns how many users were cleared.
func (s *SQLite) ClearStaleContexts(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM contexts WHERE user_id IN (
			SELECT user_id FROM contexts
			GROUP BY user_id
			HAVING MAX(updated_at) < ?
		)
	`, sqliteTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("clear stale contexts: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(rows), nil
}

// AddTransaction appends one record to the user's transaction sub-collection.
func (s *SQLite) AddTransaction(ctx context.Context, userID string, tx Transaction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (user_id, type, category, amount, occurred_at)
		VALUES (?, ?, ?, ?, ?)
	`, userID, tx.Type, tx.Category, tx.Amount, sqliteTime(tx.OccurredAt))
	if err != nil {
		return fmt.Errorf("add transaction for %s: %w", userID, err)
	}
	return nil
}

// Transactions returns the user's records newest first, bounded by the
// query's window and limit.
func (s *SQLite) Transactions(ctx context.Context, userID string, q TxQuery) ([]Transaction, error) {
	query := `SELECT type, category, amount, occurred_at FROM transactions WHERE user_id = ?`
	args := []any{userID}

	if q.Since != nil {
		query += ` AND occurred_at >= ?`
		args = append(args, sqliteTime(*q.Since))
	}
	query += ` ORDER BY occurred_at DESC`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var tx Transaction
		var occurredAt string
		if err := rows.Scan(&tx.Type, &tx.Category, &tx.Amount, &occurredAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		when, err := time.Parse(time.RFC3339, occurredAt)
		if err != nil {
			return nil, fmt.Errorf("parse transaction timestamp %q: %w", occurredAt, err)
		}
		tx.OccurredAt = when
		out = append(out, tx)
	}
	return out, rows.Err()
}

// SaveExemplarVectors replaces the persisted exemplar cache for the given
// model and taxonomy revision.
func (s *SQLite) SaveExemplarVectors(ctx context.Context, model, revision string, rows []ExemplarVector) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save exemplar vectors: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM exemplar_vectors WHERE model = ?`, model); err != nil {
		return fmt.Errorf("drop old exemplar vectors: %w", err)
	}
	for _, row := range rows {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO exemplar_vectors (model, revision, intent, position, vector)
			VALUES (?, ?, ?, ?, ?)
		`, model, revision, row.Intent, row.Position, row.Vector); err != nil {
			return fmt.Errorf("insert exemplar vector %s/%d: %w", row.Intent, row.Position, err)
		}
	}

	return tx.Commit()
}

// LoadExemplarVectors returns the persisted cache for the exact model and
// revision, in intent then position order. Empty when absent or stale.
func (s *SQLite) LoadExemplarVectors(ctx context.Context, model, revision string) ([]ExemplarVector, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT intent, position, vector FROM exemplar_vectors
		WHERE model = ? AND revision = ?
		ORDER BY intent, position
	`, model, revision)
	if err != nil {
		return nil, fmt.Errorf("load exemplar vectors: %w", err)
	}
	defer rows.Close()

	var out []ExemplarVector
	for rows.Next() {
		var row ExemplarVector
		if err := rows.Scan(&row.Intent, &row.Position, &row.Vector); err != nil {
			return nil, fmt.Errorf("scan exemplar vector: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func sqliteTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
