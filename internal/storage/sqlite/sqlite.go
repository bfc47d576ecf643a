package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/princekumarofficial/statements-service/internal/types"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes incompatibly.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was written by another schema version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Store keeps session records in a single SQLite file.
type Store struct {
	db   *sql.DB
	path string
}

func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer keeps SQLITE_BUSY out of the write-through path.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

func (s *Store) SaveUploadSession(ctx context.Context, session types.UploadSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal upload session: %w", err)
	}
	var mergeID any
	if session.Group != nil {
		mergeID = session.Group.MergeSessionID
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO upload_sessions (id, owner_id, merge_session_id, status, data, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		session.SessionID, session.OwnerID, mergeID, string(session.Status), string(data),
		session.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save upload session %s: %w", session.SessionID, err)
	}
	return nil
}

func (s *Store) DeleteUploadSessions(ctx context.Context, ids ...string) error {
	return s.deleteIDs(ctx, "upload_sessions", ids)
}

func (s *Store) ListUploadSessions(ctx context.Context) ([]types.UploadSession, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT data FROM upload_sessions ORDER BY updated_at")
	if err != nil {
		return nil, fmt.Errorf("list upload sessions: %w", err)
	}
	defer rows.Close()

	var out []types.UploadSession
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan upload session: %w", err)
		}
		var session types.UploadSession
		if err := json.Unmarshal([]byte(raw), &session); err != nil {
			return nil, fmt.Errorf("decode upload session: %w", err)
		}
		out = append(out, session)
	}
	return out, rows.Err()
}

func (s *Store) SaveMergeSession(ctx context.Context, session types.MergeSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal merge session: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO merge_sessions (id, owner_id, status, data, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		session.MergeSessionID, session.OwnerID, string(session.Status), string(data),
		session.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save merge session %s: %w", session.MergeSessionID, err)
	}
	return nil
}

func (s *Store) DeleteMergeSessions(ctx context.Context, ids ...string) error {
	return s.deleteIDs(ctx, "merge_sessions", ids)
}

func (s *Store) ListMergeSessions(ctx context.Context) ([]types.MergeSession, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT data FROM merge_sessions ORDER BY updated_at")
	if err != nil {
		return nil, fmt.Errorf("list merge sessions: %w", err)
	}
	defer rows.Close()

	var out []types.MergeSession
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan merge session: %w", err)
		}
		var session types.MergeSession
		if err := json.Unmarshal([]byte(raw), &session); err != nil {
			return nil, fmt.Errorf("decode merge session: %w", err)
		}
		out = append(out, session)
	}
	return out, rows.Err()
}

func (s *Store) deleteIDs(ctx context.Context, table string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE id IN (%s)", table, placeholders)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	return nil
}
