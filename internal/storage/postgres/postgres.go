package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
	"github.com/princekumarofficial/statements-service/internal/config"
	"github.com/princekumarofficial/statements-service/internal/types"
)

type Postgres struct {
	Db *sql.DB
}

func NewPostgres(ctx context.Context, cfg config.PQSQL, logger *slog.Logger) (*Postgres, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	logger.Info("Connected to Postgres database", "host", cfg.Host, "dbname", cfg.DBName)

	pg := &Postgres{Db: db}
	if err := pg.CreateTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return pg, nil
}

func (p *Postgres) CreateTables(ctx context.Context) error {
	queries := []string{
		`
		CREATE TABLE IF NOT EXISTS upload_sessions (
			id VARCHAR(64) PRIMARY KEY,
			owner_id VARCHAR(255) NOT NULL,
			merge_session_id VARCHAR(255),
			status VARCHAR(32) NOT NULL,
			data JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		`,
		`CREATE INDEX IF NOT EXISTS idx_upload_sessions_merge ON upload_sessions(merge_session_id);`,
		`
		CREATE TABLE IF NOT EXISTS merge_sessions (
			id VARCHAR(255) PRIMARY KEY,
			owner_id VARCHAR(255) NOT NULL,
			status VARCHAR(32) NOT NULL CHECK (status IN ('pending','processing','completed','failed','cancelled')),
			data JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		`,
	}

	for _, q := range queries {
		if _, err := p.Db.ExecContext(ctx, q); err != nil {
			return err
		}
	}

	return nil
}

func (p *Postgres) Close() error {
	return p.Db.Close()
}

func (p *Postgres) SaveUploadSession(ctx context.Context, session types.UploadSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal upload session: %w", err)
	}
	var mergeID sql.NullString
	if session.Group != nil {
		mergeID = sql.NullString{String: session.Group.MergeSessionID, Valid: true}
	}

	query := `
	INSERT INTO upload_sessions (id, owner_id, merge_session_id, status, data, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
	`
	_, err = p.Db.ExecContext(ctx, query, session.SessionID, session.OwnerID, mergeID,
		string(session.Status), data, session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save upload session %s: %w", session.SessionID, err)
	}
	return nil
}

func (p *Postgres) DeleteUploadSessions(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := p.Db.ExecContext(ctx, `DELETE FROM upload_sessions WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("delete upload sessions: %w", err)
	}
	return nil
}

func (p *Postgres) ListUploadSessions(ctx context.Context) ([]types.UploadSession, error) {
	rows, err := p.Db.QueryContext(ctx, `SELECT data FROM upload_sessions ORDER BY updated_at`)
	if err != nil {
		return nil, fmt.Errorf("list upload sessions: %w", err)
	}
	defer rows.Close()

	var out []types.UploadSession
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var session types.UploadSession
		if err := json.Unmarshal(raw, &session); err != nil {
			return nil, fmt.Errorf("decode upload session: %w", err)
		}
		out = append(out, session)
	}
	return out, rows.Err()
}

func (p *Postgres) SaveMergeSession(ctx context.Context, session types.MergeSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal merge session: %w", err)
	}

	query := `
	INSERT INTO merge_sessions (id, owner_id, status, data, updated_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
	`
	_, err = p.Db.ExecContext(ctx, query, session.MergeSessionID, session.OwnerID,
		string(session.Status), data, session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save merge session %s: %w", session.MergeSessionID, err)
	}
	return nil
}

func (p *Postgres) DeleteMergeSessions(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := p.Db.ExecContext(ctx, `DELETE FROM merge_sessions WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("delete merge sessions: %w", err)
	}
	return nil
}

func (p *Postgres) ListMergeSessions(ctx context.Context) ([]types.MergeSession, error) {
	rows, err := p.Db.QueryContext(ctx, `SELECT data FROM merge_sessions ORDER BY updated_at`)
	if err != nil {
		return nil, fmt.Errorf("list merge sessions: %w", err)
	}
	defer rows.Close()

	var out []types.MergeSession
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var session types.MergeSession
		if err := json.Unmarshal(raw, &session); err != nil {
			return nil, fmt.Errorf("decode merge session: %w", err)
		}
		out = append(out, session)
	}
	return out, rows.Err()
}
