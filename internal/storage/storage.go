package storage

import (
	"context"

	"github.com/princekumarofficial/statements-service/internal/types"
)

// Storage persists session records so a restart does not lose uploads in
// flight. Records are written through on every mutation.
type Storage interface {
	SaveUploadSession(ctx context.Context, session types.UploadSession) error
	DeleteUploadSessions(ctx context.Context, ids ...string) error
	ListUploadSessions(ctx context.Context) ([]types.UploadSession, error)
	SaveMergeSession(ctx context.Context, session types.MergeSession) error
	DeleteMergeSessions(ctx context.Context, ids ...string) error
	ListMergeSessions(ctx context.Context) ([]types.MergeSession, error)
	Close() error
}

// Nop is the memory-only backend.
type Nop struct{}

func (Nop) SaveUploadSession(context.Context, types.UploadSession) error { return nil }
func (Nop) DeleteUploadSessions(context.Context, ...string) error        { return nil }
func (Nop) ListUploadSessions(context.Context) ([]types.UploadSession, error) {
	return nil, nil
}
func (Nop) SaveMergeSession(context.Context, types.MergeSession) error { return nil }
func (Nop) DeleteMergeSessions(context.Context, ...string) error       { return nil }
func (Nop) ListMergeSessions(context.Context) ([]types.MergeSession, error) {
	return nil, nil
}
func (Nop) Close() error { return nil }
