package sessions

import (
	"context"
	"log/slog"
	"time"

	"github.com/princekumarofficial/statements-service/internal/storage"
	"github.com/princekumarofficial/statements-service/internal/types"
)

const persistTimeout = 5 * time.Second

// InterruptedMessage is recorded on merges that were running when the
// process stopped.
const InterruptedMessage = "processing failed (retryable=true): interrupted by restart"

// Store holds the upload and merge registries. Every committed mutation is
// written through to the backing Storage; persistence failures are logged
// and the in-memory state stays authoritative.
type Store struct {
	Uploads *Registry[types.UploadSession]
	Merges  *Registry[types.MergeSession]

	backend storage.Storage
	logger  *slog.Logger
}

func NewStore(backend storage.Storage, logger *slog.Logger) *Store {
	if backend == nil {
		backend = storage.Nop{}
	}
	s := &Store{backend: backend, logger: logger}
	s.Uploads = NewRegistry(types.UploadSession.Clone, s.saveUpload, s.removeUpload)
	s.Merges = NewRegistry(types.MergeSession.Clone, s.saveMerge, s.removeMerge)
	return s
}

// Restore loads persisted sessions. Merges that were pending or processing
// have no goroutine behind them any more and are marked failed.
func (s *Store) Restore(ctx context.Context) error {
	uploads, err := s.backend.ListUploadSessions(ctx)
	if err != nil {
		return err
	}
	for _, u := range uploads {
		if u.UploadedChunks == nil {
			u.UploadedChunks = make(map[int]bool)
		}
		s.Uploads.load(u.SessionID, u)
	}

	merges, err := s.backend.ListMergeSessions(ctx)
	if err != nil {
		return err
	}
	interrupted := 0
	for _, m := range merges {
		if m.Status.Active() {
			now := time.Now().UTC()
			m.Status = types.MergeFailed
			m.ErrorStage = m.Stage
			m.ErrorMessage = InterruptedMessage
			m.Retryable = true
			m.UpdatedAt = now
			m.CompletedAt = &now
			if err := s.backend.SaveMergeSession(ctx, m); err != nil {
				s.logger.Warn("failed to persist interrupted merge", "merge_session_id", m.MergeSessionID, "error", err)
			}
			interrupted++
		}
		s.Merges.load(m.MergeSessionID, m)
	}

	s.logger.Info("restored sessions",
		"uploads", len(uploads),
		"merges", len(merges),
		"interrupted_merges", interrupted)
	return nil
}

func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) saveUpload(u types.UploadSession) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.backend.SaveUploadSession(ctx, u); err != nil {
		s.logger.Warn("failed to persist upload session", "session_id", u.SessionID, "error", err)
	}
}

func (s *Store) removeUpload(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.backend.DeleteUploadSessions(ctx, id); err != nil {
		s.logger.Warn("failed to delete persisted upload session", "session_id", id, "error", err)
	}
}

func (s *Store) saveMerge(m types.MergeSession) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.backend.SaveMergeSession(ctx, m); err != nil {
		s.logger.Warn("failed to persist merge session", "merge_session_id", m.MergeSessionID, "error", err)
	}
}

func (s *Store) removeMerge(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.backend.DeleteMergeSessions(ctx, id); err != nil {
		s.logger.Warn("failed to delete persisted merge session", "merge_session_id", id, "error", err)
	}
}
