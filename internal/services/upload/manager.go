package upload

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/princekumarofficial/statements-service/internal/config"
	"github.com/princekumarofficial/statements-service/internal/ratelimit"
	"github.com/princekumarofficial/statements-service/internal/services"
	"github.com/princekumarofficial/statements-service/internal/sessions"
	"github.com/princekumarofficial/statements-service/internal/types"
)

const groupStripes = 32

// CompletionListener is notified once per upload that finishes reassembly.
type CompletionListener interface {
	OnUploadCompleted(ctx context.Context, session types.UploadSession)
}

// InitiateRequest carries the client's description of a new upload.
type InitiateRequest struct {
	OwnerID  string
	Filename string
	FileSize int64
	MimeType string
	Group    *types.GroupMetadata
}

// StatusView is the read model returned by Status.
type StatusView struct {
	SessionID       string             `json:"session_id"`
	OwnerID         string             `json:"-"`
	Status          types.UploadStatus `json:"status"`
	ProgressPercent float64            `json:"progress_percent"`
	TotalChunks     int                `json:"total_chunks"`
	UploadedChunks  []int              `json:"uploaded_chunks"`
	RemainingChunks []int              `json:"remaining_chunks"`
}

// Manager owns chunk ingestion, session state and reassembly.
type Manager struct {
	cfg              config.Upload
	groupSize        int
	maxGroupDuration float64

	uploads  *sessions.Registry[types.UploadSession]
	limiter  ratelimit.Limiter
	logger   *slog.Logger
	now      func() time.Time
	complete singleflight.Group

	// Serializes initiates within one merge group so video_index stays unique.
	groups [groupStripes]sync.Mutex
	// Serializes reassembly per session across differing final hashes.
	finalizing [groupStripes]sync.Mutex

	listenersMu sync.RWMutex
	listeners   []CompletionListener
}

func NewManager(cfg *config.Config, store *sessions.Store, limiter ratelimit.Limiter, logger *slog.Logger) *Manager {
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	return &Manager{
		cfg:              cfg.Upload,
		groupSize:        cfg.Merge.GroupSize,
		maxGroupDuration: cfg.Merge.MaxGroupDuration,
		uploads:          store.Uploads,
		limiter:          limiter,
		logger:           logger,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// AddListener registers l for completion notifications.
func (m *Manager) AddListener(l CompletionListener) {
	m.listenersMu.Lock()
	m.listeners = append(m.listeners, l)
	m.listenersMu.Unlock()
}

// Initiate validates the request and creates a pending session.
func (m *Manager) Initiate(ctx context.Context, req InitiateRequest) (types.UploadSession, error) {
	filename, mimeType, err := m.validate(req)
	if err != nil {
		return types.UploadSession{}, err
	}

	allowed, err := m.limiter.Allow(ctx, req.OwnerID, ratelimit.ActionUploadInitiate)
	if err != nil {
		return types.UploadSession{}, fmt.Errorf("rate limit check failed: %w", err)
	}
	if !allowed {
		return types.UploadSession{}, services.Wrap(services.ErrQuotaExceeded, "too many uploads initiated, try again later", nil)
	}

	if req.Group != nil {
		lock := m.groupLock(req.Group.MergeSessionID)
		lock.Lock()
		defer lock.Unlock()
		if err := m.claimVideoIndex(req.OwnerID, *req.Group); err != nil {
			return types.UploadSession{}, err
		}
	}

	now := m.now()
	id := uuid.NewString()
	session := types.UploadSession{
		SessionID:      id,
		OwnerID:        req.OwnerID,
		Filename:       filename,
		FileSize:       req.FileSize,
		MimeType:       mimeType,
		ChunkSize:      m.cfg.ChunkSize,
		TotalChunks:    int((req.FileSize + m.cfg.ChunkSize - 1) / m.cfg.ChunkSize),
		UploadedChunks: make(map[int]bool),
		Status:         types.UploadPending,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(m.cfg.SessionTTL),
	}
	if req.Group != nil {
		g := *req.Group
		session.Group = &g
	}

	created, err := m.uploads.Compute(id, func(cur *types.UploadSession, exists bool) error {
		if exists {
			return fmt.Errorf("session id collision: %s", id)
		}
		*cur = session
		return nil
	})
	if err != nil {
		return types.UploadSession{}, err
	}

	m.logger.Info("upload session initiated",
		"session_id", id,
		"owner_id", req.OwnerID,
		"file_size", req.FileSize,
		"total_chunks", created.TotalChunks)
	return created, nil
}

func (m *Manager) validate(req InitiateRequest) (string, string, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return "", "", services.Validationf("owner is required")
	}
	filename := filepath.Base(strings.TrimSpace(req.Filename))
	if filename == "" || filename == "." || filename == ".." || filename == string(filepath.Separator) {
		return "", "", services.Validationf("filename is required")
	}
	if req.FileSize <= 0 {
		return "", "", services.Validationf("file_size must be positive")
	}
	if req.FileSize > m.cfg.MaxFileSize {
		return "", "", services.Validationf("file_size %d exceeds maximum %d", req.FileSize, m.cfg.MaxFileSize)
	}
	if chunks := (req.FileSize + m.cfg.ChunkSize - 1) / m.cfg.ChunkSize; m.cfg.MaxChunks > 0 && chunks > int64(m.cfg.MaxChunks) {
		return "", "", services.Validationf("file_size %d needs %d chunks, maximum is %d", req.FileSize, chunks, m.cfg.MaxChunks)
	}
	mimeType, _, err := mime.ParseMediaType(req.MimeType)
	if err != nil {
		return "", "", services.Validationf("invalid mime_type %q", req.MimeType)
	}
	if !slices.Contains(m.cfg.AllowedMimeTypes, mimeType) {
		return "", "", services.Validationf("mime_type %s is not allowed", mimeType)
	}

	if g := req.Group; g != nil {
		if strings.TrimSpace(g.MergeSessionID) == "" {
			return "", "", services.Validationf("merge_session_id is required")
		}
		if g.VideoCount != m.groupSize {
			return "", "", services.Validationf("video_count must be %d", m.groupSize)
		}
		if g.VideoIndex < 0 || g.VideoIndex >= g.VideoCount {
			return "", "", services.Validationf("video_index must be in [0, %d)", g.VideoCount)
		}
		if g.DurationSeconds < 0 {
			return "", "", services.Validationf("duration must not be negative")
		}
	}
	return filename, mimeType, nil
}

// claimVideoIndex enforces index uniqueness and the group duration cap.
// A completed holder of the index wins; an unfinished one is superseded.
func (m *Manager) claimVideoIndex(owner string, g types.GroupMetadata) error {
	total := g.DurationSeconds
	var superseded []string
	for _, existing := range m.GroupSessions(g.MergeSessionID, owner) {
		switch existing.Status {
		case types.UploadExpired, types.UploadFailed:
			continue
		}
		if existing.Group.VideoIndex != g.VideoIndex {
			total += existing.Group.DurationSeconds
			continue
		}
		if existing.Status == types.UploadCompleted {
			return services.Validationf("video_index %d of %s is already uploaded", g.VideoIndex, g.MergeSessionID)
		}
		superseded = append(superseded, existing.SessionID)
	}
	if m.maxGroupDuration > 0 && total > m.maxGroupDuration {
		return services.Validationf("group duration %.1fs exceeds maximum %.1fs", total, m.maxGroupDuration)
	}
	for _, id := range superseded {
		m.logger.Info("superseding unfinished upload",
			"session_id", id,
			"merge_session_id", g.MergeSessionID,
			"video_index", g.VideoIndex)
		m.discard(id)
	}
	return nil
}

func (m *Manager) groupLock(mergeID string) *sync.Mutex {
	return &m.groups[stripe(mergeID)]
}

func (m *Manager) finalizeLock(sessionID string) *sync.Mutex {
	return &m.finalizing[stripe(sessionID)]
}

func stripe(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % groupStripes
}

// UploadChunk stores chunk idx. A chunk already present is a no-op that
// reports written=false.
func (m *Manager) UploadChunk(ctx context.Context, owner, sessionID string, idx int, data []byte, rawHash string) (types.UploadSession, bool, error) {
	session, err := m.accessible(owner, sessionID)
	if err != nil {
		return types.UploadSession{}, false, err
	}
	if idx < 0 || idx >= session.TotalChunks {
		return types.UploadSession{}, false, services.Validationf("chunk_number %d out of range [0, %d)", idx, session.TotalChunks)
	}
	if session.UploadedChunks[idx] {
		return session, false, nil
	}
	switch session.Status {
	case types.UploadPending, types.UploadInProgress:
	default:
		return types.UploadSession{}, false, services.Validationf("session is %s", session.Status)
	}
	if want := session.ExpectedChunkLength(idx); int64(len(data)) != want {
		return types.UploadSession{}, false, services.Validationf("chunk %d must be %d bytes, got %d", idx, want, len(data))
	}

	digest, err := ParseDigest(rawHash)
	if err != nil {
		return types.UploadSession{}, false, err
	}
	if err := digest.Verify(data); err != nil {
		return types.UploadSession{}, false, err
	}
	if err := ctx.Err(); err != nil {
		return types.UploadSession{}, false, err
	}

	// The chunk file is written before the entry lock is taken; writes are
	// addressed by index so a racing duplicate just rewrites equal bytes.
	path := m.chunkPath(sessionID, idx)
	if err := writeFileAtomic(path, data); err != nil {
		return types.UploadSession{}, false, err
	}

	written := false
	updated, err := m.uploads.Update(sessionID, func(s *types.UploadSession) error {
		if s.Status != types.UploadPending && s.Status != types.UploadInProgress {
			return services.Validationf("session is %s", s.Status)
		}
		if s.UploadedChunks[idx] {
			return nil
		}
		now := m.now()
		s.UploadedChunks[idx] = true
		if s.Status == types.UploadPending {
			s.Status = types.UploadInProgress
		}
		s.UpdatedAt = now
		s.ExpiresAt = now.Add(m.cfg.SessionTTL)
		written = true
		return nil
	})
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			m.removeAll(m.chunkDir(sessionID), "orphan chunk dir", sessionID)
		}
		return types.UploadSession{}, false, err
	}
	return updated, written, nil
}

// Status is a map lookup; it performs no I/O.
func (m *Manager) Status(sessionID string) (StatusView, error) {
	s, ok := m.uploads.Get(sessionID)
	if !ok {
		return StatusView{}, services.ErrSessionNotFound
	}
	status := s.Status
	if m.idleExpired(s) {
		status = types.UploadExpired
	}
	return StatusView{
		SessionID:       s.SessionID,
		OwnerID:         s.OwnerID,
		Status:          status,
		ProgressPercent: s.ProgressPercent(),
		TotalChunks:     s.TotalChunks,
		UploadedChunks:  s.UploadedList(),
		RemainingChunks: s.RemainingChunks(),
	}, nil
}

// Get returns a snapshot of the session.
func (m *Manager) Get(sessionID string) (types.UploadSession, bool) {
	return m.uploads.Get(sessionID)
}

// Complete reassembles the chunks into the final file. Concurrent callers
// with the same final hash share a single reassembly; every caller's hash
// is checked against the bytes it is answered with, including calls after
// completion.
func (m *Manager) Complete(ctx context.Context, owner, sessionID, rawFinalHash string) (types.UploadSession, error) {
	session, err := m.accessible(owner, sessionID)
	if err != nil {
		return types.UploadSession{}, err
	}
	digest, err := ParseDigest(rawFinalHash)
	if err != nil {
		return types.UploadSession{}, err
	}
	if session.Status == types.UploadCompleted {
		return m.verifyCompleted(session, digest)
	}
	if !session.AllChunksPresent() {
		return types.UploadSession{}, services.Wrap(services.ErrNotReady,
			fmt.Sprintf("%d of %d chunks missing", len(session.RemainingChunks()), session.TotalChunks), nil)
	}

	key := fmt.Sprintf("%s|%s:%x", sessionID, digest.Algorithm, digest.Expected)
	v, err, _ := m.complete.Do(key, func() (interface{}, error) {
		return m.finalize(context.WithoutCancel(ctx), sessionID, digest)
	})
	if err != nil {
		return types.UploadSession{}, err
	}
	return v.(types.UploadSession), nil
}

// verifyCompleted checks digest against the committed file.
func (m *Manager) verifyCompleted(session types.UploadSession, digest Digest) (types.UploadSession, error) {
	if digest.IsZero() {
		return session, nil
	}
	h := digest.New()
	if _, err := copyFile(h, session.FilePath); err != nil {
		return types.UploadSession{}, fmt.Errorf("read completed file: %w", err)
	}
	if err := digest.Check(h.Sum(nil)); err != nil {
		m.logger.Warn("final hash mismatch on completed upload", "session_id", session.SessionID, "error", err)
		return types.UploadSession{}, err
	}
	return session, nil
}

func (m *Manager) finalize(ctx context.Context, sessionID string, digest Digest) (types.UploadSession, error) {
	lock := m.finalizeLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, ok := m.uploads.Get(sessionID)
	if !ok {
		return types.UploadSession{}, services.ErrSessionNotFound
	}
	if session.Status == types.UploadCompleted {
		return m.verifyCompleted(session, digest)
	}

	started := time.Now()
	dir := m.completedDir(sessionID)
	h := digest.New()
	tmpName, size, err := m.reassemble(ctx, sessionID, session.TotalChunks, dir, h)
	if err != nil {
		return types.UploadSession{}, err
	}
	if size != session.FileSize {
		_ = os.Remove(tmpName)
		return types.UploadSession{}, fmt.Errorf("reassembled %d bytes, expected %d", size, session.FileSize)
	}
	if err := digest.Check(h.Sum(nil)); err != nil {
		_ = os.Remove(tmpName)
		m.logger.Warn("final hash mismatch", "session_id", sessionID, "error", err)
		return types.UploadSession{}, err
	}

	finalPath := filepath.Join(dir, session.Filename)
	if err := os.Rename(tmpName, finalPath); err != nil {
		_ = os.Remove(tmpName)
		return types.UploadSession{}, fmt.Errorf("commit reassembled file: %w", err)
	}

	completed, err := m.uploads.Update(sessionID, func(s *types.UploadSession) error {
		now := m.now()
		s.Status = types.UploadCompleted
		s.FilePath = finalPath
		s.CompletedAt = &now
		s.UpdatedAt = now
		s.ExpiresAt = now.Add(m.cfg.CompletedRetention)
		return nil
	})
	if err != nil {
		m.removeAll(dir, "reassembled file", sessionID)
		return types.UploadSession{}, err
	}

	m.removeAll(m.chunkDir(sessionID), "chunk dir", sessionID)
	m.logger.Info("upload session completed",
		"session_id", sessionID,
		"file_size", size,
		"duration_ms", time.Since(started).Milliseconds())

	m.notify(ctx, completed)
	return completed, nil
}

func (m *Manager) notify(ctx context.Context, session types.UploadSession) {
	m.listenersMu.RLock()
	listeners := append([]CompletionListener(nil), m.listeners...)
	m.listenersMu.RUnlock()
	for _, l := range listeners {
		l.OnUploadCompleted(ctx, session.Clone())
	}
}

// Cancel removes the session and its files. It reports false when the
// session does not exist.
func (m *Manager) Cancel(ctx context.Context, owner, sessionID string) (bool, error) {
	session, ok := m.uploads.Get(sessionID)
	if !ok {
		return false, nil
	}
	if session.OwnerID != owner {
		return false, services.ErrAccessDenied
	}
	if !m.discard(sessionID) {
		return false, nil
	}
	m.logger.Info("upload session cancelled", "session_id", sessionID)
	return true, nil
}

// discard deletes the entry and every file belonging to it.
func (m *Manager) discard(sessionID string) bool {
	if _, ok := m.uploads.Delete(sessionID); !ok {
		return false
	}
	m.removeAll(m.chunkDir(sessionID), "chunk dir", sessionID)
	m.removeAll(m.completedDir(sessionID), "completed dir", sessionID)
	return true
}

// GroupSessions lists the owner's sessions tagged with mergeID, ordered by
// video index.
func (m *Manager) GroupSessions(mergeID, owner string) []types.UploadSession {
	out := m.uploads.Values(func(s types.UploadSession) bool {
		return s.Group != nil && s.Group.MergeSessionID == mergeID && s.OwnerID == owner
	})
	slices.SortFunc(out, func(a, b types.UploadSession) int {
		return a.Group.VideoIndex - b.Group.VideoIndex
	})
	return out
}

// RemoveSources deletes the given completed uploads after a merge consumed
// them. Failures are logged only.
func (m *Manager) RemoveSources(_ context.Context, sessionIDs []string) int {
	removed := 0
	for _, id := range sessionIDs {
		if m.discard(id) {
			removed++
		}
	}
	return removed
}

func (m *Manager) accessible(owner, sessionID string) (types.UploadSession, error) {
	session, ok := m.uploads.Get(sessionID)
	if !ok {
		return types.UploadSession{}, services.ErrSessionNotFound
	}
	if session.OwnerID != owner {
		return types.UploadSession{}, services.ErrAccessDenied
	}
	if session.Status == types.UploadExpired {
		return types.UploadSession{}, services.ErrSessionExpired
	}
	if m.idleExpired(session) {
		_, _ = m.uploads.Update(sessionID, func(s *types.UploadSession) error {
			s.Status = types.UploadExpired
			s.UpdatedAt = m.now()
			return nil
		})
		return types.UploadSession{}, services.ErrSessionExpired
	}
	return session, nil
}

func (m *Manager) idleExpired(s types.UploadSession) bool {
	if s.Status != types.UploadPending && s.Status != types.UploadInProgress {
		return false
	}
	return !s.ExpiresAt.IsZero() && m.now().After(s.ExpiresAt)
}
