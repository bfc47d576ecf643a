package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/princekumarofficial/statements-service/internal/config"
	"github.com/princekumarofficial/statements-service/internal/services"
	"github.com/princekumarofficial/statements-service/internal/services/media"
	"github.com/princekumarofficial/statements-service/internal/services/transcoder"
	"github.com/princekumarofficial/statements-service/internal/sessions"
	"github.com/princekumarofficial/statements-service/internal/types"
)

// UploadSource is the slice of the upload manager the orchestrator needs.
type UploadSource interface {
	GroupSessions(mergeID, owner string) []types.UploadSession
	RemoveSources(ctx context.Context, sessionIDs []string) int
}

// Observer receives every committed merge state change.
type Observer interface {
	MergeUpdated(ctx context.Context, session types.MergeSession)
}

// ReadinessReport describes how far a merge group is from being mergeable.
type ReadinessReport struct {
	Ready          bool              `json:"ready"`
	CompletedCount int               `json:"completed_count"`
	ExpectedCount  int               `json:"expected_count"`
	MissingIndices []int             `json:"missing_indices"`
	VideoFiles     []types.VideoFile `json:"video_files"`
}

var (
	errStale    = errors.New("stale merge run")
	errNoChange = errors.New("no change")
)

type runHandle struct {
	runID  string
	cancel context.CancelFunc
}

// Orchestrator runs merge pipelines. One pipeline at most is active per
// merge session id and at most MaxConcurrent run at once.
type Orchestrator struct {
	cfg       config.Merge
	urlTTL    time.Duration
	merges    *sessions.Registry[types.MergeSession]
	uploads   UploadSource
	tc        transcoder.Transcoder
	blobs     media.BlobStore
	logger    *slog.Logger
	slots     *semaphore.Weighted
	now       func() time.Time
	observers []Observer

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	runsMu sync.Mutex
	runs   map[string]runHandle
}

func NewOrchestrator(cfg *config.Config, store *sessions.Store, uploads UploadSource, tc transcoder.Transcoder, blobs media.BlobStore, logger *slog.Logger, observers ...Observer) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	slots := cfg.Merge.MaxConcurrent
	if slots <= 0 {
		slots = 1
	}
	return &Orchestrator{
		cfg:        cfg.Merge,
		urlTTL:     cfg.Blob.SignedURLTTL,
		merges:     store.Merges,
		uploads:    uploads,
		tc:         tc,
		blobs:      blobs,
		logger:     logger,
		slots:      semaphore.NewWeighted(slots),
		now:        func() time.Time { return time.Now().UTC() },
		observers:  observers,
		baseCtx:    ctx,
		baseCancel: cancel,
		runs:       make(map[string]runHandle),
	}
}

// CheckReadiness inspects the owner's uploads tagged with mergeID. The group
// is ready when every index has a completed upload whose file is on disk.
func (o *Orchestrator) CheckReadiness(_ context.Context, mergeID, owner string) ReadinessReport {
	expected := o.cfg.GroupSize
	byIndex := make(map[int]types.UploadSession, expected)
	for _, s := range o.uploads.GroupSessions(mergeID, owner) {
		if s.Status != types.UploadCompleted || s.Group == nil {
			continue
		}
		if _, err := os.Stat(s.FilePath); err != nil {
			o.logger.Warn("completed upload is missing its file",
				"session_id", s.SessionID,
				"merge_session_id", mergeID,
				"path", s.FilePath)
			continue
		}
		byIndex[s.Group.VideoIndex] = s
	}

	report := ReadinessReport{ExpectedCount: expected, MissingIndices: []int{}}
	for idx := 0; idx < expected; idx++ {
		s, ok := byIndex[idx]
		if !ok {
			report.MissingIndices = append(report.MissingIndices, idx)
			continue
		}
		report.CompletedCount++
		report.VideoFiles = append(report.VideoFiles, types.VideoFile{
			VideoIndex:            idx,
			UploadSessionID:       s.SessionID,
			Path:                  s.FilePath,
			AuthoritativeDuration: s.Group.DurationSeconds,
		})
	}
	report.Ready = report.CompletedCount == expected && len(report.MissingIndices) == 0
	return report
}

// InitiateMerge schedules a pipeline run and returns without waiting for it.
// A merge that is already pending, processing or completed is returned as-is.
func (o *Orchestrator) InitiateMerge(ctx context.Context, mergeID, owner, presetName string) (types.MergeSession, error) {
	presetName = strings.ToLower(strings.TrimSpace(presetName))
	if presetName == "" {
		presetName = o.cfg.DefaultPreset
	}
	if _, ok := o.cfg.Preset(presetName); !ok {
		return types.MergeSession{}, services.Validationf("unknown quality_preset %q", presetName)
	}

	if existing, ok := o.merges.Get(mergeID); ok {
		if existing.OwnerID != owner {
			return types.MergeSession{}, services.ErrAccessDenied
		}
		if existing.Status.Active() || existing.Status == types.MergeCompleted {
			return existing, nil
		}
	}
	if o.baseCtx.Err() != nil {
		return types.MergeSession{}, errors.New("merge orchestrator is shutting down")
	}
	if err := o.tc.Available(ctx); err != nil {
		return types.MergeSession{}, err
	}

	report := o.CheckReadiness(ctx, mergeID, owner)
	if !report.Ready {
		return types.MergeSession{}, services.Wrap(services.ErrNotReady,
			fmt.Sprintf("%d of %d videos uploaded, missing indices %v", report.CompletedCount, report.ExpectedCount, report.MissingIndices), nil)
	}

	claimed := false
	runID := uuid.NewString()
	session, err := o.merges.Compute(mergeID, func(cur *types.MergeSession, exists bool) error {
		now := o.now()
		if exists {
			if cur.OwnerID != owner {
				return services.ErrAccessDenied
			}
			if !cur.Status.CanTransition(types.MergePending) {
				// Lost the race to another initiate; report its run.
				return nil
			}
		} else {
			cur.MergeSessionID = mergeID
			cur.OwnerID = owner
			cur.CreatedAt = now
		}
		cur.RunID = runID
		cur.Status = types.MergePending
		cur.Stage = ""
		cur.VideoFiles = report.VideoFiles
		cur.QualityPreset = presetName
		cur.Progress = 0
		cur.ErrorMessage = ""
		cur.ErrorStage = ""
		cur.Retryable = false
		cur.MergedArtifactRef = ""
		cur.ArtifactURL = ""
		cur.MergedMetadata = nil
		cur.StartedAt = nil
		cur.CompletedAt = nil
		cur.UpdatedAt = now
		claimed = true
		return nil
	})
	if err != nil {
		return types.MergeSession{}, err
	}
	if !claimed {
		return session, nil
	}

	o.logger.Info("merge scheduled",
		"merge_session_id", mergeID,
		"run_id", runID,
		"owner_id", owner,
		"quality_preset", presetName)
	o.notify(session)
	o.launch(session)
	return session, nil
}

func (o *Orchestrator) launch(session types.MergeSession) {
	ctx, cancel := context.WithCancel(o.baseCtx)
	o.runsMu.Lock()
	o.runs[session.MergeSessionID] = runHandle{runID: session.RunID, cancel: cancel}
	o.runsMu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.forgetRun(session.MergeSessionID, session.RunID)
		defer cancel()
		o.execute(ctx, session)
	}()
}

func (o *Orchestrator) forgetRun(mergeID, runID string) {
	o.runsMu.Lock()
	defer o.runsMu.Unlock()
	if h, ok := o.runs[mergeID]; ok && h.runID == runID {
		delete(o.runs, mergeID)
	}
}

// GetStatus returns a snapshot of the merge session.
func (o *Orchestrator) GetStatus(mergeID string) (types.MergeSession, bool) {
	return o.merges.Get(mergeID)
}

// Cancel stops a pending or processing merge. Completed and failed merges
// are rejected with ErrInvalidTransition; an already cancelled merge
// reports false.
func (o *Orchestrator) Cancel(_ context.Context, mergeID, owner string) (bool, error) {
	current, ok := o.merges.Get(mergeID)
	if !ok {
		return false, services.ErrSessionNotFound
	}
	if current.OwnerID != owner {
		return false, services.ErrAccessDenied
	}
	if current.Status == types.MergeCancelled {
		return false, nil
	}

	cancelled, err := o.merges.Update(mergeID, func(cur *types.MergeSession) error {
		if !cur.Status.CanTransition(types.MergeCancelled) {
			return services.Wrap(services.ErrInvalidTransition, fmt.Sprintf("cannot cancel a %s merge", cur.Status), nil)
		}
		now := o.now()
		cur.Status = types.MergeCancelled
		cur.UpdatedAt = now
		cur.CompletedAt = &now
		return nil
	})
	if err != nil {
		return false, err
	}

	o.runsMu.Lock()
	h, running := o.runs[mergeID]
	o.runsMu.Unlock()
	if running && h.runID == cancelled.RunID {
		h.cancel()
	}
	o.removeWorkDir(cancelled.MergeSessionID, cancelled.RunID)

	o.logger.Info("merge cancelled", "merge_session_id", mergeID, "run_id", cancelled.RunID)
	o.notify(cancelled)
	return true, nil
}

// Shutdown cancels every running pipeline and waits for them to unwind.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.baseCancel()
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) workDir(mergeID, runID string) string {
	return filepath.Join(o.cfg.WorkDir, mergeID+"-"+runID)
}

func (o *Orchestrator) removeWorkDir(mergeID, runID string) {
	dir := o.workDir(mergeID, runID)
	if err := os.RemoveAll(dir); err != nil {
		o.logger.Warn("failed to remove merge work dir",
			"merge_session_id", mergeID,
			"run_id", runID,
			"path", dir,
			"error", err)
	}
}

// commit applies fn to the session only while runID is still its active
// run, then fans the new state out to observers.
func (o *Orchestrator) commit(mergeID, runID string, fn func(*types.MergeSession) error) (types.MergeSession, bool) {
	updated, err := o.merges.Update(mergeID, func(cur *types.MergeSession) error {
		if cur.RunID != runID || !cur.Status.Active() {
			return errStale
		}
		return fn(cur)
	})
	if err != nil {
		if !errors.Is(err, errStale) && !errors.Is(err, errNoChange) {
			o.logger.Warn("merge state update rejected", "merge_session_id", mergeID, "run_id", runID, "error", err)
		}
		return updated, false
	}
	o.notify(updated)
	return updated, true
}

func (o *Orchestrator) notify(session types.MergeSession) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, obs := range o.observers {
		obs.MergeUpdated(ctx, session.Clone())
	}
}
