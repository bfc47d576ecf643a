package merge

import (
	"context"
	"errors"

	"github.com/princekumarofficial/statements-service/internal/services"
	"github.com/princekumarofficial/statements-service/internal/types"
)

// AutoMerger starts a merge with the default preset as soon as the last
// upload of a group completes.
type AutoMerger struct {
	orchestrator *Orchestrator
}

func NewAutoMerger(o *Orchestrator) *AutoMerger {
	return &AutoMerger{orchestrator: o}
}

func (a *AutoMerger) OnUploadCompleted(ctx context.Context, session types.UploadSession) {
	if session.Group == nil {
		return
	}
	o := a.orchestrator
	mergeID := session.Group.MergeSessionID
	logger := o.logger.With("merge_session_id", mergeID, "session_id", session.SessionID)

	report := o.CheckReadiness(ctx, mergeID, session.OwnerID)
	if !report.Ready {
		logger.Debug("merge group not ready yet",
			"completed_count", report.CompletedCount,
			"expected_count", report.ExpectedCount)
		return
	}

	merge, err := o.InitiateMerge(ctx, mergeID, session.OwnerID, "")
	switch {
	case err == nil:
		logger.Info("auto merge initiated", "status", string(merge.Status), "run_id", merge.RunID)
	case errors.Is(err, services.ErrNotReady):
		logger.Debug("auto merge skipped", "reason", err.Error())
	default:
		logger.Warn("auto merge failed to start", "error", err)
	}
}
