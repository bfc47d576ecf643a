package merges

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/princekumarofficial/statements-service/internal/http/middleware"
	"github.com/princekumarofficial/statements-service/internal/services"
	"github.com/princekumarofficial/statements-service/internal/services/merge"
	"github.com/princekumarofficial/statements-service/internal/types"
	"github.com/princekumarofficial/statements-service/internal/types/media"
	"github.com/princekumarofficial/statements-service/internal/utils/response"
)

// Orchestrator is the merge service the handlers drive.
type Orchestrator interface {
	CheckReadiness(ctx context.Context, mergeID, owner string) merge.ReadinessReport
	InitiateMerge(ctx context.Context, mergeID, owner, preset string) (types.MergeSession, error)
	GetStatus(mergeID string) (types.MergeSession, bool)
	Cancel(ctx context.Context, mergeID, owner string) (bool, error)
}

// StatusMirror answers status polls for merges run by another replica.
type StatusMirror interface {
	GetMergeStatus(ctx context.Context, mergeID string) (types.MergeSession, bool, error)
}

type MergeHandlers struct {
	orchestrator Orchestrator
	mirror       StatusMirror
	logger       *slog.Logger
	validate     *validator.Validate
}

// NewMergeHandlers creates the merge handlers. mirror may be nil.
func NewMergeHandlers(o Orchestrator, mirror StatusMirror, logger *slog.Logger) *MergeHandlers {
	return &MergeHandlers{
		orchestrator: o,
		mirror:       mirror,
		logger:       logger,
		validate:     validator.New(),
	}
}

// Readiness reports which videos of the group are still missing
// @Summary Check merge readiness
// @Tags merges
// @Produce json
// @Param id path string true "Merge session ID"
// @Success 200 {object} merge.ReadinessReport "Readiness report"
// @Failure 401 {object} response.Response "Unauthorized"
// @Security BearerAuth
// @Router /merges/{id}/readiness [get]
func (h *MergeHandlers) Readiness() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		report := h.orchestrator.CheckReadiness(r.Context(), r.PathValue("id"), userID)
		response.WriteJSON(w, http.StatusOK, report)
	}
}

// Initiate starts the merge pipeline for a ready group
// @Summary Initiate a merge
// @Description Starts the merge asynchronously; poll the status endpoint for progress
// @Tags merges
// @Accept json
// @Produce json
// @Param id path string true "Merge session ID"
// @Param request body media.InitiateMergeRequest false "Quality preset"
// @Success 202 {object} media.MergeStatusResponse "Merge accepted"
// @Failure 400 {object} response.Response "Unknown preset"
// @Failure 403 {object} response.Response "Merge belongs to another user"
// @Failure 409 {object} response.Response "Group not ready"
// @Failure 429 {object} response.Response "Rate limited"
// @Failure 503 {object} response.Response "Transcoder unavailable"
// @Security BearerAuth
// @Router /merges/{id} [post]
func (h *MergeHandlers) Initiate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		var req media.InitiateMergeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
			return
		}
		if err := h.validate.Struct(req); err != nil {
			response.FromError(w, err)
			return
		}

		session, err := h.orchestrator.InitiateMerge(r.Context(), r.PathValue("id"), userID, req.QualityPreset)
		if err != nil {
			if response.StatusCode(err) == http.StatusInternalServerError {
				h.logger.Error("initiate merge failed", "merge_session_id", r.PathValue("id"), "error", err)
			}
			response.FromError(w, err)
			return
		}

		response.WriteJSON(w, http.StatusAccepted, media.NewMergeStatusResponse(session))
	}
}

// Status reports merge progress and, once completed, the artifact
// @Summary Get merge status
// @Tags merges
// @Produce json
// @Param id path string true "Merge session ID"
// @Success 200 {object} media.MergeStatusResponse "Merge status"
// @Failure 403 {object} response.Response "Merge belongs to another user"
// @Failure 404 {object} response.Response "Merge not found"
// @Security BearerAuth
// @Router /merges/{id} [get]
func (h *MergeHandlers) Status() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		mergeID := r.PathValue("id")
		session, found := h.orchestrator.GetStatus(mergeID)
		if !found && h.mirror != nil {
			var err error
			session, found, err = h.mirror.GetMergeStatus(r.Context(), mergeID)
			if err != nil {
				// The mirror is best effort; a Redis outage reads as a miss.
				h.logger.Warn("merge status mirror lookup failed", "merge_session_id", mergeID, "error", err)
			}
		}
		if !found {
			response.FromError(w, services.ErrSessionNotFound)
			return
		}
		if session.OwnerID != userID {
			response.FromError(w, services.ErrAccessDenied)
			return
		}

		response.WriteJSON(w, http.StatusOK, media.NewMergeStatusResponse(session))
	}
}

// Cancel stops a pending or processing merge
// @Summary Cancel a merge
// @Tags merges
// @Produce json
// @Param id path string true "Merge session ID"
// @Success 200 {object} response.Response "Merge cancelled"
// @Failure 403 {object} response.Response "Merge belongs to another user"
// @Failure 404 {object} response.Response "Merge not found"
// @Failure 409 {object} response.Response "Merge already finished"
// @Security BearerAuth
// @Router /merges/{id} [delete]
func (h *MergeHandlers) Cancel() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		cancelled, err := h.orchestrator.Cancel(r.Context(), r.PathValue("id"), userID)
		if err != nil {
			response.FromError(w, err)
			return
		}

		msg := "Merge cancelled"
		if !cancelled {
			msg = "Merge was already cancelled"
		}
		response.WriteJSON(w, http.StatusOK, response.RequestOK(msg, map[string]bool{"cancelled": cancelled}))
	}
}
