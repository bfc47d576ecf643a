package uploads

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/princekumarofficial/statements-service/internal/http/middleware"
	"github.com/princekumarofficial/statements-service/internal/services"
	"github.com/princekumarofficial/statements-service/internal/services/upload"
	"github.com/princekumarofficial/statements-service/internal/types/media"
	"github.com/princekumarofficial/statements-service/internal/utils/response"
)

// ChunkHashHeader carries the optional per-chunk digest.
const ChunkHashHeader = "X-Chunk-Hash"

var validate = validator.New()

// InitiateUpload starts a chunked upload session
// @Summary Initiate a chunked upload
// @Description Create an upload session; the response fixes chunk size and chunk count
// @Tags uploads
// @Accept json
// @Produce json
// @Param request body media.InitiateUploadRequest true "Upload description"
// @Success 201 {object} media.InitiateUploadResponse "Session created"
// @Failure 400 {object} response.Response "Bad request"
// @Failure 401 {object} response.Response "Unauthorized"
// @Failure 429 {object} response.Response "Quota exceeded"
// @Security BearerAuth
// @Router /uploads [post]
func InitiateUpload(m *upload.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		var req media.InitiateUploadRequest
		if !decode(w, r, &req) {
			return
		}

		session, err := m.Initiate(r.Context(), upload.InitiateRequest{
			OwnerID:  userID,
			Filename: req.Filename,
			FileSize: req.FileSize,
			MimeType: req.MimeType,
			Group:    req.Group(),
		})
		if err != nil {
			response.FromError(w, err)
			return
		}

		response.WriteJSON(w, http.StatusCreated, media.InitiateUploadResponse{
			SessionID:   session.SessionID,
			ChunkSize:   session.ChunkSize,
			TotalChunks: session.TotalChunks,
			ExpiresAt:   session.ExpiresAt,
		})
	}
}

// UploadChunk stores one chunk
// @Summary Upload a chunk
// @Description Store chunk n of the session. Re-sending a stored chunk is a no-op.
// @Tags uploads
// @Accept application/octet-stream
// @Produce json
// @Param id path string true "Session ID"
// @Param n path int true "Chunk index"
// @Param X-Chunk-Hash header string false "sha256 hex, or algo:hex (sha256, md5, blake2b)"
// @Success 200 {object} media.ChunkUploadResponse "Chunk stored"
// @Failure 400 {object} response.Response "Bad request"
// @Failure 403 {object} response.Response "Not the session owner"
// @Failure 404 {object} response.Response "Session not found"
// @Failure 410 {object} response.Response "Session expired"
// @Failure 422 {object} response.Response "Hash mismatch"
// @Security BearerAuth
// @Router /uploads/{id}/chunks/{n} [put]
func UploadChunk(m *upload.Manager, maxChunkSize int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		idx, err := strconv.Atoi(r.PathValue("n"))
		if err != nil {
			response.FromError(w, services.Validationf("chunk index %q is not an integer", r.PathValue("n")))
			return
		}

		// One byte over the limit is enough for the manager to reject the length.
		data, err := io.ReadAll(io.LimitReader(r.Body, maxChunkSize+1))
		if err != nil {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(fmt.Errorf("read chunk: %w", err)))
			return
		}

		session, written, err := m.UploadChunk(r.Context(), userID, r.PathValue("id"), idx, data, r.Header.Get(ChunkHashHeader))
		if err != nil {
			response.FromError(w, err)
			return
		}

		response.WriteJSON(w, http.StatusOK, media.NewChunkUploadResponse(session, written))
	}
}

// GetUploadStatus reports upload progress
// @Summary Get upload status
// @Tags uploads
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} upload.StatusView "Upload status"
// @Failure 403 {object} response.Response "Not the session owner"
// @Failure 404 {object} response.Response "Session not found"
// @Security BearerAuth
// @Router /uploads/{id} [get]
func GetUploadStatus(m *upload.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		view, err := m.Status(r.PathValue("id"))
		if err != nil {
			response.FromError(w, err)
			return
		}
		if view.OwnerID != userID {
			response.FromError(w, services.ErrAccessDenied)
			return
		}

		response.WriteJSON(w, http.StatusOK, view)
	}
}

// CompleteUpload reassembles the uploaded chunks
// @Summary Complete an upload
// @Description Reassemble all chunks, optionally verifying a whole-file hash
// @Tags uploads
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body media.CompleteUploadRequest false "Optional final hash"
// @Success 200 {object} media.CompleteUploadResponse "Upload completed"
// @Failure 409 {object} response.Response "Chunks missing"
// @Failure 422 {object} response.Response "Hash mismatch"
// @Security BearerAuth
// @Router /uploads/{id}/complete [post]
func CompleteUpload(m *upload.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		// The body is optional.
		var req media.CompleteUploadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
			return
		}
		if err := validate.Struct(req); err != nil {
			response.FromError(w, err)
			return
		}

		session, err := m.Complete(r.Context(), userID, r.PathValue("id"), req.FinalHash)
		if err != nil {
			response.FromError(w, err)
			return
		}

		response.WriteJSON(w, http.StatusOK, media.CompleteUploadResponse{
			SessionID:   session.SessionID,
			Status:      session.Status,
			FilePath:    session.FilePath,
			FileSize:    session.FileSize,
			CompletedAt: session.CompletedAt,
		})
	}
}

// CancelUpload discards a session and its files
// @Summary Cancel an upload
// @Tags uploads
// @Param id path string true "Session ID"
// @Success 200 {object} response.Response "Upload cancelled"
// @Failure 403 {object} response.Response "Not the session owner"
// @Failure 404 {object} response.Response "Session not found"
// @Security BearerAuth
// @Router /uploads/{id} [delete]
func CancelUpload(m *upload.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		cancelled, err := m.Cancel(r.Context(), userID, r.PathValue("id"))
		if err != nil {
			response.FromError(w, err)
			return
		}
		if !cancelled {
			response.FromError(w, services.ErrSessionNotFound)
			return
		}

		response.WriteJSON(w, http.StatusOK, response.RequestOK("Upload cancelled", nil))
	}
}

// decode reads a JSON body and validates it, writing the error response
// itself when it returns false.
func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(errors.New("request body cannot be empty")))
		return false
	} else if err != nil {
		response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
		return false
	}
	if err := validate.Struct(dst); err != nil {
		response.FromError(w, err)
		return false
	}
	return true
}
