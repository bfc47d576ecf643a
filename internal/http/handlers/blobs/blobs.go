package blobs

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"path"

	"github.com/princekumarofficial/statements-service/internal/services/media"
	"github.com/princekumarofficial/statements-service/internal/utils/jwt"
	"github.com/princekumarofficial/statements-service/internal/utils/response"
)

// Download serves a blob from the local store. The signed URL's token is
// the only credential; no bearer header is needed.
// @Summary Download a merged artifact
// @Tags blobs
// @Produce video/mp4
// @Param key path string true "Blob key"
// @Param token query string true "Download token from the signed URL"
// @Success 200 {file} file "Blob content"
// @Failure 403 {object} response.Response "Invalid or expired token"
// @Failure 404 {object} response.Response "Blob not found"
// @Router /blobs/{key} [get]
func Download(store *media.LocalStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.PathValue("key")
		f, err := store.Open(key, r.URL.Query().Get("token"))
		switch {
		case err == nil:
		case errors.Is(err, jwt.ErrInvalidToken):
			response.WriteJSON(w, http.StatusForbidden, response.GeneralError(errors.New("invalid or expired download token")))
			return
		case errors.Is(err, media.ErrInvalidKey):
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
			return
		case errors.Is(err, fs.ErrNotExist):
			response.WriteJSON(w, http.StatusNotFound, response.GeneralError(errors.New("blob not found")))
			return
		default:
			logger.Error("open blob failed", "key", key, "error", err)
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(errors.New("internal server error")))
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil || info.IsDir() {
			response.WriteJSON(w, http.StatusNotFound, response.GeneralError(errors.New("blob not found")))
			return
		}
		w.Header().Set("Content-Disposition", `inline; filename="`+path.Base(key)+`"`)
		http.ServeContent(w, r, path.Base(key), info.ModTime(), f)
	}
}
