package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/princekumarofficial/statements-service/internal/services"
)

func TestStatusCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{services.Validationf("bad size"), http.StatusBadRequest},
		{services.ErrSessionNotFound, http.StatusNotFound},
		{fmt.Errorf("chunk: %w", services.ErrSessionExpired), http.StatusGone},
		{services.ErrAccessDenied, http.StatusForbidden},
		{services.ErrHashMismatch, http.StatusUnprocessableEntity},
		{services.ErrQuotaExceeded, http.StatusTooManyRequests},
		{services.Wrap(services.ErrNotReady, "2 of 3", nil), http.StatusConflict},
		{services.ErrInvalidTransition, http.StatusConflict},
		{services.ErrToolUnavailable, http.StatusServiceUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := StatusCode(tc.err); got != tc.want {
			t.Errorf("StatusCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestFromError_HidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	FromError(rec, errors.New("open /secret/path: permission denied"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", rec.Code)
	}
	var body Response
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Error != "internal server error" || body.Status != StatusError {
		t.Fatalf("Unexpected body: %+v", body)
	}

	rec = httptest.NewRecorder()
	FromError(rec, services.Validationf("file_size must be positive"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
}
