package uploads

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/princekumarofficial/statements-service/internal/config"
	"github.com/princekumarofficial/statements-service/internal/http/middleware"
	"github.com/princekumarofficial/statements-service/internal/logging"
	"github.com/princekumarofficial/statements-service/internal/services/upload"
	"github.com/princekumarofficial/statements-service/internal/sessions"
	"github.com/princekumarofficial/statements-service/internal/types"
	"github.com/princekumarofficial/statements-service/internal/types/media"
)

const chunkSize = 4

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		Upload: config.Upload{
			ChunkSize:        chunkSize,
			MaxFileSize:      1000,
			AllowedMimeTypes: []string{"video/mp4"},
			ChunkDir:         filepath.Join(root, "chunks"),
			CompletedDir:     filepath.Join(root, "uploads"),
			SessionTTL:       time.Hour,
		},
		Merge: config.Merge{GroupSize: 3, MaxGroupDuration: 60},
	}
	m := upload.NewManager(cfg, sessions.NewStore(nil, logging.Discard()), nil, logging.Discard())

	mux := http.NewServeMux()
	mux.HandleFunc("POST /uploads", InitiateUpload(m))
	mux.HandleFunc("PUT /uploads/{id}/chunks/{n}", UploadChunk(m, chunkSize))
	mux.HandleFunc("GET /uploads/{id}", GetUploadStatus(m))
	mux.HandleFunc("POST /uploads/{id}/complete", CompleteUpload(m))
	mux.HandleFunc("DELETE /uploads/{id}", CancelUpload(m))

	// Tests authenticate by naming the user in a header.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user := r.Header.Get("X-User"); user != "" {
			r = r.WithContext(middleware.WithUserID(r.Context(), user))
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, user string, body []byte, header map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if user != "" {
		req.Header.Set("X-User", user)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func initiate(t *testing.T, srv *httptest.Server, user string, size int64) media.InitiateUploadResponse {
	t.Helper()
	body, _ := json.Marshal(media.InitiateUploadRequest{Filename: "clip.mp4", FileSize: size, MimeType: "video/mp4"})
	resp := do(t, srv, http.MethodPost, "/uploads", user, body, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}
	var out media.InitiateUploadResponse
	decodeBody(t, resp, &out)
	return out
}

func TestUploadFlow(t *testing.T) {
	srv := newTestServer(t)
	data := []byte("0123456789")

	session := initiate(t, srv, "alice", int64(len(data)))
	if session.TotalChunks != 3 || session.ChunkSize != chunkSize {
		t.Fatalf("Unexpected session: %+v", session)
	}

	chunkPath := func(n int) string { return fmt.Sprintf("/uploads/%s/chunks/%d", session.SessionID, n) }

	resp := do(t, srv, http.MethodPut, chunkPath(1), "alice", data[4:8], nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var chunk media.ChunkUploadResponse
	decodeBody(t, resp, &chunk)
	if !chunk.Written || len(chunk.RemainingChunks) != 2 {
		t.Fatalf("Unexpected chunk response: %+v", chunk)
	}

	resp = do(t, srv, http.MethodPut, chunkPath(1), "alice", data[4:8], nil)
	decodeBody(t, resp, &chunk)
	if chunk.Written || !chunk.AlreadyExists {
		t.Fatalf("Expected duplicate chunk to be a no-op: %+v", chunk)
	}

	sum := sha256.Sum256(data[0:4])
	resp = do(t, srv, http.MethodPut, chunkPath(0), "alice", data[0:4], map[string]string{ChunkHashHeader: "sha256:" + hex.EncodeToString(sum[:])})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	resp = do(t, srv, http.MethodPost, "/uploads/"+session.SessionID+"/complete", "alice", nil, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("Expected 409 while chunks are missing, got %d", resp.StatusCode)
	}

	do(t, srv, http.MethodPut, chunkPath(2), "alice", data[8:], nil)

	resp = do(t, srv, http.MethodGet, "/uploads/"+session.SessionID, "alice", nil, nil)
	var status upload.StatusView
	decodeBody(t, resp, &status)
	if status.ProgressPercent != 100 || len(status.RemainingChunks) != 0 {
		t.Fatalf("Unexpected status: %+v", status)
	}

	full := sha256.Sum256(data)
	body, _ := json.Marshal(media.CompleteUploadRequest{FinalHash: hex.EncodeToString(full[:])})
	resp = do(t, srv, http.MethodPost, "/uploads/"+session.SessionID+"/complete", "alice", body, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var done media.CompleteUploadResponse
	decodeBody(t, resp, &done)
	if done.Status != types.UploadCompleted {
		t.Fatalf("Expected completed, got %s", done.Status)
	}
	got, err := os.ReadFile(done.FilePath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("Reassembled %q, want %q", got, data)
	}
}

func TestUploadChunk_Errors(t *testing.T) {
	srv := newTestServer(t)
	session := initiate(t, srv, "alice", 10)
	base := "/uploads/" + session.SessionID + "/chunks/"

	cases := []struct {
		name   string
		path   string
		user   string
		body   []byte
		header map[string]string
		code   int
	}{
		{"unauthenticated", base + "0", "", []byte("abcd"), nil, http.StatusUnauthorized},
		{"other owner", base + "0", "bob", []byte("abcd"), nil, http.StatusForbidden},
		{"unknown session", "/uploads/nope/chunks/0", "alice", []byte("abcd"), nil, http.StatusNotFound},
		{"bad index", base + "x", "alice", []byte("abcd"), nil, http.StatusBadRequest},
		{"out of range", base + "3", "alice", []byte("ab"), nil, http.StatusBadRequest},
		{"oversized", base + "0", "alice", []byte("abcdefgh"), nil, http.StatusBadRequest},
		{"hash mismatch", base + "0", "alice", []byte("abcd"), map[string]string{ChunkHashHeader: "md5:00000000000000000000000000000000"}, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := do(t, srv, http.MethodPut, tc.path, tc.user, tc.body, tc.header)
			if resp.StatusCode != tc.code {
				t.Fatalf("Expected %d, got %d", tc.code, resp.StatusCode)
			}
		})
	}
}

func TestInitiateUpload_Validation(t *testing.T) {
	srv := newTestServer(t)

	cases := map[string]string{
		"empty body":        ``,
		"missing size":      `{"filename":"a.mp4","mime_type":"video/mp4"}`,
		"group without idx": `{"filename":"a.mp4","file_size":10,"mime_type":"video/mp4","merge_session_id":"m1","video_count":3}`,
		"bad mime":          `{"filename":"a.mp4","file_size":10,"mime_type":"image/png"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp := do(t, srv, http.MethodPost, "/uploads", "alice", []byte(body), nil)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d", resp.StatusCode)
			}
		})
	}
}

func TestCancelUpload(t *testing.T) {
	srv := newTestServer(t)
	session := initiate(t, srv, "alice", 10)

	if resp := do(t, srv, http.MethodDelete, "/uploads/"+session.SessionID, "bob", nil, nil); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("Expected 403, got %d", resp.StatusCode)
	}
	if resp := do(t, srv, http.MethodDelete, "/uploads/"+session.SessionID, "alice", nil, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if resp := do(t, srv, http.MethodGet, "/uploads/"+session.SessionID, "alice", nil, nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected 404 after cancel, got %d", resp.StatusCode)
	}
	if resp := do(t, srv, http.MethodDelete, "/uploads/"+session.SessionID, "alice", nil, nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected 404 for second cancel, got %d", resp.StatusCode)
	}
}
