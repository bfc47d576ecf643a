package media

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"

	"github.com/princekumarofficial/statements-service/internal/logging"
)

// fakeBucket answers path-style object requests for a single bucket.
type fakeBucket struct {
	mu       sync.Mutex
	bucket   string
	objects  map[string]bool
	failWith int
	requests []string
}

func newFakeBucket(bucket string, keys ...string) *fakeBucket {
	b := &fakeBucket{bucket: bucket, objects: map[string]bool{}}
	for _, k := range keys {
		b.objects[k] = true
	}
	return b
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, r.Method+" "+r.URL.Path)

	if b.failWith != 0 {
		w.WriteHeader(b.failWith)
		return
	}
	prefix := "/" + b.bucket + "/"
	if len(r.URL.Path) <= len(prefix) || r.URL.Path[:len(prefix)] != prefix {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	key := r.URL.Path[len(prefix):]

	switch r.Method {
	case http.MethodHead:
		if !b.objects[key] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", "12")
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.Header().Set("Last-Modified", "Mon, 02 Jan 2026 15:04:05 GMT")
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		delete(b.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (b *fakeBucket) seen() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.requests...)
}

func newTestS3Store(t *testing.T, backend http.Handler) *S3Store {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	client := s3.New(s3.Options{
		Region:           "us-east-1",
		BaseEndpoint:     aws.String(srv.URL),
		UsePathStyle:     true,
		Credentials:      aws.AnonymousCredentials{},
		RetryMaxAttempts: 1,
	})
	return NewS3StoreWithClient(client, "artifacts", logging.Discard())
}

func TestS3Store_ExistsMapsNotFound(t *testing.T) {
	key := MergedArtifactKey("u", "m")
	store := newTestS3Store(t, newFakeBucket("artifacts", key))
	ctx := context.Background()

	exists, err := store.Exists(ctx, key)
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = store.Exists(ctx, MergedArtifactKey("u", "other"))
	require.NoError(t, err, "a 404 is a clean miss")
	require.False(t, exists)

	_, err = store.Exists(ctx, "")
	require.Error(t, err)
}

func TestS3Store_ExistsSurfacesOtherErrors(t *testing.T) {
	backend := newFakeBucket("artifacts")
	backend.failWith = http.StatusForbidden
	store := newTestS3Store(t, backend)

	exists, err := store.Exists(context.Background(), MergedArtifactKey("u", "m"))
	require.Error(t, err)
	require.False(t, exists)
}

func TestS3Store_Delete(t *testing.T) {
	key := MergedArtifactKey("u", "m")
	backend := newFakeBucket("artifacts", key)
	store := newTestS3Store(t, backend)
	ctx := context.Background()

	removed, err := store.Delete(ctx, key)
	require.NoError(t, err)
	require.True(t, removed)

	removed, err = store.Delete(ctx, key)
	require.NoError(t, err)
	require.False(t, removed, "second delete finds nothing")

	require.Contains(t, backend.seen(), "DELETE /artifacts/"+key)
}
