package media

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/require"
)

func newTestMinIOStore(t *testing.T, backend *fakeBucket) *MinIOStore {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	client, err := minio.New(strings.TrimPrefix(srv.URL, "http://"), &minio.Options{
		Creds:        credentials.NewStaticV4("access", "secret", ""),
		Secure:       false,
		Region:       "us-east-1",
		BucketLookup: minio.BucketLookupPath,
		MaxRetries:   1,
	})
	require.NoError(t, err)
	return NewMinIOStoreWithClient(client, backend.bucket)
}

func TestMinIOStore_Delete(t *testing.T) {
	key := MergedArtifactKey("u", "m")
	backend := newFakeBucket("artifacts", key)
	store := newTestMinIOStore(t, backend)
	ctx := context.Background()

	removed, err := store.Delete(ctx, key)
	require.NoError(t, err)
	require.True(t, removed)
	require.Contains(t, backend.seen(), "DELETE /artifacts/"+key)

	removed, err = store.Delete(ctx, key)
	require.NoError(t, err)
	require.False(t, removed, "missing object reports false")
}

func TestMinIOStore_Exists(t *testing.T) {
	key := MergedArtifactKey("u", "m")
	store := newTestMinIOStore(t, newFakeBucket("artifacts", key))
	ctx := context.Background()

	exists, err := store.Exists(ctx, key)
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = store.Exists(ctx, MergedArtifactKey("u", "other"))
	require.NoError(t, err)
	require.False(t, exists)
}
