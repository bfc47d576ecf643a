package sessions

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/princekumarofficial/statements-service/internal/logging"
	"github.com/princekumarofficial/statements-service/internal/storage/sqlite"
	"github.com/princekumarofficial/statements-service/internal/types"
)

func TestStore_WriteThroughAndRestore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.db")

	backend, err := sqlite.Open(ctx, path)
	require.NoError(t, err)

	store := NewStore(backend, logging.Discard())
	_, err = store.Uploads.Compute("up-1", func(cur *types.UploadSession, _ bool) error {
		*cur = types.UploadSession{
			SessionID:      "up-1",
			OwnerID:        "u",
			TotalChunks:    2,
			UploadedChunks: map[int]bool{1: true},
			Status:         types.UploadInProgress,
			UpdatedAt:      time.Now(),
		}
		return nil
	})
	require.NoError(t, err)

	_, err = store.Merges.Compute("m-1", func(cur *types.MergeSession, _ bool) error {
		*cur = types.MergeSession{MergeSessionID: "m-1", OwnerID: "u", Status: types.MergeProcessing, Stage: "merge"}
		return nil
	})
	require.NoError(t, err)
	_, err = store.Merges.Compute("m-2", func(cur *types.MergeSession, _ bool) error {
		*cur = types.MergeSession{MergeSessionID: "m-2", OwnerID: "u", Status: types.MergeCompleted}
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	backend, err = sqlite.Open(ctx, path)
	require.NoError(t, err)
	restored := NewStore(backend, logging.Discard())
	t.Cleanup(func() { _ = restored.Close() })
	require.NoError(t, restored.Restore(ctx))

	up, ok := restored.Uploads.Get("up-1")
	require.True(t, ok)
	require.Equal(t, []int{0}, up.RemainingChunks())

	m1, ok := restored.Merges.Get("m-1")
	require.True(t, ok)
	require.Equal(t, types.MergeFailed, m1.Status)
	require.True(t, m1.Retryable)
	require.Equal(t, "merge", m1.ErrorStage)
	require.Equal(t, InterruptedMessage, m1.ErrorMessage)

	m2, ok := restored.Merges.Get("m-2")
	require.True(t, ok)
	require.Equal(t, types.MergeCompleted, m2.Status)
}

func TestStore_NilBackendIsMemoryOnly(t *testing.T) {
	store := NewStore(nil, logging.Discard())
	require.NoError(t, store.Restore(context.Background()))
	require.Zero(t, store.Uploads.Len())
	require.NoError(t, store.Close())
}
