package sessions

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/princekumarofficial/statements-service/internal/services"
	"github.com/princekumarofficial/statements-service/internal/types"
)

func newUploadRegistry() *Registry[types.UploadSession] {
	return NewRegistry(types.UploadSession.Clone, nil, nil)
}

func TestRegistry_UpdateCommitsOnlyOnSuccess(t *testing.T) {
	r := newUploadRegistry()
	_, err := r.Compute("s1", func(cur *types.UploadSession, exists bool) error {
		require.False(t, exists)
		cur.SessionID = "s1"
		cur.UploadedChunks = map[int]bool{}
		return nil
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = r.Update("s1", func(s *types.UploadSession) error {
		s.UploadedChunks[3] = true
		s.Status = types.UploadCompleted
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, ok := r.Get("s1")
	require.True(t, ok)
	require.Empty(t, got.UploadedChunks)
	require.Equal(t, types.UploadStatus(""), got.Status)

	updated, err := r.Update("s1", func(s *types.UploadSession) error {
		s.UploadedChunks[3] = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, updated.UploadedChunks[3])
}

func TestRegistry_SnapshotsAreIsolated(t *testing.T) {
	r := newUploadRegistry()
	_, err := r.Compute("s1", func(cur *types.UploadSession, _ bool) error {
		cur.UploadedChunks = map[int]bool{0: true}
		return nil
	})
	require.NoError(t, err)

	snap, _ := r.Get("s1")
	snap.UploadedChunks[9] = true

	again, _ := r.Get("s1")
	require.Len(t, again.UploadedChunks, 1)
}

func TestRegistry_UpdateMissing(t *testing.T) {
	r := newUploadRegistry()
	_, err := r.Update("nope", func(*types.UploadSession) error { return nil })
	require.ErrorIs(t, err, services.ErrSessionNotFound)
}

func TestRegistry_ComputeCreatesOnce(t *testing.T) {
	r := NewRegistry(types.MergeSession.Clone, nil, nil)
	var created atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Compute("m1", func(cur *types.MergeSession, exists bool) error {
				if exists {
					return nil
				}
				created.Add(1)
				cur.MergeSessionID = "m1"
				cur.Status = types.MergePending
				return nil
			})
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), created.Load())
	require.Equal(t, 1, r.Len())
}

func TestRegistry_DeleteAndValues(t *testing.T) {
	var saved, removed atomic.Int32
	r := NewRegistry(types.UploadSession.Clone,
		func(types.UploadSession) { saved.Add(1) },
		func(string) { removed.Add(1) })

	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("s%d", i)
		_, err := r.Compute(id, func(cur *types.UploadSession, _ bool) error {
			cur.SessionID = id
			cur.OwnerID = "u"
			if i%2 == 0 {
				cur.OwnerID = "v"
			}
			return nil
		})
		require.NoError(t, err)
	}
	require.Equal(t, int32(10), saved.Load())

	owned := r.Values(func(s types.UploadSession) bool { return s.OwnerID == "v" })
	require.Len(t, owned, 5)

	_, ok := r.Delete("s0")
	require.True(t, ok)
	_, ok = r.Delete("s0")
	require.False(t, ok)
	require.Equal(t, int32(1), removed.Load())
	require.Len(t, r.Values(nil), 9)
}
