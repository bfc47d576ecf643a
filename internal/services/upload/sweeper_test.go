package upload

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/require"

	"github.com/princekumarofficial/statements-service/internal/types"
)

func TestSweep_ExpiresIdleAndRemovesRetained(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	data := []byte("0123456789")

	idle := initiate(t, m, "u", 10, nil)
	_, _, err := m.UploadChunk(ctx, "u", idle.SessionID, 0, []byte("0123"), "")
	require.NoError(t, err)

	done := initiate(t, m, "u", 10, nil)
	uploadAll(t, m, done, data)
	completed, err := m.Complete(ctx, "u", done.SessionID, "")
	require.NoError(t, err)

	base := time.Now().UTC()
	m.now = func() time.Time { return base.Add(90 * time.Minute) }
	res := m.Sweep(ctx)
	require.Equal(t, 1, res.Expired)
	require.Equal(t, 0, res.Removed)

	s, ok := m.Get(idle.SessionID)
	require.True(t, ok)
	require.Equal(t, types.UploadExpired, s.Status)
	_, err = os.Stat(m.chunkDir(idle.SessionID))
	require.True(t, os.IsNotExist(err))

	m.now = func() time.Time { return base.Add(5 * time.Hour) }
	res = m.Sweep(ctx)
	require.Equal(t, 2, res.Removed)
	_, ok = m.Get(done.SessionID)
	require.False(t, ok)
	_, err = os.Stat(completed.FilePath)
	require.True(t, os.IsNotExist(err))
}

func TestSweeper_SkipsWhenLockHeld(t *testing.T) {
	m, cfg := newTestManager(t)
	sw, err := NewSweeper(m, time.Minute, cfg.Upload.LockPath)
	require.NoError(t, err)

	require.True(t, sw.RunOnce(context.Background()))

	other := flock.New(cfg.Upload.LockPath)
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer other.Unlock()

	require.False(t, sw.RunOnce(context.Background()))
}
