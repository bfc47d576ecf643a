package upload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/princekumarofficial/statements-service/internal/types"
)

// SweepResult counts what a sweep changed.
type SweepResult struct {
	Expired int
	Removed int
}

// Sweep marks idle unfinished sessions expired and drops their chunks, and
// removes completed or expired sessions past their retention.
func (m *Manager) Sweep(ctx context.Context) SweepResult {
	var res SweepResult
	now := m.now()
	for _, s := range m.uploads.Values(nil) {
		if ctx.Err() != nil {
			break
		}
		switch s.Status {
		case types.UploadPending, types.UploadInProgress:
			if s.ExpiresAt.IsZero() || !now.After(s.ExpiresAt) {
				continue
			}
			_, err := m.uploads.Update(s.SessionID, func(cur *types.UploadSession) error {
				cur.Status = types.UploadExpired
				cur.UpdatedAt = now
				cur.ExpiresAt = now.Add(m.cfg.CompletedRetention)
				return nil
			})
			if err != nil {
				continue
			}
			m.removeAll(m.chunkDir(s.SessionID), "chunk dir", s.SessionID)
			res.Expired++
		case types.UploadCompleted, types.UploadExpired, types.UploadFailed:
			if s.ExpiresAt.IsZero() || !now.After(s.ExpiresAt) {
				continue
			}
			if m.discard(s.SessionID) {
				res.Removed++
			}
		}
	}
	return res
}

// Sweeper runs Sweep on an interval. A file lock makes sure only one
// process sweeps a shared chunk directory at a time.
type Sweeper struct {
	manager  *Manager
	interval time.Duration
	lock     *flock.Flock
	lockPath string
}

func NewSweeper(manager *Manager, interval time.Duration, lockPath string) (*Sweeper, error) {
	if dir := filepath.Dir(lockPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create lock dir: %w", err)
		}
	}
	return &Sweeper{
		manager:  manager,
		interval: interval,
		lock:     flock.New(lockPath),
		lockPath: lockPath,
	}, nil
}

func (sw *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	logger := sw.manager.logger
	logger.Info("Upload sweeper started", "interval", sw.interval.String(), "lock", sw.lockPath)

	// Run once immediately on startup
	sw.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Upload sweeper shutting down")
			return
		case <-ticker.C:
			sw.RunOnce(ctx)
		}
	}
}

// RunOnce sweeps if the lock is free and reports whether it ran.
func (sw *Sweeper) RunOnce(ctx context.Context) bool {
	logger := sw.manager.logger
	ok, err := sw.lock.TryLock()
	if err != nil {
		logger.Error("Failed to acquire sweeper lock", "lock", sw.lockPath, "error", err)
		return false
	}
	if !ok {
		logger.Debug("Sweeper lock held elsewhere, skipping", "lock", sw.lockPath)
		return false
	}
	defer func() {
		if err := sw.lock.Unlock(); err != nil {
			logger.Warn("Failed to release sweeper lock", "error", err)
		}
	}()

	startTime := time.Now()
	res := sw.manager.Sweep(ctx)
	duration := time.Since(startTime)
	logger.Info("Completed upload sweep",
		"sessions_expired", res.Expired,
		"sessions_removed", res.Removed,
		"duration_ms", duration.Milliseconds())
	return true
}
