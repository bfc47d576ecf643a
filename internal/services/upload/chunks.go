package upload

import (
	"context"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

func (m *Manager) chunkDir(sessionID string) string {
	return filepath.Join(m.cfg.ChunkDir, sessionID)
}

func (m *Manager) chunkPath(sessionID string, idx int) string {
	return filepath.Join(m.chunkDir(sessionID), strconv.Itoa(idx)+".part")
}

func (m *Manager) completedDir(sessionID string) string {
	return filepath.Join(m.cfg.CompletedDir, sessionID)
}

// writeFileAtomic writes data next to path and renames it into place, so a
// reader never observes a partially written chunk.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create chunk dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".chunk-*")
	if err != nil {
		return fmt.Errorf("create temp chunk: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write chunk: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close chunk: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("commit chunk: %w", err)
	}
	return nil
}

// reassemble concatenates chunk files 0..total-1 into a temp file inside
// dir, feeding every byte through h. The caller renames or removes it.
func (m *Manager) reassemble(ctx context.Context, sessionID string, total int, dir string, h hash.Hash) (string, int64, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create output dir: %w", err)
	}
	out, err := os.CreateTemp(dir, ".assemble-*")
	if err != nil {
		return "", 0, fmt.Errorf("create output file: %w", err)
	}
	tmpName := out.Name()
	fail := func(err error) (string, int64, error) {
		_ = out.Close()
		_ = os.Remove(tmpName)
		return "", 0, err
	}

	w := io.MultiWriter(out, h)
	var written int64
	for idx := 0; idx < total; idx++ {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		n, err := copyFile(w, m.chunkPath(sessionID, idx))
		if err != nil {
			return fail(fmt.Errorf("append chunk %d: %w", idx, err))
		}
		written += n
	}
	if err := out.Sync(); err != nil {
		return fail(fmt.Errorf("sync output: %w", err))
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", 0, fmt.Errorf("close output: %w", err)
	}
	return tmpName, written, nil
}

func copyFile(w io.Writer, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(w, f)
}

func (m *Manager) removeAll(path, what, sessionID string) {
	if err := os.RemoveAll(path); err != nil {
		m.logger.Warn("failed to remove "+what, "session_id", sessionID, "path", path, "error", err)
	}
}
