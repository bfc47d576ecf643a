package media

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// Ref identifies a stored object.
type Ref struct {
	Key  string `json:"key"`
	Size int64  `json:"size"`
}

// BlobStore is byte-addressable object storage with signed retrieval URLs.
type BlobStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string, metadata map[string]string) (Ref, error)
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	// Delete reports whether an object was removed.
	Delete(ctx context.Context, key string) (bool, error)
}

// MergedArtifactKey is the deterministic location of a merge result, so a
// re-run overwrites rather than orphans the previous artifact.
func MergedArtifactKey(ownerID, mergeID string) string {
	return fmt.Sprintf("merged/%s/%s.mp4", sanitizeSegment(ownerID), sanitizeSegment(mergeID))
}

func sanitizeSegment(s string) string {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(s)
	if s == "" {
		return "_"
	}
	return s
}
