package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/princekumarofficial/statements-service/internal/utils/jwt"
)

var ErrInvalidKey = errors.New("invalid blob key")

// LocalStore keeps blobs on disk for environments without object storage.
// Signed URLs point at the service's own download route and carry a JWT
// scoped to the key.
type LocalStore struct {
	root    string
	baseURL string
	secret  string
}

func NewLocalStore(root, baseURL, secret string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &LocalStore{root: root, baseURL: strings.TrimSuffix(baseURL, "/"), secret: secret}, nil
}

func (s *LocalStore) path(key string) (string, error) {
	clean := filepath.FromSlash(strings.TrimPrefix(key, "/"))
	if key == "" || !filepath.IsLocal(clean) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *LocalStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string, metadata map[string]string) (Ref, error) {
	dst, err := s.path(key)
	if err != nil {
		return Ref{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return Ref{}, fmt.Errorf("create blob dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".put-*")
	if err != nil {
		return Ref{}, fmt.Errorf("create temp blob: %w", err)
	}
	defer os.Remove(tmp.Name())

	written, err := io.Copy(tmp, readerWithContext(ctx, body))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return Ref{}, fmt.Errorf("write blob %s: %w", key, err)
	}
	if size >= 0 && written != size {
		return Ref{}, fmt.Errorf("write blob %s: wrote %d bytes, expected %d", key, written, size)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return Ref{}, fmt.Errorf("commit blob %s: %w", key, err)
	}
	return Ref{Key: key, Size: written}, nil
}

func (s *LocalStore) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	if _, err := s.path(key); err != nil {
		return "", err
	}
	token, _, err := jwt.SignBlobKey(key, s.secret, ttl)
	if err != nil {
		return "", fmt.Errorf("sign blob url: %w", err)
	}
	return s.baseURL + "/" + key + "?token=" + url.QueryEscape(token), nil
}

func (s *LocalStore) Exists(_ context.Context, key string) (bool, error) {
	p, err := s.path(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	switch {
	case err == nil:
		return !info.IsDir(), nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

func (s *LocalStore) Delete(_ context.Context, key string) (bool, error) {
	p, err := s.path(key)
	if err != nil {
		return false, err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Open verifies a download token and opens the blob for serving.
func (s *LocalStore) Open(key, token string) (*os.File, error) {
	if err := jwt.VerifyBlobKey(token, key, s.secret); err != nil {
		return nil, err
	}
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

var _ BlobStore = (*LocalStore)(nil)
