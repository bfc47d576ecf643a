package upload

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/princekumarofficial/statements-service/internal/services"
)

// Digest is a client-supplied content hash. A bare hex value is sha256;
// otherwise the value is prefixed with its algorithm, e.g. "md5:...".
type Digest struct {
	Algorithm string
	Expected  []byte
}

// ParseDigest parses raw; an empty string yields a zero Digest.
func ParseDigest(raw string) (Digest, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Digest{}, nil
	}
	algo, value, ok := strings.Cut(raw, ":")
	if !ok {
		algo, value = "sha256", raw
	}
	algo = strings.ToLower(strings.TrimSpace(algo))

	want := 0
	switch algo {
	case "sha256", "blake2b":
		want = 32
	case "md5":
		want = md5.Size
	default:
		return Digest{}, services.Validationf("unsupported hash algorithm %q", algo)
	}

	expected, err := hex.DecodeString(strings.TrimSpace(value))
	if err != nil || len(expected) != want {
		return Digest{}, services.Validationf("malformed %s hash", algo)
	}
	return Digest{Algorithm: algo, Expected: expected}, nil
}

func (d Digest) IsZero() bool { return d.Algorithm == "" }

// New returns a fresh hasher for the digest's algorithm.
func (d Digest) New() hash.Hash {
	switch d.Algorithm {
	case "md5":
		return md5.New()
	case "blake2b":
		h, _ := blake2b.New256(nil)
		return h
	default:
		return sha256.New()
	}
}

// Check compares sum against the expected value.
func (d Digest) Check(sum []byte) error {
	if d.IsZero() {
		return nil
	}
	if !bytes.Equal(sum, d.Expected) {
		return fmt.Errorf("%w: %s expected %x, got %x", services.ErrHashMismatch, d.Algorithm, d.Expected, sum)
	}
	return nil
}

// Verify hashes data and checks it.
func (d Digest) Verify(data []byte) error {
	if d.IsZero() {
		return nil
	}
	h := d.New()
	h.Write(data)
	return d.Check(h.Sum(nil))
}
