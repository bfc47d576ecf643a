package upload

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/princekumarofficial/statements-service/internal/services"
)

func TestParseDigest(t *testing.T) {
	sum := sha256.Sum256([]byte("payload"))
	hexSum := hex.EncodeToString(sum[:])

	d, err := ParseDigest(hexSum)
	require.NoError(t, err)
	require.Equal(t, "sha256", d.Algorithm)
	require.NoError(t, d.Verify([]byte("payload")))

	d, err = ParseDigest("SHA256:" + strings.ToUpper(hexSum))
	require.NoError(t, err)
	require.NoError(t, d.Verify([]byte("payload")))
	require.ErrorIs(t, d.Verify([]byte("other")), services.ErrHashMismatch)

	d, err = ParseDigest("  ")
	require.NoError(t, err)
	require.True(t, d.IsZero())
	require.NoError(t, d.Verify([]byte("anything")))

	for _, bad := range []string{"crc32:abcd", "md5:zz", "sha256:abcd", "blake2b:" + hexSum[:10]} {
		_, err := ParseDigest(bad)
		require.ErrorIs(t, err, services.ErrValidation, bad)
	}
}
