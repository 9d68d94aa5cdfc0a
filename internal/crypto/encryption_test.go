package crypto

import (
	"bytes"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/lcrostarosa/lifeboat/internal/errors"
)

const passphrase = "correct horse battery staple"

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func TestStreamRoundTrip(t *testing.T) {
	sizes := map[string]int{
		"empty":            0,
		"small":            100,
		"exact chunk":      ChunkSize,
		"multi chunk":      3*ChunkSize + 17,
		"two exact chunks": 2 * ChunkSize,
	}

	for name, size := range sizes {
		t.Run(name, func(t *testing.T) {
			plaintext := randomBytes(t, size)

			var sealed bytes.Buffer
			require.NoError(t, EncryptStream(&sealed, bytes.NewReader(plaintext), passphrase))
			assert.Greater(t, sealed.Len(), len(plaintext)+HeaderLen)

			var opened bytes.Buffer
			require.NoError(t, DecryptStream(&opened, bytes.NewReader(sealed.Bytes()), passphrase))
			assert.Equal(t, len(plaintext), opened.Len())
			assert.True(t, bytes.Equal(plaintext, opened.Bytes()))
		})
	}
}

func TestDecryptStreamFailures(t *testing.T) {
	plaintext := randomBytes(t, 2*ChunkSize+5)
	var sealed bytes.Buffer
	require.NoError(t, EncryptStream(&sealed, bytes.NewReader(plaintext), passphrase))
	data := sealed.Bytes()

	t.Run("wrong passphrase", func(t *testing.T) {
		err := DecryptStream(&bytes.Buffer{}, bytes.NewReader(data), "wrong")
		assert.ErrorIs(t, err, apperrors.ErrDecryptFailed)
	})

	t.Run("missing passphrase", func(t *testing.T) {
		err := DecryptStream(&bytes.Buffer{}, bytes.NewReader(data), "")
		assert.ErrorIs(t, err, apperrors.ErrEncryptionKeyMissing)
	})

	t.Run("truncated final chunk", func(t *testing.T) {
		cut := data[:len(data)-ChunkSize/2]
		err := DecryptStream(&bytes.Buffer{}, bytes.NewReader(cut), passphrase)
		assert.ErrorIs(t, err, apperrors.ErrDecryptFailed)
	})

	t.Run("dropped final chunk", func(t *testing.T) {
		// header + two full chunks, final chunk removed entirely
		full := HeaderLen + 2*(4+ChunkSize+tagLen)
		err := DecryptStream(&bytes.Buffer{}, bytes.NewReader(data[:full]), passphrase)
		assert.ErrorIs(t, err, apperrors.ErrDecryptFailed)
	})

	t.Run("flipped ciphertext bit", func(t *testing.T) {
		tampered := append([]byte(nil), data...)
		tampered[HeaderLen+10] ^= 0x01
		err := DecryptStream(&bytes.Buffer{}, bytes.NewReader(tampered), passphrase)
		assert.ErrorIs(t, err, apperrors.ErrDecryptFailed)
	})

	t.Run("tampered header salt", func(t *testing.T) {
		tampered := append([]byte(nil), data...)
		tampered[len(magic)+2] ^= 0x01
		err := DecryptStream(&bytes.Buffer{}, bytes.NewReader(tampered), passphrase)
		assert.ErrorIs(t, err, apperrors.ErrDecryptFailed)
	})

	t.Run("not sealed", func(t *testing.T) {
		err := DecryptStream(&bytes.Buffer{}, bytes.NewReader([]byte("plain gzip bytes here, nothing sealed")), passphrase)
		assert.ErrorIs(t, err, ErrNotSealed)
	})
}

func TestEncryptStreamRequiresPassphrase(t *testing.T) {
	err := EncryptStream(&bytes.Buffer{}, bytes.NewReader([]byte("data")), "")
	assert.ErrorIs(t, err, apperrors.ErrEncryptionKeyMissing)
}

func TestFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "daily_backup.tar.gz")
	sealed := src + Suffix
	opened := filepath.Join(dir, "opened.tar.gz")

	content := randomBytes(t, 5000)
	require.NoError(t, os.WriteFile(src, content, 0o600))

	require.NoError(t, EncryptFile(src, sealed, passphrase))

	ok, err := IsSealed(sealed)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = IsSealed(src)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, DecryptFile(sealed, opened, passphrase))
	got, err := os.ReadFile(opened)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestDecryptFileWrongKeyLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in")
	sealed := filepath.Join(dir, "in.enc")
	out := filepath.Join(dir, "out")

	require.NoError(t, os.WriteFile(src, randomBytes(t, 3*ChunkSize), 0o600))
	require.NoError(t, EncryptFile(src, sealed, passphrase))

	err := DecryptFile(sealed, out, "not the passphrase")
	assert.ErrorIs(t, err, apperrors.ErrDecryptFailed)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr), "no plaintext must be produced")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "temp files must be cleaned up")
}
