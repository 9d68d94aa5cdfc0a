// Package crypto seals backup archives with a passphrase-derived key.
//
// Sealed stream layout:
//
//	magic "LBSEAL" | version (1 byte) | salt (16) | nonce prefix (7)
//	chunk*: length (uint32 BE, ciphertext length) | AES-256-GCM ciphertext
//
// Each chunk nonce is prefix | counter (uint32 BE) | final flag, and the
// header is bound to every chunk as additional data, so reordering,
// truncation and header tampering all fail authentication.
package crypto

import (
	"bufio"
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"

	apperrors "github.com/lcrostarosa/lifeboat/internal/errors"
)

// Argon2 parameters (OWASP recommended for 2023)
const (
	argon2Time    = 3
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4
	argon2KeyLen  = 32 // AES-256
	saltLen       = 16
	prefixLen     = 7
	tagLen        = 16
)

const (
	// Version allows future algorithm changes
	Version = 1

	// ChunkSize is the plaintext size of every chunk but the last.
	ChunkSize = 64 * 1024

	// Suffix marks sealed archive files.
	Suffix = ".enc"
)

var magic = []byte("LBSEAL")

// HeaderLen is the size of the sealed stream header.
var HeaderLen = len(magic) + 1 + saltLen + prefixLen

// ErrNotSealed is returned when a stream does not start with a sealed header.
var ErrNotSealed = errors.New("not a sealed archive")

// DeriveKey derives an AES-256 key from a passphrase using Argon2id
func DeriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey(
		[]byte(passphrase),
		salt,
		argon2Time,
		argon2Memory,
		argon2Threads,
		argon2KeyLen,
	)
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	key := DeriveKey(passphrase, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

func chunkNonce(prefix []byte, counter uint32, final bool) []byte {
	nonce := make([]byte, 12)
	copy(nonce, prefix)
	binary.BigEndian.PutUint32(nonce[prefixLen:], counter)
	if final {
		nonce[11] = 1
	}
	return nonce
}

// EncryptStream seals everything read from r into w.
func EncryptStream(w io.Writer, r io.Reader, passphrase string) error {
	if passphrase == "" {
		return apperrors.ErrEncryptionKeyMissing
	}

	header := make([]byte, HeaderLen)
	copy(header, magic)
	header[len(magic)] = Version
	salt := header[len(magic)+1 : len(magic)+1+saltLen]
	prefix := header[len(magic)+1+saltLen:]

	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}
	if _, err := io.ReadFull(rand.Reader, prefix); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return err
	}

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	br := bufio.NewReaderSize(r, ChunkSize)
	buf := make([]byte, ChunkSize)
	var counter uint32
	for {
		n, err := io.ReadFull(br, buf)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return fmt.Errorf("failed to read plaintext: %w", err)
		}
		// The stream is final once a short read happens or nothing follows.
		final := err != nil
		if !final {
			if _, peekErr := br.Peek(1); peekErr == io.EOF {
				final = true
			}
		}

		sealed := gcm.Seal(nil, chunkNonce(prefix, counter, final), buf[:n], header)
		var length [4]byte
		binary.BigEndian.PutUint32(length[:], uint32(len(sealed)))
		if _, err := w.Write(length[:]); err != nil {
			return fmt.Errorf("failed to write chunk: %w", err)
		}
		if _, err := w.Write(sealed); err != nil {
			return fmt.Errorf("failed to write chunk: %w", err)
		}

		if final {
			return nil
		}
		counter++
	}
}

// DecryptStream opens a sealed stream from r into w. Plaintext of a chunk is
// only written after that chunk authenticates; callers writing to a file
// should use DecryptFile so a failure never leaves partial plaintext behind.
func DecryptStream(w io.Writer, r io.Reader, passphrase string) error {
	if passphrase == "" {
		return apperrors.ErrEncryptionKeyMissing
	}

	header, err := readHeader(r)
	if err != nil {
		return err
	}
	salt := header[len(magic)+1 : len(magic)+1+saltLen]
	prefix := header[len(magic)+1+saltLen:]

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return err
	}

	var counter uint32
	for {
		var length [4]byte
		if _, err := io.ReadFull(r, length[:]); err != nil {
			// Missing final chunk means truncation.
			return fmt.Errorf("%w: truncated stream", apperrors.ErrDecryptFailed)
		}
		size := binary.BigEndian.Uint32(length[:])
		if size < tagLen || size > ChunkSize+tagLen {
			return fmt.Errorf("%w: invalid chunk length", apperrors.ErrDecryptFailed)
		}
		sealed := make([]byte, size)
		if _, err := io.ReadFull(r, sealed); err != nil {
			return fmt.Errorf("%w: truncated stream", apperrors.ErrDecryptFailed)
		}

		final := false
		plaintext, err := gcm.Open(nil, chunkNonce(prefix, counter, false), sealed, header)
		if err != nil {
			plaintext, err = gcm.Open(nil, chunkNonce(prefix, counter, true), sealed, header)
			if err != nil {
				return apperrors.ErrDecryptFailed
			}
			final = true
		}

		if _, err := w.Write(plaintext); err != nil {
			return fmt.Errorf("failed to write plaintext: %w", err)
		}

		if final {
			var trailing [1]byte
			if n, _ := r.Read(trailing[:]); n > 0 {
				return fmt.Errorf("%w: data after final chunk", apperrors.ErrDecryptFailed)
			}
			return nil
		}
		counter++
	}
}

func readHeader(r io.Reader) ([]byte, error) {
	header := make([]byte, HeaderLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, ErrNotSealed
	}
	if !bytes.Equal(header[:len(magic)], magic) {
		return nil, ErrNotSealed
	}
	if v := header[len(magic)]; v != Version {
		return nil, fmt.Errorf("unsupported encryption version: %d", v)
	}
	return header, nil
}

// IsSealed checks whether the file at path starts with a valid sealed header.
func IsSealed(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	if _, err := readHeader(f); err != nil {
		if errors.Is(err, ErrNotSealed) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// EncryptFile seals src into dst. dst appears only once sealing completes.
func EncryptFile(src, dst, passphrase string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	return writeAtomic(dst, func(w io.Writer) error {
		return EncryptStream(w, in, passphrase)
	})
}

// DecryptFile opens the sealed file src into dst. On any failure (wrong
// passphrase, tampering, truncation) dst is not created.
func DecryptFile(src, dst, passphrase string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	return writeAtomic(dst, func(w io.Writer) error {
		return DecryptStream(w, bufio.NewReader(in), passphrase)
	})
}

func writeAtomic(dst string, fill func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err := fill(bw); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", dst, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", dst, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dst, err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", dst, err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("failed to rename %s: %w", dst, err)
	}
	committed = true
	return nil
}
