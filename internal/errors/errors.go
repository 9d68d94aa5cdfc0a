// Package errors provides sentinel errors for the lifeboat application.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Configuration errors
var (
	// ErrInvalidConfig is returned when the loaded configuration fails validation.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEncryptionKeyMissing is returned when encryption is requested but no
	// passphrase is available. Encrypted backups are never downgraded.
	ErrEncryptionKeyMissing = errors.New("encryption requested but no encryption key configured")
)

// Archive errors
var (
	// ErrInvalidClass is returned for an unknown backup class.
	ErrInvalidClass = errors.New("invalid backup class")

	// ErrArchiveTooSmall is returned when an archive is below the minimum size.
	ErrArchiveTooSmall = errors.New("archive below minimum size")

	// ErrArchiveCorrupt is returned when an archive cannot be read structurally.
	ErrArchiveCorrupt = errors.New("archive is corrupt or unreadable")

	// ErrManifestMissing is returned when an archive has no manifest.
	ErrManifestMissing = errors.New("archive manifest missing")

	// ErrManifestMismatch is returned when file digests disagree with the manifest.
	ErrManifestMismatch = errors.New("manifest checksum mismatch")

	// ErrUnsupportedManifest is returned for manifests with an unknown version.
	ErrUnsupportedManifest = errors.New("unsupported manifest version")

	// ErrUnsafePath is returned when an archive entry would escape the target directory.
	ErrUnsafePath = errors.New("archive entry escapes target directory")

	// ErrDecryptFailed is returned for a wrong passphrase or tampered ciphertext.
	ErrDecryptFailed = errors.New("decryption failed: invalid passphrase or corrupted data")
)

// Recovery errors
var (
	// ErrNoBackupFound is returned when no archive is available to recover from.
	ErrNoBackupFound = errors.New("no backup archive found")

	// ErrUnknownComponent is returned for a selective recovery of an unknown component.
	ErrUnknownComponent = errors.New("unknown recovery component")

	// ErrComponentNotInArchive is returned when a selective recovery names a
	// component the archive never captured.
	ErrComponentNotInArchive = errors.New("component not present in archive")

	// ErrInvalidLevel is returned for an unknown recovery level.
	ErrInvalidLevel = errors.New("invalid recovery level")

	// ErrValidationFailed is returned when post-recovery validation fails.
	ErrValidationFailed = errors.New("post-recovery validation failed")

	// ErrEmergencyExhausted is returned when quick and full emergency recovery both fail.
	ErrEmergencyExhausted = errors.New("emergency recovery exhausted quick and full attempts")
)

// Assessment errors
var (
	// ErrInvalidMode is returned for an unknown assessment mode.
	ErrInvalidMode = errors.New("invalid assessment mode")
)

// Locking errors
var (
	// ErrLocked is returned when the backup root is held by another invocation.
	ErrLocked = errors.New("backup root is locked by another invocation")
)

// Command errors
var (
	// ErrCommandFailed is returned when an external command exits non-zero.
	ErrCommandFailed = errors.New("command failed")

	// ErrNotRepository is returned when the project root is not a git work tree.
	ErrNotRepository = errors.New("not a git repository")
)

// CommandError records a failed external command and its stderr.
type CommandError struct {
	Command string
	Args    []string
	Output  string
	Err     error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s %s failed", e.Command, strings.Join(e.Args, " "))
	if e.Output != "" {
		msg = fmt.Sprintf("%s: %s", msg, strings.TrimSpace(e.Output))
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// StageError reports which recovery stage failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ExitError carries a specific process exit code out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}
