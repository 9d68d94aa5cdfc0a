package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStageErrorUnwrap(t *testing.T) {
	err := fmt.Errorf("recovery: %w", &StageError{Stage: "scripts", Err: ErrManifestMismatch})

	assert.ErrorIs(t, err, ErrManifestMismatch)

	var stageErr *StageError
	assert.True(t, errors.As(err, &stageErr))
	assert.Equal(t, "scripts", stageErr.Stage)
	assert.Contains(t, err.Error(), "stage scripts")
}

func TestExitError(t *testing.T) {
	t.Run("wraps inner error", func(t *testing.T) {
		err := &ExitError{Code: 2, Err: ErrValidationFailed}
		assert.ErrorIs(t, err, ErrValidationFailed)
		assert.Equal(t, ErrValidationFailed.Error(), err.Error())
	})

	t.Run("formats code without inner error", func(t *testing.T) {
		err := &ExitError{Code: 1}
		assert.Equal(t, "exit status 1", err.Error())
	})
}

func TestCommandError(t *testing.T) {
	err := &CommandError{
		Command: "git",
		Args:    []string{"fsck", "--no-progress"},
		Output:  "error: object corrupt\n",
		Err:     ErrCommandFailed,
	}

	assert.ErrorIs(t, err, ErrCommandFailed)
	assert.Equal(t, "git fsck --no-progress failed: error: object corrupt: command failed", err.Error())
}
