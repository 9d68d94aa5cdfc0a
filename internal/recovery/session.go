// Package recovery restores a project from a backup archive in ordered,
// per-component stages behind a pre-recovery safety snapshot.
package recovery

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	apperrors "github.com/lcrostarosa/lifeboat/internal/errors"
	"github.com/lcrostarosa/lifeboat/internal/severity"
	"github.com/lcrostarosa/lifeboat/internal/validate"
)

// Level is the scope of a recovery.
type Level string

// Recovery levels
const (
	Quick     Level = "quick"
	Full      Level = "full"
	Selective Level = "selective"
	Emergency Level = "emergency"
)

// Levels returns every level in CLI order.
func Levels() []Level {
	return []Level{Quick, Full, Selective, Emergency}
}

// ParseLevel validates a level name.
func ParseLevel(s string) (Level, error) {
	for _, l := range Levels() {
		if string(l) == s {
			return l, nil
		}
	}
	return "", fmt.Errorf("%w: %q (want quick, full, selective or emergency)", apperrors.ErrInvalidLevel, s)
}

// State is a step of the recovery state machine.
type State string

// Session states
const (
	StateInit        State = "INIT"
	StatePreSnapshot State = "PRE_SNAPSHOT"
	StateValidate    State = "VALIDATE"
	StateDone        State = "DONE"
	StateFailed      State = "FAILED"
)

// StageState returns the state of the n-th stage, counting from one.
func StageState(n int) State {
	return State(fmt.Sprintf("STAGE_%d", n))
}

// Transition records entering a state.
type Transition struct {
	State State     `json:"state"`
	At    time.Time `json:"at"`
}

// SnapshotRef points at the pre-recovery snapshot on disk.
type SnapshotRef struct {
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

// StageResult is the outcome of one stage.
type StageResult struct {
	Stage     string        `json:"stage"`
	Component string        `json:"component"`
	Attempted bool          `json:"attempted"`
	Succeeded bool          `json:"succeeded"`
	Skipped   bool          `json:"skipped,omitempty"`
	Files     int           `json:"files"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`

	err error
}

// Session records one recovery invocation.
type Session struct {
	ID                  string           `json:"id"`
	SourceArchive       string           `json:"source_archive"`
	Level               Level            `json:"level"`
	Component           string           `json:"component,omitempty"`
	ContinueOnError     bool             `json:"continue_on_error,omitempty"`
	PreRecoverySnapshot *SnapshotRef     `json:"pre_recovery_snapshot,omitempty"`
	StageResults        []StageResult    `json:"stage_results"`
	Validation          *validate.Result `json:"validation,omitempty"`
	FinalStatus         severity.Level   `json:"final_status"`
	State               State            `json:"state"`
	Transitions         []Transition     `json:"transitions"`
	StartedAt           time.Time        `json:"started_at"`
	FinishedAt          time.Time        `json:"finished_at"`
}

func newSession(archive string, level Level, component string, now time.Time) *Session {
	s := &Session{
		ID:            uuid.New().String(),
		SourceArchive: archive,
		Level:         level,
		Component:     component,
		StartedAt:     now,
	}
	s.enter(StateInit, now)
	return s
}

func (s *Session) enter(state State, at time.Time) {
	s.State = state
	s.Transitions = append(s.Transitions, Transition{State: state, At: at})
}

// Succeeded reports whether the session reached DONE.
func (s *Session) Succeeded() bool {
	return s != nil && s.State == StateDone
}

// StageErrors combines the errors of every failed stage, or returns nil.
func (s *Session) StageErrors() error {
	var err error
	for _, r := range s.StageResults {
		if r.err != nil {
			err = multierr.Append(err, r.err)
		}
	}
	return err
}

// Summary is a one-line description of the outcome.
func (s *Session) Summary() string {
	var failed, skipped []string
	done := 0
	for _, r := range s.StageResults {
		switch {
		case r.Skipped:
			skipped = append(skipped, r.Stage)
		case r.Succeeded:
			done++
		case r.Attempted:
			failed = append(failed, r.Stage)
		}
	}
	parts := []string{fmt.Sprintf("%s recovery %s: %d stage(s) restored", s.Level, strings.ToLower(string(s.State)), done)}
	if len(failed) > 0 {
		parts = append(parts, "failed: "+strings.Join(failed, ", "))
	}
	if len(skipped) > 0 {
		parts = append(parts, "skipped: "+strings.Join(skipped, ", "))
	}
	return strings.Join(parts, "; ")
}
