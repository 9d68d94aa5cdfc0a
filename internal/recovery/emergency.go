package recovery

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/lcrostarosa/lifeboat/internal/config"
	apperrors "github.com/lcrostarosa/lifeboat/internal/errors"
	"github.com/lcrostarosa/lifeboat/internal/logging"
	"github.com/lcrostarosa/lifeboat/internal/store"
)

// EmergencyClasses are searched in this order.
var EmergencyClasses = []store.Class{store.Daily, store.Weekly, store.Snapshot}

// EmergencyResult reports an emergency recovery.
type EmergencyResult struct {
	Archive   store.Archive `json:"archive"`
	Attempts  []*Session    `json:"attempts"`
	Escalated bool          `json:"escalated"`
}

// Final returns the last attempt, or nil.
func (r *EmergencyResult) Final() *Session {
	if r == nil || len(r.Attempts) == 0 {
		return nil
	}
	return r.Attempts[len(r.Attempts)-1]
}

// Discover picks the archive emergency recovery uses. With the priority
// policy it is the newest archive of the first class that has any; with the
// newest policy it is the newest across all searched classes. It only reads
// the backup root.
func (o *Orchestrator) Discover() (store.Archive, error) {
	lists := make([][]store.Archive, 0, len(EmergencyClasses))
	for _, class := range EmergencyClasses {
		list, err := o.store.List(class)
		if err != nil {
			return store.Archive{}, err
		}
		if o.cfg.EmergencySelection != config.SelectNewest && len(list) > 0 {
			return list[0], nil
		}
		lists = append(lists, list)
	}
	if a, ok := store.Newest(lists...); ok {
		return a, nil
	}
	return store.Archive{}, fmt.Errorf("%w in %s (searched daily, weekly, snapshot)", apperrors.ErrNoBackupFound, o.cfg.BackupRoot)
}

// Emergency discovers an archive and tries a quick recovery, escalating to a
// full recovery from the same archive when quick fails.
func (o *Orchestrator) Emergency(ctx context.Context) (*EmergencyResult, error) {
	a, err := o.Discover()
	if err != nil {
		logging.Error("Emergency recovery found no archive", logging.Err(err))
		return nil, err
	}
	logging.Warn("Emergency recovery selected archive",
		logging.String("archive", a.Name),
		logging.String("class", string(a.Class)))

	result := &EmergencyResult{Archive: a}
	attempt := func(level Level) error {
		stages, err := o.plan(Request{Level: level})
		if err != nil {
			return err
		}
		session, err := o.run(ctx, a.Path, Request{Level: level}, stages)
		result.Attempts = append(result.Attempts, session)
		return err
	}

	quickErr := attempt(Quick)
	if quickErr == nil {
		return result, nil
	}
	if ctx.Err() != nil {
		return result, quickErr
	}

	logging.Warn("Quick recovery failed, escalating to full recovery", logging.Err(quickErr))
	result.Escalated = true
	fullErr := attempt(Full)
	if fullErr == nil {
		return result, nil
	}
	return result, fmt.Errorf("%w: %w", apperrors.ErrEmergencyExhausted, multierr.Combine(quickErr, fullErr))
}
