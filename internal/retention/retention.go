// Package retention prunes archives that have outlived their class window.
package retention

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lcrostarosa/lifeboat/internal/config"
	"github.com/lcrostarosa/lifeboat/internal/logging"
	"github.com/lcrostarosa/lifeboat/internal/store"
)

// PartialGrace is how old an abandoned partial file must be before it is removed.
const PartialGrace = time.Hour

// PruneResult reports what a prune pass removed.
type PruneResult struct {
	Class           store.Class   `json:"class"`
	Window          time.Duration `json:"window"`
	Removed         []string      `json:"removed,omitempty"`
	PartialsRemoved []string      `json:"partials_removed,omitempty"`
	FreedBytes      int64         `json:"freed_bytes"`
	Kept            int           `json:"kept"`
}

// Manager applies retention windows to a backup root.
type Manager struct {
	store *store.Store
	cfg   config.RetentionConfig
	now   func() time.Time
}

// New creates a retention manager.
func New(st *store.Store, cfg config.RetentionConfig) *Manager {
	return &Manager{store: st, cfg: cfg, now: time.Now}
}

// Window returns the configured window of class; zero means unbounded.
func (m *Manager) Window(class store.Class) time.Duration {
	return time.Duration(m.cfg.Days(string(class))) * 24 * time.Hour
}

// PruneClass prunes class with its configured window.
func (m *Manager) PruneClass(class store.Class) (*PruneResult, error) {
	return m.Prune(class, m.Window(class))
}

// Prune deletes archives of class whose modification time is older than
// window. Other classes are never touched, the newest KeepMinimum archives
// of the class always survive, and a zero window deletes nothing. Running it
// twice in a row removes nothing the second time.
func (m *Manager) Prune(class store.Class, window time.Duration) (*PruneResult, error) {
	result := &PruneResult{Class: class, Window: window}

	list, err := m.store.List(class)
	if err != nil {
		return nil, err
	}

	if err := m.prunePartials(class, result); err != nil {
		return nil, err
	}

	if window <= 0 {
		result.Kept = len(list)
		logging.Debug("Retention unbounded for class", logging.String("class", string(class)))
		return result, nil
	}

	cutoff := m.now().Add(-window)
	for i, a := range list {
		if i < m.cfg.KeepMinimum || !a.ModTime.Before(cutoff) {
			result.Kept++
			continue
		}
		if err := os.Remove(a.Path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return result, fmt.Errorf("failed to remove %s: %w", a.Name, err)
		}
		result.Removed = append(result.Removed, a.Name)
		result.FreedBytes += a.Size
		logging.Info("Pruned archive",
			logging.String("archive", a.Name),
			logging.String("class", string(class)),
			logging.Duration("age", m.now().Sub(a.ModTime)))
	}

	return result, nil
}

func (m *Manager) prunePartials(class store.Class, result *PruneResult) error {
	partials, err := m.store.Partials()
	if err != nil {
		return err
	}
	prefix := "." + string(class) + "_backup_"
	cutoff := m.now().Add(-PartialGrace)
	for _, p := range partials {
		if !strings.HasPrefix(filepath.Base(p), prefix) {
			continue
		}
		info, err := os.Stat(p)
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove partial %s: %w", p, err)
		}
		result.PartialsRemoved = append(result.PartialsRemoved, filepath.Base(p))
		result.FreedBytes += info.Size()
	}
	return nil
}
