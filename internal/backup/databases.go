package backup

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/lcrostarosa/lifeboat/internal/component"
	"github.com/lcrostarosa/lifeboat/internal/fsutil"
	"github.com/lcrostarosa/lifeboat/internal/logging"
	"github.com/lcrostarosa/lifeboat/internal/severity"
)

// captureDatabases copies database files. SQLite files are captured with
// VACUUM INTO so a live writer cannot leave a torn copy; anything that will
// not open as SQLite is copied byte for byte.
func captureDatabases(ctx context.Context, e *Engine, dst string) (ComponentResult, error) {
	files, err := e.sources(component.Databases)
	if err != nil {
		return ComponentResult{}, err
	}
	if len(files) == 0 {
		return ComponentResult{Skipped: true, Message: "no databases found"}, nil
	}

	result := ComponentResult{Files: len(files)}
	var copied []string
	for _, rel := range files {
		src := e.cfg.ProjectPath(rel)
		out := filepath.Join(dst, filepath.FromSlash(rel))
		if isSQLiteName(rel) {
			err := vacuumInto(ctx, src, out)
			if err == nil {
				continue
			}
			logging.Debug("VACUUM INTO failed, copying raw file",
				logging.String("database", rel), logging.Err(err))
			_ = os.Remove(out)
			copied = append(copied, rel)
		}
		if err := fsutil.CopyFile(src, out); err != nil {
			return ComponentResult{}, err
		}
	}
	if len(copied) > 0 {
		result.Severity = severity.Warning
		result.Message = "copied without a consistent snapshot: " + strings.Join(copied, ", ")
	}
	return result, nil
}

func isSQLiteName(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range component.DatabaseExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// vacuumInto writes a consistent copy of the SQLite database src to dst.
func vacuumInto(ctx context.Context, src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", src))
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", dst); err != nil {
		return fmt.Errorf("vacuum %s: %w", filepath.Base(src), err)
	}
	if info, err := os.Stat(src); err == nil {
		_ = os.Chmod(dst, info.Mode().Perm())
	}
	return nil
}
