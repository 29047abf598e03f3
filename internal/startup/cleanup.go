// Package startup provides tasks run before playback begins.
package startup

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jmylchreest/livefeed/internal/observability"
	"github.com/jmylchreest/livefeed/internal/storage"
)

// DefaultCleanupAge is how old an unfinished recording must be before it is
// considered orphaned.
const DefaultCleanupAge = time.Hour

// CleanupOrphanedRecordings removes temporary recordings older than maxAge
// left in dir by runs that did not shut down cleanly. It returns how many
// files were removed.
func CleanupOrphanedRecordings(logger *slog.Logger, dir string, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		logger.Debug("recording directory does not exist, skipping cleanup", slog.String("path", dir))
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	var removed int

	for _, entry := range entries {
		if entry.IsDir() || !storage.IsTempName(entry.Name()) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			observability.WithError(logger, err).Warn("failed to stat temporary recording", slog.String("path", path))
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		if err := os.Remove(path); err != nil {
			observability.WithError(logger, err).Warn("failed to remove orphaned recording", slog.String("path", path))
			continue
		}

		logger.Info("removed orphaned recording",
			slog.String("path", path),
			slog.Duration("age", time.Since(info.ModTime()).Round(time.Second)),
		)
		removed++
	}

	return removed, nil
}
