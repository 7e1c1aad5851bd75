package artifact

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ReservedMarker protects entries of the download root from sweeping.
// Any entry whose name contains it is kept regardless of age.
const ReservedMarker = "assets"

// RetentionConfig defines retention policy
type RetentionConfig struct {
	RetentionDays int // Days to keep build directories
}

// DefaultRetentionConfig returns sensible defaults
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		RetentionDays: 7,
	}
}

// Sweeper removes build directories that outlived the retention window.
type Sweeper struct {
	baseDir string
	config  RetentionConfig
	logger  *slog.Logger

	now func() time.Time
}

// NewSweeper creates a sweeper for the download root baseDir.
func NewSweeper(baseDir string, config RetentionConfig, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		baseDir: baseDir,
		config:  config,
		logger:  logger,
		now:     time.Now,
	}
}

// CleanupResult summarizes cleanup actions
type CleanupResult struct {
	Deleted    []string `json:"deleted"`
	Kept       []string `json:"kept"`
	Skipped    []string `json:"skipped"`
	Errors     []string `json:"errors,omitempty"`
	SpaceSaved int64    `json:"spaceSaved"`
}

// Sweep deletes every entry of the download root older than the retention
// window, except reserved ones. A failed removal is recorded and the sweep
// moves on; nothing already removed is restored.
func (s *Sweeper) Sweep(dryRun bool) (*CleanupResult, error) {
	result := &CleanupResult{
		Deleted: make([]string, 0),
		Kept:    make([]string, 0),
		Skipped: make([]string, 0),
		Errors:  make([]string, 0),
	}

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, err
	}

	threshold := s.now().Add(-time.Duration(s.config.RetentionDays) * 24 * time.Hour)

	for _, entry := range entries {
		name := entry.Name()
		if strings.Contains(name, ReservedMarker) {
			result.Skipped = append(result.Skipped, name)
			continue
		}

		path := filepath.Join(s.baseDir, name)
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("stat %s: %v", name, err))
			continue
		}

		if !entryTime(info).Before(threshold) {
			result.Kept = append(result.Kept, name)
			continue
		}

		size := dirSize(path)
		if !dryRun {
			if err := os.RemoveAll(path); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("delete %s: %v", name, err))
				continue
			}
		}
		s.logger.Info("swept build directory", "name", name, "dry_run", dryRun)
		result.Deleted = append(result.Deleted, name)
		result.SpaceSaved += size
	}

	return result, nil
}

// DiskUsage returns disk usage statistics
func (s *Sweeper) DiskUsage() (*DiskUsageStats, error) {
	stats := &DiskUsageStats{}

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return stats, nil
		}
		return nil, err
	}

	for _, entry := range entries {
		path := filepath.Join(s.baseDir, entry.Name())
		if entry.IsDir() {
			stats.BuildCount++
		}
		stats.TotalSize += dirSize(path)
	}

	return stats, nil
}

// DiskUsageStats contains disk usage statistics
type DiskUsageStats struct {
	BuildCount int   `json:"buildCount"`
	TotalSize  int64 `json:"totalSize"`
}

// entryTime is the age reference of a download root entry. Build
// directories stop changing once repacked, so their modification time
// marks when the download finished.
func entryTime(info os.FileInfo) time.Time {
	return info.ModTime()
}

func dirSize(path string) int64 {
	var size int64
	filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size
}
