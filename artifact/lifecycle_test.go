package artifact

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/spdk/artifact-manager/testutil"
)

func TestDefaultRetentionConfig(t *testing.T) {
	cfg := DefaultRetentionConfig()

	if cfg.RetentionDays != 7 {
		t.Errorf("RetentionDays = %d, want 7", cfg.RetentionDays)
	}
}

// createBuildDir creates a build directory with a file and backdates it.
func createBuildDir(t *testing.T, baseDir, name string, modTime time.Time) {
	t.Helper()
	dir := filepath.Join(baseDir, name)
	testutil.WriteFile(t, filepath.Join(dir, "coverage.tar.gz"), "payload")
	if err := os.Chtimes(dir, modTime, modTime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestSweeper_Sweep(t *testing.T) {
	baseDir := t.TempDir()
	now := time.Now()

	createBuildDir(t, baseDir, "1001", now.Add(-10*24*time.Hour))
	createBuildDir(t, baseDir, "1002", now.Add(-3*24*time.Hour))
	createBuildDir(t, baseDir, "assets-cache", now.Add(-10*24*time.Hour))

	sweeper := NewSweeper(baseDir, RetentionConfig{RetentionDays: 7}, nil)
	result, err := sweeper.Sweep(false)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	if strings.Join(result.Deleted, ",") != "1001" {
		t.Errorf("Deleted = %v, want [1001]", result.Deleted)
	}
	if strings.Join(result.Kept, ",") != "1002" {
		t.Errorf("Kept = %v, want [1002]", result.Kept)
	}
	if strings.Join(result.Skipped, ",") != "assets-cache" {
		t.Errorf("Skipped = %v, want [assets-cache]", result.Skipped)
	}
	if result.SpaceSaved != int64(len("payload")) {
		t.Errorf("SpaceSaved = %d, want %d", result.SpaceSaved, len("payload"))
	}

	testutil.AssertNotExist(t, filepath.Join(baseDir, "1001"))
	for _, name := range []string{"1002", "assets-cache"} {
		if _, err := os.Stat(filepath.Join(baseDir, name)); err != nil {
			t.Errorf("%s should be retained: %v", name, err)
		}
	}
}

func TestSweeper_DryRun(t *testing.T) {
	baseDir := t.TempDir()
	createBuildDir(t, baseDir, "1001", time.Now().Add(-30*24*time.Hour))

	sweeper := NewSweeper(baseDir, DefaultRetentionConfig(), nil)
	result, err := sweeper.Sweep(true)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	if len(result.Deleted) != 1 {
		t.Errorf("Deleted = %v, want 1 entry", result.Deleted)
	}
	if _, err := os.Stat(filepath.Join(baseDir, "1001")); err != nil {
		t.Errorf("dry run removed directory: %v", err)
	}
}

func TestSweeper_ReservedAnywhereInName(t *testing.T) {
	baseDir := t.TempDir()
	old := time.Now().Add(-100 * 24 * time.Hour)
	createBuildDir(t, baseDir, "static-assets", old)
	createBuildDir(t, baseDir, "my-assets-v2", old)

	result, err := NewSweeper(baseDir, DefaultRetentionConfig(), nil).Sweep(false)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(result.Deleted) != 0 {
		t.Errorf("Deleted = %v, want none", result.Deleted)
	}
	sort.Strings(result.Skipped)
	if strings.Join(result.Skipped, ",") != "my-assets-v2,static-assets" {
		t.Errorf("Skipped = %v", result.Skipped)
	}
}

func TestSweeper_StaleFiles(t *testing.T) {
	baseDir := t.TempDir()
	stale := filepath.Join(baseDir, ".1001-download.zip")
	testutil.WriteFile(t, stale, "partial")
	old := time.Now().Add(-8 * 24 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	result, err := NewSweeper(baseDir, DefaultRetentionConfig(), nil).Sweep(false)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(result.Deleted) != 1 {
		t.Errorf("Deleted = %v, want the stale file", result.Deleted)
	}
	testutil.AssertNotExist(t, stale)
}

func TestSweeper_InjectedClock(t *testing.T) {
	baseDir := t.TempDir()
	createBuildDir(t, baseDir, "1001", time.Now())

	sweeper := NewSweeper(baseDir, RetentionConfig{RetentionDays: 7}, nil)
	sweeper.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }

	result, err := sweeper.Sweep(false)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if strings.Join(result.Deleted, ",") != "1001" {
		t.Errorf("Deleted = %v, want [1001]", result.Deleted)
	}
}

func TestSweeper_MissingRoot(t *testing.T) {
	sweeper := NewSweeper(filepath.Join(t.TempDir(), "builds"), DefaultRetentionConfig(), nil)

	result, err := sweeper.Sweep(false)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(result.Deleted)+len(result.Kept)+len(result.Skipped) != 0 {
		t.Errorf("result = %+v, want empty", result)
	}

	stats, err := sweeper.DiskUsage()
	if err != nil {
		t.Fatalf("DiskUsage: %v", err)
	}
	if stats.BuildCount != 0 || stats.TotalSize != 0 {
		t.Errorf("stats = %+v, want zero", stats)
	}
}

func TestSweeper_DiskUsage(t *testing.T) {
	baseDir := t.TempDir()
	now := time.Now()
	createBuildDir(t, baseDir, "1001", now)
	createBuildDir(t, baseDir, "1002", now)

	stats, err := NewSweeper(baseDir, DefaultRetentionConfig(), nil).DiskUsage()
	if err != nil {
		t.Fatalf("DiskUsage: %v", err)
	}
	if stats.BuildCount != 2 {
		t.Errorf("BuildCount = %d, want 2", stats.BuildCount)
	}
	if stats.TotalSize != 2*int64(len("payload")) {
		t.Errorf("TotalSize = %d, want %d", stats.TotalSize, 2*len("payload"))
	}
}
