package artifactmgr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/spdk/artifact-manager/artifact"
)

// CompleteMarker is written into a build directory once its artifact has
// been extracted and repacked. A build directory without it is incomplete.
const CompleteMarker = ".complete"

// Downloader stores artifacts under <root>/<run id>, at most once per run.
type Downloader struct {
	root     string
	fetcher  ArtifactFetcher
	repacker *artifact.Repacker
	logger   *slog.Logger
}

// NewDownloader creates a downloader writing below root.
// If logger is nil, slog.Default is used.
func NewDownloader(root string, fetcher ArtifactFetcher, repacker *artifact.Repacker, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = slog.Default()
	}
	if repacker == nil {
		repacker = artifact.NewRepacker(logger)
	}
	return &Downloader{
		root:     root,
		fetcher:  fetcher,
		repacker: repacker,
		logger:   logger,
	}
}

// DownloadResult describes the outcome of Download.
type DownloadResult struct {
	Dir      string
	Skipped  bool
	Bytes    int64
	Archives []artifact.PackedArchive
}

// BuildDir returns the directory that holds a run's artifact contents.
func (d *Downloader) BuildDir(runID int64) string {
	return filepath.Join(d.root, strconv.FormatInt(runID, 10))
}

// StagingDir returns the directory a run's artifact is assembled in before
// it replaces the build directory.
func (d *Downloader) StagingDir(runID int64) string {
	return filepath.Join(d.root, fmt.Sprintf(".%d-staging", runID))
}

// Download fetches a, extracts it into a staging directory, repacks it and
// then moves it into place as the run's build directory. A complete build
// directory is left alone and reported as skipped. An existing build
// directory without the marker is only replaced once the new one is
// complete, so a failed download leaves it untouched.
func (d *Downloader) Download(ctx context.Context, a *Artifact) (*DownloadResult, error) {
	buildDir := d.BuildDir(a.RunID)
	result := &DownloadResult{Dir: buildDir}
	logger := d.logger.With("run_id", a.RunID, "artifact", a.Name)

	existing := false
	if _, err := os.Stat(buildDir); err == nil {
		if _, err := os.Stat(filepath.Join(buildDir, CompleteMarker)); err == nil {
			logger.Debug("build directory already exists, skipping download", "dir", buildDir)
			result.Skipped = true
			return result, nil
		}
		existing = true
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	staging := d.StagingDir(a.RunID)
	if err := os.RemoveAll(staging); err != nil {
		return nil, fmt.Errorf("remove stale %s: %w", staging, err)
	}
	if err := os.MkdirAll(staging, 0755); err != nil {
		return nil, err
	}

	if err := d.populate(ctx, a, staging, result); err != nil {
		if rmErr := os.RemoveAll(staging); rmErr != nil {
			logger.Warn("failed to remove staging directory", "dir", staging, "error", rmErr)
		}
		return nil, err
	}

	if existing {
		logger.Warn("replacing incomplete build directory", "dir", buildDir)
		if err := os.RemoveAll(buildDir); err != nil {
			os.RemoveAll(staging)
			return nil, fmt.Errorf("remove incomplete %s: %w", buildDir, err)
		}
	}
	if err := os.Rename(staging, buildDir); err != nil {
		os.RemoveAll(staging)
		return nil, fmt.Errorf("move %s into place: %w", staging, err)
	}
	for i := range result.Archives {
		result.Archives[i].Path = filepath.Join(buildDir, filepath.Base(result.Archives[i].Path))
	}

	logger.Debug("stored artifact",
		"dir", buildDir,
		"downloaded", humanize.Bytes(uint64(result.Bytes)),
		"archives", len(result.Archives),
	)
	return result, nil
}

func (d *Downloader) populate(ctx context.Context, a *Artifact, dir string, result *DownloadResult) error {
	// The zip lives next to the staging directory, not inside it, so the
	// repacker never sees it.
	tmp, err := os.CreateTemp(d.root, fmt.Sprintf(".%d-*.zip", a.RunID))
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	n, err := d.fetcher.DownloadArtifact(ctx, a, tmp)
	if err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	result.Bytes = n

	if err := artifact.ExtractZip(tmp.Name(), dir); err != nil {
		return fmt.Errorf("extract %s: %w", a.Name, err)
	}

	packed, err := d.repacker.Repack(dir)
	if err != nil {
		return fmt.Errorf("repack %s: %w", a.Name, err)
	}
	result.Archives = packed.Archives

	if err := os.Remove(tmp.Name()); err != nil {
		return err
	}

	stamp := []byte(time.Now().UTC().Format(time.RFC3339) + "\n")
	return os.WriteFile(filepath.Join(dir, CompleteMarker), stamp, 0644)
}
