package artifact

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

// Categories are the summary subdirectories packed by content, without
// their own name as archive root. Downstream viewers extract them in place.
var Categories = []string{"coverage", "ut_coverage", "doc"}

// CommonJobPrefix marks per-job directories that are packed with the
// directory itself as archive root.
const CommonJobPrefix = "common-job-"

// ArchiveExt is the suffix of every archive the repacker produces.
const ArchiveExt = ".tar.gz"

// Repacker replaces bulky extracted directories in a build directory with
// compressed archives.
type Repacker struct {
	logger *slog.Logger
}

// NewRepacker creates a repacker. If logger is nil, slog.Default is used.
func NewRepacker(logger *slog.Logger) *Repacker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repacker{logger: logger}
}

// PackedArchive describes one archive written by Repack.
type PackedArchive struct {
	Source string `json:"source"`
	Path   string `json:"path"`
	Size   int64  `json:"size"`
}

// RepackResult summarizes a Repack call.
type RepackResult struct {
	Archives []PackedArchive `json:"archives"`
}

// TotalSize returns the combined compressed size of all archives.
func (r *RepackResult) TotalSize() int64 {
	var total int64
	for _, a := range r.Archives {
		total += a.Size
	}
	return total
}

// Repack packs the category directories and the common-job directories of
// buildDir into sibling .tar.gz files and removes the originals.
func (r *Repacker) Repack(buildDir string) (*RepackResult, error) {
	result := &RepackResult{Archives: make([]PackedArchive, 0)}

	for _, category := range Categories {
		src := filepath.Join(buildDir, category)
		info, err := os.Stat(src)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return result, err
		}
		if !info.IsDir() {
			continue
		}

		packed, err := r.pack(src, RootContents)
		if err != nil {
			return result, err
		}
		result.Archives = append(result.Archives, *packed)
	}

	// Listed after the category pass so archives written above are not
	// mistaken for job directories.
	entries, err := os.ReadDir(buildDir)
	if err != nil {
		return result, err
	}
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), CommonJobPrefix) {
			continue
		}

		packed, err := r.pack(filepath.Join(buildDir, entry.Name()), RootSelf)
		if err != nil {
			return result, err
		}
		result.Archives = append(result.Archives, *packed)
	}

	return result, nil
}

func (r *Repacker) pack(src string, mode RootMode) (*PackedArchive, error) {
	archivePath := src + ArchiveExt

	if err := WriteTarGz(src, archivePath, mode); err != nil {
		return nil, err
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return nil, err
	}

	if err := os.RemoveAll(src); err != nil {
		return nil, fmt.Errorf("remove %s after packing: %w", src, err)
	}

	r.logger.Debug("repacked directory",
		"source", filepath.Base(src),
		"archive", filepath.Base(archivePath),
		"size", humanize.Bytes(uint64(info.Size())),
	)

	return &PackedArchive{
		Source: filepath.Base(src),
		Path:   archivePath,
		Size:   info.Size(),
	}, nil
}
