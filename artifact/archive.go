package artifact

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

// RootMode selects how entry names inside a tar.gz archive are rooted.
type RootMode int

const (
	// RootContents names entries relative to the source directory, the
	// way "tar -C dir -czf out.tar.gz ." does: "./", "./a.txt".
	RootContents RootMode = iota

	// RootSelf names entries under the source directory's own name:
	// "name", "name/a.txt".
	RootSelf
)

// WriteTarGz compresses the tree rooted at srcDir into archivePath.
// On failure the partial archive is removed and srcDir is left untouched.
func WriteTarGz(srcDir, archivePath string, mode RootMode) (err error) {
	f, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(archivePath)
		}
	}()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	base := filepath.Base(srcDir)
	walkErr := filepath.WalkDir(srcDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		return addEntry(tw, p, entryName(base, filepath.ToSlash(rel), mode), d)
	})

	// Close writers in order so the gzip trailer is flushed before the file.
	if walkErr != nil {
		tw.Close()
		gz.Close()
		f.Close()
		return fmt.Errorf("archive %s: %w", srcDir, walkErr)
	}
	if err := tw.Close(); err != nil {
		gz.Close()
		f.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func entryName(base, rel string, mode RootMode) string {
	if mode == RootSelf {
		return path.Join(base, rel)
	}
	if rel == "." {
		return "."
	}
	return "./" + rel
}

func addEntry(tw *tar.Writer, p, name string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	var link string
	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		if link, err = os.Readlink(p); err != nil {
			return err
		}
	case info.IsDir(), info.Mode().IsRegular():
	default:
		// Sockets, devices and pipes have no place in a build summary.
		return nil
	}

	header, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	header.Name = name
	if info.IsDir() {
		header.Name += "/"
	}

	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	if !info.Mode().IsRegular() {
		return nil
	}

	file, err := os.Open(p)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = io.Copy(tw, file)
	return err
}
