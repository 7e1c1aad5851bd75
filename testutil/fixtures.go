// Package testutil holds fixtures shared by the artifact tests: file trees,
// zip payloads, tar.gz inspection and backdated directories.
package testutil

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"
)

// WriteFile writes content to path, creating parent directories.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteTree writes each relative path -> content pair below root.
func WriteTree(t *testing.T, root string, files map[string]string) {
	t.Helper()

	for name, content := range files {
		WriteFile(t, filepath.Join(root, filepath.FromSlash(name)), content)
	}
}

// ZipBytes builds an in-memory zip from name -> content pairs. Names ending
// in "/" become directory entries and must have empty content.
func ZipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := io.WriteString(w, content); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

// WriteZip writes the zip built by ZipBytes to path.
func WriteZip(t *testing.T, path string, files map[string]string) {
	t.Helper()

	if err := os.WriteFile(path, ZipBytes(t, files), 0o644); err != nil {
		t.Fatalf("write zip %s: %v", path, err)
	}
}

// TarGzEntries returns the entry names of a tar.gz archive, sorted.
func TarGzEntries(t *testing.T, archivePath string) []string {
	t.Helper()

	f, err := os.Open(archivePath)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip reader %s: %v", archivePath, err)
	}
	defer gz.Close()

	names := make([]string, 0)
	tr := tar.NewReader(gz)
	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("read tar %s: %v", archivePath, err)
		}
		names = append(names, h.Name)
	}
	sort.Strings(names)
	return names
}

// ExtractTarGz unpacks a tar.gz archive into destDir, recreating
// directories, regular files and symlinks.
func ExtractTarGz(t *testing.T, archivePath, destDir string) {
	t.Helper()

	f, err := os.Open(archivePath)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip reader %s: %v", archivePath, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		h, err := tr.Next()
		if err == io.EOF {
			return
		}
		if err != nil {
			t.Fatalf("read tar %s: %v", archivePath, err)
		}

		target := filepath.Join(destDir, h.Name)
		if !strings.HasPrefix(target, filepath.Clean(destDir)) {
			t.Fatalf("entry %q escapes %s", h.Name, destDir)
		}

		switch h.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				t.Fatalf("mkdir %s: %v", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				t.Fatalf("mkdir %s: %v", filepath.Dir(target), err)
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(h.Mode).Perm())
			if err != nil {
				t.Fatalf("create %s: %v", target, err)
			}
			_, copyErr := io.Copy(out, tr)
			if err := out.Close(); err != nil && copyErr == nil {
				copyErr = err
			}
			if copyErr != nil {
				t.Fatalf("write %s: %v", target, copyErr)
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				t.Fatalf("mkdir %s: %v", filepath.Dir(target), err)
			}
			if err := os.Symlink(h.Linkname, target); err != nil {
				t.Fatalf("symlink %s: %v", target, err)
			}
		}
	}
}

// Backdate sets the access and modification times of path to age ago.
func Backdate(t *testing.T, path string, age time.Duration) {
	t.Helper()

	when := time.Now().Add(-age)
	if err := os.Chtimes(path, when, when); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}

// AssertNotExist fails the test if path exists.
func AssertNotExist(t *testing.T, path string) {
	t.Helper()

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("%s should not exist (err = %v)", path, err)
	}
}

// AssertExists fails the test if path cannot be stat'ed.
func AssertExists(t *testing.T, path string) {
	t.Helper()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("%s should exist: %v", path, err)
	}
}
