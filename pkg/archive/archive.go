// Package archive unpacks downloaded package archives into a directory.
package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// ExtractTarGz unpacks a gzip-compressed tarball read from r into dest,
// dropping the first strip path components of every entry.
func ExtractTarGz(r io.Reader, dest string, strip int) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("opening gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar entry: %w", err)
		}

		target, ok, err := entryPath(dest, hdr.Name, strip)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, dirPerm); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, fileMode(hdr.FileInfo().Mode())); err != nil {
				return err
			}
		default:
			// links and devices are not part of registry packages
		}
	}
}

// ExtractZip unpacks the zip archive at path into dest.
func ExtractZip(path, dest string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("opening zip %s: %w", path, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		target, ok, err := entryPath(dest, f.Name, 0)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, dirPerm); err != nil {
				return err
			}
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("opening zip entry %s: %w", f.Name, err)
		}
		err = writeFile(target, rc, fileMode(f.Mode()))
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// entryPath maps an archive entry name to a path under dest. Entries that
// are fully stripped are skipped; entries escaping dest are an error.
func entryPath(dest, name string, strip int) (string, bool, error) {
	name = filepath.ToSlash(name)
	parts := strings.Split(strings.Trim(name, "/"), "/")
	if len(parts) <= strip {
		return "", false, nil
	}
	rel := filepath.Join(parts[strip:]...)
	if rel == "." || rel == "" {
		return "", false, nil
	}

	dest = filepath.Clean(dest)
	target := filepath.Join(dest, rel)
	within, err := filepath.Rel(dest, target)
	if err != nil || within == ".." || strings.HasPrefix(within, ".."+string(os.PathSeparator)) {
		return "", false, fmt.Errorf("archive entry %q escapes destination", name)
	}
	return target, true, nil
}

func writeFile(path string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func fileMode(m os.FileMode) os.FileMode {
	if perm := m.Perm(); perm != 0 {
		return perm
	}
	return filePerm
}
