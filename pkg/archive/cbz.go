// Package archive assembles processed unit directories into CBZ files.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Pack builds one CBZ at dest containing every file under srcDir with
// paths relative to srcDir, in deterministic walk order. The archive is
// written to a staging file in dest's directory and only renamed into
// place once fully written, so a partial failure never leaves a corrupt
// archive visible. The archive's own atime/mtime are set to date.
func Pack(srcDir, dest string, date time.Time) (err error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	staging, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create staging file: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(staging.Name())
		}
	}()

	if err = writeZip(staging, srcDir); err != nil {
		staging.Close()
		return err
	}
	if err = staging.Close(); err != nil {
		return fmt.Errorf("failed to finalize staging file: %w", err)
	}

	if err = os.Rename(staging.Name(), dest); err != nil {
		return fmt.Errorf("failed to publish archive: %w", err)
	}

	if err := os.Chtimes(dest, date, date); err != nil {
		return fmt.Errorf("failed to set archive timestamps: %w", err)
	}
	return nil
}

func writeZip(w io.Writer, srcDir string) error {
	zw := zip.NewWriter(w)

	// WalkDir visits entries in lexical order, which fixes the member
	// order across runs.
	err := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		return addMember(zw, path, filepath.ToSlash(rel), d)
	})
	if err != nil {
		zw.Close()
		return fmt.Errorf("failed to write archive members: %w", err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to close archive: %w", err)
	}
	return nil
}

func addMember(zw *zip.Writer, path, name string, d fs.DirEntry) error {
	fi, err := d.Info()
	if err != nil {
		return err
	}

	hdr := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: fi.ModTime(),
	}
	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}

	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	_, err = io.Copy(dst, src)
	return err
}
