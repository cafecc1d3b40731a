// Package services drives unit conversion: the per-unit pipeline and
// the bounded-concurrency batch scheduler on top of it.
package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kerbaras/folder2cbz/pkg/archive"
	"github.com/kerbaras/folder2cbz/pkg/comic"
	"github.com/kerbaras/folder2cbz/pkg/normalize"
	"github.com/kerbaras/folder2cbz/pkg/tools"
	"github.com/robinjoseph08/golib/logger"
)

// Converter turns one unit into one CBZ archive.
type Converter struct {
	tools tools.Toolset
}

// NewConverter creates a Converter using the given toolset.
func NewConverter(ts tools.Toolset) *Converter {
	return &Converter{tools: ts}
}

// ConvertUnit runs the full pipeline for one unit: normalize every page
// into a private work directory, carry non-image members over verbatim,
// derive metadata, write ComicInfo.xml, and pack the CBZ. It returns
// the produced archive path.
//
// Page failures are isolated inside the normalizer; the archive is
// still produced from whatever pages succeeded plus the metadata.
func (c *Converter) ConvertUnit(ctx context.Context, job comic.ConversionJob) (string, error) {
	log := logger.FromContext(ctx).Data(logger.Data{"unit": job.Unit.Dir})
	log.Info("converting unit", logger.Data{"pages": len(job.Unit.Images)})

	workDir, err := os.MkdirTemp("", "folder2cbz-unit-*")
	if err != nil {
		return "", fmt.Errorf("failed to create work directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	n := normalize.New(c.tools, job, log)
	failed := 0
	for _, img := range job.Unit.Images {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !n.NormalizeImage(ctx, img, workDir) {
			failed++
		}
	}
	if failed > 0 {
		log.Warn("some pages failed to normalize", logger.Data{
			"failed": failed,
			"total":  len(job.Unit.Images),
		})
	}

	for _, name := range job.Unit.Files {
		if comic.IsImage(name) {
			continue
		}
		if err := copyFile(filepath.Join(job.Unit.Dir, name), filepath.Join(workDir, name)); err != nil {
			return "", fmt.Errorf("failed to copy member %s: %w", name, err)
		}
	}

	info := comic.ExtractGalleryInfo(job.Unit, log)

	doc, err := comic.NewComicInfo(info).Marshal()
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(workDir, comic.ComicInfoFilename), doc, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", comic.ComicInfoFilename, err)
	}

	dest := job.OutputPath(info)
	if err := archive.Pack(workDir, dest, info.Downloaded); err != nil {
		return "", err
	}

	log.Info("unit converted", logger.Data{"archive": dest})
	return dest, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, fi.ModTime(), fi.ModTime())
}
