// Package normalize implements the per-image pipeline: probe, scale to
// the pixel budget, transcode to the target format, and repair temporal
// metadata on the result.
package normalize

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/kerbaras/folder2cbz/pkg/comic"
	"github.com/kerbaras/folder2cbz/pkg/tools"
	"github.com/robinjoseph08/golib/logger"
)

// Normalizer converts the images of one unit. It is not shared across
// units; every worker builds its own from the job.
type Normalizer struct {
	tools tools.Toolset
	job   comic.ConversionJob
	log   logger.Logger
}

// New returns a Normalizer for one conversion job.
func New(ts tools.Toolset, job comic.ConversionJob, log logger.Logger) *Normalizer {
	return &Normalizer{tools: ts, job: job, log: log}
}

// NormalizeImage converts a single page image into dstRoot, preserving
// its relative location with the target format's extension. Every
// failure is logged and swallowed here so one bad page never aborts the
// rest of the unit; the return value only feeds failure counting.
func (n *Normalizer) NormalizeImage(ctx context.Context, relImage, dstRoot string) bool {
	src := filepath.Join(n.job.Unit.Dir, relImage)
	if err := n.normalize(ctx, src, relImage, dstRoot); err != nil {
		n.log.Err(err).Error("image normalization failed", logger.Data{
			"image": src,
			"unit":  n.job.Unit.Dir,
		})
		return false
	}
	return true
}

func (n *Normalizer) normalize(ctx context.Context, src, relImage, dstRoot string) error {
	ext := filepath.Ext(relImage)
	dst := filepath.Join(dstRoot, strings.TrimSuffix(relImage, ext)+"."+string(n.job.Format))
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create target directory: %w", err)
	}

	// Camera-native formats go through a lossless intermediate the
	// transcoder can read. The intermediate is removed on the way out.
	workSrc := src
	if comic.NeedsPreConvert(src) {
		intermediate, err := n.tools.PreConvert.ToPNG(ctx, src)
		if err != nil {
			return fmt.Errorf("pre-conversion failed: %w", err)
		}
		defer os.Remove(intermediate)
		workSrc = intermediate
	}

	w, h, err := n.tools.Probe.Dimensions(ctx, workSrc)
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}

	tw, th := TargetDimensions(w, h, n.job.MaxResolution)
	err = n.tools.Transcode.Transcode(ctx, workSrc, dst, tools.TranscodeParams{
		Width:      tw,
		Height:     th,
		Format:     n.job.Format,
		Quality:    n.job.Quality,
		Preset:     n.job.Preset,
		ColorDepth: n.job.ColorDepth,
	})
	if err != nil {
		return fmt.Errorf("transcode failed: %w", err)
	}

	if err := n.repairTimestamps(ctx, src, dst); err != nil {
		return err
	}

	// exiftool leaves a backup next to the file it rewrote.
	if err := os.Remove(dst + "_original"); err != nil && !os.IsNotExist(err) {
		n.log.Err(err).Warn("cannot remove exiftool backup", logger.Data{"path": dst + "_original"})
	}
	return nil
}

// repairTimestamps stamps the target with the source's modification
// time when the source carries no capture timestamp, then copies the
// remaining tags over.
func (n *Normalizer) repairTimestamps(ctx context.Context, src, dst string) error {
	has, err := n.tools.Tags.HasDateTimeOriginal(ctx, src)
	if err != nil {
		return fmt.Errorf("capture timestamp check failed: %w", err)
	}
	if !has {
		fi, err := os.Stat(src)
		if err != nil {
			return fmt.Errorf("failed to stat source: %w", err)
		}
		if err := n.tools.Tags.StampDateTimeOriginal(ctx, dst, fi.ModTime()); err != nil {
			return fmt.Errorf("timestamp stamping failed: %w", err)
		}
	}
	if err := n.tools.Tags.CopyTags(ctx, src, dst); err != nil {
		return fmt.Errorf("tag copy failed: %w", err)
	}
	return nil
}

// TargetDimensions scales (w, h) down so the pixel count fits maxRes,
// preserving aspect ratio, and forces both results even as the target
// codecs' chroma subsampling requires. Images already within budget
// keep their dimensions apart from the evenness fix.
func TargetDimensions(w, h, maxRes int) (int, int) {
	tw, th := w, h
	if res := w * h; res > maxRes {
		factor := math.Sqrt(float64(maxRes) / float64(res))
		tw = int(math.Round(float64(w) * factor))
		th = int(math.Round(float64(h) * factor))
	}
	if tw%2 != 0 {
		tw++
	}
	if th%2 != 0 {
		th++
	}
	return tw, th
}
