// Package tools wraps the external programs the pipeline shells out to
// (ffmpeg, ffprobe, exiftool, magick, tar) behind capability interfaces
// so the rest of the code can be tested with injected fakes.
package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kerbaras/folder2cbz/pkg/comic"
)

// ToolError is a failed external tool invocation: the command that ran,
// its captured stderr, and the underlying exec error.
type ToolError struct {
	Tool   string
	Args   []string
	Stderr string
	Err    error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Tool, strings.Join(e.Args, " "), e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// TranscodeParams is the full parameter set for one transcoder
// invocation. Width and Height are the already-computed target
// dimensions (both even).
type TranscodeParams struct {
	Width      int
	Height     int
	Format     comic.Format
	Quality    int
	Preset     string // libwebp preset, ignored for avif
	ColorDepth int    // 8, 10 or 12
}

// Prober reports the pixel dimensions of an image.
type Prober interface {
	Dimensions(ctx context.Context, path string) (width, height int, err error)
}

// Transcoder converts one source image into the target format at the
// requested dimensions, overwriting out if it exists.
type Transcoder interface {
	Transcode(ctx context.Context, in, out string, p TranscodeParams) error
}

// TagCopier reads and writes image metadata tags.
type TagCopier interface {
	HasDateTimeOriginal(ctx context.Context, path string) (bool, error)
	StampDateTimeOriginal(ctx context.Context, path string, t time.Time) error
	CopyTags(ctx context.Context, src, dst string) error
}

// PreConverter produces a lossless intermediate for formats the
// transcoder cannot read directly. It returns the intermediate's path;
// the caller owns its cleanup.
type PreConverter interface {
	ToPNG(ctx context.Context, in string) (string, error)
}

// Extractor unpacks a compressed archive into dest.
type Extractor interface {
	Extract(ctx context.Context, archive, dest string) error
}

// Toolset bundles every external capability the pipeline needs, so one
// value can be passed around and swapped wholesale in tests.
type Toolset struct {
	Probe      Prober
	Transcode  Transcoder
	Tags       TagCopier
	PreConvert PreConverter
	Extract    Extractor
}

// NewToolset returns the production toolset backed by the real
// binaries. threads caps ffmpeg's internal parallelism.
func NewToolset(threads int) Toolset {
	return Toolset{
		Probe:      FallbackProber{Primary: FFprobeProber{}, Fallback: LocalProber{}},
		Transcode:  FFmpegTranscoder{Threads: threads},
		Tags:       ExifTool{},
		PreConvert: MagickConverter{},
		Extract:    TarExtractor{},
	}
}
