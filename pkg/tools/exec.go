package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kerbaras/folder2cbz/pkg/comic"
)

// exiftool's timestamp format.
const exifTimeLayout = "2006:01:02 15:04:05"

// run executes a command, capturing stderr for error reporting.
func run(ctx context.Context, tool string, args ...string) error {
	cmd := exec.CommandContext(ctx, tool, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &ToolError{Tool: tool, Args: args, Stderr: stderr.String(), Err: err}
	}
	return nil
}

// output executes a command and returns its stdout.
func output(ctx context.Context, tool string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, tool, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", &ToolError{Tool: tool, Args: args, Stderr: stderr.String(), Err: err}
	}
	return stdout.String(), nil
}

// FFprobeProber reads image dimensions with a single ffprobe call.
type FFprobeProber struct{}

func (FFprobeProber) Dimensions(ctx context.Context, path string) (int, int, error) {
	out, err := output(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "csv=s=x:p=0",
		path,
	)
	if err != nil {
		return 0, 0, err
	}
	return parseDimensions(out)
}

// parseDimensions parses ffprobe's "WIDTHxHEIGHT" csv output.
func parseDimensions(out string) (int, int, error) {
	dims := strings.SplitN(strings.TrimSpace(out), "x", 2)
	if len(dims) != 2 {
		return 0, 0, fmt.Errorf("unexpected ffprobe output %q", strings.TrimSpace(out))
	}
	w, err := strconv.Atoi(dims[0])
	if err != nil {
		return 0, 0, fmt.Errorf("bad width in ffprobe output %q: %w", out, err)
	}
	h, err := strconv.Atoi(dims[1])
	if err != nil {
		return 0, 0, fmt.Errorf("bad height in ffprobe output %q: %w", out, err)
	}
	return w, h, nil
}

// FFmpegTranscoder converts pages with ffmpeg. Each invocation is
// pinned to Threads so batch-level parallelism stays in charge.
type FFmpegTranscoder struct {
	Threads int
}

func (t FFmpegTranscoder) Transcode(ctx context.Context, in, out string, p TranscodeParams) error {
	return run(ctx, "ffmpeg", t.BuildArgs(in, out, p)...)
}

// BuildArgs assembles the ffmpeg argument list. Exported for testing
// without a real ffmpeg binary.
func (t FFmpegTranscoder) BuildArgs(in, out string, p TranscodeParams) []string {
	threads := t.Threads
	if threads < 1 {
		threads = 1
	}

	args := []string{
		"-i", in,
		"-vf", fmt.Sprintf("scale=%d:%d", p.Width, p.Height),
	}

	switch p.Format {
	case comic.FormatAVIF:
		args = append(args,
			"-c:v", "libsvtav1",
			"-crf", strconv.Itoa(p.Quality),
			"-still-picture", "1",
			"-pix_fmt", avifPixelFormat(p.ColorDepth),
		)
	case comic.FormatWEBP:
		args = append(args,
			"-c:v", "libwebp",
			"-lossless", "0",
			"-compression_level", "6",
			"-quality", strconv.Itoa(p.Quality),
			"-preset", p.Preset,
		)
	}

	return append(args,
		"-threads", strconv.Itoa(threads),
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		out,
	)
}

// avifPixelFormat maps color depth to the 4:2:0 pixel format the AV1
// encoder expects.
func avifPixelFormat(depth int) string {
	switch depth {
	case 10:
		return "yuv420p10le"
	case 12:
		return "yuv420p12le"
	default:
		return "yuv420p"
	}
}

// ExifTool reads and writes metadata tags via exiftool. Write calls
// leave exiftool's "_original" backup in place; callers clean it up
// once per target.
type ExifTool struct{}

func (ExifTool) HasDateTimeOriginal(ctx context.Context, path string) (bool, error) {
	out, err := output(ctx, "exiftool", "-s", "-DateTimeOriginal", path, "-m")
	if err != nil {
		return false, err
	}
	return strings.Contains(out, "DateTimeOriginal"), nil
}

func (ExifTool) StampDateTimeOriginal(ctx context.Context, path string, ts time.Time) error {
	return run(ctx, "exiftool", "-DateTimeOriginal="+ts.Format(exifTimeLayout), path, "-m")
}

func (ExifTool) CopyTags(ctx context.Context, src, dst string) error {
	return run(ctx, "exiftool", "-TagsFromFile", src, "-all:all", dst, "-m")
}

// MagickConverter produces a lossless PNG intermediate next to the
// source for camera-native formats ffmpeg cannot decode.
type MagickConverter struct{}

func (MagickConverter) ToPNG(ctx context.Context, in string) (string, error) {
	out := strings.TrimSuffix(in, filepath.Ext(in)) + ".png"
	if err := run(ctx, "magick", in, "-compress", "lossless", out); err != nil {
		return "", err
	}
	return out, nil
}

// TarExtractor unpacks .tar.gz inputs with the system tar.
type TarExtractor struct{}

func (TarExtractor) Extract(ctx context.Context, archive, dest string) error {
	return run(ctx, "tar", "-xzf", archive, "-C", dest)
}
