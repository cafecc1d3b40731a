package tools

import (
	"strings"
	"testing"

	"github.com/kerbaras/folder2cbz/pkg/comic"
	"github.com/stretchr/testify/assert"
)

func TestBuildArgsAVIF(t *testing.T) {
	tr := FFmpegTranscoder{Threads: 1}
	args := tr.BuildArgs("in.jpg", "out.avif", TranscodeParams{
		Width:      1920,
		Height:     1080,
		Format:     comic.FormatAVIF,
		Quality:    30,
		ColorDepth: 10,
	})
	joined := strings.Join(args, " ")

	assert.Contains(t, joined, "-i in.jpg")
	assert.Contains(t, joined, "-vf scale=1920:1080")
	assert.Contains(t, joined, "-c:v libsvtav1")
	assert.Contains(t, joined, "-crf 30")
	assert.Contains(t, joined, "-still-picture 1")
	assert.Contains(t, joined, "-pix_fmt yuv420p10le")
	assert.Contains(t, joined, "-threads 1")
	assert.Contains(t, joined, "-y")
	assert.Equal(t, "out.avif", args[len(args)-1])
}

func TestBuildArgsWEBP(t *testing.T) {
	tr := FFmpegTranscoder{Threads: 1}
	args := tr.BuildArgs("in.png", "out.webp", TranscodeParams{
		Width:   800,
		Height:  600,
		Format:  comic.FormatWEBP,
		Quality: 80,
		Preset:  "drawing",
	})
	joined := strings.Join(args, " ")

	assert.Contains(t, joined, "-c:v libwebp")
	assert.Contains(t, joined, "-lossless 0")
	assert.Contains(t, joined, "-compression_level 6")
	assert.Contains(t, joined, "-quality 80")
	assert.Contains(t, joined, "-preset drawing")
	assert.NotContains(t, joined, "libsvtav1")
}

func TestAvifPixelFormat(t *testing.T) {
	assert.Equal(t, "yuv420p", avifPixelFormat(8))
	assert.Equal(t, "yuv420p10le", avifPixelFormat(10))
	assert.Equal(t, "yuv420p12le", avifPixelFormat(12))
}

func TestParseDimensions(t *testing.T) {
	w, h, err := parseDimensions("1920x1080\n")
	assert.NoError(t, err)
	assert.Equal(t, 1920, w)
	assert.Equal(t, 1080, h)

	_, _, err = parseDimensions("garbage")
	assert.Error(t, err)

	_, _, err = parseDimensions("axb")
	assert.Error(t, err)
}
