package tools

import (
	"context"
	"fmt"
	"image"
	"os"

	// Decoders for the formats the stdlib and x/image can read without
	// an external probe.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// LocalProber reads dimensions by decoding the image header in-process.
// It covers png/jpeg/gif/webp/tiff and serves as the fallback when
// ffprobe is missing or fails on a file.
type LocalProber struct{}

func (LocalProber) Dimensions(ctx context.Context, path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode image header %s: %w", path, err)
	}
	return cfg.Width, cfg.Height, nil
}

// FallbackProber tries Primary and falls back to Fallback when the
// primary probe errors.
type FallbackProber struct {
	Primary  Prober
	Fallback Prober
}

func (p FallbackProber) Dimensions(ctx context.Context, path string) (int, int, error) {
	w, h, err := p.Primary.Dimensions(ctx, path)
	if err == nil {
		return w, h, nil
	}
	if p.Fallback == nil {
		return 0, 0, err
	}
	w, h, ferr := p.Fallback.Dimensions(ctx, path)
	if ferr != nil {
		return 0, 0, err
	}
	return w, h, nil
}
