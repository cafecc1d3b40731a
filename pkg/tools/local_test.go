package tools

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
}

type fakeProber struct {
	w, h int
	err  error
}

func (p fakeProber) Dimensions(ctx context.Context, path string) (int, int, error) {
	return p.w, p.h, p.err
}

func TestLocalProberPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.png")
	writePNG(t, path, 320, 240)

	w, h, err := LocalProber{}.Dimensions(context.Background(), path)
	if err != nil {
		t.Fatalf("Dimensions failed: %v", err)
	}
	if w != 320 || h != 240 {
		t.Errorf("Dimensions = %dx%d, want 320x240", w, h)
	}
}

func TestLocalProberBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.png")
	if err := os.WriteFile(path, []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := (LocalProber{}).Dimensions(context.Background(), path); err == nil {
		t.Error("expected an error for a non-image file")
	}
}

func TestFallbackProber(t *testing.T) {
	primaryErr := fmt.Errorf("ffprobe not found")

	p := FallbackProber{
		Primary:  fakeProber{err: primaryErr},
		Fallback: fakeProber{w: 100, h: 50},
	}
	w, h, err := p.Dimensions(context.Background(), "x")
	if err != nil || w != 100 || h != 50 {
		t.Errorf("fallback path = %d,%d,%v", w, h, err)
	}

	p = FallbackProber{
		Primary:  fakeProber{w: 10, h: 20},
		Fallback: fakeProber{err: fmt.Errorf("never called")},
	}
	w, h, err = p.Dimensions(context.Background(), "x")
	if err != nil || w != 10 || h != 20 {
		t.Errorf("primary path = %d,%d,%v", w, h, err)
	}

	// Both failing reports the primary error.
	p = FallbackProber{
		Primary:  fakeProber{err: primaryErr},
		Fallback: fakeProber{err: fmt.Errorf("decode failed")},
	}
	if _, _, err := p.Dimensions(context.Background(), "x"); err != primaryErr {
		t.Errorf("err = %v, want primary error", err)
	}
}
