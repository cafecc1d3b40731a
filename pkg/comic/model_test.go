package comic

import (
	"path/filepath"
	"testing"
	"time"
)

func TestIsImage(t *testing.T) {
	for _, name := range []string{"a.png", "b.JPG", "c.jpeg", "d.webp", "e.heic", "f.tif"} {
		if !IsImage(name) {
			t.Errorf("IsImage(%q) = false, want true", name)
		}
	}
	for _, name := range []string{"a.txt", "b.cbz", "c.png.bak", "noext"} {
		if IsImage(name) {
			t.Errorf("IsImage(%q) = true, want false", name)
		}
	}
}

func TestNeedsPreConvert(t *testing.T) {
	if !NeedsPreConvert("x.HEIC") || !NeedsPreConvert("y.heif") {
		t.Error("camera-native formats should need pre-conversion")
	}
	if NeedsPreConvert("x.png") {
		t.Error("png should not need pre-conversion")
	}
}

func TestConversionJobOutputPath(t *testing.T) {
	job := ConversionJob{
		Unit:       Unit{Dir: "/src/series/vol1"},
		SourceRoot: "/src",
		OutputRoot: "/out",
	}
	info := GalleryInfo{Downloaded: time.Date(2020, 1, 2, 0, 0, 0, 0, time.Local)}

	if got := job.OutputPath(info); got != filepath.Join("/out", "series", "vol1.cbz") {
		t.Errorf("OutputPath = %q", got)
	}

	job.OrganizeByDate = true
	want := filepath.Join("/out", "2020", "01", "series", "vol1.cbz")
	if got := job.OutputPath(info); got != want {
		t.Errorf("OutputPath with date organization = %q, want %q", got, want)
	}
}
