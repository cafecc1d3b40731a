package services

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kerbaras/folder2cbz/pkg/comic"
	"github.com/kerbaras/folder2cbz/pkg/tools"
)

// Function-field fakes standing in for the external binaries.

type fakeProber struct {
	dimensionsFunc func(path string) (int, int, error)
}

func (f *fakeProber) Dimensions(_ context.Context, path string) (int, int, error) {
	if f.dimensionsFunc != nil {
		return f.dimensionsFunc(path)
	}
	return 800, 600, nil
}

type fakeTranscoder struct {
	transcodeFunc func(in, out string, p tools.TranscodeParams) error
}

func (f *fakeTranscoder) Transcode(_ context.Context, in, out string, p tools.TranscodeParams) error {
	if f.transcodeFunc != nil {
		return f.transcodeFunc(in, out, p)
	}
	return os.WriteFile(out, []byte("encoded"), 0644)
}

type fakeTagCopier struct{}

func (fakeTagCopier) HasDateTimeOriginal(context.Context, string) (bool, error) { return true, nil }
func (fakeTagCopier) StampDateTimeOriginal(context.Context, string, time.Time) error {
	return nil
}
func (fakeTagCopier) CopyTags(context.Context, string, string) error { return nil }

type fakePreConverter struct{}

func (fakePreConverter) ToPNG(_ context.Context, in string) (string, error) {
	out := in + ".png"
	return out, os.WriteFile(out, []byte("png"), 0644)
}

func fakeToolset() tools.Toolset {
	return tools.Toolset{
		Probe:      &fakeProber{},
		Transcode:  &fakeTranscoder{},
		Tags:       fakeTagCopier{},
		PreConvert: fakePreConverter{},
	}
}

// makeUnit lays a unit directory down on disk and returns a matching job.
func makeUnit(t *testing.T, name string, files map[string]string) comic.ConversionJob {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}

	var all, images []string
	for fname, content := range files {
		if err := os.WriteFile(filepath.Join(dir, fname), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		all = append(all, fname)
		if comic.IsImage(fname) {
			images = append(images, fname)
		}
	}

	unit := comic.Unit{Dir: dir, Files: all, Images: images}
	if _, ok := files[comic.DescriptorFilename]; ok {
		unit.DescriptorPath = filepath.Join(dir, comic.DescriptorFilename)
	}
	return comic.ConversionJob{
		Unit:          unit,
		SourceRoot:    root,
		OutputRoot:    t.TempDir(),
		Format:        comic.FormatWEBP,
		Quality:       80,
		MaxResolution: 3840 * 2160,
		Preset:        "drawing",
		ColorDepth:    8,
	}
}

func archiveMembers(t *testing.T, path string) map[string]string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()

	members := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		members[f.Name] = string(content)
	}
	return members
}

func TestConvertUnit(t *testing.T) {
	job := makeUnit(t, "vol1", map[string]string{
		"001.jpg":  "a",
		"002.jpg":  "b",
		"note.txt": "stray note",
		"galleryinfo.txt": strings.Join([]string{
			"Title: Test Volume",
			"Author: Someone",
			"Downloaded: 2021-05-06 07:08",
			"Tags: action, test",
		}, "\n"),
	})

	path, err := NewConverter(fakeToolset()).ConvertUnit(context.Background(), job)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Ext(path) != ".cbz" {
		t.Errorf("archive path = %q", path)
	}

	members := archiveMembers(t, path)
	for _, want := range []string{"001.webp", "002.webp", "note.txt", "galleryinfo.txt", comic.ComicInfoFilename} {
		if _, ok := members[want]; !ok {
			t.Errorf("archive missing member %q (have %v)", want, members)
		}
	}
	if got := members["note.txt"]; got != "stray note" {
		t.Errorf("non-image member content = %q, want verbatim copy", got)
	}
	if doc := members[comic.ComicInfoFilename]; !strings.Contains(doc, "<Title>Test Volume</Title>") ||
		!strings.Contains(doc, "<Writer>Someone</Writer>") {
		t.Errorf("metadata document = %q", doc)
	}

	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2021, 5, 6, 7, 8, 0, 0, time.Local)
	if !fi.ModTime().Equal(want) {
		t.Errorf("archive mtime = %v, want descriptor download time %v", fi.ModTime(), want)
	}
}

func TestConvertUnitPageFailureStillPackages(t *testing.T) {
	job := makeUnit(t, "vol1", map[string]string{
		"001.jpg": "a",
		"002.jpg": "b",
	})

	ts := fakeToolset()
	ts.Transcode = &fakeTranscoder{
		transcodeFunc: func(in, out string, p tools.TranscodeParams) error {
			if strings.Contains(in, "002") {
				return os.ErrPermission
			}
			return os.WriteFile(out, []byte("encoded"), 0644)
		},
	}

	path, err := NewConverter(ts).ConvertUnit(context.Background(), job)
	if err != nil {
		t.Fatal(err)
	}

	members := archiveMembers(t, path)
	if _, ok := members["001.webp"]; !ok {
		t.Error("surviving page missing from archive")
	}
	if _, ok := members["002.webp"]; ok {
		t.Error("failed page must not appear in archive")
	}
}

func TestConvertUnitOrganizeByDate(t *testing.T) {
	job := makeUnit(t, "vol1", map[string]string{
		"001.jpg":         "a",
		"galleryinfo.txt": "Downloaded: 2019-12-31 10:00",
	})
	job.OrganizeByDate = true

	path, err := NewConverter(fakeToolset()).ConvertUnit(context.Background(), job)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(job.OutputRoot, "2019", "12", "vol1.cbz")
	if path != want {
		t.Errorf("archive path = %q, want %q", path, want)
	}
}

func TestConvertUnitCancelled(t *testing.T) {
	job := makeUnit(t, "vol1", map[string]string{"001.jpg": "a"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewConverter(fakeToolset()).ConvertUnit(ctx, job); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
