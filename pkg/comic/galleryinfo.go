package comic

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/robinjoseph08/golib/logger"
)

// Descriptor timestamp layouts, tried in order.
const (
	downloadedLayout        = "2006-01-02 15:04"
	downloadedLayoutSeconds = "2006-01-02 15:04:05"
)

var bracketAuthorRE = regexp.MustCompile(`\[(.*?)]`)

// GalleryInfoBuilder assembles a GalleryInfo starting from defaults
// derived from the unit itself, then applying field-by-field overrides
// from a descriptor sidecar. Malformed individual fields are logged and
// skipped without discarding the rest of the record.
type GalleryInfoBuilder struct {
	info GalleryInfo
	log  logger.Logger
}

// NewGalleryInfoBuilder seeds the builder with defaults: title from the
// unit directory name, author from the first bracketed substring of that
// name, download time from the newest image mtime (falling back to the
// directory mtime, then to now), and empty tags.
func NewGalleryInfoBuilder(unit Unit, log logger.Logger) *GalleryInfoBuilder {
	name := filepath.Base(unit.Dir)

	info := GalleryInfo{
		Title:      name,
		Downloaded: defaultDownloadTime(unit),
	}
	if m := bracketAuthorRE.FindStringSubmatch(name); m != nil {
		info.Author = strings.TrimSpace(m[1])
	}

	return &GalleryInfoBuilder{info: info, log: log}
}

// ApplyDescriptor overrides builder fields from the line-oriented
// "Key: value" sidecar at path. A missing or unreadable file leaves the
// defaults standing; so does any individual malformed field.
func (b *GalleryInfoBuilder) ApplyDescriptor(path string) *GalleryInfoBuilder {
	f, err := os.Open(path)
	if err != nil {
		b.log.Err(err).Warn("cannot read descriptor, keeping defaults")
		return b
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		b.applyField(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	if err := scanner.Err(); err != nil {
		b.log.Err(err).Warn("descriptor read error, keeping remaining defaults")
	}
	return b
}

func (b *GalleryInfoBuilder) applyField(key, value string) {
	switch key {
	case "Title":
		if value != "" {
			b.info.Title = value
		}
	case "Author":
		if value != "" {
			b.info.Author = value
		}
	case "Downloaded":
		t, err := time.ParseInLocation(downloadedLayout, value, time.Local)
		if err != nil {
			t, err = time.ParseInLocation(downloadedLayoutSeconds, value, time.Local)
		}
		if err != nil {
			b.log.Warn("unparsable Downloaded value, keeping default date", logger.Data{"value": value})
			return
		}
		b.info.Downloaded = t
	case "Tags":
		b.info.Tags = value
	}
	// Unrecognized keys are ignored.
}

// Build returns the assembled record.
func (b *GalleryInfoBuilder) Build() GalleryInfo {
	return b.info
}

// ExtractGalleryInfo derives the metadata record for a unit, consulting
// its descriptor sidecar when present.
func ExtractGalleryInfo(unit Unit, log logger.Logger) GalleryInfo {
	b := NewGalleryInfoBuilder(unit, log)
	if unit.DescriptorPath != "" {
		b.ApplyDescriptor(unit.DescriptorPath)
	}
	return b.Build()
}

// defaultDownloadTime is the newest image mtime in the unit, the unit
// directory's own mtime if it has no images, or the current time.
func defaultDownloadTime(unit Unit) time.Time {
	var latest time.Time
	for _, img := range unit.Images {
		fi, err := os.Stat(filepath.Join(unit.Dir, img))
		if err != nil {
			continue
		}
		if fi.ModTime().After(latest) {
			latest = fi.ModTime()
		}
	}
	if !latest.IsZero() {
		return latest
	}
	if fi, err := os.Stat(unit.Dir); err == nil {
		return fi.ModTime()
	}
	return time.Now()
}
