package comic

import (
	"path/filepath"
	"strings"
	"time"
)

// Format is the output image format for normalized pages.
type Format string

const (
	FormatAVIF Format = "avif"
	FormatWEBP Format = "webp"
)

// DescriptorFilename is the default sidecar carrying human-entered
// metadata overrides. It also doubles as the gate file in watch mode.
const DescriptorFilename = "galleryinfo.txt"

// MaxStrayFiles is how many non-image files a directory may contain and
// still classify as a unit. Exceeding it disqualifies the directory
// regardless of image count.
const MaxStrayFiles = 2

// ReservedSubstring marks NAS system/backup entries (@eaDir and friends)
// that are ignored during classification.
const ReservedSubstring = "@"

const (
	FinishedDirName = "finished"
	FailedDirName   = "failed"
)

// imageExtensions are the source formats accepted as comic pages.
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
	".heic": true,
	".heif": true,
	".gif":  true,
	".tiff": true,
	".tif":  true,
}

// preConvertExtensions need a lossless PNG intermediate before ffmpeg
// can read them.
var preConvertExtensions = map[string]bool{
	".heic": true,
	".heif": true,
}

// IsImage reports whether path has a recognized comic page extension.
func IsImage(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// NeedsPreConvert reports whether path must go through the lossless
// pre-conversion step before transcoding.
func NeedsPreConvert(path string) bool {
	return preConvertExtensions[strings.ToLower(filepath.Ext(path))]
}

// Unit is one convertible comic: a leaf directory of page images with up
// to MaxStrayFiles extra files and an optional descriptor sidecar.
type Unit struct {
	// Dir is the unit's source directory and its identity.
	Dir string
	// Files are all member basenames in sorted order.
	Files []string
	// Images are the member basenames that are page images, sorted.
	Images []string
	// DescriptorPath is the path to the metadata sidecar, or "" if the
	// unit has none.
	DescriptorPath string
}

// GalleryInfo is the derived archive-level metadata for a unit. It is
// immutable once built; see NewGalleryInfoBuilder.
type GalleryInfo struct {
	Title      string
	Author     string // empty when no author could be derived
	Downloaded time.Time
	Tags       string
}

// ConversionJob carries everything a worker needs to convert one unit.
// Workers run concurrently with no shared mutable state, so the job must
// be fully self-contained.
type ConversionJob struct {
	Unit           Unit
	SourceRoot     string // root the unit was discovered under
	OutputRoot     string
	Format         Format
	Quality        int
	MaxResolution  int
	Preset         string
	ColorDepth     int
	OrganizeByDate bool
}

// OutputPath returns the final archive path for the job: the unit's
// location relative to the source root with a .cbz suffix, nested under
// YYYY/MM when date organization is enabled.
func (j ConversionJob) OutputPath(info GalleryInfo) string {
	rel, err := filepath.Rel(j.SourceRoot, j.Unit.Dir)
	if err != nil || rel == "." {
		rel = filepath.Base(j.Unit.Dir)
	}
	name := rel + ".cbz"
	if j.OrganizeByDate {
		d := info.Downloaded
		return filepath.Join(j.OutputRoot, d.Format("2006"), d.Format("01"), name)
	}
	return filepath.Join(j.OutputRoot, name)
}
