// Package classify walks a source tree and decides which directories
// are comic units ready for conversion.
package classify

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kerbaras/folder2cbz/pkg/comic"
	"github.com/robinjoseph08/golib/logger"
)

// Options control classification.
type Options struct {
	// GateFilename enables gated mode: a directory only qualifies when
	// it contains this file, text sidecars are excluded from the stray
	// count, and finished/ subtrees are pruned entirely.
	GateFilename string
}

func (o Options) gated() bool {
	return o.GateFilename != ""
}

// FindUnits returns the ordered set of convertible units under root.
// Classification is a pure filesystem read: errors on a subtree are
// logged and that subtree skipped, never fatal to the scan.
func FindUnits(root string, opts Options, log logger.Logger) []comic.Unit {
	var units []comic.Unit

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			log.Err(err).Warn("skipping unreadable path", logger.Data{"path": path})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root {
			if strings.Contains(d.Name(), comic.ReservedSubstring) {
				return filepath.SkipDir
			}
			if opts.gated() && d.Name() == comic.FinishedDirName {
				return filepath.SkipDir
			}
		}
		if strings.Contains(path, comic.ReservedSubstring) {
			return nil
		}

		unit, ok := classifyDir(path, opts, log)
		if ok {
			units = append(units, unit)
		}
		return nil
	})
	if err != nil {
		log.Err(err).Warn("scan aborted early", logger.Data{"root": root})
	}

	sort.Slice(units, func(i, j int) bool { return units[i].Dir < units[j].Dir })
	return units
}

// classifyDir applies the unit rule to a single directory: leaf-like
// (no real subdirectories), at least one page image, and at most
// comic.MaxStrayFiles non-image files.
func classifyDir(dir string, opts Options, log logger.Logger) (comic.Unit, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Err(err).Warn("skipping unreadable directory", logger.Data{"dir": dir})
		return comic.Unit{}, false
	}

	var files, images, strays []string
	gateSeen := false

	for _, e := range entries {
		name := e.Name()
		if strings.Contains(name, comic.ReservedSubstring) {
			continue
		}
		if e.IsDir() {
			// A nested directory means this is not a leaf unit.
			return comic.Unit{}, false
		}

		files = append(files, name)
		switch {
		case comic.IsImage(name):
			images = append(images, name)
		case opts.gated() && name == opts.GateFilename:
			gateSeen = true
		case opts.gated() && strings.EqualFold(filepath.Ext(name), ".txt"):
			// Text sidecars do not count against the stray tolerance.
		default:
			strays = append(strays, name)
		}
	}

	if len(images) == 0 || len(strays) > comic.MaxStrayFiles {
		return comic.Unit{}, false
	}
	if opts.gated() && !gateSeen {
		return comic.Unit{}, false
	}

	sort.Strings(files)
	sort.Strings(images)

	unit := comic.Unit{Dir: dir, Files: files, Images: images}
	descriptor := comic.DescriptorFilename
	if opts.gated() {
		descriptor = opts.GateFilename
	}
	for _, f := range files {
		if f == descriptor {
			unit.DescriptorPath = filepath.Join(dir, descriptor)
			break
		}
	}
	return unit, true
}
