package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kerbaras/folder2cbz/pkg/comic"
	"github.com/kerbaras/folder2cbz/pkg/services"
	"github.com/kerbaras/folder2cbz/pkg/tools"
	"github.com/robinjoseph08/golib/logger"
)

// tarGzInput tracks one archive input through its lifecycle:
// discovered → extracting → converting → publishing → done|failed.
// failed is terminal within the run: the input is moved aside, never
// retried automatically.
type tarGzInput struct {
	path     string
	stageIn  string // extraction area
	stageOut string // conversion output area
	job      comic.ConversionJob
}

func (in *tarGzInput) cleanup() {
	if in.stageIn != "" {
		os.RemoveAll(in.stageIn)
	}
	if in.stageOut != "" {
		os.RemoveAll(in.stageOut)
	}
}

// RunTarGz polls the input dir for compressed archives until ctx is
// cancelled: each input is extracted into an isolated staging area,
// converted into an isolated output area, and only then moved into the
// publication tree. An input that fails anywhere is relocated to
// failed/ instead of deleted.
func (w *Watcher) RunTarGz(ctx context.Context, extractor tools.Extractor) error {
	log := logger.FromContext(ctx)
	notifyOwed := false

	for {
		inputs, err := scanArchives(w.cfg.InputDir)
		if err != nil {
			log.Err(err).Warn("archive scan failed", logger.Data{"dir": w.cfg.InputDir})
		}
		if len(inputs) == 0 {
			if notifyOwed {
				w.notify(ctx)
				notifyOwed = false
			}
			if err := w.sleep(ctx); err != nil {
				return err
			}
			continue
		}

		if w.convertTarGzBatch(ctx, extractor, inputs) {
			notifyOwed = true
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// convertTarGzBatch extracts every discovered input, runs the ready
// ones through the shared scheduler, and publishes the results. It
// reports whether at least one input converted.
func (w *Watcher) convertTarGzBatch(ctx context.Context, extractor tools.Extractor, inputs []string) bool {
	log := logger.FromContext(ctx)

	var ready []*tarGzInput
	for _, path := range inputs {
		in, err := w.extractInput(ctx, extractor, path)
		if err != nil {
			log.Err(err).Error("archive input failed", logger.Data{"input": path})
			w.failInput(ctx, path)
			continue
		}
		ready = append(ready, in)
	}

	jobs := make([]comic.ConversionJob, len(ready))
	for i, in := range ready {
		jobs[i] = in.job
	}
	results := w.sched.Run(ctx, jobs)

	converted := false
	for i, r := range results {
		in := ready[i]
		if err := w.publishTarGzResult(ctx, in, r); err != nil {
			log.Err(err).Error("archive input failed", logger.Data{"input": in.path})
			w.failInput(ctx, in.path)
		} else {
			converted = true
		}
		in.cleanup()
	}
	return converted
}

// extractInput unpacks one input and builds its conversion job. The
// archive is extracted into a directory named after its stem so flat
// tarballs (files at the top level) take the input's name as their unit
// name instead of the staging directory's.
func (w *Watcher) extractInput(ctx context.Context, extractor tools.Extractor, path string) (*tarGzInput, error) {
	log := logger.FromContext(ctx)
	log.Info("extracting archive input", logger.Data{"input": path})

	in := &tarGzInput{path: path}

	stageIn, err := os.MkdirTemp("", "folder2cbz-extract-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create extraction area: %w", err)
	}
	in.stageIn = stageIn

	extractDir := filepath.Join(stageIn, archiveStem(path))
	if err := os.MkdirAll(extractDir, 0755); err != nil {
		in.cleanup()
		return nil, fmt.Errorf("failed to create extraction area: %w", err)
	}
	if err := extractor.Extract(ctx, path, extractDir); err != nil {
		in.cleanup()
		return nil, fmt.Errorf("extraction failed: %w", err)
	}

	root, err := locateUnitRoot(extractDir)
	if err != nil {
		in.cleanup()
		return nil, err
	}
	unit, err := unitFromDir(root)
	if err != nil {
		in.cleanup()
		return nil, err
	}

	stageOut, err := os.MkdirTemp("", "folder2cbz-out-*")
	if err != nil {
		in.cleanup()
		return nil, fmt.Errorf("failed to create staging output area: %w", err)
	}
	in.stageOut = stageOut

	in.job = w.jobsFor([]comic.Unit{unit}, filepath.Dir(root), stageOut)[0]
	return in, nil
}

// publishTarGzResult enforces the single-archive invariant, moves the
// produced archive into the publication tree preserving any date
// nesting, and disposes of the original input.
func (w *Watcher) publishTarGzResult(ctx context.Context, in *tarGzInput, r services.Result) error {
	log := logger.FromContext(ctx)
	if r.Err != nil {
		return r.Err
	}

	produced, err := listFiles(in.stageOut)
	if err != nil {
		return fmt.Errorf("failed to inspect staging output: %w", err)
	}
	if len(produced) != 1 {
		return fmt.Errorf("expected exactly one produced archive, found %d", len(produced))
	}

	rel, err := filepath.Rel(in.stageOut, produced[0])
	if err != nil {
		rel = filepath.Base(produced[0])
	}
	destRoot := w.cfg.OutputDir
	if w.cfg.PublishDir != "" {
		destRoot = w.cfg.PublishDir
	}
	dest := filepath.Join(destRoot, rel)
	if err := moveFile(produced[0], dest); err != nil {
		return fmt.Errorf("failed to publish archive: %w", err)
	}
	log.Info("archive published", logger.Data{"archive": dest})

	if w.cfg.DeleteSourceTarGz {
		if err := os.Remove(in.path); err != nil {
			log.Err(err).Warn("cannot delete archive input", logger.Data{"input": in.path})
		}
		return nil
	}
	// Without delete, the input still has to leave the scan window or
	// the next poll would convert it again.
	if err := moveCollisionSafe(in.path, filepath.Join(w.cfg.InputDir, comic.FinishedDirName, filepath.Base(in.path))); err != nil {
		log.Err(err).Warn("cannot move archive input to finished area", logger.Data{"input": in.path})
	}
	return nil
}

// failInput relocates a failed input into the failed area so operators
// can inspect it; it is never retried within the run.
func (w *Watcher) failInput(ctx context.Context, path string) {
	log := logger.FromContext(ctx)
	dest := filepath.Join(w.cfg.InputDir, comic.FailedDirName, filepath.Base(path))
	if err := moveCollisionSafe(path, dest); err != nil {
		log.Err(err).Error("cannot move input to failed area", logger.Data{"input": path})
	}
}

// archiveStem strips the compressed-archive suffix from an input's
// basename.
func archiveStem(path string) string {
	name := filepath.Base(path)
	lower := strings.ToLower(name)
	for _, suffix := range []string{".tar.gz", ".tgz"} {
		if strings.HasSuffix(lower, suffix) {
			return name[:len(name)-len(suffix)]
		}
	}
	return name
}

// scanArchives lists top-level .tar.gz/.tgz inputs in dir, sorted.
func scanArchives(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var archives []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := strings.ToLower(e.Name())
		if strings.HasSuffix(name, ".tar.gz") || strings.HasSuffix(name, ".tgz") {
			archives = append(archives, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(archives)
	return archives, nil
}

// locateUnitRoot finds the comic unit inside an extraction area: the
// area itself when it contains files directly, or its sole subdirectory
// when extraction produced exactly one nested directory.
func locateUnitRoot(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read extraction area: %w", err)
	}

	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		} else {
			return dir, nil
		}
	}
	if len(dirs) == 1 {
		return filepath.Join(dir, dirs[0]), nil
	}
	if len(dirs) == 0 {
		return "", fmt.Errorf("extracted archive is empty")
	}
	return dir, nil
}

// unitFromDir builds a Unit from an extracted directory's contents.
func unitFromDir(dir string) (comic.Unit, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return comic.Unit{}, fmt.Errorf("failed to read unit root: %w", err)
	}

	unit := comic.Unit{Dir: dir}
	for _, e := range entries {
		if e.IsDir() || strings.Contains(e.Name(), comic.ReservedSubstring) {
			continue
		}
		unit.Files = append(unit.Files, e.Name())
		if comic.IsImage(e.Name()) {
			unit.Images = append(unit.Images, e.Name())
		}
		if e.Name() == comic.DescriptorFilename {
			unit.DescriptorPath = filepath.Join(dir, e.Name())
		}
	}
	sort.Strings(unit.Files)
	sort.Strings(unit.Images)

	if len(unit.Images) == 0 {
		return comic.Unit{}, fmt.Errorf("extracted archive contains no page images")
	}
	return unit, nil
}

// listFiles returns every regular file under dir.
func listFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
