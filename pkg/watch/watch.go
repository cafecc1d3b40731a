// Package watch drives the three source strategies: one-shot folder
// conversion, gate-filed polling with completion moves, and tar.gz
// extraction polling. All three share the scheduler and packager.
package watch

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kerbaras/folder2cbz/pkg/classify"
	"github.com/kerbaras/folder2cbz/pkg/comic"
	"github.com/kerbaras/folder2cbz/pkg/config"
	"github.com/kerbaras/folder2cbz/pkg/services"
	"github.com/robinjoseph08/golib/logger"
)

// DeployMarker is the output-path segment that additionally mirrors
// watch-mode archives into the publication directory.
const DeployMarker = "staging"

const defaultPollInterval = 60 * time.Second

// Notifier triggers a downstream library rescan.
type Notifier interface {
	ScanLibrary(ctx context.Context) error
}

// Watcher binds a configuration to the scheduler and runs one of the
// source drivers.
type Watcher struct {
	cfg      *config.Config
	sched    *services.Scheduler
	notifier Notifier // nil disables rescan notifications

	// interval between polls; tests shorten it.
	Interval time.Duration
}

// New creates a Watcher. notifier may be nil when the rescan feature is
// unconfigured.
func New(cfg *config.Config, sched *services.Scheduler, notifier Notifier) *Watcher {
	return &Watcher{
		cfg:      cfg,
		sched:    sched,
		notifier: notifier,
		Interval: defaultPollInterval,
	}
}

// jobsFor wraps classified units into self-contained conversion jobs.
func (w *Watcher) jobsFor(units []comic.Unit, sourceRoot, outputRoot string) []comic.ConversionJob {
	jobs := make([]comic.ConversionJob, 0, len(units))
	for _, u := range units {
		jobs = append(jobs, comic.ConversionJob{
			Unit:           u,
			SourceRoot:     sourceRoot,
			OutputRoot:     outputRoot,
			Format:         w.cfg.Format,
			Quality:        w.cfg.Quality,
			MaxResolution:  w.cfg.MaxResolution,
			Preset:         w.cfg.Preset,
			ColorDepth:     w.cfg.ColorDepth,
			OrganizeByDate: w.cfg.OrganizeByDate,
		})
	}
	return jobs
}

// RunOnce classifies the input tree once, converts everything found,
// and returns the batch stats.
func (w *Watcher) RunOnce(ctx context.Context) services.BatchStats {
	log := logger.FromContext(ctx)

	units := classify.FindUnits(w.cfg.InputDir, classify.Options{}, log)
	log.Info("classified source tree", logger.Data{"units": len(units)})

	results := w.sched.Run(ctx, w.jobsFor(units, w.cfg.InputDir, w.cfg.OutputDir))
	return services.Stats(results)
}

// RunWatch polls the input tree for gate-filed units until ctx is
// cancelled. Converted sources move to finished/; a rescan notification
// is owed after any productive cycle and fired once on the next idle
// transition, regardless of how many units that cycle converted.
func (w *Watcher) RunWatch(ctx context.Context) error {
	log := logger.FromContext(ctx)
	notifyOwed := false

	for {
		units := classify.FindUnits(w.cfg.InputDir, classify.Options{GateFilename: w.cfg.GalleryInfoName}, log)
		if len(units) == 0 {
			if notifyOwed {
				w.notify(ctx)
				notifyOwed = false
			}
			if err := w.sleep(ctx); err != nil {
				return err
			}
			continue
		}

		log.Info("converting batch", logger.Data{"units": len(units)})
		results := w.sched.Run(ctx, w.jobsFor(units, w.cfg.InputDir, w.cfg.OutputDir))

		retired := false
		for _, r := range results {
			if r.Err != nil {
				continue
			}
			if w.finishUnit(ctx, r) {
				retired = true
				notifyOwed = true
			}
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		// Units that failed to convert or to retire stay in place; without
		// a pause such a batch would spin instead of polling.
		if !retired {
			if err := w.sleep(ctx); err != nil {
				return err
			}
		}
	}
}

// finishUnit moves a converted unit's source into the finished area and
// mirrors the archive into the publication directory when the output
// path carries the deploy marker. It reports whether the unit was
// actually retired; a unit left in place will be seen again next cycle.
func (w *Watcher) finishUnit(ctx context.Context, r services.Result) bool {
	log := logger.FromContext(ctx)

	rel, err := filepath.Rel(w.cfg.InputDir, r.Job.Unit.Dir)
	if err != nil {
		rel = filepath.Base(r.Job.Unit.Dir)
	}
	dest := filepath.Join(w.cfg.InputDir, comic.FinishedDirName, rel)
	if err := moveCollisionSafe(r.Job.Unit.Dir, dest); err != nil {
		log.Err(err).Error("cannot move unit to finished area", logger.Data{"unit": r.Job.Unit.Dir})
		return false
	}

	if w.cfg.PublishDir == "" || !hasPathSegment(w.cfg.OutputDir, DeployMarker) {
		return true
	}
	archiveRel, err := filepath.Rel(w.cfg.OutputDir, r.Archive)
	if err != nil {
		archiveRel = filepath.Base(r.Archive)
	}
	published := filepath.Join(w.cfg.PublishDir, archiveRel)
	if err := moveFile(r.Archive, published); err != nil {
		log.Err(err).Error("cannot publish archive", logger.Data{"archive": r.Archive})
		return true
	}
	log.Info("archive published", logger.Data{"archive": published})
	return true
}

// notify fires the rescan trigger once. Failures are logged, never
// fatal: the next productive cycle owes a fresh notification anyway.
func (w *Watcher) notify(ctx context.Context) {
	log := logger.FromContext(ctx)
	if w.notifier == nil {
		return
	}
	if err := w.notifier.ScanLibrary(ctx); err != nil {
		log.Err(err).Warn("library rescan notification failed")
		return
	}
	log.Info("library rescan triggered")
}

// sleep waits one poll interval or until cancellation.
func (w *Watcher) sleep(ctx context.Context) error {
	timer := time.NewTimer(w.Interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// hasPathSegment reports whether path contains dir as a whole segment.
func hasPathSegment(path, segment string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == segment {
			return true
		}
	}
	return false
}

// moveCollisionSafe renames src to dest, appending a timestamp suffix
// when dest already exists.
func moveCollisionSafe(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	if _, err := os.Stat(dest); err == nil {
		dest = dest + "-" + time.Now().Format("20060102-150405")
	}
	return os.Rename(src, dest)
}

// moveFile renames a file, falling back to a streamed copy+remove
// across filesystems.
func moveFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	if err := os.Rename(src, dest); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if err := os.Chtimes(dest, fi.ModTime(), fi.ModTime()); err != nil {
		return err
	}
	return os.Remove(src)
}
