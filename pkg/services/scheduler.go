package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/kerbaras/folder2cbz/pkg/comic"
	"github.com/robinjoseph08/golib/logger"
)

// ConversionProgress is one progress update from a running batch.
type ConversionProgress struct {
	Unit      string
	Completed int // units finished so far, success or failure
	Total     int
	Status    string // "converting", "done", "error"
	Archive   string
	Err       error
}

// Result is the outcome of one unit's conversion.
type Result struct {
	Job     comic.ConversionJob
	Archive string
	Err     error
}

// BatchStats aggregates a finished batch.
type BatchStats struct {
	Total     int
	Converted int
	Failed    int
}

// Scheduler fans conversion jobs out to a bounded pool of workers. Jobs
// carry their own state, so workers share nothing but the toolset.
type Scheduler struct {
	converter *Converter
	workers   int
	progress  chan ConversionProgress
}

// NewScheduler creates a Scheduler running at most workers units in
// parallel.
func NewScheduler(c *Converter, workers int) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{
		converter: c,
		workers:   workers,
		progress:  make(chan ConversionProgress, 100),
	}
}

// Progress returns the channel for receiving batch progress updates.
func (s *Scheduler) Progress() <-chan ConversionProgress {
	return s.progress
}

// Run executes the batch and returns one Result per job, in job order.
// A failing unit is reported in its Result and never cancels or blocks
// its siblings; success is evaluated per unit, not all-or-nothing.
func (s *Scheduler) Run(ctx context.Context, jobs []comic.ConversionJob) []Result {
	results := make([]Result, len(jobs))

	var wg sync.WaitGroup
	var mu sync.Mutex
	semaphore := make(chan struct{}, s.workers)
	completed := 0

	for i, job := range jobs {
		wg.Add(1)
		go func(i int, job comic.ConversionJob) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			s.sendProgress(ConversionProgress{
				Unit:      job.Unit.Dir,
				Completed: s.completedCount(&mu, &completed, false),
				Total:     len(jobs),
				Status:    "converting",
			})

			path, err := s.convert(ctx, job)
			results[i] = Result{Job: job, Archive: path, Err: err}

			update := ConversionProgress{
				Unit:      job.Unit.Dir,
				Completed: s.completedCount(&mu, &completed, true),
				Total:     len(jobs),
				Status:    "done",
				Archive:   path,
			}
			if err != nil {
				update.Status = "error"
				update.Err = err
				logger.FromContext(ctx).Err(err).Error("unit conversion failed", logger.Data{"unit": job.Unit.Dir})
			}
			s.sendProgress(update)
		}(i, job)
	}

	wg.Wait()
	return results
}

// convert wraps ConvertUnit with panic isolation so a worker bug in one
// unit cannot take the batch down.
func (s *Scheduler) convert(ctx context.Context, job comic.ConversionJob) (path string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unit conversion panicked: %v", r)
		}
	}()
	return s.converter.ConvertUnit(ctx, job)
}

func (s *Scheduler) completedCount(mu *sync.Mutex, completed *int, increment bool) int {
	mu.Lock()
	defer mu.Unlock()
	if increment {
		*completed++
	}
	return *completed
}

// sendProgress sends a progress update without blocking; a full channel
// drops the update.
func (s *Scheduler) sendProgress(p ConversionProgress) {
	select {
	case s.progress <- p:
	default:
	}
}

// Stats summarizes a batch's results.
func Stats(results []Result) BatchStats {
	stats := BatchStats{Total: len(results)}
	for _, r := range results {
		if r.Err != nil {
			stats.Failed++
		} else {
			stats.Converted++
		}
	}
	return stats
}

// Close releases the progress channel. Call only after the last Run has
// returned.
func (s *Scheduler) Close() {
	close(s.progress)
}
