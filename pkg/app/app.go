// Package app renders a live terminal progress display for one-shot
// batch conversions.
package app

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/kerbaras/folder2cbz/pkg/services"
	"github.com/kerbaras/folder2cbz/pkg/watch"
)

// RunBatch converts the input tree once behind a progress display fed
// from the scheduler's progress channel. Pressing q or ctrl+c cancels
// the batch context; units already in flight finish first.
func RunBatch(ctx context.Context, w *watch.Watcher, sched *services.Scheduler) (services.BatchStats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newBatchModel(sched.Progress(), cancel))

	go func() {
		stats := w.RunOnce(ctx)
		p.Send(doneMsg(stats))
	}()

	final, err := p.Run()
	if err != nil {
		return services.BatchStats{}, err
	}
	return final.(batchModel).stats, nil
}
