package app

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/kerbaras/folder2cbz/pkg/app/styles"
	"github.com/kerbaras/folder2cbz/pkg/services"
)

type progressMsg services.ConversionProgress

type doneMsg services.BatchStats

type batchModel struct {
	bar    progress.Model
	ch     <-chan services.ConversionProgress
	cancel context.CancelFunc

	total     int
	completed int
	failed    int
	current   string
	status    string

	finished bool
	stats    services.BatchStats
}

func newBatchModel(ch <-chan services.ConversionProgress, cancel context.CancelFunc) batchModel {
	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 60
	return batchModel{bar: bar, ch: ch, cancel: cancel}
}

func (m batchModel) Init() tea.Cmd {
	return m.waitForProgress()
}

// waitForProgress relays the next scheduler update into the program.
func (m batchModel) waitForProgress() tea.Cmd {
	return func() tea.Msg {
		p, ok := <-m.ch
		if !ok {
			return nil
		}
		return progressMsg(p)
	}
}

func (m batchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			// Cancel the batch; the done message still arrives once
			// in-flight units wind down.
			m.cancel()
		}

	case tea.WindowSizeMsg:
		if w := msg.Width - 6; w > 10 {
			m.bar.Width = w
		}

	case progressMsg:
		m.total = msg.Total
		m.completed = msg.Completed
		m.current = msg.Unit
		m.status = msg.Status
		if msg.Status == "error" {
			m.failed++
		}
		return m, m.waitForProgress()

	case doneMsg:
		m.finished = true
		m.stats = services.BatchStats(msg)
		return m, tea.Quit
	}

	return m, nil
}

func (m batchModel) View() string {
	if m.finished {
		line := fmt.Sprintf("Done: %d converted, %d failed\n", m.stats.Converted, m.stats.Failed)
		if m.stats.Failed > 0 {
			return styles.StatusError.Render(line)
		}
		return styles.StatusCompleted.Render(line)
	}

	view := styles.TitleStyle.Render("Converting comic folders") + "\n"

	pct := 0.0
	if m.total > 0 {
		pct = float64(m.completed) / float64(m.total)
	}
	view += m.bar.ViewAs(pct) + "\n"
	view += styles.TextStyle.Render(fmt.Sprintf("%d/%d units", m.completed, m.total)) + "\n"

	if m.current != "" {
		view += styles.StatusStyle(m.status).Render(m.status) + " " + styles.MutedStyle.Render(m.current) + "\n"
	}
	if m.failed > 0 {
		view += styles.StatusError.Render(fmt.Sprintf("%d failed", m.failed)) + "\n"
	}
	view += styles.HelpStyle.Render("q: cancel")
	return view
}
