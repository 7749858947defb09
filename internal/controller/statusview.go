package controller

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	m "vss2git.dev/pkg/vss2git/internal/model"
)

const statusPollInterval = 200 * time.Millisecond

var (
	stageStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	statusStyle = lipgloss.NewStyle().Faint(true)
)

type statusTickMsg time.Time

// statusModel is a display-only bubbletea model. It polls the scheduler
// snapshot on a ticker and renders it; it never mutates pipeline state
// beyond requesting a cooperative abort on 'q'.
type statusModel struct {
	poll    func() m.ProgressSnapshot
	abort   func()
	spin    spinner.Model
	last    m.ProgressSnapshot
	aborted bool
}

// RunStatusView runs the interactive status display until the pipeline
// reaches a terminal stage. poll must be safe to call from another
// goroutine; abort requests a cooperative stop.
func RunStatusView(poll func() m.ProgressSnapshot, abort func()) error {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	model := statusModel{poll: poll, abort: abort, spin: sp}

	_, err := tea.NewProgram(model).Run()
	if err != nil {
		return fmt.Errorf("status view: %w", err)
	}

	return nil
}

// Init implements tea.Model.
func (s statusModel) Init() tea.Cmd {
	return tea.Batch(s.spin.Tick, statusTick())
}

func statusTick() tea.Cmd {
	return tea.Tick(statusPollInterval, func(t time.Time) tea.Msg {
		return statusTickMsg(t)
	})
}

// Update implements tea.Model.
func (s statusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if !s.aborted {
				s.aborted = true
				s.abort()
			}

			return s, nil
		}

	case statusTickMsg:
		s.last = s.poll()
		if s.last.Stage == m.StageDone || s.last.Stage == m.StageFailed {
			return s, tea.Quit
		}

		return s, statusTick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		s.spin, cmd = s.spin.Update(msg)

		return s, cmd
	}

	return s, nil
}

// View implements tea.Model.
func (s statusModel) View() string {
	snap := s.last

	head := fmt.Sprintf("%s %s", s.spin.View(), stageStyle.Render(string(snap.Stage)))
	if snap.Suspended {
		head += statusStyle.Render(" (suspended)")
	}

	if s.aborted {
		head += statusStyle.Render(" (abort requested)")
	}

	counters := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s",
		labelStyle.Render("files"), valueStyle.Render(fmt.Sprint(snap.Files)),
		labelStyle.Render("revisions"), valueStyle.Render(fmt.Sprint(snap.Revisions)),
		labelStyle.Render("changesets"), valueStyle.Render(fmt.Sprint(snap.Changesets)),
		labelStyle.Render("commits"), valueStyle.Render(fmt.Sprint(snap.Commits)),
	)

	return fmt.Sprintf("%s\n%s\n%s\n%s\n",
		head,
		counters,
		statusStyle.Render(snap.Status),
		statusStyle.Render(fmt.Sprintf("active %s  press q to abort", snap.Active.Round(time.Second))),
	)
}
