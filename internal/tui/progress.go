// internal/tui/progress.go
// Package tui renders a live progress view for a running evaluation.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mwiater/ragbench/internal/harness"
	"github.com/mwiater/ragbench/internal/util"
)

const recentLines = 8

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	doneStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	activeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

type eventMsg struct{ event harness.Event }

type eventsClosedMsg struct{}

// Model is the Bubble Tea model for the run progress view. Counts are
// best-effort: the harness drops events rather than block a worker, so the
// definitive totals come from the run summary after completion.
type Model struct {
	events <-chan harness.Event

	spinner spinner.Model
	bar     progress.Model

	total  int
	done   int
	failed int
	recent []string
	width  int
}

// NewProgress creates the progress model for a run of total pairs fed by the
// given event channel. The channel must be closed when the run finishes.
func NewProgress(total int, events <-chan harness.Event) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return Model{
		events:  events,
		spinner: s,
		bar:     progress.New(progress.WithDefaultGradient()),
		total:   total,
		width:   80,
	}
}

// Init starts the spinner and the event pump.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForEvent())
}

// waitForEvent blocks on the harness event channel and converts each update
// into a Bubble Tea message.
func (m Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		event, ok := <-m.events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg{event: event}
	}
}

// Update handles incoming messages and updates the model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = util.Min(msg.Width-10, 60)
		return m, nil

	case eventMsg:
		m.record(msg.event)
		return m, m.waitForEvent()

	case eventsClosedMsg:
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	default:
		return m, nil
	}
}

func (m *Model) record(event harness.Event) {
	label := fmt.Sprintf("%s × %s", event.TestCaseID, event.StrategyName)
	switch event.State {
	case harness.StateDone:
		m.done++
		m.push(doneStyle.Render("✓ " + label))
	case harness.StateFailed:
		m.failed++
		m.push(failedStyle.Render(fmt.Sprintf("✗ %s (%s)", label, event.ErrorKind)))
	default:
		m.push(activeStyle.Render(fmt.Sprintf("… %s: %s", label, event.State)))
	}
}

func (m *Model) push(line string) {
	m.recent = append(m.recent, util.TruncateRunes(line, m.width))
	if len(m.recent) > recentLines {
		m.recent = m.recent[len(m.recent)-recentLines:]
	}
}

// View renders the progress screen.
func (m Model) View() string {
	terminal := m.done + m.failed
	fraction := 0.0
	if m.total > 0 {
		fraction = float64(terminal) / float64(m.total)
	}

	var b strings.Builder
	b.WriteString(m.spinner.View())
	b.WriteString(titleStyle.Render("Evaluating retrieval strategies"))
	b.WriteString("\n\n")
	b.WriteString(m.bar.ViewAs(fraction))
	b.WriteString(fmt.Sprintf("  %d/%d pairs", terminal, m.total))
	b.WriteString("\n\n")
	b.WriteString(doneStyle.Render(fmt.Sprintf("done %d", m.done)))
	b.WriteString("  ")
	b.WriteString(failedStyle.Render(fmt.Sprintf("failed %d", m.failed)))
	b.WriteString("\n\n")
	for _, line := range m.recent {
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// RunProgress drives the progress view until the event channel closes.
func RunProgress(total int, events <-chan harness.Event) error {
	p := tea.NewProgram(NewProgress(total, events))
	_, err := p.Run()
	return err
}
