// Package tui provides the terminal user interface for quorum runs.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/quorum/internal/engine"
	"github.com/ShayCichocki/quorum/internal/stats"
	"github.com/ShayCichocki/quorum/pkg/models"
)

const maxLogLines = 12

// EventMsg wraps an engine event for the bubbletea loop.
type EventMsg struct {
	Event engine.Event
}

// EventsClosedMsg signals that the engine's event stream has ended.
type EventsClosedMsg struct{}

// statsTickMsg refreshes the live counters.
type statsTickMsg time.Time

// RunView displays a live run: current node, recent events, and counters.
type RunView struct {
	task    string
	spinner spinner.Model
	tracker *stats.Tracker
	events  <-chan engine.Event

	current  string
	log      []string
	stats    models.ExecutionStats
	done     bool
	failed   bool
	finalErr error
	started  time.Time
	width    int

	headerStyle lipgloss.Style
	labelStyle  lipgloss.Style
	valueStyle  lipgloss.Style
	okStyle     lipgloss.Style
	failStyle   lipgloss.Style
	dimStyle    lipgloss.Style
}

// NewRunView creates a run view consuming the given event stream.
func NewRunView(task string, events <-chan engine.Event, tracker *stats.Tracker) *RunView {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &RunView{
		task:    task,
		spinner: s,
		tracker: tracker,
		events:  events,
		started: time.Now(),

		headerStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("238")).
			MarginBottom(1),

		labelStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(16),

		valueStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Bold(true),

		okStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")).
			Bold(true),

		failStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true),

		dimStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
	}
}

// Init implements tea.Model.
func (v *RunView) Init() tea.Cmd {
	return tea.Batch(v.spinner.Tick, v.waitForEvent(), v.tick())
}

// waitForEvent blocks on the engine's event channel.
func (v *RunView) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-v.events
		if !ok {
			return EventsClosedMsg{}
		}
		return EventMsg{Event: ev}
	}
}

func (v *RunView) tick() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return statsTickMsg(t)
	})
}

// Update implements tea.Model.
func (v *RunView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.width = msg.Width

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return v, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		v.spinner, cmd = v.spinner.Update(msg)
		return v, cmd

	case statsTickMsg:
		if v.tracker != nil {
			v.stats = v.tracker.Snapshot()
		}
		if v.done {
			return v, nil
		}
		return v, v.tick()

	case EventMsg:
		v.apply(msg.Event)
		if v.done {
			return v, tea.Quit
		}
		return v, v.waitForEvent()

	case EventsClosedMsg:
		v.done = true
		return v, tea.Quit
	}

	return v, nil
}

// apply folds one engine event into the view state.
func (v *RunView) apply(ev engine.Event) {
	switch ev.Type {
	case engine.EventNodeDecomposing:
		v.current = "decomposing: " + ev.Description
	case engine.EventNodeDecomposed:
		v.addLog(fmt.Sprintf("split %s into %s", ev.NodePath, ev.Message))
	case engine.EventNodeExecuting:
		v.current = "voting: " + ev.Description
	case engine.EventNodeVoted:
		v.addLog(fmt.Sprintf("consensus at %s (%d votes, %d escalations)", ev.NodePath, ev.Votes, ev.Escalations))
	case engine.EventNodeComposed:
		v.addLog("composed " + ev.NodePath)
	case engine.EventNodeRetrying:
		v.addLog(fmt.Sprintf("retrying %s (%s)", ev.NodePath, ev.Message))
	case engine.EventNodeFailed:
		v.addLog("failed " + ev.NodePath)
	case engine.EventRunDone:
		v.done = true
		v.failed = ev.Error != nil
		v.finalErr = ev.Error
	}
}

func (v *RunView) addLog(line string) {
	stamp := time.Now().Format("15:04:05")
	v.log = append(v.log, fmt.Sprintf("%s %s", stamp, line))
	if len(v.log) > maxLogLines {
		v.log = v.log[len(v.log)-maxLogLines:]
	}
}

// View implements tea.Model.
func (v *RunView) View() string {
	var b strings.Builder

	b.WriteString(v.headerStyle.Render("quorum run"))
	b.WriteString("\n")
	b.WriteString(v.labelStyle.Render("Task:"))
	b.WriteString(v.valueStyle.Render(truncate(v.task, 70)))
	b.WriteString("\n")

	if v.done {
		b.WriteString(v.labelStyle.Render("Status:"))
		if v.failed {
			b.WriteString(v.failStyle.Render("FAILED"))
			if v.finalErr != nil {
				b.WriteString(v.dimStyle.Render("  " + truncate(v.finalErr.Error(), 60)))
			}
		} else {
			b.WriteString(v.okStyle.Render("DONE"))
		}
	} else {
		b.WriteString(v.labelStyle.Render("Status:"))
		b.WriteString(v.spinner.View())
		b.WriteString(" ")
		b.WriteString(truncate(v.current, 70))
	}
	b.WriteString("\n\n")

	b.WriteString(v.labelStyle.Render("Decompositions:"))
	b.WriteString(v.valueStyle.Render(fmt.Sprintf("%d", v.stats.Decompositions)))
	b.WriteString("   ")
	b.WriteString(v.labelStyle.Render("Votes cast:"))
	b.WriteString(v.valueStyle.Render(fmt.Sprintf("%d", v.stats.VotesCast)))
	b.WriteString("\n")
	b.WriteString(v.labelStyle.Render("Red flags:"))
	b.WriteString(v.valueStyle.Render(fmt.Sprintf("%d", v.stats.RedFlagsDetected)))
	b.WriteString("   ")
	b.WriteString(v.labelStyle.Render("Escalations:"))
	b.WriteString(v.valueStyle.Render(fmt.Sprintf("%d", v.stats.Escalations)))
	b.WriteString("\n")
	b.WriteString(v.labelStyle.Render("Elapsed:"))
	b.WriteString(v.valueStyle.Render(time.Since(v.started).Round(time.Second).String()))
	b.WriteString("\n\n")

	for _, line := range v.log {
		b.WriteString(v.dimStyle.Render(line))
		b.WriteString("\n")
	}

	if !v.done {
		b.WriteString("\n")
		b.WriteString(v.dimStyle.Render("press q to quit"))
	}
	b.WriteString("\n")

	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
