package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/conduct/internal/progress"
	"github.com/ShayCichocki/conduct/pkg/models"
)

// maxLogLines caps the activity log.
const maxLogLines = 1000

// headerHeight is the number of lines above the log viewport.
const headerHeight = 6

// EventMsg carries one progress event into the program.
type EventMsg struct {
	Event progress.Event
}

// DoneMsg is sent when the run or mission returned.
type DoneMsg struct {
	Result *models.SessionResult
}

// FeedApp is the bubbletea model of the progress feed.
type FeedApp struct {
	state    RunState
	lines    []string
	spinner  spinner.Model
	viewport viewport.Model
	ready    bool
	done     bool
	result   *models.SessionResult
	quitting bool

	titleStyle lipgloss.Style
	labelStyle lipgloss.Style
	valueStyle lipgloss.Style
	timeStyle  lipgloss.Style
	kindStyles map[progress.Kind]lipgloss.Style
	logStyle   lipgloss.Style
	doneStyle  lipgloss.Style
	errorStyle lipgloss.Style
	footStyle  lipgloss.Style
}

// NewFeedApp creates the feed model.
func NewFeedApp() *FeedApp {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	red := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	orange := lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("34"))

	return &FeedApp{
		spinner:  sp,
		viewport: viewport.New(80, 20),

		titleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("238")),

		labelStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(10),

		valueStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Bold(true),

		timeStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		kindStyles: map[progress.Kind]lipgloss.Style{
			progress.KindSecurityBlock:  red,
			progress.KindSessionError:   red,
			progress.KindSubtaskFailed:  red,
			progress.KindWorkerError:    orange,
			progress.KindSubtaskSkipped: orange,
			progress.KindSubtaskDone:    green,
			progress.KindSessionDone:    green,
		},

		logStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),

		doneStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")).
			Bold(true),

		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true),

		footStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
	}
}

// Init implements tea.Model.
func (a *FeedApp) Init() tea.Cmd {
	return a.spinner.Tick
}

// Update implements tea.Model.
func (a *FeedApp) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			a.quitting = true
			return a, tea.Quit
		}

	case tea.WindowSizeMsg:
		a.viewport.Width = msg.Width
		a.viewport.Height = max(msg.Height-headerHeight-2, 3)
		a.ready = true
		a.refresh()

	case EventMsg:
		a.state.Apply(msg.Event)
		a.appendLine(msg.Event)

	case DoneMsg:
		a.done = true
		a.result = msg.Result

	case spinner.TickMsg:
		if a.done {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	var cmd tea.Cmd
	a.viewport, cmd = a.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return a, tea.Batch(cmds...)
}

func (a *FeedApp) appendLine(ev progress.Event) {
	style, ok := a.kindStyles[ev.Kind]
	if !ok {
		style = a.logStyle
	}
	line := fmt.Sprintf("%s %-10s %s",
		a.timeStyle.Render(ev.Timestamp.Format("15:04:05")),
		ev.Source,
		style.Render(ev.Message))

	a.lines = append(a.lines, line)
	if len(a.lines) > maxLogLines {
		a.lines = a.lines[len(a.lines)-maxLogLines:]
	}
	a.refresh()
}

func (a *FeedApp) refresh() {
	atBottom := a.viewport.AtBottom()
	a.viewport.SetContent(strings.Join(a.lines, "\n"))
	if atBottom {
		a.viewport.GotoBottom()
	}
}

// View implements tea.Model.
func (a *FeedApp) View() string {
	if a.quitting {
		return ""
	}

	var b strings.Builder
	session := a.state.SessionID
	if session == "" {
		session = "(pending)"
	}
	b.WriteString(a.titleStyle.Render("conduct · session " + session))
	b.WriteString("\n")

	phase := a.state.Phase
	if phase == "" {
		phase = "waiting"
	}
	status := a.spinner.View() + " " + phase
	if a.done {
		status = a.renderResult()
	}
	b.WriteString(a.labelStyle.Render("Status:"))
	b.WriteString(status)
	b.WriteString("\n")

	if a.state.Cycle > 0 {
		b.WriteString(a.labelStyle.Render("Cycle:"))
		b.WriteString(a.valueStyle.Render(fmt.Sprint(a.state.Cycle)))
		b.WriteString("\n")
	}

	b.WriteString(a.labelStyle.Render("Subtasks:"))
	b.WriteString(a.valueStyle.Render(fmt.Sprintf("%d started, %d done, %d failed, %d skipped",
		a.state.Started, a.state.Done, a.state.Failed, a.state.Skipped)))
	b.WriteString("\n")

	b.WriteString(a.labelStyle.Render("Running:"))
	b.WriteString(a.renderRunning())
	b.WriteString("\n\n")

	b.WriteString(a.viewport.View())
	b.WriteString("\n")
	b.WriteString(a.footStyle.Render("↑/↓ scroll · q quit"))
	return b.String()
}

func (a *FeedApp) renderResult() string {
	if a.result == nil {
		return a.doneStyle.Render("finished")
	}
	switch a.result.Status {
	case models.ResultStatusOK:
		return a.doneStyle.Render(fmt.Sprintf("ok · %d findings", len(a.result.Findings)))
	default:
		return a.errorStyle.Render(string(a.result.Status) + ": " + a.result.Error)
	}
}

func (a *FeedApp) renderRunning() string {
	if len(a.state.Running) == 0 {
		return a.valueStyle.Render("none")
	}
	ids := make([]int, 0, len(a.state.Running))
	for id := range a.state.Running {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return a.valueStyle.Render(strings.Join(parts, ", "))
}

// State returns the aggregated state.
func (a *FeedApp) State() RunState {
	return a.state
}

// Lines returns the rendered activity log.
func (a *FeedApp) Lines() []string {
	return a.lines
}
