// Package dashboard is the interactive terminal view of a workflow run: live
// per-phase metrics reloaded whenever the state directory changes on disk.
package dashboard

import (
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"github.com/mattn/go-isatty"

	"phasewatch/internal/event"
	"phasewatch/internal/metrics"
	"phasewatch/internal/storage"
	"phasewatch/internal/workflow"
)

// tickMsg drives the periodic fallback refresh.
type tickMsg time.Time

// refreshMsg carries a freshly correlated snapshot.
type refreshMsg struct {
	run    *metrics.RunMetrics
	state  *storage.State
	events []event.CanonicalEvent
	err    error
}

type tab int

const (
	tabOverview tab = iota
	tabPhases
	tabCommands
	tabFiles
	tabEvents
	tabCount
)

var tabNames = [tabCount]string{"Overview", "Phases", "Commands", "Files", "Events"}

// eventTailSize bounds how many recent events the Events tab shows.
const eventTailSize = 30

var (
	activeTabStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")).Padding(0, 1)
	inactiveTabStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Padding(0, 1)
	headerStyle      = lipgloss.NewStyle().Bold(true)
	dimStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// Model is the Bubble Tea model for the dashboard.
type Model struct {
	store   *storage.Store
	watcher *fsnotify.Watcher

	activeTab tab
	width     int
	height    int

	run    *metrics.RunMetrics
	state  *storage.State
	events []event.CanonicalEvent
	err    error

	phaseTable table.Model
}

func newModel(store *storage.Store) Model {
	cols := []table.Column{
		{Title: "Phase", Width: 16},
		{Title: "Duration", Width: 10},
		{Title: "Events", Width: 8},
		{Title: "Cmds", Width: 6},
		{Title: "Edits", Width: 6},
		{Title: "Tokens", Width: 12},
		{Title: "Commits", Width: 8},
	}
	t := table.New(table.WithColumns(cols), table.WithFocused(true))
	return Model{store: store, watcher: initWatcher(store.Dir()), phaseTable: t}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.refreshCmd(), tickCmd()}
	if m.watcher != nil {
		cmds = append(cmds, runWatcher(m.watcher))
	}
	return tea.Batch(cmds...)
}

func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) refreshCmd() tea.Cmd {
	store := m.store
	return func() tea.Msg {
		run, _, err := workflow.BuildMetrics(store, time.Now())
		if err != nil {
			return refreshMsg{err: err}
		}
		state, err := store.Load()
		if err != nil {
			return refreshMsg{err: err}
		}
		events, err := store.ReadEvents()
		if err != nil {
			return refreshMsg{err: err}
		}
		if len(events) > eventTailSize {
			events = events[len(events)-eventTailSize:]
		}
		return refreshMsg{run: run, state: state, events: events}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab", "right", "l":
			m.activeTab = (m.activeTab + 1) % tabCount
		case "shift+tab", "left", "h":
			m.activeTab = (m.activeTab + tabCount - 1) % tabCount
		case "r":
			return m, m.refreshCmd()
		default:
			var cmd tea.Cmd
			m.phaseTable, cmd = m.phaseTable.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.phaseTable.SetHeight(maxInt(3, m.height-6))

	case tickMsg:
		return m, tea.Batch(m.refreshCmd(), tickCmd())

	case fsChangeMsg:
		cmds := []tea.Cmd{m.refreshCmd()}
		if m.watcher != nil {
			cmds = append(cmds, runWatcher(m.watcher))
		}
		return m, tea.Batch(cmds...)

	case refreshMsg:
		m.err = msg.err
		if msg.err == nil {
			m.run = msg.run
			m.state = msg.state
			m.events = msg.events
			m.phaseTable.SetRows(phaseRows(msg.run))
		}
	}
	return m, nil
}

func phaseRows(run *metrics.RunMetrics) []table.Row {
	rows := make([]table.Row, 0, len(run.Phases))
	for _, p := range run.Phases {
		rows = append(rows, table.Row{
			p.Phase,
			p.Duration.Round(time.Second).String(),
			fmt.Sprintf("%d", p.EventCount),
			fmt.Sprintf("%d", p.CommandCount()),
			fmt.Sprintf("%d", p.FileEditCount()),
			humanize.Comma(int64(p.Tokens.Combined())),
			fmt.Sprintf("%d", len(p.Commits)),
		})
	}
	return rows
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.tabBar())
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(errStyle.Render("error: " + m.err.Error()))
		b.WriteString("\n")
	}

	switch m.activeTab {
	case tabOverview:
		b.WriteString(m.overviewView())
	case tabPhases:
		b.WriteString(m.phaseTable.View())
	case tabCommands:
		b.WriteString(m.commandsView())
	case tabFiles:
		b.WriteString(m.filesView())
	case tabEvents:
		b.WriteString(m.eventsView())
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render("tab: switch view  r: refresh  q: quit"))
	return b.String()
}

func (m Model) tabBar() string {
	parts := make([]string, tabCount)
	for i := tab(0); i < tabCount; i++ {
		style := inactiveTabStyle
		if i == m.activeTab {
			style = activeTabStyle
		}
		parts[i] = style.Render(tabNames[i])
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m Model) overviewView() string {
	if m.run == nil {
		return dimStyle.Render("loading...")
	}
	var b strings.Builder

	if m.state != nil && m.state.Workflow != nil {
		ws := m.state.Workflow
		fmt.Fprintf(&b, "%s  %s\n", headerStyle.Render("Workflow:"), ws.Mode)
		fmt.Fprintf(&b, "%s      %s\n", headerStyle.Render("Node:"), ws.CurrentNode)
		fmt.Fprintf(&b, "%s   %s\n", headerStyle.Render("History:"), strings.Join(ws.History, " -> "))
	} else {
		b.WriteString(dimStyle.Render("no workflow run in progress"))
		b.WriteString("\n")
	}

	t := m.run.Total
	fmt.Fprintf(&b, "\n%s %s in / %s out (%d turns)\n",
		headerStyle.Render("Tokens:"),
		humanize.Comma(int64(t.Input)), humanize.Comma(int64(t.Output)), t.AssistantTurns)
	fmt.Fprintf(&b, "%s %d phases", headerStyle.Render("Phases:"), len(m.run.Phases))
	if m.run.Unmatched > 0 {
		fmt.Fprintf(&b, "  (%d events outside all phases)", m.run.Unmatched)
	}
	b.WriteString("\n")
	return b.String()
}

func (m Model) commandsView() string {
	if m.run == nil {
		return dimStyle.Render("loading...")
	}
	var b strings.Builder
	for _, p := range m.run.Phases {
		if len(p.Commands) == 0 {
			continue
		}
		b.WriteString(headerStyle.Render(p.Phase))
		b.WriteString("\n")
		for _, c := range p.Commands {
			fmt.Fprintf(&b, "  x%-4d %s\n", c.Count, truncate(c.Command, maxInt(20, m.width-10)))
		}
	}
	if b.Len() == 0 {
		return dimStyle.Render("no commands recorded")
	}
	return b.String()
}

func (m Model) filesView() string {
	if m.run == nil {
		return dimStyle.Render("loading...")
	}
	var b strings.Builder
	for _, p := range m.run.Phases {
		if len(p.FileEdits) == 0 {
			continue
		}
		b.WriteString(headerStyle.Render(p.Phase))
		b.WriteString("\n")
		for _, f := range p.FileEdits {
			fmt.Fprintf(&b, "  x%-4d %s (%s)\n", f.Count, truncate(f.FilePath, maxInt(20, m.width-20)), f.Tool)
		}
	}
	if b.Len() == 0 {
		return dimStyle.Render("no file edits recorded")
	}
	return b.String()
}

func (m Model) eventsView() string {
	if len(m.events) == 0 {
		return dimStyle.Render("no events recorded")
	}
	var b strings.Builder
	for _, ev := range m.events {
		line := fmt.Sprintf("%s  %-15s %s", ev.Timestamp, ev.Type, ev.ToolName)
		b.WriteString(truncate(line, maxInt(20, m.width-2)))
		b.WriteString("\n")
	}
	return b.String()
}

// truncate shortens s to n runes. Indexing by rune keeps multibyte
// characters in commands and paths intact.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Run starts the dashboard against the given store. Requires a terminal.
func Run(store *storage.Store) error {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return fmt.Errorf("dashboard requires an interactive terminal")
	}
	p := tea.NewProgram(newModel(store), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
