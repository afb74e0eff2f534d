// Package tui implements the `run` command's live dashboard: a fleet
// summary line, a per-service table, a detail pane for the selected
// service, and a status bar showing pause state and the next-tick
// countdown.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/W0rldHacker/health-multi/internal/probe"
	"github.com/W0rldHacker/health-multi/internal/redact"
	"github.com/W0rldHacker/health-multi/internal/statusx"
)

// Controller is the subset of the orchestrator/scheduler the dashboard
// drives directly: pausing and resuming the tick. Shutdown goes through
// New's onQuit callback instead. Defined here, implemented by the caller, so this package
// never imports internal/orchestrator or internal/scheduler.
type Controller interface {
	Pause()
	Resume()
}

// Model is the bubbletea model backing the dashboard.
type Model struct {
	services  []probe.Service
	urlByName map[string]string

	agg      probe.AggregateResult
	interval time.Duration
	lastTick time.Time
	paused   bool

	table     table.Model
	ctrl      Controller
	updates   <-chan probe.AggregateResult
	onQuit    func()
	width     int
	height    int
}

type aggregateMsg probe.AggregateResult
type frameMsg time.Time

// New builds a Model. updates delivers one AggregateResult per completed
// cycle (wire it to Orchestrator.OnAggregate via a buffered channel);
// ctrl pauses/resumes the scheduler; onQuit runs once, on q/ctrl+c,
// before the program exits, to trigger graceful shutdown.
func New(services []probe.Service, interval time.Duration, updates <-chan probe.AggregateResult, ctrl Controller, onQuit func()) Model {
	urlByName := make(map[string]string, len(services))
	for _, svc := range services {
		urlByName[svc.Name] = redact.URL(svc.URL)
	}

	columns := []table.Column{
		{Title: "Service", Width: 20},
		{Title: "Status", Width: 10},
		{Title: "Latency", Width: 10},
		{Title: "Age", Width: 10},
		{Title: "Backoff", Width: 8},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(len(services)+1),
	)

	return Model{
		services:  services,
		urlByName: urlByName,
		interval:  interval,
		lastTick:  time.Now(),
		table:     t,
		ctrl:      ctrl,
		updates:   updates,
		onQuit:    onQuit,
	}
}

// Init starts the background listener for orchestrator updates and the
// redraw ticker driving the countdown in the status bar.
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForAggregate(m.updates), frameTick())
}

func waitForAggregate(updates <-chan probe.AggregateResult) tea.Cmd {
	return func() tea.Msg {
		agg, ok := <-updates
		if !ok {
			return nil
		}
		return aggregateMsg(agg)
	}
}

func frameTick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg { return frameMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.onQuit != nil {
				m.onQuit()
			}
			return m, tea.Quit
		case "p":
			m.paused = !m.paused
			if m.ctrl != nil {
				if m.paused {
					m.ctrl.Pause()
				} else {
					m.ctrl.Resume()
				}
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd

	case aggregateMsg:
		m.agg = probe.AggregateResult(msg)
		m.lastTick = time.Now()
		m.table.SetRows(buildRows(m.agg))
		return m, waitForAggregate(m.updates)

	case frameMsg:
		return m, frameTick()
	}
	return m, nil
}

func buildRows(agg probe.AggregateResult) []table.Row {
	rows := make([]table.Row, 0, len(agg.Results))
	for _, r := range agg.Results {
		latency := "-"
		if r.LatencyMs != nil {
			latency = fmt.Sprintf("%.0fms", *r.LatencyMs)
		}
		backoff := "-"
		if r.Multiplier > 1 {
			backoff = fmt.Sprintf("%dx", r.Multiplier)
		}
		rows = append(rows, table.Row{
			r.ServiceName,
			r.Status.String(),
			latency,
			fmt.Sprintf("%.0fs", r.AgeMs/1000),
			backoff,
		})
	}
	return rows
}

var (
	statusStyles = map[statusx.Status]lipgloss.Style{
		statusx.Ok:       lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		statusx.Degraded: lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		statusx.Down:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
	headerStyle = lipgloss.NewStyle().Bold(true)
	barStyle    = lipgloss.NewStyle().Faint(true)
)

func (m Model) View() string {
	var b strings.Builder

	style := statusStyles[m.agg.Status]
	fmt.Fprintf(&b, "%s  %s\n\n",
		headerStyle.Render("health-multi"),
		style.Render(strings.ToUpper(m.agg.Status.String())),
	)

	b.WriteString(m.table.View())
	b.WriteString("\n\n")
	b.WriteString(m.detailPane())
	b.WriteString("\n")
	b.WriteString(m.statusBar())

	return b.String()
}

func (m Model) detailPane() string {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.agg.Results) {
		return ""
	}
	r := m.agg.Results[idx]

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", headerStyle.Render(r.ServiceName))
	fmt.Fprintf(&b, "  url:     %s\n", m.urlByName[r.ServiceName])
	fmt.Fprintf(&b, "  status:  %s\n", r.Status)
	if r.HTTPStatus != nil {
		fmt.Fprintf(&b, "  http:    %d\n", *r.HTTPStatus)
	}
	if r.Err != nil {
		fmt.Fprintf(&b, "  error:   %s\n", r.Err)
	}
	fmt.Fprintf(&b, "  checked: %s\n", r.CheckedAt.Format(time.RFC3339))
	return b.String()
}

func (m Model) statusBar() string {
	state := "running"
	if m.paused {
		state = "paused"
	}
	remaining := m.interval - time.Since(m.lastTick)
	if remaining < 0 {
		remaining = 0
	}
	return barStyle.Render(fmt.Sprintf(
		"[%s]  next tick in %ds  |  j/k or arrows: select  p: pause/resume  q: quit",
		state, int(remaining.Seconds()),
	))
}
