// Package tui is the live watch screen: a full-screen table of every
// discovered agent pane, resampled on an interval, with the daemon
// state pinned in the header. Sampling happens in-process, so the
// screen works whether or not the daemon is running.
package tui

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/termenv"

	"github.com/Dicklesworthstone/owl/internal/config"
	"github.com/Dicklesworthstone/owl/internal/daemon"
	"github.com/Dicklesworthstone/owl/internal/status"
	"github.com/Dicklesworthstone/owl/internal/tmux"
)

// DefaultRefreshInterval is the default resampling cadence.
const DefaultRefreshInterval = 2 * time.Second

// sampler is the slice of the tmux client the watch screen needs.
type sampler interface {
	ListAgents() ([]tmux.Agent, error)
	CapturePane(target string, lines int) (string, error)
}

// KeyMap defines the watch screen keybindings.
type KeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Refresh key.Binding
	Pause   key.Binding
	Quit    key.Binding
}

var watchKeys = KeyMap{
	Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Pause:   key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "pause")),
	Quit:    key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
}

// styleSet holds the prebuilt styles. The selection surface flips with
// the terminal background so the highlighted row stays readable.
type styleSet struct {
	title    lipgloss.Style
	muted    lipgloss.Style
	header   lipgloss.Style
	selected lipgloss.Style
	errLine  lipgloss.Style
}

func newStyles(darkBackground bool) styleSet {
	surface := lipgloss.Color("236")
	if !darkBackground {
		surface = lipgloss.Color("254")
	}
	return styleSet{
		title:    lipgloss.NewStyle().Bold(true),
		muted:    lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		header:   lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Bold(true),
		selected: lipgloss.NewStyle().Background(surface).Bold(true),
		errLine:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
}

// stateColor maps a state to its ANSI-256 accent, matching the CLI
// formatter's palette.
func stateColor(s status.AgentState) lipgloss.Color {
	switch s {
	case status.StateActive:
		return lipgloss.Color("42")
	case status.StateIdle:
		return lipgloss.Color("214")
	case status.StateFresh:
		return lipgloss.Color("86")
	case status.StateMessageQueued:
		return lipgloss.Color("75")
	case status.StateError, status.StateCrashed:
		return lipgloss.Color("196")
	case status.StateRateLimited:
		return lipgloss.Color("213")
	default:
		return lipgloss.Color("240")
	}
}

// displayOrder fixes the stats bar ordering, calmest first.
var displayOrder = []status.AgentState{
	status.StateActive,
	status.StateIdle,
	status.StateFresh,
	status.StateMessageQueued,
	status.StateError,
	status.StateCrashed,
	status.StateRateLimited,
}

// Model is the watch screen model.
type Model struct {
	paths        daemon.Paths
	sampler      sampler
	classifier   *status.Classifier
	captureLines int
	interval     time.Duration

	rows        []AgentRow
	daemonState daemon.State
	daemonPID   int
	err         error

	spinner     spinner.Model
	styles      styleSet
	width       int
	height      int
	cursor      int
	gen         int
	sampling    bool
	paused      bool
	quitting    bool
	lastRefresh time.Time
}

// New builds the watch model around the effective config.
func New(cfg *config.Config, interval time.Duration) Model {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))

	return Model{
		paths: daemon.Paths{
			Dir:    cfg.DataDir,
			PID:    cfg.PIDPath(),
			Lock:   cfg.LockPath(),
			Log:    cfg.LogPath(),
			Marker: cfg.MarkerPath(),
		},
		sampler:      tmux.NewClient(),
		classifier:   status.NewClassifier(cfg.Markers.ToMarkers()),
		captureLines: cfg.Monitor.CaptureLines,
		interval:     interval,
		spinner:      sp,
		styles:       newStyles(termenv.NewOutput(os.Stdout).HasDarkBackground()),
		width:        80,
		height:       24,
		gen:          1,
		sampling:     true,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.sampleCmd(m.gen), m.scheduleRefresh())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case refreshMsg:
		// The tick chain always reschedules itself; a pass already in
		// flight or a paused screen just skips the sample.
		if m.paused || m.sampling {
			return m, m.scheduleRefresh()
		}
		m.gen++
		m.sampling = true
		return m, tea.Batch(m.sampleCmd(m.gen), m.scheduleRefresh())

	case samplesMsg:
		if msg.Gen != m.gen {
			// A newer pass was requested while this one ran.
			return m, nil
		}
		m.sampling = false
		m.daemonState = msg.Daemon
		m.daemonPID = msg.PID
		m.err = msg.Err
		if msg.Err == nil {
			m.rows = msg.Rows
			m.lastRefresh = msg.At
			if m.cursor >= len(m.rows) {
				m.cursor = len(m.rows) - 1
			}
			if m.cursor < 0 {
				m.cursor = 0
			}
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, watchKeys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, watchKeys.Up):
			if m.cursor > 0 {
				m.cursor--
			}

		case key.Matches(msg, watchKeys.Down):
			if m.cursor < len(m.rows)-1 {
				m.cursor++
			}

		case key.Matches(msg, watchKeys.Refresh):
			m.gen++
			m.sampling = true
			return m, m.sampleCmd(m.gen)

		case key.Matches(msg, watchKeys.Pause):
			m.paused = !m.paused
			if !m.paused {
				m.gen++
				m.sampling = true
				return m, m.sampleCmd(m.gen)
			}
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	s := m.styles

	var b strings.Builder
	b.WriteString("\n")

	header := "  " + s.title.Render("owl watch") + "  " + m.renderDaemonBadge()
	if !m.lastRefresh.IsZero() {
		header += "  " + s.muted.Render("sampled "+m.lastRefresh.Format("15:04:05"))
	}
	if m.paused {
		header += "  " + s.muted.Render("(paused)")
	}
	if m.sampling {
		header += "  " + m.spinner.View()
	}
	b.WriteString(header + "\n\n")

	b.WriteString("  " + m.renderStatsBar() + "\n\n")

	switch {
	case m.err != nil:
		b.WriteString("  " + s.errLine.Render("✗ "+m.err.Error()) + "\n")
	case len(m.rows) == 0:
		b.WriteString("  " + s.muted.Render("No agent panes found.") + "\n")
		b.WriteString("  " + s.muted.Render("Agents are discovered by pane title: session__type_index (e.g. myproj__cc_1).") + "\n")
	default:
		b.WriteString(m.renderTable())
		b.WriteString("\n")
		b.WriteString(m.renderDetail())
	}

	b.WriteString("\n  " + m.renderHelpBar() + "\n")
	return b.String()
}

func (m Model) renderDaemonBadge() string {
	badge := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	switch m.daemonState {
	case daemon.StateRunning:
		return badge.
			Background(lipgloss.Color("42")).
			Foreground(lipgloss.Color("232")).
			Render(fmt.Sprintf("● daemon pid %d", m.daemonPID))
	case daemon.StateStale:
		return badge.
			Background(lipgloss.Color("214")).
			Foreground(lipgloss.Color("232")).
			Render("! stale pid file")
	default:
		return badge.
			Background(lipgloss.Color("240")).
			Foreground(lipgloss.Color("255")).
			Render("○ daemon stopped")
	}
}

func (m Model) renderStatsBar() string {
	badge := lipgloss.NewStyle().Bold(true).Padding(0, 1)

	parts := []string{
		badge.
			Background(lipgloss.Color("238")).
			Foreground(lipgloss.Color("255")).
			Render(fmt.Sprintf("%d agents", len(m.rows))),
	}

	counts := countStates(m.rows)
	for _, st := range displayOrder {
		n := counts[st]
		if n == 0 {
			continue
		}
		parts = append(parts, badge.
			Background(stateColor(st)).
			Foreground(lipgloss.Color("232")).
			Render(fmt.Sprintf("%d %s", n, st)))
	}

	failed := 0
	for _, r := range m.rows {
		if r.CaptureErr != "" {
			failed++
		}
	}
	if failed > 0 {
		parts = append(parts, badge.
			Background(lipgloss.Color("196")).
			Foreground(lipgloss.Color("232")).
			Render(fmt.Sprintf("%d capture failed", failed)))
	}

	return strings.Join(parts, " ")
}

const columnGap = "  "

// columnWidths sizes the table columns; LAST OUTPUT absorbs whatever
// width remains.
func (m Model) columnWidths() (target, typ, role, state, last int) {
	target = runewidth.StringWidth("TARGET")
	for _, r := range m.rows {
		if w := runewidth.StringWidth(r.Agent.Target); w > target {
			target = w
		}
	}
	// typ fits "user", role fits "supervisor", state fits the two-cell
	// icon plus "message_queued".
	typ = 4
	role = 10
	state = 17
	last = m.width - 4 - target - typ - role - state - 4*len(columnGap)
	if last < 10 {
		last = 10
	}
	return target, typ, role, state, last
}

func (m Model) renderTable() string {
	s := m.styles
	targetW, typeW, roleW, stateW, lastW := m.columnWidths()

	var b strings.Builder
	head := strings.Join([]string{
		runewidth.FillRight("TARGET", targetW),
		runewidth.FillRight("TYPE", typeW),
		runewidth.FillRight("ROLE", roleW),
		runewidth.FillRight("STATE", stateW),
		"LAST OUTPUT",
	}, columnGap)
	b.WriteString("  " + s.header.Render(head) + "\n")

	start, end := visibleWindow(len(m.rows), m.cursor, m.visibleRows())
	if start > 0 {
		b.WriteString("  " + s.muted.Render(fmt.Sprintf("… %d above", start)) + "\n")
	}
	for i := start; i < end; i++ {
		b.WriteString(m.renderRow(m.rows[i], i == m.cursor, targetW, typeW, roleW, stateW, lastW) + "\n")
	}
	if end < len(m.rows) {
		b.WriteString("  " + s.muted.Render(fmt.Sprintf("… %d below", len(m.rows)-end)) + "\n")
	}

	return b.String()
}

// renderRow pads the cells to their column widths before any styling so
// escape codes never skew the alignment.
func (m Model) renderRow(r AgentRow, selected bool, targetW, typeW, roleW, stateW, lastW int) string {
	s := m.styles

	stateCell := "? capture failed"
	lastCell := r.CaptureErr
	if r.CaptureErr == "" {
		stateCell = r.State.Icon() + " " + string(r.State)
		lastCell = r.LastOutput
	}
	lastCell = runewidth.Truncate(lastCell, lastW, "…")

	target := runewidth.FillRight(r.Agent.Target, targetW)
	typ := runewidth.FillRight(string(r.Agent.Type), typeW)
	role := runewidth.FillRight(string(r.Agent.Role), roleW)
	state := runewidth.FillRight(stateCell, stateW)

	if selected {
		plain := strings.Join([]string{target, typ, role, state, lastCell}, columnGap)
		return "▸ " + s.selected.Render(plain)
	}

	styledState := s.errLine.Render(state)
	if r.CaptureErr == "" {
		styledState = lipgloss.NewStyle().Foreground(stateColor(r.State)).Render(state)
	}
	return "  " + strings.Join([]string{target, typ, role, styledState, s.muted.Render(lastCell)}, columnGap)
}

// renderDetail shows the selected pane's full last line, wrapped, since
// the table clips it.
func (m Model) renderDetail() string {
	if len(m.rows) == 0 || m.cursor >= len(m.rows) {
		return ""
	}
	s := m.styles
	r := m.rows[m.cursor]

	title := r.Agent.Target
	if r.Agent.Title != "" {
		title += "  " + r.Agent.Title
	}

	body := r.LastOutput
	if r.CaptureErr != "" {
		body = "capture failed: " + r.CaptureErr
	}
	if body == "" {
		body = "(no output)"
	}

	width := m.width - 6
	if width < 20 {
		width = 20
	}

	var b strings.Builder
	b.WriteString("  " + s.header.Render(title) + "\n")
	for _, line := range strings.Split(wordwrap.String(body, width), "\n") {
		b.WriteString("  " + s.muted.Render(line) + "\n")
	}
	return b.String()
}

func (m Model) renderHelpBar() string {
	bindings := []key.Binding{watchKeys.Up, watchKeys.Down, watchKeys.Refresh, watchKeys.Pause, watchKeys.Quit}
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return m.styles.muted.Render(strings.Join(parts, " · "))
}

// visibleRows is how many table rows fit under the header, stats bar,
// detail panel, and help bar.
func (m Model) visibleRows() int {
	v := m.height - 13
	if v < 3 {
		v = 3
	}
	return v
}

// visibleWindow clips n rows to at most max, keeping cursor in view.
func visibleWindow(n, cursor, max int) (int, int) {
	if max <= 0 || n <= max {
		return 0, n
	}
	start := cursor - max/2
	if start < 0 {
		start = 0
	}
	if start+max > n {
		start = n - max
	}
	return start, start + max
}

// countStates tallies classified rows by state. Rows whose capture
// failed have no state and are not counted.
func countStates(rows []AgentRow) map[status.AgentState]int {
	counts := make(map[status.AgentState]int, len(rows))
	for _, r := range rows {
		if r.CaptureErr != "" {
			continue
		}
		counts[r.State]++
	}
	return counts
}

// Run starts the watch screen.
func Run(cfg *config.Config, interval time.Duration) error {
	model := New(cfg, interval)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
