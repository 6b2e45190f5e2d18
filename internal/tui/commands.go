package tui

import (
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Dicklesworthstone/owl/internal/daemon"
	"github.com/Dicklesworthstone/owl/internal/status"
	"github.com/Dicklesworthstone/owl/internal/tmux"
)

// AgentRow is one discovered agent pane with its classified state.
type AgentRow struct {
	Agent      tmux.Agent
	State      status.AgentState
	LastOutput string
	CaptureErr string
}

// refreshMsg asks the model to start a new sampling pass.
type refreshMsg struct{}

// samplesMsg carries one completed sampling pass. Gen guards against
// applying a pass that was superseded while it ran.
type samplesMsg struct {
	Rows   []AgentRow
	Daemon daemon.State
	PID    int
	Err    error
	At     time.Time
	Gen    int
}

// scheduleRefresh emits refreshMsg after the configured interval.
func (m Model) scheduleRefresh() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg {
		return refreshMsg{}
	})
}

// sampleCmd captures and classifies every agent pane off the UI
// goroutine. The daemon state rides along so the badge stays current.
func (m Model) sampleCmd(gen int) tea.Cmd {
	mux := m.sampler
	classifier := m.classifier
	paths := m.paths
	lines := m.captureLines

	return func() tea.Msg {
		state, pid := daemon.Check(paths)

		agents, err := mux.ListAgents()
		if err != nil {
			return samplesMsg{Daemon: state, PID: pid, Err: err, At: time.Now(), Gen: gen}
		}

		rows := make([]AgentRow, 0, len(agents))
		for _, agent := range agents {
			row := AgentRow{Agent: agent}
			content, err := mux.CapturePane(agent.Target, lines)
			if err != nil {
				row.CaptureErr = err.Error()
			} else {
				row.State = classifier.Detect(content)
				row.LastOutput = lastPaneLine(content)
			}
			rows = append(rows, row)
		}
		sort.Slice(rows, func(i, j int) bool {
			return rows[i].Agent.Target < rows[j].Agent.Target
		})

		return samplesMsg{Rows: rows, Daemon: state, PID: pid, At: time.Now(), Gen: gen}
	}
}

// lastPaneLine returns the last non-empty line of a pane capture.
func lastPaneLine(content string) string {
	lines := strings.Split(status.StripANSI(content), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
