package tmux

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// paneTitleRegex matches the agent pane naming convention:
// session__type_index or session__type_index_variant
var paneTitleRegex = regexp.MustCompile(`^.+__(\w+)_\d+(?:_(\w+))?$`)

// AgentType identifies what runs in a pane.
type AgentType string

const (
	AgentClaude AgentType = "cc"
	AgentCodex  AgentType = "cod"
	AgentGemini AgentType = "gmi"
	AgentPM     AgentType = "pm" // supervising agent
	AgentUser   AgentType = "user"
)

// Role is the hint discovery attaches to each agent.
type Role string

const (
	RoleSupervisor Role = "supervisor"
	RoleWorker     Role = "worker"
)

// Role maps an agent type to its team role.
func (t AgentType) Role() Role {
	if t == AgentPM {
		return RoleSupervisor
	}
	return RoleWorker
}

// Agent is one discovered agent pane. Target is the opaque
// "session:window" address the rest of the system keys everything by.
type Agent struct {
	Target  string
	Session string
	Window  int
	Title   string
	Type    AgentType
	Variant string
	Role    Role
}

// parseAgentFromTitle extracts agent type and variant from a pane
// title. Titles that don't match the naming convention are user panes.
func parseAgentFromTitle(title string) (AgentType, string) {
	matches := paneTitleRegex.FindStringSubmatch(title)
	if matches == nil {
		return AgentUser, ""
	}

	agentType := AgentType(matches[1])
	variant := matches[2]

	switch agentType {
	case AgentClaude, AgentCodex, AgentGemini, AgentPM:
		return agentType, variant
	default:
		return AgentUser, ""
	}
}

// ListAgents discovers agent panes across every session. User panes
// (operator shells, unmatched titles) are not agents and are skipped.
// No tmux server means no agents, not an error.
func (c *Client) ListAgents() ([]Agent, error) {
	sep := "|#|"
	format := fmt.Sprintf("#{session_name}%[1]s#{window_index}%[1]s#{pane_title}%[1]s#{pane_active}", sep)
	output, err := c.Run("list-panes", "-a", "-F", format)
	if err != nil {
		if noServer(err) {
			return nil, nil
		}
		return nil, err
	}
	if output == "" {
		return nil, nil
	}

	var agents []Agent
	seen := make(map[string]bool)
	for _, line := range strings.Split(output, "\n") {
		parts := strings.Split(line, sep)
		if len(parts) < 4 {
			continue
		}

		agentType, variant := parseAgentFromTitle(parts[2])
		if agentType == AgentUser {
			continue
		}

		window, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}

		target := fmt.Sprintf("%s:%d", parts[0], window)
		// One agent per window: when a window is split, the first
		// listed pane speaks for it.
		if seen[target] {
			continue
		}
		seen[target] = true

		agents = append(agents, Agent{
			Target:  target,
			Session: parts[0],
			Window:  window,
			Title:   parts[2],
			Type:    agentType,
			Variant: variant,
			Role:    agentType.Role(),
		})
	}
	return agents, nil
}

// CapturePane captures the last lines of pane content for target.
func (c *Client) CapturePane(target string, lines int) (string, error) {
	return c.Run("capture-pane", "-t", target, "-p", "-S", fmt.Sprintf("-%d", lines))
}

// sendTextEnterDelay separates the text from its Enter so the agent's
// TUI has registered the input before submission.
const sendTextEnterDelay = 300 * time.Millisecond

// SendText types message into target and submits it.
func (c *Client) SendText(target, message string) error {
	if err := c.RunSilent("send-keys", "-t", target, "-l", "--", message); err != nil {
		return err
	}
	time.Sleep(sendTextEnterDelay)
	return c.RunSilent("send-keys", "-t", target, "C-m")
}

// SendControlKey sends a control key (e.g. "C-c") to target.
func (c *Client) SendControlKey(target, key string) error {
	return c.RunSilent("send-keys", "-t", target, key)
}

// SessionExists checks if a session exists.
func (c *Client) SessionExists(name string) bool {
	return c.RunSilent("has-session", "-t", name) == nil
}

// KillWindow kills one agent window ("session:window").
func (c *Client) KillWindow(target string) error {
	return c.RunSilent("kill-window", "-t", target)
}

// KillSession kills a whole session.
func (c *Client) KillSession(session string) error {
	return c.RunSilent("kill-session", "-t", session)
}

// NewSession creates a detached session rooted at directory.
func (c *Client) NewSession(name, directory string) error {
	return c.RunSilent("new-session", "-d", "-s", name, "-c", directory)
}

// NewWindow creates a window in session with the given title.
func (c *Client) NewWindow(session, title, directory string) error {
	return c.RunSilent("new-window", "-t", session, "-n", title, "-c", directory)
}

// Package-level helpers on the default client.

// ListAgents discovers agent panes across every session.
func ListAgents() ([]Agent, error) { return DefaultClient.ListAgents() }

// CapturePane captures the last lines of pane content for target.
func CapturePane(target string, lines int) (string, error) {
	return DefaultClient.CapturePane(target, lines)
}

// SendText types message into target and submits it.
func SendText(target, message string) error { return DefaultClient.SendText(target, message) }

// SendControlKey sends a control key to target.
func SendControlKey(target, key string) error { return DefaultClient.SendControlKey(target, key) }

// SessionExists checks if a session exists.
func SessionExists(name string) bool { return DefaultClient.SessionExists(name) }

// KillWindow kills one agent window.
func KillWindow(target string) error { return DefaultClient.KillWindow(target) }
