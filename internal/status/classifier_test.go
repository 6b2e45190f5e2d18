package status

import (
	"strings"
	"testing"
)

// Pane fixtures. These mirror how the monitored CLIs actually render.
const (
	activePane = `
⏺ Running the test suite
  Esc to interrupt · ? for shortcuts
`

	idlePane = `
some earlier output

╭──────────────────────────────────────╮
│ >                                    │
╰──────────────────────────────────────╯
  ? for shortcuts
`

	queuedPane = `
⏺ Finished refactoring the parser

╭──────────────────────────────────────╮
│ > deploy the new version             │
╰──────────────────────────────────────╯
  ? for shortcuts
`

	freshPane = `
Welcome to Claude Code

╭──────────────────────────────────────╮
│ > Try "fix the failing test"         │
╰──────────────────────────────────────╯
  ? for shortcuts
`

	freshEmptyFramePane = `
Welcome back to Claude Code

╭──────────────────────────────────────╮
│ >                                    │
╰──────────────────────────────────────╯
  ? for shortcuts
`

	crashedPane = `
Traceback (most recent call last):
  File "agent.py", line 12, in <module>
RuntimeError: boom
user@host:~/project$
`

	shellPromptPane = `
some scrollback text
$
`

	rateLimitedPane = `
Usage limit reached. Your limit will reset at 4am (UTC).
$
`

	ambiguousPane = `
plain text with no interface
and no crash signature either
`

	errorPane = `
Error: connection refused
retrying is not going to help
  ? for shortcuts
`

	toolReportPane = `
⏺ Searching the logs for the traceback
⎿ found permission denied errors in worker.log
  ? for shortcuts
`
)

func TestDetectAgentState(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    AgentState
	}{
		{"active", activePane, StateActive},
		{"idle empty prompt", idlePane, StateIdle},
		{"queued input", queuedPane, StateMessageQueued},
		{"fresh placeholder", freshPane, StateFresh},
		{"fresh empty frame with banner", freshEmptyFramePane, StateFresh},
		{"crash traceback", crashedPane, StateCrashed},
		{"bare shell prompt", shellPromptPane, StateCrashed},
		{"empty pane", "", StateCrashed},
		{"whitespace only", "   \n\t\n  ", StateCrashed},
		{"rate limit beats shell prompt", rateLimitedPane, StateRateLimited},
		{"no ui no crash is ambiguous", ambiguousPane, StateError},
		{"error vocabulary with live ui", errorPane, StateError},
		{"tool output mentioning errors", toolReportPane, StateActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectAgentState(tt.content); got != tt.want {
				rule, _ := NewClassifier(DefaultMarkers()).RuleHit(tt.content)
				t.Errorf("DetectAgentState = %s (rule %s), want %s", got, rule, tt.want)
			}
		})
	}
}

func TestDetectAgentStateIsPure(t *testing.T) {
	panes := []string{
		activePane, idlePane, queuedPane, freshPane, freshEmptyFramePane,
		crashedPane, shellPromptPane, rateLimitedPane, ambiguousPane,
		errorPane, toolReportPane, "",
	}
	for _, content := range panes {
		first := DetectAgentState(content)
		for i := 0; i < 3; i++ {
			if got := DetectAgentState(content); got != first {
				t.Fatalf("classification drifted from %s to %s on repeat call", first, got)
			}
		}
	}
}

func TestRuleHitNamesTheRule(t *testing.T) {
	c := NewClassifier(DefaultMarkers())

	tests := []struct {
		content string
		rule    string
		state   AgentState
	}{
		{rateLimitedPane, "rate_limited", StateRateLimited},
		{"", "empty_pane", StateCrashed},
		{crashedPane, "interface_gone_crash", StateCrashed},
		{ambiguousPane, "interface_gone_ambiguous", StateError},
		{queuedPane, "unsubmitted_input", StateMessageQueued},
		{freshPane, "fresh_instance", StateFresh},
		{idlePane, "waiting_idle", StateIdle},
		{activePane, "default_active", StateActive},
	}

	for _, tt := range tests {
		t.Run(tt.rule, func(t *testing.T) {
			rule, state := c.RuleHit(tt.content)
			if rule != tt.rule || state != tt.state {
				t.Errorf("RuleHit = (%s, %s), want (%s, %s)", rule, state, tt.rule, tt.state)
			}
		})
	}
}

func TestInterfacePresentChecksTheTailOnly(t *testing.T) {
	if !InterfacePresent(idlePane) {
		t.Error("live prompt frame should count as interface present")
	}

	// The same frame buried under a screen of later output is
	// scrollback, not a live UI.
	var b strings.Builder
	b.WriteString(idlePane)
	for i := 0; i < 12; i++ {
		b.WriteString("log line after the interface went away\n")
	}
	if InterfacePresent(b.String()) {
		t.Error("frame outside the tail window misread as live")
	}
}

func TestHasUnsubmittedMessage(t *testing.T) {
	if !HasUnsubmittedMessage(queuedPane) {
		t.Error("typed input should read as unsubmitted")
	}
	if HasUnsubmittedMessage(idlePane) {
		t.Error("empty prompt misread as unsubmitted input")
	}
	if HasUnsubmittedMessage(freshPane) {
		t.Error("placeholder hint misread as unsubmitted input")
	}
	if HasUnsubmittedMessage(activePane) {
		t.Error("no frame at all misread as unsubmitted input")
	}
}

func TestIsTerminalIdle(t *testing.T) {
	tests := []struct {
		name      string
		snapshots []string
		want      bool
	}{
		{"single sample never counts", []string{idlePane}, false},
		{"all idle", []string{idlePane, idlePane}, true},
		{"fresh counts as idle", []string{idlePane, freshEmptyFramePane}, true},
		{"exactly seventy percent", []string{
			idlePane, idlePane, idlePane, idlePane, idlePane, idlePane, idlePane,
			activePane, activePane, activePane,
		}, true},
		{"two of three is under the bar", []string{idlePane, idlePane, activePane}, false},
		{"mostly active", []string{activePane, activePane, idlePane}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTerminalIdle(tt.snapshots); got != tt.want {
				t.Errorf("IsTerminalIdle = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewClassifierZeroMarkersFallBack(t *testing.T) {
	c := NewClassifier(Markers{})

	if got := c.Detect(idlePane); got != StateIdle {
		t.Errorf("zero-value markers should fall back to defaults, got %s", got)
	}
	if got := c.Detect(queuedPane); got != StateMessageQueued {
		t.Errorf("Detect(queued) = %s with defaulted markers", got)
	}
}

func TestNewClassifierCustomPlaceholders(t *testing.T) {
	c := NewClassifier(Markers{Placeholders: []string{"Ask me anything"}})

	pane := `
╭──────────────────────────────────────╮
│ > Ask me anything                    │
╰──────────────────────────────────────╯
  ? for shortcuts
`
	// With the custom placeholder but no welcome banner this is a fresh
	// instance, not queued input.
	if got := c.Detect(pane); got != StateFresh {
		t.Errorf("custom placeholder not honored, got %s", got)
	}

	// The default hint text is no longer a placeholder, so it reads as
	// typed input.
	if got := c.Detect(freshPane); got != StateMessageQueued {
		t.Errorf("overridden placeholders should drop the defaults, got %s", got)
	}
}

func TestStripANSI(t *testing.T) {
	in := "\x1b[32mgreen\x1b[0m and \x1b]0;title\x07plain \x1b[?25lhidden"
	want := "green and plain hidden"
	if got := StripANSI(in); got != want {
		t.Errorf("StripANSI = %q, want %q", got, want)
	}
}

func TestMergeStates(t *testing.T) {
	tests := []struct {
		name   string
		states []AgentState
		want   AgentState
	}{
		{"empty defaults to active", nil, StateActive},
		{"crash beats idle", []AgentState{StateActive, StateIdle, StateCrashed}, StateCrashed},
		{"rate limit beats crash", []AgentState{StateCrashed, StateRateLimited}, StateRateLimited},
		{"error beats queued", []AgentState{StateMessageQueued, StateError}, StateError},
		{"idle beats active", []AgentState{StateActive, StateIdle}, StateIdle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MergeStates(tt.states); got != tt.want {
				t.Errorf("MergeStates = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestIsHealthy(t *testing.T) {
	unhealthy := []AgentState{StateCrashed, StateError, StateRateLimited}
	for _, st := range unhealthy {
		s := AgentStatus{State: st}
		if s.IsHealthy() {
			t.Errorf("%s should be unhealthy", st)
		}
	}

	healthy := []AgentState{StateActive, StateIdle, StateFresh, StateMessageQueued}
	for _, st := range healthy {
		s := AgentStatus{State: st}
		if !s.IsHealthy() {
			t.Errorf("%s should be healthy", st)
		}
	}
}
