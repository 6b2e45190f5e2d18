package config

import (
	"fmt"
	"io"
)

// WriteSample writes a commented starter config. Values shown are the
// defaults; uncomment to change.
func WriteSample(w io.Writer) error {
	_, err := fmt.Fprint(w, `# owl configuration
# Precedence: environment > this file > built-in defaults.

# Directory for the PID file, lock, log, and stop marker,
# relative to where the daemon starts.
# data_dir = ".owl"

[monitor]
# Seconds between sampling ticks.
# interval_sec = 10
# Pane scrollback lines each sample reads.
# capture_lines = 150
# Samples kept per agent for the multi-sample idle check.
# snapshot_window = 5
# Seconds an undiscovered agent keeps its history before it is dropped.
# target_grace_sec = 60

[notify]
# enabled = true
# Tag prepended to messages typed into supervisor panes.
# message_prefix = "MONITOR"

# Escalation table: ascending thresholds of continuous team idleness.
# Each tier fires once per idle episode. Actions: "message", "kill".
# [[escalation.tiers]]
# threshold_min = 3
# action = "message"
# template = "Your team has been idle for {minutes} minutes. Check in with your agents and assign work."
#
# [[escalation.tiers]]
# threshold_min = 5
# action = "message"
# template = "URGENT: team idle for {minutes} minutes. Unblock your agents now or this session will be recycled."
#
# [[escalation.tiers]]
# threshold_min = 8
# action = "kill"
# template = "Team idle for {minutes} minutes with no supervisor response. Recycling the supervisor window."

# UI fixture overrides for state detection. Detection is coupled to the
# monitored agent's terminal rendering; adjust here when that changes.
# [interface_markers]
# frame_top = "╭"
# frame_bottom = "╰"
# frame_side = "│"
# prompt_marker = ">"
# ready_banners = ["? for shortcuts"]
# welcome_banners = ["Welcome to Claude Code"]
# placeholders = ['Try "']
# window_lines = 10
`)
	return err
}
