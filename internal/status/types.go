// Package status classifies agent terminal output into discrete states.
// The classifier is pure: it maps a pane-content snapshot to exactly one
// AgentState per sample, with a fixed most-urgent-first priority when
// several conditions could match.
package status

import "time"

// AgentState represents the observed state of an agent pane.
type AgentState string

const (
	// StateActive indicates the agent is producing output or mid-task.
	StateActive AgentState = "active"
	// StateCrashed indicates the agent process is gone (shell prompt,
	// traceback, or termination message where the UI should be).
	StateCrashed AgentState = "crashed"
	// StateError indicates a failure needing investigation, including
	// the ambiguous case of a missing UI with no crash signature.
	StateError AgentState = "error"
	// StateFresh indicates a newly started agent that has not been
	// given any work yet.
	StateFresh AgentState = "fresh"
	// StateIdle indicates the agent is waiting for input.
	StateIdle AgentState = "idle"
	// StateMessageQueued indicates typed but unsubmitted input sitting
	// in the prompt box.
	StateMessageQueued AgentState = "message_queued"
	// StateRateLimited indicates the upstream API reported a usage cap.
	StateRateLimited AgentState = "rate_limited"
)

// String returns the string representation of the state.
func (s AgentState) String() string {
	return string(s)
}

// Priority orders states most-urgent-first for merging multi-pane
// summaries. Higher wins: RATE_LIMITED > CRASHED > ERROR >
// MESSAGE_QUEUED > FRESH > IDLE > ACTIVE.
func (s AgentState) Priority() int {
	switch s {
	case StateRateLimited:
		return 7
	case StateCrashed:
		return 6
	case StateError:
		return 5
	case StateMessageQueued:
		return 4
	case StateFresh:
		return 3
	case StateIdle:
		return 2
	case StateActive:
		return 1
	default:
		return 0
	}
}

// Icon returns the visual indicator for a state.
func (s AgentState) Icon() string {
	switch s {
	case StateActive:
		return "\U0001f7e2" // green circle
	case StateIdle:
		return "⚪" // white circle
	case StateFresh:
		return "\U0001f535" // blue circle
	case StateMessageQueued:
		return "\U0001f7e1" // yellow circle
	case StateError:
		return "\U0001f7e0" // orange circle
	case StateCrashed:
		return "\U0001f534" // red circle
	case StateRateLimited:
		return "\U0001f7e3" // purple circle
	default:
		return "⚫" // black circle
	}
}

// AgentStatus is one sampled observation of an agent pane.
type AgentStatus struct {
	// Target is the opaque pane address ("session:window").
	Target string `json:"target"`
	// Title is the pane title (e.g. "myproject__cc_1").
	Title string `json:"title,omitempty"`
	// AgentType identifies the agent kind ("cc", "cod", "gmi", "pm", "user").
	AgentType string `json:"agent_type,omitempty"`
	// State is the classified state for this sample.
	State AgentState `json:"state"`
	// LastActive is when the pane content last changed.
	LastActive time.Time `json:"last_active"`
	// LastOutput holds a short tail of the pane content for previews.
	LastOutput string `json:"last_output,omitempty"`
	// UpdatedAt is when this status was computed.
	UpdatedAt time.Time `json:"updated_at"`
}

// IsHealthy reports whether the agent needs no intervention.
func (s *AgentStatus) IsHealthy() bool {
	switch s.State {
	case StateCrashed, StateError, StateRateLimited:
		return false
	default:
		return true
	}
}

// MergeStates picks the most urgent state from a set of samples.
func MergeStates(states []AgentState) AgentState {
	merged := StateActive
	for _, s := range states {
		if s.Priority() > merged.Priority() {
			merged = s
		}
	}
	return merged
}
