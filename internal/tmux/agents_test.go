package tmux

import (
	"errors"
	"testing"
)

func TestParseAgentFromTitle(t *testing.T) {
	tests := []struct {
		title       string
		wantType    AgentType
		wantVariant string
	}{
		{"myproject__cc_1", AgentClaude, ""},
		{"myproject__cc_2_opus", AgentClaude, "opus"},
		{"myproject__cod_1", AgentCodex, ""},
		{"myproject__gmi_3_flash", AgentGemini, "flash"},
		{"api__pm_1", AgentPM, ""},
		{"myproject__cc_12", AgentClaude, ""},
		// Double underscore inside the session name still parses.
		{"my__project__cc_1", AgentClaude, ""},
		// Unknown agent types and operator shells are user panes.
		{"myproject__user_1", AgentUser, ""},
		{"myproject__xyz_1", AgentUser, ""},
		{"zsh", AgentUser, ""},
		{"bash", AgentUser, ""},
		{"", AgentUser, ""},
		// Malformed indices don't match the convention.
		{"myproject__cc", AgentUser, ""},
		{"myproject__cc_1x", AgentUser, ""},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			gotType, gotVariant := parseAgentFromTitle(tt.title)
			if gotType != tt.wantType {
				t.Errorf("parseAgentFromTitle(%q) type = %v, want %v", tt.title, gotType, tt.wantType)
			}
			if gotVariant != tt.wantVariant {
				t.Errorf("parseAgentFromTitle(%q) variant = %q, want %q", tt.title, gotVariant, tt.wantVariant)
			}
		})
	}
}

func TestAgentTypeRole(t *testing.T) {
	if got := AgentPM.Role(); got != RoleSupervisor {
		t.Errorf("pm role = %v, want supervisor", got)
	}
	for _, typ := range []AgentType{AgentClaude, AgentCodex, AgentGemini, AgentUser} {
		if got := typ.Role(); got != RoleWorker {
			t.Errorf("%s role = %v, want worker", typ, got)
		}
	}
}

func TestNoServer(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"no server", errors.New("tmux list-panes -a: exit status 1: no server running on /tmp/tmux-1000/default"), true},
		{"no sessions", errors.New("tmux list-panes -a: exit status 1: no sessions"), true},
		{"socket gone", errors.New("tmux list-panes -a: exit status 1: error connecting to /tmp/tmux-1000/default (No such file or directory)"), true},
		{"real failure", errors.New("tmux list-panes -a: exit status 1: unknown option -- z"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := noServer(tt.err); got != tt.want {
				t.Errorf("noServer(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
