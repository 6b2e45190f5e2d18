package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/owl/internal/output"
	"github.com/Dicklesworthstone/owl/internal/status"
	"github.com/Dicklesworthstone/owl/internal/tmux"
)

// agentListing is one row of 'owl agents': a sampled status plus the
// discovery fields the daemon keys on.
type agentListing struct {
	status.AgentStatus
	Role  string `json:"role"`
	Error string `json:"error,omitempty"`
}

func newAgentsCmd() *cobra.Command {
	var lines int

	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List discovered agents and their current state",
		Long: `Discover agent panes across all tmux sessions and classify each one
from a single capture. This is a one-shot sample in this process; the
daemon's own history and cooldowns are not touched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if lines <= 0 {
				lines = cfg.Monitor.CaptureLines
			}
			f := formatter()

			classifier := status.NewClassifier(cfg.Markers.ToMarkers())
			rows, err := sampleAgents(tmux.NewClient(), classifier, lines)
			if err != nil {
				return err
			}

			if f.IsJSON() {
				if rows == nil {
					rows = []agentListing{}
				}
				return f.JSON(rows)
			}
			printAgents(f, rows)
			return nil
		},
	}

	cmd.Flags().IntVar(&lines, "lines", 0, "Pane scrollback lines to classify (default from config)")
	return cmd
}

// paneSampler is the slice of the tmux client this command needs.
type paneSampler interface {
	ListAgents() ([]tmux.Agent, error)
	CapturePane(target string, lines int) (string, error)
}

// sampleAgents discovers every agent pane and classifies each once.
// A pane whose capture fails stays in the listing with the error
// recorded instead of a state.
func sampleAgents(mux paneSampler, classifier *status.Classifier, lines int) ([]agentListing, error) {
	agents, err := mux.ListAgents()
	if err != nil {
		return nil, fmt.Errorf("discovering agents: %w", err)
	}

	now := time.Now().UTC()
	var rows []agentListing
	for _, a := range agents {
		row := agentListing{
			AgentStatus: status.AgentStatus{
				Target:    a.Target,
				Title:     a.Title,
				AgentType: string(a.Type),
				UpdatedAt: now,
			},
			Role: string(a.Role),
		}
		content, err := mux.CapturePane(a.Target, lines)
		if err != nil {
			row.Error = err.Error()
		} else {
			row.State = classifier.Detect(content)
			row.LastOutput = lastLine(content)
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Target < rows[j].Target })
	return rows, nil
}

// lastLine returns the final non-empty line of pane content, cleaned
// for single-line display.
func lastLine(content string) string {
	clean := status.StripANSI(content)
	lines := strings.Split(clean, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(lines[i]); s != "" {
			return s
		}
	}
	return ""
}

func printAgents(f *output.Formatter, rows []agentListing) {
	if len(rows) == 0 {
		f.Muted("No agent panes found.")
		f.Muted("Agents are discovered by pane title: session__type_index (e.g. myproj__cc_1).")
		return
	}

	table := output.NewTable(f.Writer(), "TARGET", "TYPE", "ROLE", "STATE", "LAST OUTPUT")
	healthy := 0
	for _, r := range rows {
		state := "? capture failed"
		if r.Error == "" {
			state = r.State.Icon() + " " + string(r.State)
			if r.IsHealthy() {
				healthy++
			}
		}
		table.AddRow(r.Target, r.AgentType, r.Role, state, output.Truncate(r.LastOutput, 40))
	}
	table.Render()

	f.Line()
	f.Printf("%d %s, %d healthy\n", len(rows), output.Pluralize(len(rows), "agent", "agents"), healthy)
}
