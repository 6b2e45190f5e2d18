package status

import (
	"strings"

	"github.com/Dicklesworthstone/owl/internal/ratelimit"
)

// Classifier maps pane snapshots to AgentStates using an ordered rule
// table. First match wins; the table order encodes the state priority
// (rate limit beats crash beats error, and so on down to active).
type Classifier struct {
	markers Markers
	rules   []rule
}

// rule pairs a named predicate with the state it yields.
type rule struct {
	name  string
	state AgentState
	match func(c *Classifier, s *scan) bool
}

// scan is the precomputed view of one snapshot shared by all rules.
type scan struct {
	raw    string
	clean  string   // ANSI-stripped
	lines  []string // clean, split
	window []string // last few non-empty lines
	recent string   // last 50 lines joined, for vocabulary checks
	frame  *promptFrame
	ui     bool
}

// promptFrame is the last complete input-box frame found in a snapshot.
type promptFrame struct {
	// content is the text between the prompt marker and the closing
	// edge, with non-breaking spaces stripped.
	content string
	// placeholder is true when content matches a known hint text.
	placeholder bool
}

// NewClassifier builds a classifier around the given UI fixture set.
// Zero-value marker fields fall back to the defaults.
func NewClassifier(m Markers) *Classifier {
	def := DefaultMarkers()
	if m.FrameTop == "" {
		m.FrameTop = def.FrameTop
	}
	if m.FrameBottom == "" {
		m.FrameBottom = def.FrameBottom
	}
	if m.FrameSide == "" {
		m.FrameSide = def.FrameSide
	}
	if m.PromptMarker == "" {
		m.PromptMarker = def.PromptMarker
	}
	if len(m.ReadyBanners) == 0 {
		m.ReadyBanners = def.ReadyBanners
	}
	if len(m.WelcomeBanners) == 0 {
		m.WelcomeBanners = def.WelcomeBanners
	}
	if len(m.Placeholders) == 0 {
		m.Placeholders = def.Placeholders
	}
	if m.WindowLines <= 0 {
		m.WindowLines = def.WindowLines
	}
	return &Classifier{markers: m, rules: classifierRules()}
}

// classifierRules returns the ordered rule table. Most urgent first;
// the default (no rule matched) is StateActive.
func classifierRules() []rule {
	return []rule{
		{
			name:  "rate_limited",
			state: StateRateLimited,
			match: func(c *Classifier, s *scan) bool {
				return ratelimit.Detect(s.clean)
			},
		},
		{
			name:  "empty_pane",
			state: StateCrashed,
			match: func(c *Classifier, s *scan) bool {
				return strings.TrimSpace(s.raw) == ""
			},
		},
		{
			name:  "interface_gone_crash",
			state: StateCrashed,
			match: func(c *Classifier, s *scan) bool {
				if s.ui {
					return false
				}
				return matchAny(s.clean, crashPatterns) || endsAtShellPrompt(s.window)
			},
		},
		{
			// Interface absent with no crash or shell signature is
			// ambiguous; surface it rather than swallowing it.
			name:  "interface_gone_ambiguous",
			state: StateError,
			match: func(c *Classifier, s *scan) bool {
				return !s.ui
			},
		},
		{
			name:  "error_vocabulary",
			state: StateError,
			match: func(c *Classifier, s *scan) bool {
				if !matchAny(s.recent, errorVocabulary) {
					return false
				}
				// An agent reporting errors it found in code is not
				// itself failing.
				return !matchAny(s.recent, toolOutputShapes)
			},
		},
		{
			name:  "unsubmitted_input",
			state: StateMessageQueued,
			match: func(c *Classifier, s *scan) bool {
				return s.frame != nil && s.frame.content != "" && !s.frame.placeholder
			},
		},
		{
			name:  "fresh_instance",
			state: StateFresh,
			match: func(c *Classifier, s *scan) bool {
				if s.frame == nil {
					return false
				}
				empty := s.frame.content == "" || s.frame.placeholder
				if !empty {
					return false
				}
				return s.frame.placeholder || c.hasWelcomeBanner(s.clean)
			},
		},
		{
			name:  "waiting_idle",
			state: StateIdle,
			match: func(c *Classifier, s *scan) bool {
				if hasWaitingPhrase(s.window) {
					return true
				}
				return s.frame != nil && s.frame.content == ""
			},
		},
	}
}

// Detect classifies one snapshot. Pure and total: any input, including
// the empty string, yields exactly one state.
func (c *Classifier) Detect(content string) AgentState {
	s := c.scan(content)
	for _, r := range c.rules {
		if r.match(c, s) {
			return r.state
		}
	}
	return StateActive
}

// RuleHit returns the name of the first matching rule alongside the
// state, for log lines and tests that assert on why a state was chosen.
func (c *Classifier) RuleHit(content string) (string, AgentState) {
	s := c.scan(content)
	for _, r := range c.rules {
		if r.match(c, s) {
			return r.name, r.state
		}
	}
	return "default_active", StateActive
}

// InterfacePresent reports whether the agent's interactive UI is live
// in the snapshot's tail, as opposed to appearing only in scrollback.
func (c *Classifier) InterfacePresent(content string) bool {
	return c.scan(content).ui
}

// HasUnsubmittedMessage reports whether the last complete input frame
// holds typed, non-placeholder text that was never submitted.
func (c *Classifier) HasUnsubmittedMessage(content string) bool {
	f := c.extractLastFrame(strings.Split(StripANSI(content), "\n"))
	return f != nil && f.content != "" && !f.placeholder
}

// IsTerminalIdle is the multi-sample idle check: given at least two
// time-ordered snapshots, true when 70% or more classify idle or fresh.
// A single sample is never considered meaningful.
func (c *Classifier) IsTerminalIdle(snapshots []string) bool {
	if len(snapshots) < 2 {
		return false
	}
	idle := 0
	for _, snap := range snapshots {
		switch c.Detect(snap) {
		case StateIdle, StateFresh:
			idle++
		}
	}
	return idle*10 >= len(snapshots)*7
}

// scan precomputes the shared snapshot view.
func (c *Classifier) scan(content string) *scan {
	clean := StripANSI(content)
	lines := strings.Split(clean, "\n")
	window := lastNonEmptyLines(lines, c.markers.WindowLines)

	start := len(lines) - 50
	if start < 0 {
		start = 0
	}

	s := &scan{
		raw:    content,
		clean:  clean,
		lines:  lines,
		window: window,
		recent: strings.Join(lines[start:], "\n"),
	}
	s.ui = c.interfaceInWindow(window)
	s.frame = c.extractLastFrame(lines)
	return s
}

// interfaceInWindow checks the tail window for live-UI hints.
func (c *Classifier) interfaceInWindow(window []string) bool {
	hints := c.markers.interfaceHints()
	for _, line := range window {
		for _, h := range hints {
			if h != "" && strings.Contains(line, h) {
				return true
			}
		}
	}
	return false
}

func (c *Classifier) hasWelcomeBanner(clean string) bool {
	for _, b := range c.markers.WelcomeBanners {
		if b != "" && strings.Contains(clean, b) {
			return true
		}
	}
	return false
}

// extractLastFrame locates the last complete input-box frame: the final
// frame-bottom line and the nearest frame-top above it. Earlier frames
// are history and never inspected.
func (c *Classifier) extractLastFrame(lines []string) *promptFrame {
	m := c.markers

	bottom := -1
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), m.FrameBottom) {
			bottom = i
			break
		}
	}
	if bottom < 0 {
		return nil
	}

	top := -1
	for i := bottom - 1; i >= 0; i-- {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), m.FrameTop) {
			top = i
			break
		}
	}
	if top < 0 {
		// Bottom edge without a top edge: partially redrawn frame,
		// not a complete one.
		return nil
	}

	var parts []string
	for i := top + 1; i < bottom; i++ {
		row := strings.ReplaceAll(lines[i], " ", " ")
		row = strings.TrimSpace(row)
		if !strings.HasPrefix(row, m.FrameSide) {
			continue
		}
		row = strings.TrimPrefix(row, m.FrameSide)
		row = strings.TrimSuffix(strings.TrimSpace(row), m.FrameSide)
		row = strings.TrimSpace(row)
		if len(parts) == 0 {
			row = strings.TrimSpace(strings.TrimPrefix(row, m.PromptMarker))
		}
		if row != "" {
			parts = append(parts, row)
		}
	}

	content := strings.TrimSpace(strings.Join(parts, " "))
	return &promptFrame{
		content:     content,
		placeholder: content != "" && m.isPlaceholder(content),
	}
}

// endsAtShellPrompt reports whether the last non-empty line looks like
// a bare shell prompt, meaning the agent process exited back to the
// shell.
func endsAtShellPrompt(window []string) bool {
	if len(window) == 0 {
		return false
	}
	last := strings.TrimSpace(window[len(window)-1])
	return shellPromptRegex.MatchString(last)
}

func hasWaitingPhrase(window []string) bool {
	for _, line := range window {
		lower := strings.ToLower(line)
		for _, p := range waitingPhrases {
			if strings.Contains(lower, p) {
				return true
			}
		}
	}
	return false
}

// defaultClassifier backs the package-level helpers.
var defaultClassifier = NewClassifier(DefaultMarkers())

// DetectAgentState classifies a snapshot with the default fixture set.
func DetectAgentState(content string) AgentState {
	return defaultClassifier.Detect(content)
}

// InterfacePresent reports live-UI presence with the default fixtures.
func InterfacePresent(content string) bool {
	return defaultClassifier.InterfacePresent(content)
}

// HasUnsubmittedMessage checks the last input frame with the default
// fixtures.
func HasUnsubmittedMessage(content string) bool {
	return defaultClassifier.HasUnsubmittedMessage(content)
}

// IsTerminalIdle runs the multi-sample idle check with the default
// fixtures.
func IsTerminalIdle(snapshots []string) bool {
	return defaultClassifier.IsTerminalIdle(snapshots)
}
