package status

import (
	"regexp"
	"strings"
)

// ansiEscapeRegex matches ANSI escape sequences for stripping.
// Includes CSI sequences (with private mode ?) and OSC sequences.
var ansiEscapeRegex = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]|\x1b\][^\a\x1b]*(\a|\x1b\\)`)

// StripANSI removes ANSI escape sequences from a string.
func StripANSI(s string) string {
	return ansiEscapeRegex.ReplaceAllString(s, "")
}

// Markers is the fixture set describing how the monitored agent's
// interactive UI renders in a terminal. Detection is inherently coupled
// to the agent's output format; when the UI changes, adjust these in
// config rather than code. Defaults match Claude Code's rendering.
type Markers struct {
	// FrameTop/FrameBottom/FrameSide are the box-drawing prefixes of the
	// input prompt frame.
	FrameTop    string
	FrameBottom string
	FrameSide   string
	// PromptMarker is the open-input marker inside the frame.
	PromptMarker string
	// ReadyBanners mark a live UI footer (shown while the agent waits).
	ReadyBanners []string
	// WelcomeBanners mark a first-run instance.
	WelcomeBanners []string
	// Placeholders are hint texts an empty prompt box displays. An entry
	// ending in '"' is treated as a prefix (the hint completes the quote).
	Placeholders []string
	// WindowLines is how many trailing non-empty lines count as "the
	// last few" for interface presence.
	WindowLines int
}

// DefaultMarkers returns the fixture set for Claude Code's terminal UI.
func DefaultMarkers() Markers {
	return Markers{
		FrameTop:     "╭", // ╭
		FrameBottom:  "╰", // ╰
		FrameSide:    "│", // │
		PromptMarker: ">",
		ReadyBanners: []string{
			"? for shortcuts",
			"Bypassing Permissions",
			"auto-accept edits",
			"plan mode",
		},
		WelcomeBanners: []string{
			"Welcome to Claude Code",
			"Welcome back to Claude Code",
		},
		Placeholders: []string{
			`Try "`,
			"Type a message",
			"…",
		},
		WindowLines: 10,
	}
}

// interfaceHints returns the substrings whose presence in the tail
// window indicates a live UI rather than scrollback text.
func (m Markers) interfaceHints() []string {
	hints := make([]string, 0, len(m.ReadyBanners)+3)
	hints = append(hints, m.FrameTop, m.FrameBottom, m.FrameSide+" "+m.PromptMarker)
	hints = append(hints, m.ReadyBanners...)
	return hints
}

// isPlaceholder reports whether trimmed prompt-box content is a known
// placeholder hint rather than operator input.
func (m Markers) isPlaceholder(text string) bool {
	for _, p := range m.Placeholders {
		if p == "" {
			continue
		}
		if strings.HasSuffix(p, `"`) && !strings.HasSuffix(p, `""`) {
			if strings.HasPrefix(text, p) {
				return true
			}
			continue
		}
		if text == p {
			return true
		}
	}
	return false
}

// crashPattern flags content that indicates the agent process is gone.
type crashPattern struct {
	Regex       *regexp.Regexp
	Literal     string
	Description string
}

// crashPatterns are checked only when the interface is absent. Ordered
// roughly most-specific-first; first match wins.
var crashPatterns = []crashPattern{
	{Literal: "Traceback (most recent call last)", Description: "Python traceback"},
	{Literal: "panic:", Description: "Go panic"},
	{Literal: "command not found", Description: "shell rejected the agent binary"},
	{Literal: "No such file or directory", Description: "missing binary/path"},
	{Literal: "Segmentation fault", Description: "segfault"},
	{Literal: "segmentation fault", Description: "segfault lowercase"},
	{Literal: "core dumped", Description: "core dump"},
	{Regex: regexp.MustCompile(`(?i)\bkilled\b`), Description: "OOM or signal kill"},
	{Regex: regexp.MustCompile(`(?i)process (exited|terminated)`), Description: "process gone"},
	{Regex: regexp.MustCompile(`(?i)\[(exited|terminated)\]`), Description: "pane termination marker"},
	{Regex: regexp.MustCompile(`(?m)at [A-Za-z_./\\]\S*:\d+:\d+`), Description: "JS stack frame"},
}

// shellPromptRegex matches a bare shell prompt at the end of a line:
// classic $/#/% endings plus common decorated prompts (starship, oh-my-zsh).
var shellPromptRegex = regexp.MustCompile(`(?:[$#%]|❯|➜)\s*$`)

// errorVocabulary is generic failure wording. Matches are suppressed
// when tool-output shapes are present so an agent reporting errors it
// found in code is not itself classified as failing.
var errorVocabulary = []crashPattern{
	{Regex: regexp.MustCompile(`(?im)^\s*error[:\s]`), Description: "error prefix"},
	{Regex: regexp.MustCompile(`(?i)\bexception\b`), Description: "exception"},
	{Regex: regexp.MustCompile(`(?i)\btraceback\b`), Description: "traceback"},
	{Literal: "permission denied", Description: "permission denied"},
	{Literal: "Permission denied", Description: "permission denied capitalized"},
	{Regex: regexp.MustCompile(`(?i)fatal error`), Description: "fatal error"},
	{Regex: regexp.MustCompile(`(?i)\bEACCES\b|\bENOENT\b|\bECONNREFUSED\b`), Description: "errno strings"},
}

// toolOutputShapes mark content that is normal tool/command output.
// Their presence suppresses errorVocabulary matches.
var toolOutputShapes = []crashPattern{
	{Literal: "⏺", Description: "tool call marker"},   // ⏺
	{Literal: "⎿", Description: "tool result marker"}, // ⎿
	{Regex: regexp.MustCompile(`(?m)^@@ `), Description: "diff hunk header"},
	{Regex: regexp.MustCompile(`(?m)^\+{3} |^-{3} `), Description: "diff file header"},
	{Regex: regexp.MustCompile(`(?i)scan(ning| complete| finished)`), Description: "scanner banner"},
	{Regex: regexp.MustCompile(`(?i)\d+ (vulnerabilit|issue|warning)`), Description: "scanner summary"},
	{Regex: regexp.MustCompile(`\d{1,3}%\|`), Description: "progress bar"},
	{Literal: "█", Description: "block progress bar"}, // █
	{Regex: regexp.MustCompile(`(?i)\bETA[: ]`), Description: "progress ETA"},
}

// waitingPhrases indicate the agent finished its task and is waiting.
var waitingPhrases = []string{
	"waiting for",
	"ready for",
	"awaiting",
	"task complete",
}

func matchAny(content string, patterns []crashPattern) bool {
	for _, p := range patterns {
		if p.Regex != nil && p.Regex.MatchString(content) {
			return true
		}
		if p.Literal != "" && strings.Contains(content, p.Literal) {
			return true
		}
	}
	return false
}

// lastNonEmptyLines returns up to n trailing non-empty lines in
// original order.
func lastNonEmptyLines(lines []string, n int) []string {
	out := make([]string, 0, n)
	for i := len(lines) - 1; i >= 0 && len(out) < n; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			out = append(out, lines[i])
		}
	}
	// Reverse back to top-to-bottom order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
