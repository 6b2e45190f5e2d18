// Package output provides unified output formatting for the CLI: text
// and JSON modes, color handling, and table rendering.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// Format represents the output format type.
type Format int

const (
	// FormatText is human-readable formatted text (default).
	FormatText Format = iota
	// FormatJSON is machine-readable JSON output.
	FormatJSON
)

// String returns the string representation of the format.
func (f Format) String() string {
	if f == FormatJSON {
		return "json"
	}
	return "text"
}

// Formatter handles output formatting for commands.
type Formatter struct {
	format Format
	writer io.Writer
	pretty bool
	color  bool
}

// Option is a functional option for Formatter.
type Option func(*Formatter)

// WithFormat sets the output format.
func WithFormat(format Format) Option {
	return func(f *Formatter) { f.format = format }
}

// WithJSON sets the output format to JSON.
func WithJSON(enabled bool) Option {
	return func(f *Formatter) {
		if enabled {
			f.format = FormatJSON
		} else {
			f.format = FormatText
		}
	}
}

// WithWriter sets the output writer.
func WithWriter(w io.Writer) Option {
	return func(f *Formatter) {
		f.writer = w
		f.color = colorEnabled(w)
	}
}

// WithPretty sets whether JSON should be indented.
func WithPretty(pretty bool) Option {
	return func(f *Formatter) { f.pretty = pretty }
}

// WithColor overrides color auto-detection.
func WithColor(enabled bool) Option {
	return func(f *Formatter) { f.color = enabled }
}

// New creates a new Formatter with the given options.
func New(opts ...Option) *Formatter {
	f := &Formatter{
		format: FormatText,
		writer: os.Stdout,
		pretty: true,
		color:  colorEnabled(os.Stdout),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// IsJSON returns true if the output format is JSON.
func (f *Formatter) IsJSON() bool { return f.format == FormatJSON }

// Writer returns the output writer.
func (f *Formatter) Writer() io.Writer { return f.writer }

// JSON writes v as JSON, indented when pretty.
func (f *Formatter) JSON(v any) error {
	enc := json.NewEncoder(f.writer)
	if f.pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// Printf writes formatted text to the formatter's writer.
func (f *Formatter) Printf(format string, args ...any) {
	fmt.Fprintf(f.writer, format, args...)
}

// Println writes text with a newline to the formatter's writer.
func (f *Formatter) Println(args ...any) {
	fmt.Fprintln(f.writer, args...)
}

// Line outputs a blank line.
func (f *Formatter) Line() {
	fmt.Fprintln(f.writer)
}

// DetectFormat determines the output format based on environment.
// Priority: explicit flag > env var > pipe detection > default text.
func DetectFormat(jsonFlag bool) Format {
	if jsonFlag {
		return FormatJSON
	}

	if envFormat := os.Getenv("OWL_OUTPUT_FORMAT"); envFormat != "" {
		switch envFormat {
		case "json", "JSON":
			return FormatJSON
		case "text", "TEXT":
			return FormatText
		}
	}

	// Piped output gets JSON: owl agents | jq .
	if !IsTerminal() {
		return FormatJSON
	}
	return FormatText
}

// IsTerminal returns true if stdout is a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
