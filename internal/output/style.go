package output

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))  // Green
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214")) // Orange
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")) // Gray
)

// colorEnabled reports whether w is a terminal that should get color.
func colorEnabled(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Success writes a green check line.
func (f *Formatter) Success(format string, args ...any) {
	f.styledLine(successStyle, "✓ ", format, args...)
}

// Warn writes an orange warning line.
func (f *Formatter) Warn(format string, args ...any) {
	f.styledLine(warnStyle, "! ", format, args...)
}

// Muted writes a dimmed line.
func (f *Formatter) Muted(format string, args ...any) {
	f.styledLine(mutedStyle, "", format, args...)
}

func (f *Formatter) styledLine(style lipgloss.Style, prefix, format string, args ...any) {
	text := prefix + fmt.Sprintf(format, args...)
	if f.color {
		text = style.Render(text)
	}
	f.Println(text)
}
