// Package output provides consistent CLI output formatting with colors and
// progress indicators.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Color palette - single lime accent.
const (
	colorLime   = "154" // Primary accent - bright lime green
	colorGray   = "245" // Secondary text, labels
	colorRed    = "196" // Errors
	colorYellow = "220" // Warnings
)

// styles holds the render styles for one writer.
type styles struct {
	header  lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	errs    lipgloss.Style
	label   lipgloss.Style
}

func colorStyles() styles {
	return styles{
		header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorLime)),
		success: lipgloss.NewStyle().Foreground(lipgloss.Color(colorLime)),
		warning: lipgloss.NewStyle().Foreground(lipgloss.Color(colorYellow)),
		errs:    lipgloss.NewStyle().Foreground(lipgloss.Color(colorRed)),
		label:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray)),
	}
}

func plainStyles() styles {
	return styles{
		header:  lipgloss.NewStyle(),
		success: lipgloss.NewStyle(),
		warning: lipgloss.NewStyle(),
		errs:    lipgloss.NewStyle(),
		label:   lipgloss.NewStyle(),
	}
}

// Writer provides formatted output for CLI.
// Errors from writing are intentionally ignored for console output.
type Writer struct {
	out    io.Writer
	styles styles
}

// New creates a Writer, enabling color only when out is a terminal and
// NO_COLOR is unset.
func New(out io.Writer) *Writer {
	useColor := false
	if f, ok := out.(*os.File); ok {
		if _, noColor := os.LookupEnv("NO_COLOR"); !noColor {
			useColor = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
		}
	}
	return NewWithColor(out, useColor)
}

// NewWithColor creates a Writer with color explicitly on or off.
func NewWithColor(out io.Writer, useColor bool) *Writer {
	s := plainStyles()
	if useColor {
		s = colorStyles()
	}
	return &Writer{out: out, styles: s}
}

// Header prints a section header.
func (w *Writer) Header(msg string) {
	_, _ = fmt.Fprintf(w.out, "%s\n", w.styles.header.Render(msg))
}

// Status prints an indented status line.
func (w *Writer) Status(msg string) {
	_, _ = fmt.Fprintf(w.out, "  %s\n", msg)
}

// Statusf prints a formatted status line.
func (w *Writer) Statusf(format string, args ...any) {
	w.Status(fmt.Sprintf(format, args...))
}

// Field prints an aligned label/value pair.
func (w *Writer) Field(label, value string) {
	_, _ = fmt.Fprintf(w.out, "  %s %s\n",
		w.styles.label.Render(fmt.Sprintf("%-14s", label+":")), value)
}

// Success prints a success message.
func (w *Writer) Success(msg string) {
	_, _ = fmt.Fprintf(w.out, "%s %s\n", w.styles.success.Render("✓"), msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	_, _ = fmt.Fprintf(w.out, "%s %s\n", w.styles.warning.Render("!"), msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	_, _ = fmt.Fprintf(w.out, "%s %s\n", w.styles.errs.Render("✗"), msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Result prints one scored search hit.
func (w *Writer) Result(rank int, path string, score float32) {
	_, _ = fmt.Fprintf(w.out, "%3d. %s %s\n",
		rank, path, w.styles.label.Render(fmt.Sprintf("(%.3f)", score)))
}

// Progress prints a progress bar with message, updating in place.
func (w *Writer) Progress(current, total int, msg string) {
	if total <= 0 {
		return
	}
	pct := float64(current) / float64(total) * 100
	bar := renderProgressBar(current, total, 30)
	_, _ = fmt.Fprintf(w.out, "\r[%s] %.0f%% %s", bar, pct, msg)
	if current >= total {
		_, _ = fmt.Fprintln(w.out)
	}
}

// renderProgressBar creates a text progress bar.
func renderProgressBar(current, total, width int) string {
	if total <= 0 {
		return strings.Repeat("░", width)
	}
	pct := float64(current) / float64(total)
	filled := int(pct * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
