package annotations

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
)

// OutputFormatter formats events for human-readable display.
type OutputFormatter struct {
	useColor bool
	writer   io.Writer
}

// NewOutputFormatter creates a formatter with color support detection.
func NewOutputFormatter(w io.Writer) *OutputFormatter {
	if w == nil {
		w = os.Stdout
	}

	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = isTerminal(f.Fd()) && !color.NoColor
	}

	return &OutputFormatter{
		useColor: useColor,
		writer:   w,
	}
}

// Handle implements the Handler interface - prints events as they occur
func (f *OutputFormatter) Handle(event Event) {
	output := f.Format(event)
	if output != "" {
		fmt.Fprintln(f.writer, output)
	}
}

// Format converts an event to a human-readable string.
func (f *OutputFormatter) Format(event Event) string {
	latency := f.formatLatency(event.Latency)
	d := event.Data

	switch event.Name {
	case IteratorCreated:
		return fmt.Sprintf("%s %s %v", latency, f.colorize("+", color.FgGreen), d["iterator"])

	case IteratorEvolved:
		return fmt.Sprintf("%s %s %v → %v (%v)",
			latency,
			f.colorize("evolve", color.FgYellow),
			d["from"], d["to"], d["reason"])

	case StatsComplete:
		return fmt.Sprintf("%s %s %v: %s, next=%v check=%v find=%v sorted=%v",
			latency,
			f.colorize("stats", color.FgCyan),
			d["iterator"],
			f.colorizeCount("results", d["n"]),
			d["next.cost"], d["check.cost"], d["find.cost"], d["sorted"])

	case IsaDupMethod, IsaDupSwitch, LinkstoMethod:
		return fmt.Sprintf("%s %s %v uses %s",
			latency,
			f.colorize(event.Name, color.FgBlue),
			d["iterator"],
			f.colorize(fmt.Sprint(d["method"]), color.Bold))

	case CursorRecovered, ErrorStateLost:
		return fmt.Sprintf("%s %s %v: %v",
			latency,
			f.colorize("⚠", color.FgYellow),
			event.Name, d["reason"])

	case ErrorInvariant, ErrorBackend, ErrorCursorText:
		return fmt.Sprintf("%s %s %s: %v",
			latency,
			f.colorize("✗", color.FgRed),
			event.Name, d["error"])
	}

	return fmt.Sprintf("%s %s %s", latency, event.Name, formatData(d))
}

// formatData renders the data map with sorted keys
func formatData(d map[string]interface{}) string {
	if len(d) == 0 {
		return ""
	}
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, d[k])
	}
	return strings.Join(parts, " ")
}

// formatLatency formats a duration with appropriate precision and color.
func (f *OutputFormatter) formatLatency(d time.Duration) string {
	var s string
	if d < time.Millisecond {
		s = fmt.Sprintf("[%dµs]", d.Microseconds())
	} else {
		s = fmt.Sprintf("[%.1fms]", float64(d.Microseconds())/1000.0)
	}

	if !f.useColor {
		return s
	}

	switch {
	case d < 50*time.Millisecond:
		return color.GreenString(s)
	case d < 200*time.Millisecond:
		return color.YellowString(s)
	default:
		return color.RedString(s)
	}
}

// colorizeCount formats a count with its label.
func (f *OutputFormatter) colorizeCount(label string, count interface{}) string {
	text := fmt.Sprintf("%v %s", count, label)
	if !f.useColor {
		return text
	}
	return color.MagentaString(text)
}

// colorize applies color if enabled.
func (f *OutputFormatter) colorize(text string, attrs ...color.Attribute) string {
	if !f.useColor {
		return text
	}
	return color.New(attrs...).Sprint(text)
}

// ConsoleHandler creates a handler that prints formatted events to stderr.
func ConsoleHandler() Handler {
	return NewOutputFormatter(os.Stderr).Handle
}

// isTerminal checks if the file descriptor is stdout or stderr.
func isTerminal(fd uintptr) bool {
	return fd == uintptr(1) || fd == uintptr(2)
}
