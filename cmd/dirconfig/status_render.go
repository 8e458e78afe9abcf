package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"dirconfig/internal/daemonctl"
	"dirconfig/internal/deps"
	"dirconfig/internal/preflight"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

var statusStyles = map[statusKind]struct {
	tag   string
	color text.Colors
}{
	statusInfo:  {"INFO", text.Colors{text.FgBlue}},
	statusOK:    {"OK", text.Colors{text.FgGreen}},
	statusWarn:  {"WARN", text.Colors{text.FgYellow}},
	statusError: {"ERROR", text.Colors{text.FgRed}},
}

const statusLabelWidth = 16

// statusLine is one "label: [TAG] detail" row of status or validate output.
type statusLine struct {
	label  string
	kind   statusKind
	detail string
}

func (l statusLine) render(colorize bool) string {
	style := statusStyles[l.kind]
	out := fmt.Sprintf("  %-*s [%s]", statusLabelWidth, l.label+":", style.tag)
	if l.detail != "" {
		out += " " + l.detail
	}
	if colorize {
		return style.color.Sprint(out)
	}
	return out
}

// writeSection prints a titled block of status lines.
func writeSection(w io.Writer, title string, colorize bool, lines ...statusLine) {
	heading := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(heading))
	if colorize {
		heading, rule = text.FgBlue.Sprint(heading), text.FgBlue.Sprint(rule)
	}
	fmt.Fprintln(w, heading)
	fmt.Fprintln(w, rule)
	for _, line := range lines {
		fmt.Fprintln(w, line.render(colorize))
	}
}

func daemonLine(info daemonctl.StatusInfo, err error) statusLine {
	line := statusLine{label: "Daemon"}
	switch {
	case err != nil:
		line.kind, line.detail = statusError, err.Error()
	case info.Running:
		line.kind, line.detail = statusOK, fmt.Sprintf("Running (pid %d)", info.PID)
	case info.Stale:
		line.kind, line.detail = statusWarn, fmt.Sprintf("Not running (stale PID file for pid %d)", info.PID)
	default:
		line.kind, line.detail = statusInfo, "Not running"
	}
	return line
}

// dependencyLine reports a missing optional binary as a warning and a missing
// required one as an error.
func dependencyLine(status deps.Status) statusLine {
	if status.Available {
		return statusLine{status.Name, statusOK, fmt.Sprintf("Ready (%s)", status.Resolved)}
	}
	detail := strings.TrimSpace(status.Detail)
	if detail == "" {
		detail = "not available"
	}
	kind := statusError
	if status.Optional {
		kind = statusWarn
	}
	return statusLine{status.Name, kind, detail}
}

// checkLines maps preflight results; a failed check only warns because the
// daemon still starts.
func checkLines(results []preflight.Result) []statusLine {
	lines := make([]statusLine, 0, len(results))
	for _, result := range results {
		kind := statusOK
		if !result.Passed {
			kind = statusWarn
		}
		lines = append(lines, statusLine{result.Name, kind, result.Detail})
	}
	return lines
}

// isTerminal reports whether writer is an interactive terminal.
func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
