package dashboard

import (
	"fmt"
	"strings"

	"github.com/Telestream/srtStreamer/internal/view"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorDim    = "\033[2m"
)

func colorize(s, color string) string {
	if color == "" {
		return s
	}
	return color + s + colorReset
}

func kindColor(kind string) string {
	switch kind {
	case "running":
		return colorGreen
	case "error":
		return colorRed
	case "scheduled", "downloading":
		return colorCyan
	case "stopping":
		return colorYellow
	}
	return ""
}

func (m Model) View() string {
	var b strings.Builder
	fmt.Fprintln(&b, colorize(m.header, colorCyan))
	fmt.Fprintln(&b)

	switch m.st {
	case screenLogin:
		m.renderLogin(&b)
	case screenStart:
		m.renderStart(&b)
	case screenUpload:
		m.renderUpload(&b)
	default:
		m.renderStreams(&b)
	}

	if m.notice != "" {
		fmt.Fprintf(&b, "\n%s\n", colorize(m.notice, colorDim))
	}
	if m.err != "" {
		fmt.Fprintf(&b, "\n%s\n", colorize(m.err, colorRed))
	}
	return b.String()
}

func (m Model) renderLogin(b *strings.Builder) {
	fmt.Fprintln(b, "Log in")
	fmt.Fprintln(b, m.username.View())
	fmt.Fprintln(b, m.password.View())
	if m.busy {
		fmt.Fprintln(b, colorize("logging in...", colorDim))
	}
	fmt.Fprintf(b, "\n%s\n", colorize("enter: submit  tab: switch field  esc: quit", colorDim))
}

func (m Model) renderStreams(b *strings.Builder) {
	if m.frame.Empty {
		fmt.Fprintln(b, view.EmptyText)
	}
	for i, c := range m.frame.Cards {
		marker := "  "
		if i == m.cursor {
			marker = "> "
		}
		status := colorize(c.Status, kindColor(c.Kind))
		line := fmt.Sprintf("%s%s  %s  %s  %ds left", marker, c.ID, status, c.File, c.RemainingSeconds)
		if c.Redundant {
			line += "  [redundant]"
		}
		fmt.Fprintln(b, line)
		if c.Delay != "" {
			fmt.Fprintf(b, "    %s\n", c.Delay)
		}
		if c.Error != "" {
			fmt.Fprintf(b, "    %s\n", colorize(c.Error, colorRed))
		}
		for _, d := range c.Destinations {
			fmt.Fprintf(b, "    %s  %s\n", d.URL, d.Bandwidth)
		}
	}

	if u := m.frame.Upload; u != nil {
		fmt.Fprintf(b, "\nupload %s %s %3d%% %s\n", u.FileName, u.Bar, u.Percent, u.Outcome)
		if u.Detail != "" {
			fmt.Fprintf(b, "  %s\n", u.Detail)
		}
	}
	if len(m.files) > 0 {
		fmt.Fprintf(b, "\nfiles: %s\n", strings.Join(m.files, ", "))
	}
	fmt.Fprintf(b, "\n%s\n", colorize("n: new stream  s: stop  x: stop source  u: upload  f: files  r: refresh  L: logout  q: quit", colorDim))
}

func (m Model) renderStart(b *strings.Builder) {
	fmt.Fprintln(b, "Start stream")
	for i, in := range m.start {
		fmt.Fprintln(b, in.View())
		if i == fieldSource {
			m.renderCatalog(b)
		}
	}
	box := "[ ]"
	if m.redundant {
		box = "[x]"
	}
	cursor := "  "
	if m.focus == fieldRedundant {
		cursor = "> "
	}
	fmt.Fprintf(b, "%sRedundant %s\n", cursor, box)
	if m.busy {
		fmt.Fprintln(b, colorize("starting...", colorDim))
	}
	fmt.Fprintf(b, "\n%s\n", colorize("enter: start  tab: next field  up/down on File: pick  space: toggle  esc: back", colorDim))
}

func (m Model) renderCatalog(b *strings.Builder) {
	if len(m.files) == 0 {
		fmt.Fprintln(b, colorize("    catalog empty, a random file is used", colorDim))
		return
	}
	current := strings.TrimSpace(m.start[fieldSource].Value())
	random := "    (random)"
	if current == "" {
		random = colorize("  > (random)", colorCyan)
	}
	fmt.Fprintln(b, random)
	for _, f := range m.files {
		if f == current {
			fmt.Fprintln(b, colorize("  > "+f, colorCyan))
			continue
		}
		fmt.Fprintln(b, "    "+f)
	}
}

func (m Model) renderUpload(b *strings.Builder) {
	fmt.Fprintln(b, "Upload file")
	fmt.Fprintln(b, m.uploadPath.View())
	fmt.Fprintln(b, m.uploadExpire.View())
	fmt.Fprintf(b, "\n%s\n", colorize("enter: upload  tab: switch field  esc: back", colorDim))
}
