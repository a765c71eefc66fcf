package view

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

var tableHeaders = []string{"STREAM", "STATUS", "FILE", "REMAINING", "REDUNDANT", "DESTINATION", "BANDWIDTH"}

// Text lays a view out as a plain table followed by per-stream notes.
func Text(v View) string {
	var b strings.Builder
	if v.Empty {
		b.WriteString(EmptyText)
		b.WriteString("\n")
	} else {
		rows := make([][]string, 0, len(v.Cards))
		var notes []string
		for _, c := range v.Cards {
			rows = append(rows, cardRows(c)...)
			if c.Delay != "" {
				notes = append(notes, fmt.Sprintf("%s: %s", c.ID, c.Delay))
			}
			if c.Error != "" {
				notes = append(notes, fmt.Sprintf("%s: %s", c.ID, c.Error))
			}
		}
		renderTable(&b, tableHeaders, rows)
		for _, n := range notes {
			b.WriteString("  ")
			b.WriteString(n)
			b.WriteString("\n")
		}
	}
	if u := v.Upload; u != nil {
		fmt.Fprintf(&b, "upload %s %s %3d%% %s", u.FileName, u.Bar, u.Percent, u.Outcome)
		if u.Detail != "" {
			b.WriteString(" (" + u.Detail + ")")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func cardRows(c Card) [][]string {
	redundant := "No"
	if c.Redundant {
		redundant = "Yes"
	}
	first := []string{c.ID, c.Status, c.File, strconv.FormatInt(c.RemainingSeconds, 10) + "s", redundant, "", ""}
	if len(c.Destinations) == 0 {
		return [][]string{first}
	}
	rows := make([][]string, 0, len(c.Destinations))
	for i, d := range c.Destinations {
		row := first
		if i > 0 {
			row = make([]string, len(tableHeaders))
		}
		row[5] = d.URL
		row[6] = d.Bandwidth
		rows = append(rows, row)
	}
	return rows
}

func renderTable(b *strings.Builder, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if n := utf8.RuneCountInString(cell); i < len(widths) && n > widths[i] {
				widths[i] = n
			}
		}
	}
	border := buildBorder(widths)
	b.WriteString(border + "\n")
	b.WriteString(buildRow(headers, widths) + "\n")
	b.WriteString(border + "\n")
	for _, row := range rows {
		b.WriteString(buildRow(row, widths) + "\n")
	}
	b.WriteString(border + "\n")
}

func buildBorder(widths []int) string {
	var b strings.Builder
	b.WriteString("+")
	for _, width := range widths {
		b.WriteString(strings.Repeat("-", width+2))
		b.WriteString("+")
	}
	return b.String()
}

func buildRow(values []string, widths []int) string {
	var b strings.Builder
	b.WriteString("|")
	for i, width := range widths {
		cell := ""
		if i < len(values) {
			cell = values[i]
		}
		b.WriteString(" ")
		b.WriteString(padRight(cell, width))
		b.WriteString(" |")
	}
	return b.String()
}

func padRight(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}
