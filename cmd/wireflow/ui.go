package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/rendis/wireflow/pkg/schema"
)

var (
	brand  = color.New(color.FgHiCyan, color.Bold)
	subtle = color.New(color.FgHiBlack)
	warn   = color.New(color.FgYellow)
	good   = color.New(color.FgGreen)
	bad    = color.New(color.FgRed)
)

func statusIcon(ok bool) string {
	if ok {
		return good.Sprint("✓")
	}
	return bad.Sprint("✗")
}

// printTable prints rows aligned under headers.
func printTable(w io.Writer, headers []string, rows [][]string) {
	if len(rows) == 0 {
		return
	}
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var head, sep strings.Builder
	for i, h := range headers {
		fmt.Fprintf(&head, "%-*s  ", widths[i], h)
		sep.WriteString(strings.Repeat("─", widths[i]) + "  ")
	}
	subtle.Fprintln(w, strings.TrimRight(head.String(), " "))
	subtle.Fprintln(w, strings.TrimRight(sep.String(), " "))

	for _, row := range rows {
		var line strings.Builder
		for i, cell := range row {
			if i < len(widths) {
				fmt.Fprintf(&line, "%-*s  ", widths[i], cell)
			}
		}
		fmt.Fprintln(w, strings.TrimRight(line.String(), " "))
	}
}

func printIssues(w io.Writer, r *schema.ValidationResult) {
	for _, issue := range r.Errors {
		fmt.Fprintf(w, "  %s %s %s%s %s\n", statusIcon(false), bad.Sprint(issue.Code), issueItems(issue), subtle.Sprint(issue.Path), issue.Message)
	}
	for _, issue := range r.Warnings {
		fmt.Fprintf(w, "  %s %s %s%s %s\n", warn.Sprint("!"), warn.Sprint(issue.Code), issueItems(issue), subtle.Sprint(issue.Path), issue.Message)
	}
}

func issueItems(issue schema.ValidationIssue) string {
	if len(issue.Items) == 0 {
		return ""
	}
	return "item " + strings.Join(issue.Items, ",") + " "
}
