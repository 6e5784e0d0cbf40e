package ui

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/conduit-lang/querykit/internal/orm/query"
)

// PrintIssues writes one line per issue: code, path and detail
func PrintIssues(w io.Writer, issues query.Issues, noColor bool) {
	code := color.New(color.FgRed, color.Bold)
	path := color.New(color.FgYellow)
	if noColor {
		code.DisableColor()
		path.DisableColor()
	}

	fmt.Fprintf(w, "%d issue(s):\n", len(issues))
	for _, issue := range issues {
		fmt.Fprint(w, "  ")
		code.Fprint(w, issue.Code)
		fmt.Fprint(w, " at ")
		path.Fprint(w, issue.Path.String())
		fmt.Fprintf(w, ": %s\n", issue.Detail)
	}
}
