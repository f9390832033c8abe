// Package output renders sync reports for terminals.
package output

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/pankaj-dahiya-devops/chronicle-rule-sync/internal/models"
)

// maxDetailWidth caps the DETAIL column so one long upstream error does
// not wrap the whole table.
const maxDetailWidth = 60

// RenderTable writes the per-rule results as a bordered table.
//
// Column order:
//
//	RULE  ACTION  RULE ID  SOURCE PATH  DETAIL
func RenderTable(w io.Writer, report *models.SyncReport) {
	if len(report.Results) == 0 {
		fmt.Fprintln(w, "No rule files.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"RULE", "ACTION", "RULE ID", "SOURCE PATH", "DETAIL"})
	for _, r := range report.Results {
		t.AppendRow(table.Row{
			r.RuleName,
			string(r.Action),
			r.RuleID,
			r.SourcePath,
			ShortenMessage(r.Detail, maxDetailWidth),
		})
	}
	t.Render()
}

// RenderSummary writes the counter block that closes every run.
func RenderSummary(w io.Writer, report *models.SyncReport) {
	s := report.Summary
	fmt.Fprintf(w, "Sync of %s/%s @ %s:%s\n",
		report.Source.Workspace, report.Source.Repository, report.Source.Ref, report.Source.Directory)
	if report.DryRun {
		fmt.Fprintln(w, "Mode: dry run, nothing uploaded")
	}
	fmt.Fprintf(w, "  Existing remote rules:  %d\n", s.ExistingRules)
	fmt.Fprintf(w, "  Processed:              %d\n", s.Processed)
	fmt.Fprintf(w, "  Skipped (already seen): %d\n", s.Skipped)
	if report.DryRun {
		fmt.Fprintf(w, "  Planned:                %d\n", s.Planned)
	} else {
		fmt.Fprintf(w, "  Uploaded:               %d\n", s.Uploaded)
	}
	fmt.Fprintf(w, "  Failed verification:    %d\n", s.FailedVerification)
	fmt.Fprintf(w, "  Failed upload:          %d\n", s.FailedUpload)
}

// ShortenMessage truncates msg to at most max runes, appending "..." when
// truncated. max is treated as at least 4 to guarantee space for the
// ellipsis.
func ShortenMessage(msg string, max int) string {
	if max < 4 {
		max = 4
	}
	runes := []rune(msg)
	if len(runes) <= max {
		return msg
	}
	return string(runes[:max-3]) + "..."
}
