package main

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/WessleyAI/threadharvest/engine/harvest"
	"github.com/WessleyAI/threadharvest/engine/session"
	"github.com/WessleyAI/threadharvest/pkg/fn"
)

// renderSummary prints one row per URL and the run totals.
func renderSummary(w io.Writer, rep session.Report, csvPath string) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"URL", "Type", "Result", "Cycles", "Comments", "Time"})

	seen := make(map[string]bool, len(rep.Outcomes))
	for _, o := range rep.Outcomes {
		seen[o.URL] = true
	}
	t.AppendRows(fn.Map(rep.Outcomes, func(o harvest.Outcome) table.Row {
		return table.Row{o.URL, o.ContentType, result(o), o.Cycles, len(o.Records), o.Elapsed.Round(time.Second)}
	}))
	// URLs that failed before the controller ran have no outcome.
	early := fn.Filter(rep.Failures, func(f session.Failure) bool { return !seen[f.URL] })
	t.AppendRows(fn.Map(early, func(f session.Failure) table.Row {
		return table.Row{f.URL, "-", "failed: " + f.Err.Error(), 0, 0, "-"}
	}))

	footer := fmt.Sprintf("%d unique comments", len(rep.Records))
	if rep.Stopped {
		footer += " (stopped early)"
	}
	t.AppendFooter(table.Row{footer, "", "", "", "", rep.Finished.Sub(rep.Started).Round(time.Second)})
	t.SetStyle(table.StyleRounded)
	t.Render()

	if csvPath != "" {
		fmt.Fprintf(w, "saved to %s\n", csvPath)
	}
}

func result(o harvest.Outcome) string {
	if o.State == harvest.StateFailed && o.Err != nil {
		return "failed: " + o.Err.Error()
	}
	return fmt.Sprintf("%s (%s)", o.State, o.Reason)
}
