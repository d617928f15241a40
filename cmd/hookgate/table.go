package main

import (
	"io"
	"time"

	"github.com/hako/durafmt"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

// durationDisplayUnits limits formatted durations to the two largest units.
const durationDisplayUnits = 2

// renderTable writes rows under headers as a rounded table.
func renderTable(w io.Writer, headers []string, rows [][]string) error {
	t := tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewBlueprint(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleRounded),
		})),
		tablewriter.WithPadding(tw.Padding{Left: " ", Right: " "}),
	)

	t.Header(headers)

	for _, row := range rows {
		if err := t.Append(row); err != nil {
			return err
		}
	}

	return t.Render()
}

// formatDuration renders d for tables, "-" for zero.
func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}

	if d < time.Second {
		return d.String()
	}

	return durafmt.Parse(d).LimitFirstN(durationDisplayUnits).String()
}
