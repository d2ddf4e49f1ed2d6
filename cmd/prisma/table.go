package main

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/use-agent/prisma/models"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// resultsTable renders one row per scrape result.
func resultsTable(results []models.ScrapeResult) string {
	rows := make([][]string, 0, len(results))
	for i, r := range results {
		status := "ok"
		detail := r.Title
		if !r.Success {
			status = "failed"
			detail = models.Truncate(r.Error, 60)
		}
		rows = append(rows, []string{
			fmt.Sprint(i + 1),
			models.Truncate(r.URL, 60),
			status,
			fmt.Sprint(r.ContentLength),
			fmt.Sprintf("%.1fs", r.ElapsedSeconds),
			detail,
		})
	}
	return renderTable(
		[]string{"#", "URL", "Status", "Chars", "Time", "Title / Error"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}

func formatDuration(seconds float64) string {
	return (time.Duration(seconds * float64(time.Second))).Round(100 * time.Millisecond).String()
}
