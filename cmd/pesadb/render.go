package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"pesadb/internal/sql/executor"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// renderResult formats a command result: the status line for mutators,
// a bordered table plus a row count for queries.
func renderResult(res *executor.Result) string {
	if res.Status != "" {
		return res.Status + "\n"
	}
	if len(res.Rows) == 0 {
		return "(0 rows)\n"
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return cellStyle
		}).
		Headers(res.Columns...)

	for _, row := range res.Rows {
		cells := make([]string, len(res.Columns))
		for i, col := range res.Columns {
			cells[i] = row[col].String()
		}
		t.Row(cells...)
	}

	plural := "s"
	if len(res.Rows) == 1 {
		plural = ""
	}
	return fmt.Sprintf("%s\n(%d row%s)\n", t.Render(), len(res.Rows), plural)
}
