package main

import (
	"fmt"
	"strconv"

	"github.com/pterm/pterm"

	"github.com/dpstorage/deltactl/internal/engine"
	"github.com/dpstorage/deltactl/internal/model"
)

// renderTable prints a bounded query result as a boxed console table.
func renderTable(t *engine.Table) {
	if t == nil || len(t.Rows) == 0 {
		pterm.Println("no rows")
		return
	}

	data := pterm.TableData{t.Columns}
	for _, row := range t.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatValue(v)
		}
		data = append(data, cells)
	}

	pterm.DefaultTable.
		WithBoxed(true).
		WithHasHeader(true).
		WithHeaderRowSeparator("-").
		WithData(data).Render()
}

// renderReport prints the per-check outcome table for a quality run.
func renderReport(report *model.CheckReport) {
	data := pterm.TableData{{"check", "subject", "violations", "result"}}
	for _, r := range report.Results {
		result := "pass"
		if !r.Passed {
			result = "FAIL"
		}
		data = append(data, []string{
			r.Check, r.Subject, strconv.FormatInt(r.Violations, 10), result,
		})
	}

	pterm.DefaultTable.
		WithHasHeader(true).
		WithHeaderRowSeparator("-").
		WithData(data).Render()
}

func formatValue(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
