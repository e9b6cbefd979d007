// Package export writes the intake log as a spreadsheet.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"waterlog/internal/intake"
)

// Sheet names of the exported workbook.
const (
	EntriesSheet = "Entries"
	DailySheet   = "Daily"
)

// percentFormat is excelize's built-in "0.00%" number format.
const percentFormat = 10

// WriteWorkbook writes an xlsx workbook with one row per entry on the
// Entries sheet and one row per day on the Daily sheet. Dates and times are
// shown in loc.
func WriteWorkbook(w io.Writer, entries []intake.Entry, days []intake.DayTotal, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", EntriesSheet); err != nil {
		return fmt.Errorf("naming entries sheet: %w", err)
	}
	if err := writeRows(f, EntriesSheet, []any{"id", "date", "time", "amount_ml"}, len(entries), func(i int) []any {
		e := entries[i]
		ts := e.Timestamp.In(loc)
		return []any{e.ID, ts.Format(time.DateOnly), ts.Format("15:04:05"), e.Amount}
	}); err != nil {
		return err
	}

	if _, err := f.NewSheet(DailySheet); err != nil {
		return fmt.Errorf("creating daily sheet: %w", err)
	}
	if err := writeRows(f, DailySheet, []any{"date", "total_ml", "goal_ml", "completion"}, len(days), func(i int) []any {
		d := days[i]
		return []any{d.Date.In(loc).Format(time.DateOnly), d.Total, d.DailyGoal, d.CompletionPercentage}
	}); err != nil {
		return err
	}

	if len(days) > 0 {
		style, err := f.NewStyle(&excelize.Style{NumFmt: percentFormat})
		if err != nil {
			return fmt.Errorf("creating percent style: %w", err)
		}
		last := fmt.Sprintf("D%d", len(days)+1)
		if err := f.SetCellStyle(DailySheet, "D2", last, style); err != nil {
			return fmt.Errorf("styling completion column: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

// writeRows writes header to row 1 and n rows produced by row below it.
func writeRows(f *excelize.File, sheet string, header []any, n int, row func(int) []any) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("writing %s header: %w", sheet, err)
	}
	for i := 0; i < n; i++ {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := row(i)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("writing %s row %d: %w", sheet, i+2, err)
		}
	}
	return nil
}
