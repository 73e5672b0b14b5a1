package reports

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/MarcoPoloResearchLab/classdeck/backend/internal/classroom"
)

const (
	scoresSheet  = "Scores"
	historySheet = "History"
)

// WriteClassReport renders a class point report as an XLSX workbook: one
// sheet with per-student totals, one with the full point history.
func WriteClassReport(class *classroom.Class) ([]byte, error) {
	if class == nil {
		return nil, fmt.Errorf("reports: class is required")
	}

	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	if err := buildScoresSheet(f, class); err != nil {
		return nil, err
	}
	if err := buildHistorySheet(f, class); err != nil {
		return nil, err
	}

	// Drop the default sheet excelize creates.
	defaultSheet := f.GetSheetName(0)
	if defaultSheet != scoresSheet && defaultSheet != historySheet {
		if err := f.DeleteSheet(defaultSheet); err != nil {
			return nil, fmt.Errorf("reports: delete default sheet: %w", err)
		}
	}

	var buffer bytes.Buffer
	if err := f.Write(&buffer); err != nil {
		return nil, fmt.Errorf("reports: write workbook: %w", err)
	}
	return buffer.Bytes(), nil
}

func buildScoresSheet(f *excelize.File, class *classroom.Class) error {
	if _, err := f.NewSheet(scoresSheet); err != nil {
		return fmt.Errorf("reports: create scores sheet: %w", err)
	}

	header := []any{"Student", "Score", "Awards", "Deductions"}
	if err := f.SetSheetRow(scoresSheet, "A1", &header); err != nil {
		return fmt.Errorf("reports: write scores header: %w", err)
	}

	for i, student := range class.Students {
		awards, deductions := 0, 0
		for _, entry := range student.History {
			if entry.Points > 0 {
				awards++
			} else if entry.Points < 0 {
				deductions++
			}
		}
		row := []any{student.Name, student.Score, awards, deductions}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(scoresSheet, cell, &row); err != nil {
			return fmt.Errorf("reports: write scores row: %w", err)
		}
	}
	return nil
}

func buildHistorySheet(f *excelize.File, class *classroom.Class) error {
	if _, err := f.NewSheet(historySheet); err != nil {
		return fmt.Errorf("reports: create history sheet: %w", err)
	}

	header := []any{"Student", "Entry", "Points", "When"}
	if err := f.SetSheetRow(historySheet, "A1", &header); err != nil {
		return fmt.Errorf("reports: write history header: %w", err)
	}

	rowIndex := 2
	for _, student := range class.Students {
		for _, entry := range student.History {
			when := ""
			if entry.AtSeconds > 0 {
				when = time.Unix(entry.AtSeconds, 0).UTC().Format(time.RFC3339)
			}
			row := []any{student.Name, entry.Label, entry.Points, when}
			cell := fmt.Sprintf("A%d", rowIndex)
			if err := f.SetSheetRow(historySheet, cell, &row); err != nil {
				return fmt.Errorf("reports: write history row: %w", err)
			}
			rowIndex++
		}
	}
	return nil
}
