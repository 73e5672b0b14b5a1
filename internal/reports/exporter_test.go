package reports

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/MarcoPoloResearchLab/classdeck/backend/internal/classroom"
)

func testClass() *classroom.Class {
	return &classroom.Class{
		Name: "5B",
		Students: []classroom.Student{
			{
				ID:    "s1",
				Name:  "Ada",
				Score: 3,
				History: []classroom.PointEntry{
					{Label: "Helping", Points: 2, AtSeconds: 1700000000},
					{Label: "Shouting", Points: -1, AtSeconds: 1700003600},
					{Label: "Homework", Points: 2},
				},
			},
			{ID: "s2", Name: "Grace", Score: 0},
		},
	}
}

func TestWriteClassReport(t *testing.T) {
	payload, err := WriteClassReport(testClass())
	if err != nil {
		t.Fatalf("write report: %v", err)
	}

	workbook, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer workbook.Close() //nolint:errcheck

	sheets := workbook.GetSheetList()
	if len(sheets) != 2 {
		t.Fatalf("expected the two report sheets, got %v", sheets)
	}

	name, err := workbook.GetCellValue("Scores", "A2")
	if err != nil {
		t.Fatalf("read cell: %v", err)
	}
	if name != "Ada" {
		t.Fatalf("unexpected student name: %q", name)
	}
	awards, _ := workbook.GetCellValue("Scores", "C2")
	if awards != "2" {
		t.Fatalf("expected 2 awards, got %q", awards)
	}
	deductions, _ := workbook.GetCellValue("Scores", "D2")
	if deductions != "1" {
		t.Fatalf("expected 1 deduction, got %q", deductions)
	}

	entry, _ := workbook.GetCellValue("History", "B2")
	if entry != "Helping" {
		t.Fatalf("unexpected history entry: %q", entry)
	}
	when, _ := workbook.GetCellValue("History", "D2")
	if when != "2023-11-14T22:13:20Z" {
		t.Fatalf("unexpected timestamp rendering: %q", when)
	}
	// Entries without a timestamp leave the column blank.
	blank, _ := workbook.GetCellValue("History", "D4")
	if blank != "" {
		t.Fatalf("expected blank timestamp, got %q", blank)
	}
}

func TestWriteClassReportRequiresClass(t *testing.T) {
	if _, err := WriteClassReport(nil); err == nil {
		t.Fatalf("expected error for nil class")
	}
}

func TestWriteClassReportEmptyRoster(t *testing.T) {
	payload, err := WriteClassReport(&classroom.Class{Name: "Empty"})
	if err != nil {
		t.Fatalf("write report: %v", err)
	}
	workbook, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer workbook.Close() //nolint:errcheck

	header, _ := workbook.GetCellValue("Scores", "A1")
	if header != "Student" {
		t.Fatalf("expected header row, got %q", header)
	}
}
