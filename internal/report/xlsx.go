package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/kiranshivaraju/trialscope/pkg/models"
)

const (
	sheetTrials   = "Trials"
	sheetByStatus = "By Status"
	sheetByPhase  = "By Phase"

	// Excel rejects cells longer than this.
	maxCellBytes = 32767
)

var trialHeaders = []string{
	"NCT ID",
	"Phase",
	"Status",
	"Condition",
	"Region",
	"Results Summary",
}

// TrialsXLSX renders the result's trials and both histograms as an XLSX
// workbook.
func TrialsXLSX(result *models.CanonicalResult) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	// A new file starts with "Sheet1"; rename it rather than leave it empty.
	if err := f.SetSheetName(f.GetSheetName(0), sheetTrials); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	if err := writeRow(f, sheetTrials, 1, toCells(trialHeaders)); err != nil {
		return nil, err
	}
	for i, t := range result.Trials {
		row := []any{
			t.NCTID,
			t.Phase,
			t.Status,
			t.Condition,
			t.Region,
			truncateString(t.ResultsSummary, maxCellBytes),
		}
		if err := writeRow(f, sheetTrials, i+2, row); err != nil {
			return nil, err
		}
	}
	_ = f.SetColWidth(sheetTrials, "A", "A", 14)
	_ = f.SetColWidth(sheetTrials, "B", "C", 20)
	_ = f.SetColWidth(sheetTrials, "D", "E", 28)
	_ = f.SetColWidth(sheetTrials, "F", "F", 60)

	if err := writeHistogram(f, sheetByStatus, "Status", StatusHistogram(result.Trials)); err != nil {
		return nil, err
	}
	if err := writeHistogram(f, sheetByPhase, "Phase", PhaseHistogram(result.Trials)); err != nil {
		return nil, err
	}

	idx, _ := f.GetSheetIndex(sheetTrials)
	f.SetActiveSheet(idx)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeHistogram(f *excelize.File, sheet, label string, buckets []Bucket) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("new sheet %q: %w", sheet, err)
	}
	if err := writeRow(f, sheet, 1, []any{label, "Trials"}); err != nil {
		return err
	}
	for i, b := range buckets {
		if err := writeRow(f, sheet, i+2, []any{b.Name, b.Value}); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(sheet, "A", "A", 24)
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func toCells(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
