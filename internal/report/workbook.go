package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/garyjia/claim-intake/internal/domain/entity"
	"github.com/xuri/excelize/v2"
)

const (
	SheetOutcomes = "Outcomes"
	SheetSummary  = "Summary"
)

var outcomeHeader = []interface{}{
	"Run ID", "File", "Category", "State", "Action", "Step", "Rationale",
	"Claimant", "Amount", "Risk Score", "Valid", "Failed Rules", "Failure",
	"Settlement Ref", "Attempts", "Completed At",
}

// Write renders the outcomes of a batch as a workbook with a detail sheet
// and a summary sheet. Nil outcomes are skipped.
func Write(w io.Writer, outcomes []*entity.ClaimOutcome) error {
	f, err := build(outcomes)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// WriteFile renders the workbook to path, creating parent directories
func WriteFile(path string, outcomes []*entity.ClaimOutcome) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	f, err := build(outcomes)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func build(outcomes []*entity.ClaimOutcome) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", SheetOutcomes); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetSummary); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create summary sheet: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#DDEBF7"}},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := fillOutcomes(f, outcomes, header); err != nil {
		f.Close()
		return nil, err
	}
	if err := fillSummary(f, outcomes, header); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func fillOutcomes(f *excelize.File, outcomes []*entity.ClaimOutcome, headerStyle int) error {
	if err := f.SetSheetRow(SheetOutcomes, "A1", &outcomeHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(outcomeHeader))
	if err := f.SetCellStyle(SheetOutcomes, "A1", lastCol+"1", headerStyle); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	row := 2
	for _, o := range outcomes {
		if o == nil {
			continue
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		values := outcomeRow(o)
		if err := f.SetSheetRow(SheetOutcomes, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", row, err)
		}
		row++
	}

	if err := f.SetColWidth(SheetOutcomes, "A", lastCol, 18); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}
	if err := f.SetPanes(SheetOutcomes, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze header: %w", err)
	}
	if row > 2 {
		if err := f.AutoFilter(SheetOutcomes, fmt.Sprintf("A1:%s%d", lastCol, row-1), nil); err != nil {
			return fmt.Errorf("failed to add filter: %w", err)
		}
	}
	return nil
}

func outcomeRow(o *entity.ClaimOutcome) []interface{} {
	var (
		file, category, claimant, failure string
		action, step, rationale           string
		amount, risk, valid, failedRules  interface{}
		completed                         string
	)
	if d := o.Document; d != nil {
		file, category = d.Filename, string(d.Category)
	}
	if c := o.Claim; c != nil {
		claimant = c.ClaimantName
		if c.Amount != nil {
			amount = *c.Amount
		}
	}
	if v := o.Validation; v != nil {
		risk = v.RiskScore
		valid = v.IsValid
		failedRules = fmt.Sprint(v.FailedRuleIDs())
	}
	if d := o.Decision; d != nil {
		action, step, rationale = string(d.Action), d.Step, d.Rationale
	}
	if o.Failure != nil {
		failure = o.Failure.String()
	}
	if !o.CompletedAt.IsZero() {
		completed = o.CompletedAt.UTC().Format(time.RFC3339)
	}

	return []interface{}{
		o.RunID, file, category, o.State, action, step, rationale,
		claimant, amount, risk, valid, failedRules, failure,
		o.SettlementRef, o.StructuringAttempts, completed,
	}
}

// Summarize counts outcomes by routing action, with failed runs under
// FAILED(STAGE)
func Summarize(outcomes []*entity.ClaimOutcome) map[string]int {
	counts := make(map[string]int)
	for _, o := range outcomes {
		if o == nil {
			continue
		}
		switch {
		case o.Failure != nil:
			counts[fmt.Sprintf("FAILED(%s)", o.Failure.Stage)]++
		case o.Decision != nil:
			counts[string(o.Decision.Action)]++
		default:
			counts[o.State]++
		}
	}
	return counts
}

func fillSummary(f *excelize.File, outcomes []*entity.ClaimOutcome, headerStyle int) error {
	if err := f.SetSheetRow(SheetSummary, "A1", &[]interface{}{"Result", "Count"}); err != nil {
		return fmt.Errorf("failed to write summary header: %w", err)
	}
	if err := f.SetCellStyle(SheetSummary, "A1", "B1", headerStyle); err != nil {
		return fmt.Errorf("failed to style summary header: %w", err)
	}

	counts := Summarize(outcomes)
	keys := make([]string, 0, len(counts))
	total := 0
	for k, n := range counts {
		keys = append(keys, k)
		total += n
	}
	sort.Strings(keys)

	row := 2
	for _, k := range keys {
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(SheetSummary, cell, &[]interface{}{k, counts[k]}); err != nil {
			return fmt.Errorf("failed to write summary row: %w", err)
		}
		row++
	}
	cell, _ := excelize.CoordinatesToCellName(1, row)
	if err := f.SetSheetRow(SheetSummary, cell, &[]interface{}{"TOTAL", total}); err != nil {
		return fmt.Errorf("failed to write summary total: %w", err)
	}
	return f.SetColWidth(SheetSummary, "A", "A", 28)
}
