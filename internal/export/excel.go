// Package export writes ranking runs to spreadsheet reports.
package export

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jonathan/resume-ranker/internal/types"
	"github.com/xuri/excelize/v2"
)

// Sheet names.
const (
	SheetSummary    = "Summary"
	SheetRanking    = "Ranking"
	SheetEvaluation = "Evaluation"
)

// RecordLookup resolves candidate records for the ranking sheet.
type RecordLookup interface {
	Get(id string) (types.ResumeRecord, bool)
}

// Report is everything a spreadsheet shows about one run.
type Report struct {
	RunID       string
	Query       string
	State       string
	Degraded    bool
	FallbackIDs []string
	Final       *types.RankingResult
	BM25        *types.RankingResult
	Evaluation  *types.EvaluationReport
	Records     RecordLookup
}

// ToExcel writes r to outputPath, adding the .xlsx extension when missing, and returns the
// path written.
func ToExcel(r *Report, outputPath string) (string, error) {
	if r == nil || r.Final == nil {
		return "", fmt.Errorf("nothing to export")
	}
	if !strings.HasSuffix(strings.ToLower(outputPath), ".xlsx") {
		outputPath += ".xlsx"
	}
	outputPath = filepath.Clean(outputPath)

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return "", err
	}
	if _, err := f.NewSheet(SheetRanking); err != nil {
		return "", err
	}

	header, err := headerStyle(f)
	if err != nil {
		return "", err
	}

	if err := writeSummary(f, header, r); err != nil {
		return "", fmt.Errorf("failed to create summary sheet: %w", err)
	}
	if err := writeRanking(f, header, r); err != nil {
		return "", fmt.Errorf("failed to create ranking sheet: %w", err)
	}
	if r.Evaluation != nil {
		if _, err := f.NewSheet(SheetEvaluation); err != nil {
			return "", err
		}
		if err := writeEvaluation(f, header, r.Evaluation); err != nil {
			return "", fmt.Errorf("failed to create evaluation sheet: %w", err)
		}
	}

	if err := f.SaveAs(outputPath); err != nil {
		return "", fmt.Errorf("failed to save Excel file: %w", err)
	}
	return outputPath, nil
}

func headerStyle(f *excelize.File) (int, error) {
	return f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
}

func fillStyle(f *excelize.File, color string) (int, error) {
	return f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
	})
}

// setRow writes values starting at column A of row.
func setRow(f *excelize.File, sheet string, row int, values ...any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func writeHeader(f *excelize.File, sheet string, style int, headers ...any) error {
	if err := setRow(f, sheet, 1, headers...); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, style)
}

func writeSummary(f *excelize.File, header int, r *Report) error {
	_ = f.SetColWidth(SheetSummary, "A", "A", 18)
	_ = f.SetColWidth(SheetSummary, "B", "B", 80)
	if err := writeHeader(f, SheetSummary, header, "Field", "Value"); err != nil {
		return err
	}

	stage := ""
	if r.Final != nil {
		stage = string(r.Final.Stage)
	}
	rows := [][]any{
		{"Run ID", r.RunID},
		{"Query", r.Query},
		{"State", r.State},
		{"Stage", stage},
		{"Candidates", r.Final.Len()},
		{"Degraded", r.Degraded},
		{"Fallbacks", strings.Join(r.FallbackIDs, ", ")},
	}
	for i, row := range rows {
		if err := setRow(f, SheetSummary, i+2, row...); err != nil {
			return err
		}
	}
	return nil
}

func writeRanking(f *excelize.File, header int, r *Report) error {
	_ = f.SetColWidth(SheetRanking, "A", "A", 8)
	_ = f.SetColWidth(SheetRanking, "B", "B", 20)
	_ = f.SetColWidth(SheetRanking, "C", "F", 12)
	_ = f.SetColWidth(SheetRanking, "G", "H", 30)
	if err := writeHeader(f, SheetRanking, header,
		"Rank", "Candidate", "Score", "Source", "BM25 Rank", "BM25 Score", "Location", "Skills"); err != nil {
		return err
	}

	llmStyle, err := fillStyle(f, "C6EFCE")
	if err != nil {
		return err
	}
	fallbackStyle, err := fillStyle(f, "FFEB9C")
	if err != nil {
		return err
	}

	lexical := make(map[string]int)
	lexicalScore := make(map[string]float64)
	if r.BM25 != nil {
		for i, c := range r.BM25.Candidates {
			lexical[c.ID] = i + 1
			lexicalScore[c.ID] = c.Score
		}
	}
	fallback := make(map[string]bool, len(r.FallbackIDs))
	for _, id := range r.FallbackIDs {
		fallback[id] = true
	}

	for i, c := range r.Final.Candidates {
		row := i + 2
		var location, skills string
		if r.Records != nil {
			if rec, ok := r.Records.Get(c.ID); ok {
				location = rec.Location
				skills = strings.Join(rec.Skills, ", ")
			}
		}
		values := []any{i + 1, c.ID, c.Score, string(c.Source), "", "", location, skills}
		if pos, ok := lexical[c.ID]; ok {
			values[4] = pos
			values[5] = lexicalScore[c.ID]
		}
		if err := setRow(f, SheetRanking, row, values...); err != nil {
			return err
		}

		style := 0
		switch {
		case fallback[c.ID]:
			style = fallbackStyle
		case c.Source == types.StageLLM:
			style = llmStyle
		}
		if style != 0 {
			first, _ := excelize.CoordinatesToCellName(1, row)
			last, _ := excelize.CoordinatesToCellName(len(values), row)
			if err := f.SetCellStyle(SheetRanking, first, last, style); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeEvaluation(f *excelize.File, header int, ev *types.EvaluationReport) error {
	_ = f.SetColWidth(SheetEvaluation, "A", "A", 20)
	_ = f.SetColWidth(SheetEvaluation, "B", "B", 40)
	if err := writeHeader(f, SheetEvaluation, header, "Metric", "Value"); err != nil {
		return err
	}

	rows := [][]any{
		{"evaluable", ev.Evaluable},
		{"reference_format", string(ev.Format)},
		{"cutoff_k", ev.CutoffK},
		{"judged", ev.Judged},
		{"unjudged", ev.Unjudged},
	}
	if ev.Reason != "" {
		rows = append(rows, []any{"reason", ev.Reason})
	}

	names := make([]string, 0, len(ev.Metrics))
	for name := range ev.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rows = append(rows, []any{name, ev.Metrics[name]})
	}

	for i, row := range rows {
		if err := setRow(f, SheetEvaluation, i+2, row...); err != nil {
			return err
		}
	}
	return nil
}
