package export

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/roamline/trip-cli/internal/model"
	"github.com/roamline/trip-cli/internal/pipeline"
)

// WriteJSON writes the raw report to path.
func WriteJSON(path string, report pipeline.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return eris.Wrap(err, "export: marshal report")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "export: write %s", path)
	}
	return nil
}

// WriteMarkdown renders the report and writes it to path.
func WriteMarkdown(path string, intent model.SessionIntent, report pipeline.Report) error {
	if err := os.WriteFile(path, []byte(Markdown(intent, report)), 0o644); err != nil {
		return eris.Wrapf(err, "export: write %s", path)
	}
	return nil
}

// WriteXLSX writes a two-sheet workbook: a run summary and the top
// candidates.
func WriteXLSX(path string, intent model.SessionIntent, report pipeline.Report) error {
	f := xlsx.NewFile()

	summary, err := f.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "export: add summary sheet")
	}
	addPair := func(label, value string) {
		row := summary.AddRow()
		row.AddCell().Value = label
		row.AddCell().Value = value
	}
	addPair("Destination", intent.Destination)
	addPair("Candidates found", fmt.Sprintf("%d", report.Result.CandidatesFound))
	addPair("Clusters formed", fmt.Sprintf("%d", report.Result.ClustersFormed))
	addPair("Average score", fmt.Sprintf("%.2f", report.Result.AverageScore))
	addPair("Validated", fmt.Sprintf("%d", report.Result.ValidatedCount))
	addPair("Tokens used", fmt.Sprintf("%d", report.Result.TotalTokens))
	addPair("Estimated cost (USD)", fmt.Sprintf("%.4f", report.Result.TotalCostUSD))
	addPair("Duration (ms)", fmt.Sprintf("%d", report.Result.DurationMS))

	sheet, err := f.AddSheet("Candidates")
	if err != nil {
		return eris.Wrap(err, "export: add candidates sheet")
	}
	header := sheet.AddRow()
	for _, h := range []string{"Rank", "Title", "Type", "Score", "Confidence", "Origin", "Location", "Validation"} {
		header.AddCell().Value = h
	}
	for i, c := range report.Top {
		row := sheet.AddRow()
		row.AddCell().SetInt(i + 1)
		row.AddCell().Value = c.Title
		row.AddCell().Value = string(c.Type)
		row.AddCell().SetFloatWithFormat(c.Score, "0.00")
		row.AddCell().Value = string(c.Confidence)
		row.AddCell().Value = c.Origin
		row.AddCell().Value = c.LocationText
		if c.Validation != nil {
			row.AddCell().Value = string(c.Validation.Status)
		} else {
			row.AddCell().Value = ""
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}
