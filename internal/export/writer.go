package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/helix-research/pipeline-cli/internal/model"
)

const sheetName = "Pipeline"

// illegalXLSXChars matches control characters spreadsheet readers reject.
var illegalXLSXChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f]`)

// greekReplacer spells out the greek letters common in drug names; they
// render as boxes in some spreadsheet fonts.
var greekReplacer = strings.NewReplacer(
	"α", "alpha",
	"β", "beta",
	"γ", "gamma",
)

func sanitizeCell(v string) string {
	return greekReplacer.Replace(illegalXLSXChars.ReplaceAllString(v, ""))
}

// ExportXLSX writes assets as an XLSX workbook at path, one row per asset in
// schema column order with a header row.
func ExportXLSX(assets []model.ExtractedAsset, schema Schema, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "export: create output dir")
	}

	file := xlsx.NewFile()
	sheet, err := file.AddSheet(sheetName)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	columns := schema.ColumnOrder()
	widths := make([]int, len(columns))

	header := sheet.AddRow()
	for i, col := range columns {
		header.AddCell().SetString(col)
		widths[i] = len(col)
	}

	for _, row := range MapAssets(assets, schema) {
		out := sheet.AddRow()
		for i, v := range row {
			v = sanitizeCell(v)
			out.AddCell().SetString(v)
			if i < len(widths) && len(v) > widths[i] {
				widths[i] = len(v)
			}
		}
	}

	for i, w := range widths {
		width := float64(w + 2)
		if width > 50 {
			width = 50
		}
		sheet.SetColWidth(i, i, width)
	}

	if err := file.Save(path); err != nil {
		return eris.Wrap(err, "export: save workbook")
	}
	return nil
}

// ExportCSV writes assets as a CSV file at path in schema column order.
func ExportCSV(assets []model.ExtractedAsset, schema Schema, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "export: create output dir")
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "export: create file")
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write(schema.ColumnOrder()); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	for _, row := range MapAssets(assets, schema) {
		for i, v := range row {
			row[i] = sanitizeCell(v)
		}
		if err := w.Write(row); err != nil {
			return eris.Wrap(err, "export: write row")
		}
	}

	w.Flush()
	return eris.Wrap(w.Error(), "export: flush")
}
