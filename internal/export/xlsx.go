package export

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/lokeshec23/GC-AI/internal/schema"
)

const (
	RowsSheet    = "Extraction Results"
	DiffSheet    = "Comparison Results"
	EmptyMessage = "No structured data was extracted or generated."

	columnWidth = 35
	// Fixed document properties keep the output identical across runs.
	fixedTimestamp = "2000-01-01T00:00:00Z"
)

// Rows renders an ingest result with one column per row field.
func Rows(rows []schema.Row) ([]byte, error) {
	values := make([][]string, len(rows))
	for i, r := range rows {
		values[i] = r.Values()
	}
	return write(RowsSheet, schema.RowColumns, values)
}

// Diff renders a comparison result.
func Diff(entries []schema.DiffEntry) ([]byte, error) {
	values := make([][]string, len(entries))
	for i, e := range entries {
		values[i] = e.Values()
	}
	return write(DiffSheet, schema.DiffColumns, values)
}

func write(sheet string, columns []string, rows [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetDocProps(&excelize.DocProperties{
		Created:  fixedTimestamp,
		Modified: fixedTimestamp,
		Creator:  "GC-AI",
		Title:    sheet,
	}); err != nil {
		return nil, fmt.Errorf("doc props: %w", err)
	}

	if len(rows) == 0 {
		if err := f.SetCellValue(sheet, "A1", EmptyMessage); err != nil {
			return nil, err
		}
		return flush(f)
	}

	for i, c := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, Header(c)); err != nil {
			return nil, err
		}
	}
	for r, vals := range rows {
		for c, v := range vals {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, err
			}
		}
	}

	last, _ := excelize.ColumnNumberToName(len(columns))
	if err := f.SetColWidth(sheet, "A", last, columnWidth); err != nil {
		return nil, err
	}
	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("freeze header: %w", err)
	}
	return flush(f)
}

func flush(f *excelize.File) ([]byte, error) {
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

// Header turns a field name like "doc1_value" into "Doc1 Value".
func Header(field string) string {
	parts := strings.Split(field, "_")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}

// IngestFilename names the download for an ingest of name.
func IngestFilename(name string) string {
	return "extraction_" + stem(name) + ".xlsx"
}

func CompareFilename(a, b string) string {
	return "comparison_" + stem(a) + "_vs_" + stem(b) + ".xlsx"
}

func stem(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndex(name, "."); i > 0 {
		name = name[:i]
	}
	if name == "" {
		return "document"
	}
	return name
}
