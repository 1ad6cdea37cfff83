package export_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/lokeshec23/GC-AI/internal/export"
	"github.com/lokeshec23/GC-AI/internal/schema"
)

func open(t *testing.T, b []byte) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestRows(t *testing.T) {
	rows := []schema.Row{
		{MajorSection: "Credit", Subsection: "Score", Summary: "Min FICO 620"},
		{MajorSection: "Assets", Subsection: "", Summary: "2 months reserves"},
	}

	b, err := export.Rows(rows)
	require.NoError(t, err)

	f := open(t, b)
	got, err := f.GetRows(export.RowsSheet)
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Major Section", "Subsection", "Summary"},
		{"Credit", "Score", "Min FICO 620"},
		{"Assets", "", "2 months reserves"},
	}, got)

	w, err := f.GetColWidth(export.RowsSheet, "C")
	require.NoError(t, err)
	assert.Equal(t, 35.0, w)

	panes, err := f.GetPanes(export.RowsSheet)
	require.NoError(t, err)
	assert.True(t, panes.Freeze)
	assert.Equal(t, 1, panes.YSplit)
}

func TestDiff(t *testing.T) {
	entries := []schema.DiffEntry{
		{Category: schema.CategoryModified, Section: "Credit Score", Doc1Value: "min FICO 620", Doc2Value: "min FICO 640", Difference: "Changed 620 to 640"},
	}

	b, err := export.Diff(entries)
	require.NoError(t, err)

	got, err := open(t, b).GetRows(export.DiffSheet)
	require.NoError(t, err)
	assert.Equal(t, []string{"Category", "Section", "Doc1 Value", "Doc2 Value", "Difference"}, got[0])
	assert.Equal(t, []string{"Modified", "Credit Score", "min FICO 620", "min FICO 640", "Changed 620 to 640"}, got[1])
}

func TestEmpty(t *testing.T) {
	b, err := export.Rows(nil)
	require.NoError(t, err)

	got, err := open(t, b).GetRows(export.RowsSheet)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{export.EmptyMessage}}, got)
}

func TestByteStable(t *testing.T) {
	rows := []schema.Row{
		{MajorSection: "Income", Subsection: "W-2", Summary: "Two years history"},
		{MajorSection: "Income", Subsection: "Self-Employed", Summary: "Two years of returns"},
	}

	a, err := export.Rows(rows)
	require.NoError(t, err)
	b, err := export.Rows(rows)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(a, b), "same rows must produce identical bytes")

	d1, err := export.Diff([]schema.DiffEntry{{Category: schema.CategoryAdded, Section: "X", Doc2Value: "y"}})
	require.NoError(t, err)
	d2, err := export.Diff([]schema.DiffEntry{{Category: schema.CategoryAdded, Section: "X", Doc2Value: "y"}})
	require.NoError(t, err)
	assert.True(t, bytes.Equal(d1, d2))
}

func TestHeaderAndFilenames(t *testing.T) {
	assert.Equal(t, "Major Section", export.Header("major_section"))
	assert.Equal(t, "Doc2 Value", export.Header("doc2_value"))

	assert.Equal(t, "extraction_guide.xlsx", export.IngestFilename("guide.pdf"))
	assert.Equal(t, "extraction_guide.v2.xlsx", export.IngestFilename("/tmp/guide.v2.pdf"))
	assert.Equal(t, "comparison_a_vs_b.xlsx", export.CompareFilename("a.xlsx", "b.xlsx"))
	assert.Equal(t, "extraction_document.xlsx", export.IngestFilename(""))
}
