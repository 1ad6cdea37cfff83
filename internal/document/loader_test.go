package document

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/lokeshec23/GC-AI/internal/text"
)

type fakeRunner struct {
	out  string
	err  error
	args []string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.args = append([]string{name}, args...)
	if f.err != nil {
		return nil, []byte("Syntax Error: Couldn't read xref table"), f.err
	}
	return []byte(f.out), nil, nil
}

func writeWorkbook(t *testing.T, dir string, rows [][]string) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for r, row := range rows {
		for c, v := range row {
			name, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue("Sheet1", name, v))
		}
	}
	path := filepath.Join(dir, "book.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestLoader_PDF(t *testing.T) {
	runner := &fakeRunner{out: "Page one text\fPage two text\f"}
	l := NewLoader("/usr/bin/pdftotext", nil, WithRunner(runner))

	doc, err := l.Load(context.Background(), "/tmp/x.pdf", "guide.PDF")
	require.NoError(t, err)
	assert.Equal(t, FormatPDF, doc.Format)
	assert.Equal(t, []string{"Page one text", "Page two text"}, doc.Pages)
	assert.Equal(t, "/usr/bin/pdftotext", runner.args[0])
	assert.Contains(t, runner.args, "-layout")
}

func TestLoader_PDFUnreadable(t *testing.T) {
	l := NewLoader("", nil, WithRunner(&fakeRunner{err: errors.New("exit status 1")}))

	_, err := l.Load(context.Background(), "/tmp/x.pdf", "broken.pdf")
	assert.True(t, text.IsChunkingError(err))
	assert.Contains(t, err.Error(), "xref")
}

func TestLoader_Text(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "g.md")
	require.NoError(t, os.WriteFile(path, []byte("# Credit\nMinimum FICO 620"), 0o600))

	doc, err := NewLoader("", nil).Load(context.Background(), path, "g.md")
	require.NoError(t, err)
	assert.Equal(t, FormatText, doc.Format)
	assert.Equal(t, []string{"# Credit\nMinimum FICO 620"}, doc.Pages)
	assert.False(t, doc.Structured)
}

func TestLoader_Unsupported(t *testing.T) {
	_, err := NewLoader("", nil).Load(context.Background(), "/tmp/x.docx", "x.docx")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.True(t, text.IsChunkingError(err))
}

func TestLoader_XLSX(t *testing.T) {
	t.Run("FreeForm", func(t *testing.T) {
		path := writeWorkbook(t, t.TempDir(), [][]string{
			{"Program", "Requirement"},
			{"Conventional", "FICO 620"},
			{"", ""},
			{"FHA", ""},
		})

		doc, err := NewLoader("", nil).Load(context.Background(), path, "a.xlsx")
		require.NoError(t, err)
		require.Len(t, doc.Pages, 1)
		assert.Equal(t, "Item 1:\n- Program: Conventional\n- Requirement: FICO 620\n\nItem 2:\n- Program: FHA\n\n", doc.Pages[0])
		assert.False(t, doc.Structured)
	})

	t.Run("Structured", func(t *testing.T) {
		path := writeWorkbook(t, t.TempDir(), [][]string{
			{"Major Section", "Subsection", "Summary"},
			{"Credit Score", "", "min FICO 620"},
			{"Assets", "Reserves", "6 months PITI"},
		})

		doc, err := NewLoader("", nil).Load(context.Background(), path, "a.xlsx")
		require.NoError(t, err)
		require.True(t, doc.Structured)
		require.Len(t, doc.Rows, 2)
		assert.Equal(t, "Credit Score", doc.Rows[0].MajorSection)
		assert.Equal(t, "min FICO 620", doc.Rows[0].Summary)
		assert.Equal(t, "Reserves", doc.Rows[1].Subsection)
	})
}

func TestFormatOf(t *testing.T) {
	f, ok := FormatOf("Guide.Xlsx")
	assert.True(t, ok)
	assert.Equal(t, FormatXLSX, f)

	_, ok = FormatOf("guide.csv")
	assert.False(t, ok)
}
