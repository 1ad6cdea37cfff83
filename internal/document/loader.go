package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/lokeshec23/GC-AI/internal/schema"
	"github.com/lokeshec23/GC-AI/internal/text"
)

var ErrUnsupportedFormat = errors.New("unsupported document format")

type Format string

const (
	FormatPDF  Format = "pdf"
	FormatText Format = "text"
	FormatXLSX Format = "xlsx"
)

var formats = map[string]Format{
	".pdf":  FormatPDF,
	".txt":  FormatText,
	".md":   FormatText,
	".xlsx": FormatXLSX,
}

// FormatOf maps a file name to its format by extension.
func FormatOf(name string) (Format, bool) {
	f, ok := formats[strings.ToLower(filepath.Ext(name))]
	return f, ok
}

type Document struct {
	Name   string
	Format Format
	Pages  []string

	// Structured is set when the file already holds extraction rows, in
	// which case Rows replaces provider extraction.
	Structured bool
	Rows       []schema.Row
}

type Loader struct {
	pdftotext string
	runner    Runner
	logger    *slog.Logger
}

type Option func(*Loader)

func WithRunner(r Runner) Option {
	return func(l *Loader) {
		if r != nil {
			l.runner = r
		}
	}
}

func NewLoader(pdftotext string, logger *slog.Logger, opts ...Option) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	if pdftotext == "" {
		pdftotext = "pdftotext"
	}
	l := &Loader{pdftotext: pdftotext, logger: logger, runner: execRunner{logger: logger}}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Load reads the file at path. name is the user-facing file name and
// decides the format. Every failure is a *text.ChunkingError.
func (l *Loader) Load(ctx context.Context, path, name string) (*Document, error) {
	format, ok := FormatOf(name)
	if !ok {
		return nil, &text.ChunkingError{Reason: "cannot read " + filepath.Ext(name), Err: ErrUnsupportedFormat}
	}

	doc := &Document{Name: name, Format: format}
	var err error
	switch format {
	case FormatPDF:
		doc.Pages, err = l.pdfPages(ctx, path)
	case FormatText:
		doc.Pages, err = textPages(path)
	case FormatXLSX:
		err = readWorkbook(path, doc)
	}
	if err != nil {
		return nil, &text.ChunkingError{Reason: "unreadable " + string(format) + " document", Err: err}
	}

	l.logger.InfoContext(ctx, "document loaded",
		"name", name, "format", format, "pages", len(doc.Pages), "structured", doc.Structured, "rows", len(doc.Rows))
	return doc, nil
}

func (l *Loader) pdfPages(ctx context.Context, path string) ([]string, error) {
	out, errb, err := l.runner.Run(ctx, l.pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return nil, fmt.Errorf("pdftotext: %w: %s", err, truncate(string(errb), 512))
	}
	pages := strings.Split(string(out), text.PageBreak)
	// pdftotext terminates every page, including the last, with a form feed.
	if n := len(pages); n > 1 && strings.TrimSpace(pages[n-1]) == "" {
		pages = pages[:n-1]
	}
	return pages, nil
}

func textPages(path string) ([]string, error) {
	b, err := os.ReadFile(path) // #nosec G304 -- path is an upload path built by the server
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(b) {
		return nil, errors.New("file is not valid UTF-8 text")
	}
	return strings.Split(string(b), text.PageBreak), nil
}

// readWorkbook renders every sheet as one page of "Item N:" blocks. A sheet
// whose header matches the extraction columns is also loaded as rows.
func readWorkbook(path string, doc *Document) error {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	structured := len(sheets) > 0
	var rows []schema.Row

	for _, sheet := range sheets {
		cells, err := f.GetRows(sheet)
		if err != nil {
			return fmt.Errorf("sheet %q: %w", sheet, err)
		}
		if len(cells) == 0 {
			continue
		}
		header := cells[0]

		var b strings.Builder
		item := 0
		for _, row := range cells[1:] {
			if blankRow(row) {
				continue
			}
			item++
			fmt.Fprintf(&b, "Item %d:\n", item)
			for i, col := range header {
				if i >= len(row) {
					break
				}
				if v := strings.TrimSpace(row[i]); v != "" {
					fmt.Fprintf(&b, "- %s: %s\n", strings.TrimSpace(col), v)
				}
			}
			b.WriteString("\n")
		}
		doc.Pages = append(doc.Pages, b.String())

		if structured && isRowHeader(header) {
			for _, row := range cells[1:] {
				if blankRow(row) {
					continue
				}
				rows = append(rows, schema.Row{
					MajorSection: cell(row, 0),
					Subsection:   cell(row, 1),
					Summary:      cell(row, 2),
				})
			}
		} else {
			structured = false
		}
	}

	if structured && len(rows) > 0 {
		doc.Structured = true
		doc.Rows = rows
	}
	return nil
}

func isRowHeader(header []string) bool {
	if len(header) < len(schema.RowColumns) {
		return false
	}
	for i, want := range schema.RowColumns {
		got := strings.ToLower(strings.TrimSpace(header[i]))
		got = strings.ReplaceAll(got, " ", "_")
		if got != want {
			return false
		}
	}
	return true
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func cell(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}
