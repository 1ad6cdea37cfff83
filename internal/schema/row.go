package schema

import "strings"

// Row is one extracted guideline entry.
type Row struct {
	MajorSection string `json:"major_section"`
	Subsection   string `json:"subsection"`
	Summary      string `json:"summary"`
}

// Title is the display name of the row's section.
func (r Row) Title() string {
	major := strings.TrimSpace(r.MajorSection)
	sub := strings.TrimSpace(r.Subsection)
	switch {
	case sub == "":
		return major
	case major == "":
		return sub
	default:
		return major + " - " + sub
	}
}

type Category string

const (
	CategoryAdded     Category = "Added"
	CategoryRemoved   Category = "Removed"
	CategoryModified  Category = "Modified"
	CategoryUnchanged Category = "Unchanged"
)

// DiffEntry is one aligned comparison line between two documents.
type DiffEntry struct {
	Category   Category `json:"category"`
	Section    string   `json:"section"`
	Doc1Value  string   `json:"doc1_value"`
	Doc2Value  string   `json:"doc2_value"`
	Difference string   `json:"difference"`
}

// Column orders are fixed per job kind.
var (
	RowColumns  = []string{"major_section", "subsection", "summary"}
	DiffColumns = []string{"category", "section", "doc1_value", "doc2_value", "difference"}
)

func (r Row) Values() []string {
	return []string{r.MajorSection, r.Subsection, r.Summary}
}

func (d DiffEntry) Values() []string {
	return []string{string(d.Category), d.Section, d.Doc1Value, d.Doc2Value, d.Difference}
}
