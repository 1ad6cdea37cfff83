package merge

import (
	"fmt"
	"sort"

	"github.com/lokeshec23/GC-AI/internal/schema"
	"github.com/lokeshec23/GC-AI/internal/text"
	"github.com/lokeshec23/GC-AI/internal/worker"
)

// DuplicateThreshold is the minimum summary similarity for a row in an
// overlap region to count as a repeat of a predecessor row.
const DuplicateThreshold = 0.9

// Merged is the document-level result of an ingest job.
type Merged struct {
	Rows     []schema.Row
	Warnings []string
	Failed   []int
	Total    int
}

// Rows assembles unit results in chunk order, whatever order they arrived
// in. Failed or missing chunks leave a gap and a warning.
func Rows(results []worker.UnitResult, chunks []text.Chunk) Merged {
	byIndex := make(map[int]worker.UnitResult, len(results))
	for _, r := range results {
		byIndex[r.ChunkIndex] = r
	}

	ordered := append([]text.Chunk(nil), chunks...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	m := Merged{Rows: []schema.Row{}, Total: len(ordered)}
	var prev []schema.Row
	prevOK := false
	var details []string

	for _, c := range ordered {
		r, ok := byIndex[c.Index]
		if !ok || r.Status != worker.StatusOK {
			m.Failed = append(m.Failed, c.Index)
			reason := "not processed"
			if ok && r.Err != nil {
				reason = r.Err.Error()
			}
			details = append(details, fmt.Sprintf("chunk %d failed: %s", c.Index+1, reason))
			prevOK = false
			prev = nil
			continue
		}

		rows := r.Rows
		if c.HasOverlap() && prevOK {
			rows = dropLeadingDuplicates(rows, prev)
		}
		m.Rows = append(m.Rows, rows...)
		prev = r.Rows
		prevOK = true
	}

	if len(m.Failed) > 0 {
		m.Warnings = append([]string{fmt.Sprintf("%d of %d chunks failed", len(m.Failed), m.Total)}, details...)
	}
	return m
}

func dropLeadingDuplicates(rows, prev []schema.Row) []schema.Row {
	n := 0
	for n < len(rows) && repeats(rows[n], prev) {
		n++
	}
	return rows[n:]
}

func repeats(r schema.Row, prev []schema.Row) bool {
	for _, p := range prev {
		if Normalize(r.MajorSection) == Normalize(p.MajorSection) &&
			Normalize(r.Subsection) == Normalize(p.Subsection) &&
			Similarity(r.Summary, p.Summary) >= DuplicateThreshold {
			return true
		}
	}
	return false
}
