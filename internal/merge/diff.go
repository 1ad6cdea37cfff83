package merge

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lokeshec23/GC-AI/internal/schema"
)

// TitleThreshold is the minimum title similarity for pairing rows whose
// titles differ.
const TitleThreshold = 0.8

var numberPattern = regexp.MustCompile(`\d+(?:[.,]\d+)*%?`)

// Diff aligns two merged documents into categorized entries. The output
// follows base order; rows only in next are placed just before the first
// matched next row that follows them.
func Diff(base, next []schema.Row) []schema.DiffEntry {
	key1 := titles(base)
	key2 := titles(next)

	match := make([]int, len(base))
	for i := range match {
		match[i] = -1
	}
	used := make([]bool, len(next))

	// Exact titles first, then similar titles for what is left.
	align(match, used, func(i, j int) bool { return key1[i] == key2[j] })
	align(match, used, func(i, j int) bool {
		return key1[i] != "" && key2[j] != "" && Similarity(key1[i], key2[j]) >= TitleThreshold
	})

	out := make([]schema.DiffEntry, 0, len(base)+len(next))
	emitted := make([]bool, len(next))
	for i, r := range base {
		j := match[i]
		if j < 0 {
			out = append(out, removed(r))
			continue
		}
		for k := 0; k < j; k++ {
			if !used[k] && !emitted[k] {
				out = append(out, added(next[k]))
				emitted[k] = true
			}
		}
		out = append(out, paired(r, next[j]))
	}
	for k := range next {
		if !used[k] && !emitted[k] {
			out = append(out, added(next[k]))
		}
	}
	return out
}

// align pairs unmatched base rows with unmatched next rows that satisfy ok,
// walking base in order. Among candidates the first one after the last
// matched next position wins, else the first one overall.
func align(match []int, used []bool, ok func(i, j int) bool) {
	last := -1
	for i := range match {
		if match[i] >= 0 {
			last = match[i]
			continue
		}
		first, after := -1, -1
		for j := range used {
			if used[j] || !ok(i, j) {
				continue
			}
			if first < 0 {
				first = j
			}
			if j > last {
				after = j
				break
			}
		}
		pick := after
		if pick < 0 {
			pick = first
		}
		if pick < 0 {
			continue
		}
		match[i] = pick
		used[pick] = true
		last = pick
	}
}

func titles(rows []schema.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = Normalize(r.Title())
	}
	return out
}

func paired(a, b schema.Row) schema.DiffEntry {
	e := schema.DiffEntry{
		Section:   a.Title(),
		Doc1Value: a.Summary,
		Doc2Value: b.Summary,
	}
	renamed := Normalize(a.Title()) != Normalize(b.Title())

	if Normalize(a.Summary) == Normalize(b.Summary) {
		e.Category = schema.CategoryUnchanged
		e.Difference = "No change"
		if renamed {
			e.Difference = fmt.Sprintf("Section renamed to %q", b.Title())
		}
		return e
	}

	e.Category = schema.CategoryModified
	e.Difference = describe(a.Summary, b.Summary)
	if renamed {
		e.Difference = fmt.Sprintf("Section renamed to %q; %s", b.Title(), e.Difference)
	}
	return e
}

func removed(r schema.Row) schema.DiffEntry {
	return schema.DiffEntry{
		Category:   schema.CategoryRemoved,
		Section:    r.Title(),
		Doc1Value:  r.Summary,
		Difference: "Present only in document 1",
	}
}

func added(r schema.Row) schema.DiffEntry {
	return schema.DiffEntry{
		Category:   schema.CategoryAdded,
		Section:    r.Title(),
		Doc2Value:  r.Summary,
		Difference: "Present only in document 2",
	}
}

// describe summarizes a content change, calling out changed figures.
func describe(a, b string) string {
	na := numberPattern.FindAllString(a, -1)
	nb := numberPattern.FindAllString(b, -1)
	from := subtract(na, nb)
	to := subtract(nb, na)
	if len(from) == 0 && len(to) == 0 {
		return "Content changed"
	}
	if len(from) == 0 {
		return "Added values: " + strings.Join(to, ", ")
	}
	if len(to) == 0 {
		return "Removed values: " + strings.Join(from, ", ")
	}
	return fmt.Sprintf("Changed %s to %s", strings.Join(from, ", "), strings.Join(to, ", "))
}

// subtract returns the items of a not present in b, keeping order and
// multiplicity.
func subtract(a, b []string) []string {
	left := make(map[string]int, len(b))
	for _, s := range b {
		left[s]++
	}
	var out []string
	for _, s := range a {
		if left[s] > 0 {
			left[s]--
			continue
		}
		out = append(out, s)
	}
	return out
}
