package text

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

type Strategy string

const (
	StrategyPages  Strategy = "pages"
	StrategyTokens Strategy = "tokens"
)

// CharsPerToken is the rough chars-per-token ratio used for sizing.
const CharsPerToken = 4

// PageBreak separates pages in the joined document text.
const PageBreak = "\f"

// Policy selects how a document is cut. MaxTokens, when positive, caps a
// page group: a group larger than that is split further on token
// boundaries.
type Policy struct {
	Strategy      Strategy `json:"strategy"`
	PagesPerChunk int      `json:"pages_per_chunk"`
	ChunkSize     int      `json:"chunk_size"`
	Overlap       int      `json:"chunk_overlap"`
	MaxTokens     int      `json:"max_tokens,omitempty"`
}

// Chunk is one ordered work unit. [Start, End) is the span of the joined
// document text the chunk owns; Content additionally repeats the overlap
// slice [OverlapStart, Start) taken from the previous chunk.
type Chunk struct {
	Index        int    `json:"index"`
	Content      string `json:"-"`
	Start        int    `json:"start"`
	End          int    `json:"end"`
	OverlapStart int    `json:"overlap_start"`
	FirstPage    int    `json:"first_page,omitempty"`
	LastPage     int    `json:"last_page,omitempty"`
}

func (c Chunk) HasOverlap() bool {
	return c.OverlapStart < c.Start
}

// EstimateTokens approximates the token count of s.
func EstimateTokens(s string) int {
	return (len(s) + CharsPerToken - 1) / CharsPerToken
}

// Join concatenates pages into the text that chunk spans refer to.
func Join(pages []string) string {
	return strings.Join(pages, PageBreak)
}

func (p Policy) Validate() error {
	if p.MaxTokens < 0 {
		return fmt.Errorf("%w: max tokens must not be negative", ErrInvalidPolicy)
	}
	switch p.Strategy {
	case StrategyPages:
		if p.PagesPerChunk < 1 {
			return fmt.Errorf("%w: pages per chunk must be at least 1", ErrInvalidPolicy)
		}
	case StrategyTokens:
		if p.ChunkSize < 1 {
			return fmt.Errorf("%w: chunk size must be at least 1", ErrInvalidPolicy)
		}
		if p.Overlap < 0 || p.Overlap >= p.ChunkSize {
			return fmt.Errorf("%w: overlap must be in [0, chunk size)", ErrInvalidPolicy)
		}
	default:
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidPolicy, p.Strategy)
	}
	return nil
}

// Split cuts the pages of a document into ordered chunks. The chunks are
// contiguous and their spans cover Join(pages) with no gaps.
func Split(pages []string, p Policy) ([]Chunk, error) {
	if err := p.Validate(); err != nil {
		return nil, &ChunkingError{Reason: "bad policy", Err: err}
	}

	joined := Join(pages)
	if strings.TrimSpace(strings.ReplaceAll(joined, PageBreak, "")) == "" {
		return nil, &ChunkingError{Reason: "document contains no text"}
	}

	if p.Strategy == StrategyPages {
		chunks := splitPages(pages, p.PagesPerChunk)
		if p.MaxTokens > 0 {
			chunks = capChunks(joined, chunks, p.MaxTokens*CharsPerToken)
		}
		return chunks, nil
	}
	return splitTokens(joined, p.ChunkSize*CharsPerToken, p.Overlap*CharsPerToken), nil
}

func splitPages(pages []string, perChunk int) []Chunk {
	offsets := make([]int, len(pages)+1)
	for i, pg := range pages {
		offsets[i+1] = offsets[i] + len(pg)
		if i < len(pages)-1 {
			offsets[i+1] += len(PageBreak)
		}
	}

	var chunks []Chunk
	pendingStart, pendingFirst := -1, 0

	for i := 0; i < len(pages); i += perChunk {
		last := i + perChunk
		if last > len(pages) {
			last = len(pages)
		}

		var parts []string
		for _, pg := range pages[i:last] {
			if t := strings.TrimSpace(pg); t != "" {
				parts = append(parts, t)
			}
		}

		// Blank page groups are folded into a neighbour so no empty unit is dispatched.
		if len(parts) == 0 {
			if n := len(chunks); n > 0 {
				chunks[n-1].End = offsets[last]
				chunks[n-1].LastPage = last
			} else if pendingStart < 0 {
				pendingStart, pendingFirst = offsets[i], i+1
			}
			continue
		}

		c := Chunk{
			Index:     len(chunks),
			Content:   strings.Join(parts, "\n\n"),
			Start:     offsets[i],
			End:       offsets[last],
			FirstPage: i + 1,
			LastPage:  last,
		}
		if pendingStart >= 0 {
			c.Start, c.FirstPage = pendingStart, pendingFirst
			pendingStart = -1
		}
		c.OverlapStart = c.Start
		chunks = append(chunks, c)
	}
	return chunks
}

// capChunks re-splits page groups whose content exceeds maxChars. Pieces
// keep the page range of their group and carry no overlap.
func capChunks(joined string, chunks []Chunk, maxChars int) []Chunk {
	out := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Content) <= maxChars {
			c.Index = len(out)
			out = append(out, c)
			continue
		}
		for _, piece := range splitTokens(joined[c.Start:c.End], maxChars, 0) {
			piece.Index = len(out)
			piece.Start += c.Start
			piece.End += c.Start
			piece.OverlapStart = piece.Start
			piece.FirstPage, piece.LastPage = c.FirstPage, c.LastPage
			out = append(out, piece)
		}
	}
	return out
}

func splitTokens(text string, maxChars, overlapChars int) []Chunk {
	var chunks []Chunk
	pendingStart := -1

	for start := 0; start < len(text); {
		end := start + maxChars
		if end >= len(text) {
			end = len(text)
		} else {
			end = breakPoint(text, start, end)
		}

		if strings.TrimSpace(strings.ReplaceAll(text[start:end], PageBreak, "")) == "" {
			if n := len(chunks); n > 0 {
				chunks[n-1].End = end
			} else if pendingStart < 0 {
				pendingStart = start
			}
			start = end
			continue
		}

		c := Chunk{Index: len(chunks), Start: start, End: end, OverlapStart: start}
		if pendingStart >= 0 {
			c.Start, c.OverlapStart = pendingStart, pendingStart
			pendingStart = -1
		}
		if n := len(chunks); n > 0 && overlapChars > 0 {
			c.OverlapStart = overlapStart(text, chunks[n-1].Start, c.Start, overlapChars)
		}
		c.Content = strings.TrimSpace(strings.ReplaceAll(text[c.OverlapStart:c.End], PageBreak, "\n"))
		chunks = append(chunks, c)
		start = end
	}
	return chunks
}

// breakPoint picks a cut at or before end, preferring paragraph, then line,
// then word boundaries in the second half of the window.
func breakPoint(text string, start, end int) int {
	window := text[start:end]
	floor := len(window) / 2
	for _, sep := range []string{"\n\n", PageBreak, "\n", " "} {
		if i := strings.LastIndex(window, sep); i >= floor && i > 0 {
			return start + i + len(sep)
		}
	}
	for end > start && !utf8.RuneStart(text[end]) {
		end--
	}
	if end == start {
		_, size := utf8.DecodeRuneInString(text[start:])
		end = start + size
	}
	return end
}

// overlapStart walks back n bytes from start, never past floor, then moves
// forward to the next word boundary so the overlap does not open mid-word.
func overlapStart(text string, floor, start, n int) int {
	s := start - n
	if s < floor {
		s = floor
	}
	if i := strings.IndexAny(text[s:start], " \n\t\f"); i >= 0 && s+i+1 < start {
		s += i + 1
	}
	for s < start && !utf8.RuneStart(text[s]) {
		s++
	}
	return s
}
