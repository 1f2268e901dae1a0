package chunk

import (
	"strings"

	"docquery/extract"
)

// Chunk is the unit of embedding and retrieval: a bounded slice of one
// document's text, tagged with the page (or paragraph) range it came
// from. IDs are assigned globally by the index build, in document order.
type Chunk struct {
	ID           int
	DocID        string
	Source       string
	SectionStart int
	SectionEnd   int
	Text         string
	Length       int
	Overlap      int
}

// Piece is a raw split produced by the Splitter: text, its rune offset
// in the input, and the realized overlap with the previous piece.
type Piece struct {
	Start   int
	Text    string
	Overlap int
}

// separators, in preference order, tried inside the trailing window of
// each chunk before falling back to a hard cut.
var separators = []string{"\n\n", "\n", ". ", " "}

// Splitter performs a greedy fixed-window split on rune count with
// look-back overlap, preferring to break at a paragraph, line, sentence
// or word boundary within a trailing window. Identical input and
// parameters always yield an identical sequence.
type Splitter struct {
	maxSize int
	overlap int
	window  int
}

func NewSplitter(maxSize, overlap int) Splitter {
	// Cap the boundary window so forward progress each step always
	// exceeds the overlap, ruling out stalls.
	window := maxSize / 5
	if limit := maxSize - overlap - 1; window > limit {
		window = limit
	}
	if window < 0 {
		window = 0
	}

	return Splitter{maxSize: maxSize, overlap: overlap, window: window}
}

// Split cuts text into pieces of at most maxSize runes. Every piece
// except the first starts overlap runes before the previous piece's
// end; the tail overlap shrinks when less text remains. No empty and no
// duplicate-only pieces are emitted.
func (s Splitter) Split(text string) []Piece {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= s.maxSize {
		return []Piece{{Start: 0, Text: text}}
	}

	var pieces []Piece
	pos := 0
	overlap := 0
	for {
		end := pos + s.maxSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = s.breakAt(runes, pos, end)
		}

		pieces = append(pieces, Piece{
			Start:   pos,
			Text:    string(runes[pos:end]),
			Overlap: overlap,
		})
		if end >= len(runes) {
			break
		}

		next := end - s.overlap
		if next <= pos {
			next = pos + 1
		}
		overlap = end - next
		pos = next
	}

	return pieces
}

// breakAt looks for the latest separator inside the trailing window
// [end-window, end) and cuts right after it; without one the hard
// limit stands.
func (s Splitter) breakAt(runes []rune, pos, end int) int {
	lo := end - s.window
	if lo <= pos {
		return end
	}

	window := string(runes[lo:end])
	for _, sep := range separators {
		if i := strings.LastIndex(window, sep); i >= 0 {
			cut := lo + len([]rune(window[:i])) + len([]rune(sep))
			if cut > pos {
				return cut
			}
		}
	}
	return end
}

// FromDocument joins a document's sections, splits the whole text once,
// and maps every piece back to the section range it spans. Chunk IDs
// are left unassigned here.
func FromDocument(doc *extract.Document, s Splitter) []Chunk {
	type span struct {
		index      int
		start, end int // rune offsets in the joined text
	}

	var sb strings.Builder
	var spans []span
	offset := 0
	for _, sec := range doc.Sections {
		if sec.Text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
			offset += 2
		}
		n := len([]rune(sec.Text))
		spans = append(spans, span{index: sec.Index, start: offset, end: offset + n})
		sb.WriteString(sec.Text)
		offset += n
	}
	if len(spans) == 0 {
		return nil
	}

	sectionRange := func(start, end int) (int, int) {
		first, last := spans[0].index, spans[0].index
		found := false
		for _, sp := range spans {
			if sp.end <= start || sp.start >= end {
				continue
			}
			if !found {
				first = sp.index
				found = true
			}
			last = sp.index
		}
		return first, last
	}

	pieces := s.Split(sb.String())
	chunks := make([]Chunk, 0, len(pieces))
	for _, p := range pieces {
		n := len([]rune(p.Text))
		first, last := sectionRange(p.Start, p.Start+n)
		chunks = append(chunks, Chunk{
			DocID:        doc.ID,
			Source:       doc.Name,
			SectionStart: first,
			SectionEnd:   last,
			Text:         p.Text,
			Length:       n,
			Overlap:      p.Overlap,
		})
	}

	return chunks
}
