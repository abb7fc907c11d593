// Package lines splits script text into addressable line spans.
package lines

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// IndexedLine is one line of the normalized text. Start and End are
// character offsets into the normalized text; End is exclusive.
type IndexedLine struct {
	Line  int    `json:"line"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// Normalize collapses every line-ending variant to a single "\n".
func Normalize(raw string) string {
	if !strings.ContainsRune(raw, '\r') {
		return raw
	}
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

// Index normalizes raw and returns one IndexedLine per "\n"-separated
// segment, blank segments included. An empty input yields a single empty
// line so that line 1 is always addressable.
func Index(raw string) []IndexedLine {
	segments := strings.Split(Normalize(raw), "\n")
	out := make([]IndexedLine, 0, len(segments))
	offset := 0
	for i, segment := range segments {
		width := utf8.RuneCountInString(segment)
		out = append(out, IndexedLine{
			Line:  i + 1,
			Start: offset,
			End:   offset + width,
			Text:  segment,
		})
		// +1 for the consumed newline
		offset += width + 1
	}
	return out
}

// Count returns the number of addressable lines, never less than one.
func Count(items []IndexedLine) int {
	if len(items) < 1 {
		return 1
	}
	return len(items)
}

// Lookup returns the line with the given 1-based number.
func Lookup(items []IndexedLine, line int) (IndexedLine, bool) {
	if line < 1 || line > len(items) {
		return IndexedLine{}, false
	}
	item := items[line-1]
	if item.Line != line {
		for _, candidate := range items {
			if candidate.Line == line {
				return candidate, true
			}
		}
		return IndexedLine{}, false
	}
	return item, true
}

// Numbered renders the lines as "N| text", one per row, which is the form
// the model sees when it is asked to anchor feedback.
func Numbered(items []IndexedLine) string {
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d| %s", item.Line, item.Text)
	}
	return b.String()
}
