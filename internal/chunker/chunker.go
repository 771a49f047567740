package chunker

import "strings"

const (
	DefaultChunkSize    = 10000 // characters
	DefaultChunkOverlap = 1000  // characters
)

// separators in order of preference when looking for a clean break point
var separators = []string{"\n\n", "\n", ". ", "? ", "! ", " "}

// Chunk splits text into segments of at most maxChars characters where each
// segment after the first starts with the last overlapChars characters of the
// previous one. Dropping those leading characters and concatenating yields
// text exactly. Lengths are counted in runes.
func Chunk(text string, maxChars, overlapChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultChunkSize
	}
	if overlapChars < 0 {
		overlapChars = 0
	}
	if overlapChars >= maxChars {
		overlapChars = maxChars / 2
	}
	if text == "" {
		return nil
	}

	runes := []rune(text)
	contentLen := len(runes)
	if contentLen <= maxChars {
		return []string{text}
	}

	var chunks []string
	start := 0
	for {
		end := min(start+maxChars, contentLen)
		if end < contentLen {
			end = breakPoint(runes, start+overlapChars+1, end, maxChars)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end >= contentLen {
			break
		}
		start = end - overlapChars
	}
	return chunks
}

// breakPoint looks for a separator within the last 10% of the window
// [start, end) and returns the index just past it. lo is the smallest cut
// allowed so that every chunk is longer than the overlap.
func breakPoint(runes []rune, lo, end, maxChars int) int {
	lookBack := max(maxChars/10, 1)
	from := max(end-lookBack, lo)
	if from >= end {
		return end
	}
	window := string(runes[from:end])
	for _, sep := range separators {
		idx := strings.LastIndex(window, sep)
		if idx < 0 {
			continue
		}
		return from + len([]rune(window[:idx+len(sep)]))
	}
	return end
}

// Reassemble rebuilds the original text from chunks produced by Chunk with
// the same overlap: every chunk after the first loses its leading
// overlapChars characters. The overlap must be the effective one, i.e.
// smaller than the chunk size.
func Reassemble(chunks []string, overlapChars int) string {
	var content strings.Builder
	for i, chunk := range chunks {
		if i == 0 {
			content.WriteString(chunk)
			continue
		}
		runes := []rune(chunk)
		if len(runes) > overlapChars {
			content.WriteString(string(runes[overlapChars:]))
		}
	}
	return content.String()
}
