package retrieval

import "unicode/utf8"

// Ellipsis marks a truncated snippet.
const Ellipsis = "…"

// DefaultSnippetLength is the snippet budget in characters.
const DefaultSnippetLength = 320

// Snippet cuts text to at most budget characters and appends Ellipsis if it was cut.
// The cut always falls on a character boundary.
func Snippet(text string, budget int) string {
	if budget <= 0 {
		budget = DefaultSnippetLength
	}
	if utf8.RuneCountInString(text) <= budget {
		return text
	}

	n := 0
	for i := range text {
		if n == budget {
			return text[:i] + Ellipsis
		}
		n++
	}
	return text
}
