package processor

import "strings"

// CountWords counts whitespace delimited tokens.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// NormalizeWhitespace collapses whitespace runs to single spaces and trims.
func NormalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// TruncateWords keeps the first n whitespace delimited tokens of text,
// joined by single spaces.
func TruncateWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

// normalize applies the word cap when one is set, otherwise only collapses
// whitespace.
func normalize(text string, wordCap int) string {
	if wordCap > 0 {
		return TruncateWords(text, wordCap)
	}
	return NormalizeWhitespace(text)
}
