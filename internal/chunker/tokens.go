package chunker

import (
	"strings"
	"unicode"
)

// Tokenize splits text into the units the chunker budgets by: each CJK rune
// (Hangul, Han, Kana) counts as one token, and each whitespace-delimited run
// of other characters counts as one token. This deliberately approximates a
// subword tokenizer; the estimate only needs to be deterministic and roughly
// proportional to model tokens for budget enforcement.
func Tokenize(text string) []string {
	var tokens []string
	var word strings.Builder

	flush := func() {
		if word.Len() > 0 {
			tokens = append(tokens, word.String())
			word.Reset()
		}
	}

	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case isCJK(r):
			flush()
			tokens = append(tokens, string(r))
		default:
			word.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// CountTokens returns the estimated token count of text.
func CountTokens(text string) int {
	return len(Tokenize(text))
}

// TailTokens returns the last n tokens of text joined with spaces, used as
// the sliding-window seed for the next narrative chunk.
func TailTokens(text string, n int) string {
	toks := Tokenize(text)
	if n <= 0 || len(toks) == 0 {
		return ""
	}
	if n > len(toks) {
		n = len(toks)
	}
	return strings.Join(toks[len(toks)-n:], " ")
}

// TruncateTokens returns the first n tokens of text joined with spaces.
func TruncateTokens(text string, n int) string {
	toks := Tokenize(text)
	if n <= 0 {
		return ""
	}
	if n >= len(toks) {
		return strings.Join(toks, " ")
	}
	return strings.Join(toks[:n], " ")
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Hangul, r) ||
		unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r)
}
