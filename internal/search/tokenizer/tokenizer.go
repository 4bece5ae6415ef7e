// Package tokenizer provides text tokenisation for the job search index.
// It lower-cases input, splits on non-alphanumeric boundaries, removes
// stop-words, and folds plural suffixes so "developers" and "developer"
// index to the same term. Single letters are kept: "C" and "R" name
// languages.
package tokenizer

import (
	"strings"
	"unicode"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "in": {},
	"is": {}, "it": {}, "its": {}, "of": {}, "on": {}, "or": {},
	"the": {}, "to": {}, "with": {}, "we": {}, "our": {}, "you": {},
	"der": {}, "die": {}, "das": {}, "und": {}, "mit": {}, "für": {},
	"le": {}, "la": {}, "les": {}, "et": {}, "des": {}, "du": {},
}

// Token represents a single normalised term and its position in the
// original text.
type Token struct {
	Term     string
	Position int
}

// Tokenize breaks text into lowercased, plural-folded Tokens with
// stop-words and bare symbols removed.
func Tokenize(text string) []Token {
	words := strings.FieldsFunc(strings.ToLower(text), isSeparator)
	tokens := make([]Token, 0, len(words))
	pos := 0
	for _, word := range words {
		if !hasAlnum(word) || isStopWord(word) {
			continue
		}
		tokens = append(tokens, Token{
			Term:     stem(word),
			Position: pos,
		})
		pos++
	}
	return tokens
}

// Terms is Tokenize without positions.
func Terms(text string) []string {
	tokens := Tokenize(text)
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = tok.Term
	}
	return terms
}

// QueryTerms tokenizes a search query. It equals Terms except when every
// word is a stop-word: the last word is then kept unstemmed, since it may
// be the start of a longer word still being typed ("the" for "therapist").
func QueryTerms(text string) []string {
	terms := Terms(text)
	if len(terms) > 0 {
		return terms
	}
	words := strings.FieldsFunc(strings.ToLower(text), isSeparator)
	for i := len(words) - 1; i >= 0; i-- {
		if hasAlnum(words[i]) {
			return []string{words[i]}
		}
	}
	return terms
}

func isStopWord(word string) bool {
	_, ok := stopWords[word]
	return ok
}

func hasAlnum(word string) bool {
	return strings.IndexFunc(word, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
}

func isSeparator(r rune) bool {
	// '+' and '#' keep "c++" and "c#" intact.
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '+' && r != '#'
}

// stem folds English plural endings. It is deliberately shallow: a term
// produced from a partially typed word must still be a prefix of the term
// produced from the full word.
func stem(word string) string {
	n := len(word)
	switch {
	case n > 4 && strings.HasSuffix(word, "ies"):
		return word[:n-3] + "y"
	case n > 4 && strings.HasSuffix(word, "sses"):
		return word[:n-2]
	case n > 3 && strings.HasSuffix(word, "s") &&
		!strings.HasSuffix(word, "ss") &&
		!strings.HasSuffix(word, "us") &&
		!strings.HasSuffix(word, "is"):
		return word[:n-1]
	}
	return word
}
