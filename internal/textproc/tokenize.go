// Package textproc turns free text into the normalized term sequences used for lexical ranking.
package textproc

import (
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// termAliases maps common technology spelling variants to a canonical token.
// Applied after case folding and before stemming.
var termAliases = map[string]string{
	"golang":  "go",
	"js":      "javascript",
	"ts":      "typescript",
	"k8s":     "kubernetes",
	"reactjs": "react",
	"vuejs":   "vue",
	"nodejs":  "node",
	"postgre": "postgres",
	"py":      "python",
}

// Tokenizer converts text into terms. The zero value is not usable; use New or Default.
type Tokenizer struct {
	stopWords   map[string]struct{}
	aliases     map[string]string
	stem        bool
	minTokenLen int
}

// Option configures a Tokenizer.
type Option func(*Tokenizer)

// WithoutStemming disables Snowball stemming.
func WithoutStemming() Option {
	return func(t *Tokenizer) { t.stem = false }
}

// WithStopWords replaces the default English stop-word list.
func WithStopWords(words []string) Option {
	return func(t *Tokenizer) {
		t.stopWords = make(map[string]struct{}, len(words))
		for _, w := range words {
			t.stopWords[w] = struct{}{}
		}
	}
}

// WithAliases replaces the default term alias table. A nil map disables aliasing.
func WithAliases(aliases map[string]string) Option {
	return func(t *Tokenizer) { t.aliases = aliases }
}

// New builds a Tokenizer. Defaults: English stop words, technology aliases, Snowball stemming.
func New(opts ...Option) *Tokenizer {
	t := &Tokenizer{
		stopWords:   englishStopWords,
		aliases:     termAliases,
		stem:        true,
		minTokenLen: 1,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

var defaultTokenizer = New()

// Default returns the shared default tokenizer. It is safe for concurrent use.
func Default() *Tokenizer {
	return defaultTokenizer
}

// Tokenize tokenizes text with the default tokenizer.
func Tokenize(text string) []string {
	return defaultTokenizer.Tokenize(text)
}

// Tokenize returns the terms of text in order of appearance, duplicates included.
// It is a pure function of its input.
func (t *Tokenizer) Tokenize(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	// a Caser carries state and is not safe for concurrent use
	folded := cases.Fold().String(norm.NFKC.String(text))

	words := strings.FieldsFunc(folded, isWordSeparator)
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if _, stop := t.stopWords[w]; stop {
			continue
		}
		if canonical, ok := t.aliases[w]; ok {
			w = canonical
		}
		if t.stem {
			w = english.Stem(w, false)
		}
		if len(w) < t.minTokenLen {
			continue
		}
		terms = append(terms, w)
	}
	return terms
}

// TermFrequencies counts each term in terms.
func TermFrequencies(terms []string) map[string]int {
	freq := make(map[string]int, len(terms))
	for _, term := range terms {
		freq[term]++
	}
	return freq
}

// isWordSeparator matches everything outside the \w class (letters, digits, underscore).
func isWordSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsMark(r) && r != '_'
}
