// Package moderation masks muted words in displayed message bodies.
package moderation

import (
	"log/slog"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/samber/lo"
)

// Filter masks muted words with an Aho-Corasick automaton built over a
// normalized form of the words, so leet speak and inner punctuation still match.
// A Filter is immutable once built and safe for concurrent use.
type Filter struct {
	log     *slog.Logger
	matcher *goahocorasick.Machine
	mask    rune
}

// NewFilter builds the automaton. Words made only of noise are ignored; an
// empty list yields a filter that never masks.
func NewFilter(mutedWords []string, mask rune, log *slog.Logger) (*Filter, error) {
	patterns := lo.FilterMap(mutedWords, func(word string, _ int) ([]rune, bool) {
		folded, _ := fold([]rune(word))
		return folded, len(folded) > 0
	})
	f := &Filter{log: log, mask: mask}
	if len(patterns) == 0 {
		return f, nil
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	f.matcher = m
	log.Debug("Muted words filter built", "patterns", len(patterns))
	return f, nil
}

// Mask replaces every muted word of body by the mask rune, leaving the
// characters between matches untouched, and returns the folded words found.
func (f *Filter) Mask(body string) (string, []string) {
	if f == nil || f.matcher == nil {
		return body, nil
	}
	runes := []rune(body)
	folded, positions := fold(runes)
	if len(folded) == 0 {
		return body, nil
	}
	hits := f.matcher.MultiPatternSearch(folded, false)
	if len(hits) == 0 {
		return body, nil
	}

	words := make([]string, 0, len(hits))
	for _, hit := range hits {
		last := hit.Pos + len(hit.Word) - 1
		if hit.Pos < 0 || last >= len(positions) {
			continue
		}
		for i := positions[hit.Pos]; i <= positions[last]; i++ {
			runes[i] = f.mask
		}
		words = append(words, string(hit.Word))
	}
	return string(runes), words
}

// fold lowers the runes, maps leet speak back to letters and drops
// punctuation, spaces and symbols. positions[i] is the index in input of
// folded[i].
func fold(input []rune) (folded []rune, positions []int) {
	folded = make([]rune, 0, len(input))
	positions = make([]int, 0, len(input))
	for i, r := range input {
		r = unleet(r)
		if unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r) {
			continue
		}
		folded = append(folded, unicode.ToLower(r))
		positions = append(positions, i)
	}
	return folded, positions
}

func unleet(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}
