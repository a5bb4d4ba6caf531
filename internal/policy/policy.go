// Package policy implements the stop-word content filter applied to generated text.
package policy

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrEmpty is returned for blank text; an empty generation is never acceptable.
	ErrEmpty = errors.New("content is empty")

	// ErrRejected is wrapped by every Violation.
	ErrRejected = errors.New("content rejected by policy")
)

// Violation reports the stop word that matched.
type Violation struct {
	Word string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%v: contains %q", ErrRejected, v.Word)
}

func (v *Violation) Unwrap() error {
	return ErrRejected
}

type rule struct {
	word string
	re   *regexp.Regexp
}

// Filter checks text against a fixed stop-word list. It is immutable and safe
// for concurrent use.
type Filter struct {
	rules []rule
}

// New builds a filter. Words are trimmed and lower-cased; blanks and
// duplicates are dropped.
func New(words []string) *Filter {
	seen := make(map[string]bool, len(words))
	f := &Filter{}
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		// Letters and digits in any script count as word characters, so a
		// Cyrillic stop word does not match inside a longer Cyrillic word.
		re := regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}_])` + regexp.QuoteMeta(w) + `(?:[^\p{L}\p{N}_]|$)`)
		f.rules = append(f.rules, rule{word: w, re: re})
	}
	return f
}

// Words returns the normalised stop words.
func (f *Filter) Words() []string {
	out := make([]string, len(f.rules))
	for i, r := range f.rules {
		out[i] = r.word
	}
	return out
}

// Check returns nil if text is acceptable, ErrEmpty for blank text, or a
// *Violation for the first stop word found.
func (f *Filter) Check(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmpty
	}
	for _, r := range f.rules {
		if r.re.MatchString(text) {
			return &Violation{Word: r.word}
		}
	}
	return nil
}

// Clean trims surrounding whitespace from generated text.
func Clean(text string) string {
	return strings.TrimSpace(text)
}
