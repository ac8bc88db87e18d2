// Package phonetic snaps misheard words onto a fixed list of command phrases
// using Double Metaphone codes and Jaro-Winkler similarity.
//
// Both sides are folded before comparison: lower-cased, Vietnamese tone and
// vowel marks removed, đ mapped to d. A window is only compared with phrases
// of the same word count, so a single word is never expanded into a longer
// command.
//
// A phrase is a phonetic candidate when every aligned word pair shares a
// Double Metaphone code; candidates are accepted at the phonetic threshold
// (default 0.70). Other phrases need the higher fuzzy threshold (0.85).
package phonetic

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a phonetic
// candidate. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a phrase that
// does not sound alike. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a Matcher configured with opts.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Phrases is a precomputed phrase list. Build it once with [Prepare] and
// reuse it for every window of a transcript.
type Phrases struct {
	items    []phrase
	maxWords int
}

type phrase struct {
	text   string
	folded string
	tokens []string
	codes  []map[string]struct{}
}

// Prepare folds and encodes phrases. Blank entries are skipped.
func Prepare(phrases []string) *Phrases {
	p := &Phrases{}
	for _, text := range phrases {
		folded := Fold(text)
		tokens := strings.Fields(folded)
		if len(tokens) == 0 {
			continue
		}
		p.items = append(p.items, phrase{
			text:   strings.TrimSpace(text),
			folded: strings.Join(tokens, " "),
			tokens: tokens,
			codes:  tokenCodes(tokens),
		})
		p.maxWords = max(p.maxWords, len(tokens))
	}
	return p
}

// MaxWords returns the word count of the longest phrase, or 0 when empty.
func (p *Phrases) MaxWords() int { return p.maxWords }

// Len returns the number of usable phrases.
func (p *Phrases) Len() int { return len(p.items) }

// Match finds the phrase most similar to window. When matched is false,
// corrected equals window and confidence is 0.
func (m *Matcher) Match(window string, phrases []string) (corrected string, confidence float64, matched bool) {
	return m.MatchPrepared(window, Prepare(phrases))
}

// MatchPrepared is [Matcher.Match] over a prepared list.
func (m *Matcher) MatchPrepared(window string, p *Phrases) (corrected string, confidence float64, matched bool) {
	tokens := strings.Fields(Fold(window))
	if len(tokens) == 0 || p == nil || len(p.items) == 0 {
		return window, 0, false
	}
	folded := strings.Join(tokens, " ")
	codes := tokenCodes(tokens)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)
	for _, ph := range p.items {
		if len(ph.tokens) != len(tokens) {
			continue
		}
		score := similarity(tokens, ph.tokens, folded, ph.folded)
		if alignedCodesOverlap(codes, ph.codes) {
			if score >= m.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				best, bestScore, bestPhonetic = ph.text, score, true
			}
		} else if !bestPhonetic && score >= m.fuzzyThreshold && score > bestScore {
			best, bestScore = ph.text, score
		}
	}
	if best == "" {
		return window, 0, false
	}
	return best, bestScore, true
}

// Fold lower-cases s and strips combining marks, so "Bật Đèn" and "bat den"
// compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		out = strings.ToLower(s)
	}
	return strings.ReplaceAll(out, "đ", "d")
}

func tokenCodes(tokens []string) []map[string]struct{} {
	out := make([]map[string]struct{}, len(tokens))
	for i, t := range tokens {
		codes := make(map[string]struct{}, 2)
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
		out[i] = codes
	}
	return out
}

// alignedCodesOverlap reports whether every word pair at the same position
// shares a code. Words without a code (no consonants) match anything.
func alignedCodesOverlap(a, b []map[string]struct{}) bool {
	for i := range a {
		if len(a[i]) == 0 || len(b[i]) == 0 {
			continue
		}
		shared := false
		for code := range a[i] {
			if _, ok := b[i][code]; ok {
				shared = true
				break
			}
		}
		if !shared {
			return false
		}
	}
	return true
}

// similarity is the better of the full-string and the space-stripped
// Jaro-Winkler score.
func similarity(aTokens, bTokens []string, aFull, bFull string) float64 {
	score := matchr.JaroWinkler(aFull, bFull, false)
	if len(aTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(aTokens, ""), strings.Join(bTokens, ""), false); s > score {
			score = s
		}
	}
	return score
}
