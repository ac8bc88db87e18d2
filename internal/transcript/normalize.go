package transcript

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/voxtrigger/internal/transcript/phonetic"
)

const defaultMinRunes = 3

// DefaultMarkers are the non-speech annotations emitted by Whisper-family
// models.
var DefaultMarkers = []string{
	"[BLANK_AUDIO]",
	"[Music]",
	"[Silence]",
	"(electronic beeping)",
}

// Option is a functional option for configuring a [Normalizer].
type Option func(*Normalizer)

// WithMarkers replaces [DefaultMarkers]. Markers are matched case-insensitively.
func WithMarkers(markers ...string) Option {
	return func(n *Normalizer) { n.markers = markers }
}

// WithMinRunes sets the shortest text accepted as speech. Default: 3.
func WithMinRunes(count int) Option {
	return func(n *Normalizer) { n.minRunes = count }
}

// WithVocabulary enables snapping onto phrases using m. A nil m selects the
// default [phonetic.Matcher].
func WithVocabulary(phrases []string, m PhraseMatcher) Option {
	return func(n *Normalizer) {
		n.phrases = phrases
		n.matcher = m
	}
}

// Normalizer is immutable after construction and safe for concurrent use.
type Normalizer struct {
	markers  []string
	minRunes int
	phrases  []string
	matcher  PhraseMatcher

	markerRE *regexp.Regexp
	prepared *phonetic.Phrases
}

// NewNormalizer builds a Normalizer from opts.
func NewNormalizer(opts ...Option) *Normalizer {
	n := &Normalizer{
		markers:  DefaultMarkers,
		minRunes: defaultMinRunes,
	}
	for _, o := range opts {
		o(n)
	}

	if len(n.markers) > 0 {
		alts := make([]string, 0, len(n.markers))
		for _, m := range n.markers {
			if m = strings.TrimSpace(m); m != "" {
				alts = append(alts, regexp.QuoteMeta(m))
			}
		}
		if len(alts) > 0 {
			n.markerRE = regexp.MustCompile(`(?i)` + strings.Join(alts, "|"))
		}
	}

	if len(n.phrases) > 0 {
		if n.matcher == nil {
			n.matcher = phonetic.New()
		}
		n.prepared = phonetic.Prepare(n.phrases)
	}
	return n
}

// Normalize cleans raw. It returns an error wrapping [ErrNoSpeech] when fewer
// than the minimum number of runes remain.
func (n *Normalizer) Normalize(raw string) (Normalized, error) {
	out := Normalized{Raw: raw}

	text := raw
	if n.markerRE != nil {
		text = n.markerRE.ReplaceAllString(text, " ")
	}
	text = strings.Join(strings.Fields(text), " ")

	if utf8.RuneCountInString(text) < n.minRunes {
		return out, fmt.Errorf("transcript: %q: %w", raw, ErrNoSpeech)
	}

	if n.prepared != nil && n.prepared.Len() > 0 {
		text, out.Corrections = n.snap(text)
	}
	out.Text = text
	return out, nil
}

// snap walks the words left to right trying the longest window first, so a
// multi-word command wins over a shorter one starting at the same word.
func (n *Normalizer) snap(text string) (string, []Correction) {
	tokens := strings.Fields(text)
	maxWords := n.prepared.MaxWords()

	match := func(window string) (string, float64, bool) {
		return n.matcher.Match(window, n.phrases)
	}
	if pm, ok := n.matcher.(*phonetic.Matcher); ok {
		match = func(window string) (string, float64, bool) {
			return pm.MatchPrepared(window, n.prepared)
		}
	}

	var (
		output      []string
		corrections []Correction
	)
	for i := 0; i < len(tokens); {
		matched := false
		for size := min(maxWords, len(tokens)-i); size >= 1; size-- {
			window := strings.Join(tokens[i:i+size], " ")
			phrase, conf, ok := match(window)
			if !ok {
				continue
			}
			output = append(output, phrase)
			if phrase != window {
				corrections = append(corrections, Correction{Original: window, Corrected: phrase, Confidence: conf})
			}
			i += size
			matched = true
			break
		}
		if !matched {
			output = append(output, tokens[i])
			i++
		}
	}
	return strings.Join(output, " "), corrections
}
