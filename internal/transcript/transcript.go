// Package transcript cleans recognizer output before it is printed.
//
// Recognizers emit bracketed non-speech markers for silence and noise, stray
// whitespace, and the occasional misheard command word. A [Normalizer]
// removes the markers, collapses whitespace, rejects results too short to be
// speech and optionally snaps word windows onto a fixed command vocabulary
// through a [PhraseMatcher].
//
// Implementations of PhraseMatcher must be safe for concurrent use.
package transcript

import "errors"

// ErrNoSpeech is returned when nothing speech-like remains after cleaning.
var ErrNoSpeech = errors.New("transcript: no speech")

// Correction records one vocabulary substitution.
type Correction struct {
	// Original is the word window as recognized.
	Original string `json:"original"`

	// Corrected is the vocabulary phrase that replaced it.
	Corrected string `json:"corrected"`

	// Confidence is the similarity score in [0, 1].
	Confidence float64 `json:"confidence"`
}

// Normalized is the output of [Normalizer.Normalize].
type Normalized struct {
	// Raw is the recognizer text as received.
	Raw string

	// Text is the cleaned text.
	Text string

	// Corrections lists vocabulary substitutions in order of appearance.
	Corrections []Correction
}

// PhraseMatcher maps a word window onto the closest vocabulary phrase.
//
// When matched is false, corrected must equal window and confidence must be 0.
type PhraseMatcher interface {
	Match(window string, phrases []string) (corrected string, confidence float64, matched bool)
}
