package wav2vec2

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Tokens with special meaning in wav2vec2 CTC vocabularies.
const (
	blankToken     = "<pad>"
	delimiterToken = "|"
)

// Vocab maps CTC class indexes to output tokens.
type Vocab struct {
	tokens  []string
	blank   int
	special map[int]bool
}

// LoadVocab reads a Hugging Face vocab.json (token to id object).
func LoadVocab(path string) (*Vocab, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("wav2vec2: read vocab: %w", err)
	}
	var m map[string]int
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("wav2vec2: parse vocab %q: %w", path, err)
	}
	return NewVocab(m)
}

// NewVocab builds a vocabulary from a token to id mapping. Ids must be dense
// starting at zero and the blank token must be present.
func NewVocab(m map[string]int) (*Vocab, error) {
	if len(m) == 0 {
		return nil, fmt.Errorf("wav2vec2: vocabulary is empty")
	}
	v := &Vocab{
		tokens:  make([]string, len(m)),
		blank:   -1,
		special: make(map[int]bool),
	}
	seen := make([]bool, len(m))
	for tok, id := range m {
		if id < 0 || id >= len(m) {
			return nil, fmt.Errorf("wav2vec2: token %q has id %d outside [0, %d)", tok, id, len(m))
		}
		if seen[id] {
			return nil, fmt.Errorf("wav2vec2: id %d assigned twice", id)
		}
		seen[id] = true
		v.tokens[id] = tok
		switch {
		case tok == blankToken:
			v.blank = id
		case strings.HasPrefix(tok, "<") && strings.HasSuffix(tok, ">") && len(tok) > 2:
			// <s>, </s>, <unk> and friends never appear in text.
			v.special[id] = true
		}
	}
	if v.blank < 0 {
		return nil, fmt.Errorf("wav2vec2: vocabulary has no %s token", blankToken)
	}
	return v, nil
}

// Size returns the number of classes.
func (v *Vocab) Size() int { return len(v.tokens) }
