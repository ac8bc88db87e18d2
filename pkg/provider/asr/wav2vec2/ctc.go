package wav2vec2

import (
	"fmt"
	"math"
	"strings"
)

// DecodeGreedy turns CTC logits of shape [frames, classes] into text with a
// per-frame best path: take the argmax class of every frame, collapse runs
// of the same class, drop the blank and special tokens, map the word
// delimiter to a space. Output is bounded by the frame count, so there is
// no token cap. Ties resolve to the lowest class index so output is
// deterministic.
func DecodeGreedy(logits []float32, frames, classes int, v *Vocab) (string, error) {
	if classes != v.Size() {
		return "", fmt.Errorf("wav2vec2: model has %d classes, vocabulary has %d", classes, v.Size())
	}
	if frames*classes != len(logits) {
		return "", fmt.Errorf("wav2vec2: logits length %d does not match %dx%d", len(logits), frames, classes)
	}

	var (
		b    strings.Builder
		prev = -1
	)
	for t := range frames {
		best := argmax(logits[t*classes : (t+1)*classes])
		if best == prev {
			continue
		}
		prev = best
		if best == v.blank || v.special[best] {
			continue
		}
		if tok := v.tokens[best]; tok == delimiterToken {
			b.WriteByte(' ')
		} else {
			b.WriteString(tok)
		}
	}
	return strings.Join(strings.Fields(b.String()), " "), nil
}

func argmax(row []float32) int {
	best, bestVal := 0, float32(math.Inf(-1))
	for i, x := range row {
		if x > bestVal {
			best, bestVal = i, x
		}
	}
	return best
}

// normalize scales samples to zero mean and unit variance, as the wav2vec2
// feature extractor does before inference.
func normalize(samples []float32) []float32 {
	if len(samples) == 0 {
		return samples
	}
	var mean float64
	for _, s := range samples {
		mean += float64(s)
	}
	mean /= float64(len(samples))

	var variance float64
	for _, s := range samples {
		d := float64(s) - mean
		variance += d * d
	}
	variance /= float64(len(samples))

	std := math.Sqrt(variance + 1e-7)
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32((float64(s) - mean) / std)
	}
	return out
}
