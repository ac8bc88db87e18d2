// Package audio turns recorded audio files into the mono float32 sample
// buffers the recognition engines consume.
//
// [Load] is the single entry point: WAV files are decoded in-process with
// go-audio/wav and resampled with a pure Go polyphase resampler; every other
// container (or a WAV the decoder rejects) is handed to ffmpeg.
package audio

import (
	"errors"
	"time"
)

// SpeechRate is the sample rate every recognition engine in this module
// expects.
const SpeechRate = 16000

// ErrEmptyAudio is returned when a file decodes to zero samples.
var ErrEmptyAudio = errors.New("audio: no samples decoded")

// ErrUnreadable is wrapped when the input file is missing or its contents
// cannot be decoded. A missing ffmpeg binary is not reported with it.
var ErrUnreadable = errors.New("audio: unreadable input")

// IsInputError reports whether err describes a problem with the clip itself
// rather than with the decoder that processed it.
func IsInputError(err error) bool {
	return errors.Is(err, ErrEmptyAudio) || errors.Is(err, ErrUnreadable)
}

// Clip is a decoded mono clip with samples normalised to [-1, 1].
type Clip struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the playback length of the clip.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// Chunks splits the clip into consecutive pieces of at most d. A clip no
// longer than d (or d <= 0) is returned as a single chunk. The pieces share
// the clip's backing array.
func (c Clip) Chunks(d time.Duration) []Clip {
	size := int(int64(c.SampleRate) * int64(d) / int64(time.Second))
	if d <= 0 || size <= 0 || len(c.Samples) <= size {
		return []Clip{c}
	}
	out := make([]Clip, 0, (len(c.Samples)+size-1)/size)
	for start := 0; start < len(c.Samples); start += size {
		end := min(start+size, len(c.Samples))
		out = append(out, Clip{Samples: c.Samples[start:end], SampleRate: c.SampleRate})
	}
	return out
}
