package audio

import (
	"encoding/binary"
)

// PCM16ToFloat32 converts interleaved 16-bit signed little-endian PCM to mono
// float32 samples in [-1, 1], averaging all channels per frame. A trailing
// partial frame is ignored.
func PCM16ToFloat32(pcm []byte, channels int) []float32 {
	if channels < 1 {
		channels = 1
	}
	frames := len(pcm) / (2 * channels)
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			idx := (i*channels + ch) * 2
			sum += float32(int16(binary.LittleEndian.Uint16(pcm[idx:idx+2]))) / 32768.0
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// IntToFloat32 converts interleaved integer samples of the given bit depth
// (as produced by go-audio decoders) to mono float32 in [-1, 1].
func IntToFloat32(data []int, bitDepth, channels int) []float32 {
	if channels < 1 {
		channels = 1
	}
	scale := float32(int64(1) << (bitDepth - 1))
	frames := len(data) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			sum += float32(data[i*channels+ch]) / scale
		}
		out[i] = clamp(sum / float32(channels))
	}
	return out
}

// Float32ToInt16 converts samples in [-1, 1] to 16-bit integers, clamping
// out-of-range values.
func Float32ToInt16(samples []float32) []int {
	out := make([]int, len(samples))
	for i, s := range samples {
		out[i] = int(clamp(s) * 32767)
	}
	return out
}

func clamp(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
