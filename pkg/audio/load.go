package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"

	"github.com/go-audio/wav"
)

// wavPCM is the WAVE_FORMAT_PCM format tag.
const wavPCM = 1

// Option is a functional option for [Load].
type Option func(*loader)

type loader struct {
	ffmpeg string
}

// WithFFmpeg sets the ffmpeg executable used for non-WAV input. Defaults to
// "ffmpeg" resolved through PATH.
func WithFFmpeg(path string) Option {
	return func(l *loader) { l.ffmpeg = path }
}

// Load decodes the audio file at path to a mono clip at rate Hz.
//
// 16/24/32-bit PCM WAV files are decoded natively. Anything else is decoded
// by ffmpeg. Missing files and undecodable data wrap [ErrUnreadable]; clips
// without samples wrap [ErrEmptyAudio].
func Load(ctx context.Context, path string, rate int, opts ...Option) (Clip, error) {
	l := loader{ffmpeg: "ffmpeg"}
	for _, o := range opts {
		o(&l)
	}
	if rate <= 0 {
		return Clip{}, fmt.Errorf("audio: invalid target rate %d", rate)
	}
	if _, err := os.Stat(path); err != nil {
		return Clip{}, fmt.Errorf("audio: open %q: %w: %w", path, ErrUnreadable, err)
	}

	clip, err := loadWAV(path, rate)
	if errors.Is(err, errNotNativeWAV) {
		slog.Debug("audio: decoding with ffmpeg", "path", path, "reason", err)
		clip, err = loadFFmpeg(ctx, l.ffmpeg, path, rate)
	}
	if err != nil {
		return Clip{}, err
	}
	if len(clip.Samples) == 0 {
		return Clip{}, fmt.Errorf("audio: %q: %w", path, ErrEmptyAudio)
	}
	return clip, nil
}

var errNotNativeWAV = errors.New("not a PCM WAV file the native decoder supports")

func loadWAV(path string, rate int) (Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return Clip{}, fmt.Errorf("audio: open %q: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return Clip{}, errNotNativeWAV
	}
	if dec.WavAudioFormat != wavPCM {
		return Clip{}, fmt.Errorf("%w: format tag %d", errNotNativeWAV, dec.WavAudioFormat)
	}
	switch dec.BitDepth {
	case 16, 24, 32:
	default:
		return Clip{}, fmt.Errorf("%w: %d-bit samples", errNotNativeWAV, dec.BitDepth)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("audio: decode wav %q: %w: %w", path, ErrUnreadable, err)
	}
	channels := int(dec.NumChans)
	srcRate := int(dec.SampleRate)
	if buf.Format != nil {
		channels = buf.Format.NumChannels
		srcRate = buf.Format.SampleRate
	}

	samples := IntToFloat32(buf.Data, int(dec.BitDepth), channels)
	samples, err = Resample(samples, srcRate, rate)
	if err != nil {
		return Clip{}, err
	}
	return Clip{Samples: samples, SampleRate: rate}, nil
}

// loadFFmpeg pipes the file through ffmpeg as raw 16-bit mono PCM.
func loadFFmpeg(ctx context.Context, bin, path string, rate int) (Clip, error) {
	cmd := exec.CommandContext(ctx, bin,
		"-nostdin", "-v", "error",
		"-i", path,
		"-ac", "1", "-ar", strconv.Itoa(rate),
		"-f", "s16le", "-acodec", "pcm_s16le",
		"-",
	)
	var stderr limitedBuffer
	cmd.Stderr = &stderr
	pcm, err := cmd.Output()
	if err != nil {
		// Only a non-zero exit with a live context means ffmpeg rejected
		// the input; a missing binary or cancellation is the caller's.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			err = fmt.Errorf("%w: %w", ErrUnreadable, err)
		}
		if msg := stderr.String(); msg != "" {
			return Clip{}, fmt.Errorf("audio: ffmpeg %q: %w: %s", path, err, msg)
		}
		return Clip{}, fmt.Errorf("audio: ffmpeg %q: %w", path, err)
	}
	return Clip{Samples: PCM16ToFloat32(pcm, 1), SampleRate: rate}, nil
}

// limitedBuffer keeps the first 1 KiB written to it.
type limitedBuffer struct {
	b []byte
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	if room := 1024 - len(l.b); room > 0 {
		l.b = append(l.b, p[:min(room, len(p))]...)
	}
	return len(p), nil
}

func (l *limitedBuffer) String() string { return string(l.b) }
