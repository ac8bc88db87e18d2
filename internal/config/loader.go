package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/voxtrigger/pkg/provider/asr"
)

// Environment variables that override file values. They are applied by
// [Load] after the file is decoded and before validation.
const (
	EnvBackend       = "VOXTRIGGER_BACKEND"
	EnvDevice        = "VOXTRIGGER_DEVICE"
	EnvModelsDir     = "VOXTRIGGER_MODELS_DIR"
	EnvWhisperModel  = "VOXTRIGGER_WHISPER_MODEL"
	EnvWav2Vec2Model = "VOXTRIGGER_WAV2VEC2_MODEL"
	EnvLogLevel      = "VOXTRIGGER_LOG_LEVEL"
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvOnnxRuntime   = "ONNXRUNTIME_LIB"
)

// ValidBackends lists the recognition variants a config may name.
var ValidBackends = []string{
	string(asr.VariantWhisper),
	string(asr.VariantWav2Vec2),
	string(asr.VariantOpenAI),
}

// Load reads the YAML configuration file at path on top of [Default],
// applies environment overrides and validates the result. An empty path
// skips the file.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		ApplyEnv(cfg, os.Getenv)
		if err := Validate(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := parse(f, os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. The environment is not consulted, which keeps tests
// hermetic.
func LoadFromReader(r io.Reader) (*Config, error) {
	return parse(r, nil)
}

func parse(r io.Reader, getenv func(string) string) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if getenv != nil {
		ApplyEnv(cfg, getenv)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with any non-empty environment variables read
// through getenv.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.ASR.Backend, EnvBackend)
	set(&cfg.ASR.Device, EnvDevice)
	set(&cfg.ASR.ModelsDir, EnvModelsDir)
	set(&cfg.ASR.Whisper.Model, EnvWhisperModel)
	set(&cfg.ASR.Wav2Vec2.Model, EnvWav2Vec2Model)
	set(&cfg.ASR.OpenAI.APIKey, EnvOpenAIKey)
	set(&cfg.ASR.Wav2Vec2.SharedLibrary, EnvOnnxRuntime)
	if v := strings.TrimSpace(getenv(EnvLogLevel)); v != "" {
		cfg.Log.Level = LogLevel(strings.ToLower(v))
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Log.Level != "" && !cfg.Log.Level.IsValid() {
		errs = append(errs, fmt.Errorf("log.level %q is invalid; valid values: debug, info, warn, error", cfg.Log.Level))
	}

	errs = append(errs, validateASR(&cfg.ASR)...)

	// Gesture
	g := cfg.Gesture
	if g.Camera < 0 {
		errs = append(errs, fmt.Errorf("gesture.camera %d must not be negative", g.Camera))
	}
	if g.Fingers < 0 || g.Fingers > 5 {
		errs = append(errs, fmt.Errorf("gesture.fingers %d is out of range [0, 5]", g.Fingers))
	}
	if g.ConfirmFrames < 1 {
		errs = append(errs, fmt.Errorf("gesture.confirm_frames %d must be at least 1", g.ConfirmFrames))
	}
	if g.FrameInterval <= 0 {
		errs = append(errs, fmt.Errorf("gesture.frame_interval %v must be positive", g.FrameInterval))
	}
	if g.Settle < 0 || g.ReadBackoff < 0 {
		errs = append(errs, errors.New("gesture.settle and gesture.read_backoff must not be negative"))
	}
	if g.MinConfidence < 0 || g.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("gesture.min_confidence %.2f is out of range [0, 1]", g.MinConfidence))
	}

	// Keys
	if len(cfg.Keys.Key) != 1 {
		errs = append(errs, fmt.Errorf("keys.key %q must be exactly one byte", cfg.Keys.Key))
	} else if cfg.Keys.Key[0] == 0x03 {
		errs = append(errs, errors.New("keys.key must not be Ctrl-C, which cancels the run"))
	}
	if cfg.Keys.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("keys.timeout %v must be positive", cfg.Keys.Timeout))
	}

	// Recorder
	if strings.TrimSpace(cfg.Recorder.Command) == "" {
		errs = append(errs, errors.New("recorder.command is required"))
	} else if !strings.Contains(cfg.Recorder.Command, "{output}") {
		errs = append(errs, fmt.Errorf("recorder.command %q must contain the {output} placeholder", cfg.Recorder.Command))
	}
	if cfg.Recorder.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("recorder.sample_rate %d must be positive", cfg.Recorder.SampleRate))
	}

	// Listen
	l := cfg.Listen
	if !l.Trigger.IsValid() {
		errs = append(errs, fmt.Errorf("listen.trigger %q is invalid; valid values: gesture, keys", l.Trigger))
	}
	if l.GestureRecord <= 0 {
		errs = append(errs, fmt.Errorf("listen.gesture_record %v must be positive", l.GestureRecord))
	}
	if l.MaxRecord <= 0 {
		errs = append(errs, fmt.Errorf("listen.max_record %v must be positive", l.MaxRecord))
	} else if l.GestureRecord > l.MaxRecord {
		errs = append(errs, fmt.Errorf("listen.gesture_record %v exceeds listen.max_record %v", l.GestureRecord, l.MaxRecord))
	}

	if cfg.Transcript.MinRunes < 0 {
		errs = append(errs, fmt.Errorf("transcript.min_runes %d must not be negative", cfg.Transcript.MinRunes))
	}
	for i, p := range cfg.Transcript.Vocabulary {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, fmt.Errorf("transcript.vocabulary[%d] is empty", i))
		}
	}

	// Server
	s := cfg.Server
	if s.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if s.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes %d must be positive", s.MaxUploadBytes))
	}
	if s.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout %v must not be negative", s.ShutdownTimeout))
	}

	return errors.Join(errs...)
}

func validateASR(a *ASRConfig) []error {
	var errs []error

	if a.Backend == "" {
		errs = append(errs, errors.New("asr.backend is required"))
	} else if !slices.Contains(ValidBackends, a.Backend) {
		errs = append(errs, fmt.Errorf("asr.backend %q is invalid; valid values: %s", a.Backend, strings.Join(ValidBackends, ", ")))
	}

	seen := map[string]string{a.Backend: "asr.backend"}
	for i, name := range a.Fallbacks {
		prefix := fmt.Sprintf("asr.fallbacks[%d]", i)
		if !slices.Contains(ValidBackends, name) {
			errs = append(errs, fmt.Errorf("%s %q is invalid; valid values: %s", prefix, name, strings.Join(ValidBackends, ", ")))
			continue
		}
		if prev, ok := seen[name]; ok {
			errs = append(errs, fmt.Errorf("%s %q is a duplicate of %s", prefix, name, prev))
			continue
		}
		seen[name] = prefix
	}

	if _, err := asr.ParseDevicePreference(a.Device); err != nil {
		errs = append(errs, fmt.Errorf("asr.device: %w", err))
	}
	if a.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("asr.max_tokens %d must not be negative", a.MaxTokens))
	}
	if a.OpenAI.Timeout < 0 {
		errs = append(errs, fmt.Errorf("asr.openai.timeout %v must not be negative", a.OpenAI.Timeout))
	}
	if a.Breaker.MaxFailures < 0 || a.Breaker.ResetTimeout < 0 {
		errs = append(errs, errors.New("asr.breaker values must not be negative"))
	}

	// The key may still come from the environment at load time.
	if _, ok := seen[string(asr.VariantOpenAI)]; ok && a.OpenAI.APIKey == "" {
		slog.Warn("openai backend configured without asr.openai.api_key; relying on " + EnvOpenAIKey)
	}
	return errs
}

// Chain returns the backend followed by its fallbacks.
func (a ASRConfig) Chain() []string {
	return append([]string{a.Backend}, a.Fallbacks...)
}
