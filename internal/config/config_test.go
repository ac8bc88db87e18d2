package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/voxtrigger/internal/config"
	"github.com/MrWong99/voxtrigger/pkg/provider/asr"
	"github.com/MrWong99/voxtrigger/pkg/provider/asr/mock"
)

const validYAML = `
log:
  level: debug
asr:
  backend: wav2vec2
  fallbacks: [whisper]
  device: cpu
  language: vi
  whisper:
    model: vinai/PhoWhisper-medium
    threads: 4
    chunk: 20s
  breaker:
    max_failures: 2
    reset_timeout: 1m
gesture:
  camera: 1
  fingers: 3
  frame_interval: 40ms
keys:
  key: "k"
  timeout: 150ms
recorder:
  command: "sox -d -r {rate} {output}"
listen:
  trigger: gesture
  gesture_record: 3s
transcript:
  vocabulary: ["bật đèn", "tắt đèn"]
server:
  listen_addr: "127.0.0.1:9000"
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Log.Level != config.LogDebug {
		t.Errorf("log.level: got %q, want %q", cfg.Log.Level, config.LogDebug)
	}
	if cfg.ASR.Backend != "wav2vec2" {
		t.Errorf("asr.backend: got %q, want wav2vec2", cfg.ASR.Backend)
	}
	if got := cfg.ASR.Chain(); strings.Join(got, ",") != "wav2vec2,whisper" {
		t.Errorf("Chain() = %v, want [wav2vec2 whisper]", got)
	}
	if cfg.ASR.Whisper.ChunkSeconds != 20*time.Second {
		t.Errorf("asr.whisper.chunk: got %v, want 20s", cfg.ASR.Whisper.ChunkSeconds)
	}
	if cfg.ASR.Breaker.ResetTimeout != time.Minute {
		t.Errorf("asr.breaker.reset_timeout: got %v, want 1m", cfg.ASR.Breaker.ResetTimeout)
	}
	if cfg.Gesture.Fingers != 3 || cfg.Gesture.FrameInterval != 40*time.Millisecond {
		t.Errorf("gesture: got %+v", cfg.Gesture)
	}
	if cfg.Listen.Trigger != config.TriggerGesture {
		t.Errorf("listen.trigger: got %q, want gesture", cfg.Listen.Trigger)
	}
	if len(cfg.Transcript.Vocabulary) != 2 {
		t.Errorf("transcript.vocabulary: got %d phrases, want 2", len(cfg.Transcript.Vocabulary))
	}

	// Unset fields keep their defaults.
	def := config.Default()
	if cfg.ASR.ModelsDir != def.ASR.ModelsDir {
		t.Errorf("asr.models_dir: got %q, want default %q", cfg.ASR.ModelsDir, def.ASR.ModelsDir)
	}
	if cfg.Gesture.Settle != def.Gesture.Settle {
		t.Errorf("gesture.settle: got %v, want default %v", cfg.Gesture.Settle, def.Gesture.Settle)
	}
	if cfg.Recorder.SampleRate != 16000 {
		t.Errorf("recorder.sample_rate: got %d, want 16000", cfg.Recorder.SampleRate)
	}
}

func TestLoadFromReader_EmptyIsDefault(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error for empty config: %v", err)
	}
	if cfg.ASR.Backend != "whisper" || cfg.Listen.Trigger != config.TriggerKeys {
		t.Errorf("empty config did not yield defaults: backend=%q trigger=%q", cfg.ASR.Backend, cfg.Listen.Trigger)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("asr:\n  engine: whisper\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestDefault_IsValid(t *testing.T) {
	t.Parallel()
	if err := config.Validate(config.Default()); err != nil {
		t.Fatalf("Default() is invalid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"invalid log level", func(c *config.Config) { c.Log.Level = "verbose" }, "log.level"},
		{"missing backend", func(c *config.Config) { c.ASR.Backend = "" }, "asr.backend is required"},
		{"unknown backend", func(c *config.Config) { c.ASR.Backend = "kaldi" }, `asr.backend "kaldi" is invalid`},
		{"unknown fallback", func(c *config.Config) { c.ASR.Fallbacks = []string{"kaldi"} }, "asr.fallbacks[0]"},
		{"fallback repeats backend", func(c *config.Config) { c.ASR.Fallbacks = []string{"whisper"} }, "duplicate of asr.backend"},
		{"duplicate fallbacks", func(c *config.Config) { c.ASR.Fallbacks = []string{"openai", "openai"} }, "duplicate of asr.fallbacks[0]"},
		{"bad device", func(c *config.Config) { c.ASR.Device = "tpu" }, "asr.device"},
		{"negative max tokens", func(c *config.Config) { c.ASR.MaxTokens = -1 }, "asr.max_tokens"},
		{"fingers out of range", func(c *config.Config) { c.Gesture.Fingers = 6 }, "gesture.fingers"},
		{"zero confirm frames", func(c *config.Config) { c.Gesture.ConfirmFrames = 0 }, "gesture.confirm_frames"},
		{"zero frame interval", func(c *config.Config) { c.Gesture.FrameInterval = 0 }, "gesture.frame_interval"},
		{"confidence above one", func(c *config.Config) { c.Gesture.MinConfidence = 1.5 }, "gesture.min_confidence"},
		{"multi byte key", func(c *config.Config) { c.Keys.Key = "ab" }, "keys.key"},
		{"ctrl-c key", func(c *config.Config) { c.Keys.Key = "\x03" }, "Ctrl-C"},
		{"zero key timeout", func(c *config.Config) { c.Keys.Timeout = 0 }, "keys.timeout"},
		{"recorder without placeholder", func(c *config.Config) { c.Recorder.Command = "arecord out.wav" }, "{output}"},
		{"empty recorder", func(c *config.Config) { c.Recorder.Command = " " }, "recorder.command is required"},
		{"invalid trigger", func(c *config.Config) { c.Listen.Trigger = "voice" }, "listen.trigger"},
		{"gesture record too long", func(c *config.Config) { c.Listen.GestureRecord = time.Minute }, "exceeds listen.max_record"},
		{"blank vocabulary phrase", func(c *config.Config) { c.Transcript.Vocabulary = []string{"bật đèn", ""} }, "transcript.vocabulary[1]"},
		{"zero upload limit", func(c *config.Config) { c.Server.MaxUploadBytes = 0 }, "server.max_upload_bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Default()
			tt.mutate(cfg)
			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error should mention %q, got: %v", tt.want, err)
			}
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Log.Level = "loud"
	cfg.Gesture.Fingers = -1
	cfg.Server.ListenAddr = ""

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	for _, want := range []string{"log.level", "gesture.fingers", "server.listen_addr"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error should mention %q, got: %v", want, err)
		}
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()
	env := map[string]string{
		config.EnvBackend:      "openai",
		config.EnvDevice:       "CPU",
		config.EnvWhisperModel: "local/whisper",
		config.EnvOpenAIKey:    "sk-env",
		config.EnvOnnxRuntime:  "/opt/ort/libonnxruntime.so",
		config.EnvLogLevel:     "WARN",
		config.EnvModelsDir:    "  ",
	}
	cfg := config.Default()
	config.ApplyEnv(cfg, func(k string) string { return env[k] })

	if cfg.ASR.Backend != "openai" {
		t.Errorf("backend: got %q, want openai", cfg.ASR.Backend)
	}
	if cfg.ASR.Device != "CPU" {
		t.Errorf("device: got %q, want CPU", cfg.ASR.Device)
	}
	if cfg.ASR.Whisper.Model != "local/whisper" {
		t.Errorf("whisper model: got %q", cfg.ASR.Whisper.Model)
	}
	if cfg.ASR.OpenAI.APIKey != "sk-env" {
		t.Errorf("openai key: got %q", cfg.ASR.OpenAI.APIKey)
	}
	if cfg.ASR.Wav2Vec2.SharedLibrary != "/opt/ort/libonnxruntime.so" {
		t.Errorf("shared library: got %q", cfg.ASR.Wav2Vec2.SharedLibrary)
	}
	if cfg.Log.Level != config.LogWarn {
		t.Errorf("log level: got %q, want warn", cfg.Log.Level)
	}
	if cfg.ASR.ModelsDir != "models" {
		t.Errorf("blank override replaced models_dir: got %q", cfg.ASR.ModelsDir)
	}
	if err := config.Validate(cfg); err != nil {
		t.Errorf("config invalid after overrides: %v", err)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voxtrigger.yaml")
	if err := os.WriteFile(path, []byte("asr:\n  backend: whisper\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(config.EnvBackend, "wav2vec2")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ASR.Backend != "wav2vec2" {
		t.Errorf("environment should override file: got %q", cfg.ASR.Backend)
	}
}

func TestLoad_NoPath(t *testing.T) {
	t.Setenv(config.EnvBackend, "")
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	if cfg.ASR.Backend != "whisper" {
		t.Errorf("backend: got %q, want default whisper", cfg.ASR.Backend)
	}
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv(config.EnvBackend, "kaldi")
	if _, err := config.Load(""); err == nil {
		t.Fatal("expected error for invalid backend from environment")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestRegistry_Unknown(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	_, err := reg.CreateASR("whisper", config.Default().ASR)
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("expected ErrProviderNotRegistered, got %v", err)
	}
}

func TestRegistry_Registered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	var got config.ASRConfig
	reg.RegisterASR("wav2vec2", func(c config.ASRConfig) (asr.Backend, error) {
		got = c
		return &mock.Backend{Name: asr.VariantWav2Vec2}, nil
	})
	reg.RegisterASR("whisper", func(config.ASRConfig) (asr.Backend, error) {
		return &mock.Backend{Name: asr.VariantWhisper}, nil
	})

	cfg := config.Default().ASR
	cfg.Language = "en"
	b, err := reg.CreateASR("wav2vec2", cfg)
	if err != nil {
		t.Fatalf("CreateASR: %v", err)
	}
	if b.Variant() != asr.VariantWav2Vec2 {
		t.Errorf("variant: got %q, want wav2vec2", b.Variant())
	}
	if got.Language != "en" {
		t.Errorf("factory received language %q, want en", got.Language)
	}
	if names := reg.ASRNames(); strings.Join(names, ",") != "wav2vec2,whisper" {
		t.Errorf("ASRNames() = %v", names)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	boom := errors.New("no model files")
	reg.RegisterASR("whisper", func(config.ASRConfig) (asr.Backend, error) { return nil, boom })

	_, err := reg.CreateASR("whisper", config.Default().ASR)
	if !errors.Is(err, boom) {
		t.Fatalf("expected factory error, got %v", err)
	}
}

func TestExampleConfigMatchesDefaults(t *testing.T) {
	t.Parallel()

	f, err := os.Open(filepath.Join("..", "..", "configs", "example.yaml"))
	if err != nil {
		t.Fatalf("open example: %v", err)
	}
	defer f.Close()

	cfg, err := config.LoadFromReader(f)
	if err != nil {
		t.Fatalf("LoadFromReader(example.yaml): %v", err)
	}
	d := config.Diff(config.Default(), cfg)
	if d.LogLevelChanged || d.TranscriptChanged || len(d.RestartRequired) > 0 {
		t.Errorf("example.yaml differs from Default(): %+v", d)
	}
}
