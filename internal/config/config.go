// Package config provides the configuration schema, loader, hot-reload
// watcher and recognition backend registry for voxtrigger.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Trigger selects the detector that opens a recording window in listen mode.
type Trigger string

const (
	TriggerGesture Trigger = "gesture"
	TriggerKeys    Trigger = "keys"
)

// IsValid reports whether t is a recognised trigger.
func (t Trigger) IsValid() bool {
	return t == TriggerGesture || t == TriggerKeys
}

// Config is the root configuration. Build one with [Default] and override it
// with [Load] or [LoadFromReader].
type Config struct {
	Log        LogConfig        `yaml:"log"`
	ASR        ASRConfig        `yaml:"asr"`
	Gesture    GestureConfig    `yaml:"gesture"`
	Keys       KeysConfig       `yaml:"keys"`
	Recorder   RecorderConfig   `yaml:"recorder"`
	Listen     ListenConfig     `yaml:"listen"`
	Transcript TranscriptConfig `yaml:"transcript"`
	Server     ServerConfig     `yaml:"server"`
}

// LogConfig controls the stderr logger.
type LogConfig struct {
	Level LogLevel `yaml:"level"`
}

// ASRConfig selects and tunes the recognition backend.
type ASRConfig struct {
	// Backend is the registered variant name: whisper, wav2vec2 or openai.
	Backend string `yaml:"backend"`

	// Fallbacks are tried in order when Backend fails. Empty disables
	// failover.
	Fallbacks []string `yaml:"fallbacks"`

	// Device is the placement preference: auto, cpu or accelerator.
	Device string `yaml:"device"`

	// ModelsDir is where model identities are resolved to files.
	ModelsDir string `yaml:"models_dir"`

	// FFmpeg is the binary used to decode non-WAV input.
	FFmpeg string `yaml:"ffmpeg"`

	// Language is the spoken-language hint.
	Language string `yaml:"language"`

	// MaxTokens caps whisper's generated tokens per segment.
	MaxTokens int `yaml:"max_tokens"`

	Whisper  WhisperConfig  `yaml:"whisper"`
	Wav2Vec2 Wav2Vec2Config `yaml:"wav2vec2"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Breaker  BreakerConfig  `yaml:"breaker"`
}

// WhisperConfig tunes the whisper.cpp backend.
type WhisperConfig struct {
	Model        string        `yaml:"model"`
	Threads      uint          `yaml:"threads"`
	ChunkSeconds time.Duration `yaml:"chunk"`
}

// Wav2Vec2Config tunes the ONNX Runtime backend.
type Wav2Vec2Config struct {
	Model string `yaml:"model"`

	// SharedLibrary is the path of libonnxruntime.
	SharedLibrary string `yaml:"shared_library"`
}

// OpenAIConfig tunes the remote transcription backend.
type OpenAIConfig struct {
	Model        string        `yaml:"model"`
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	Organization string        `yaml:"organization"`
	Timeout      time.Duration `yaml:"timeout"`
}

// BreakerConfig tunes the per-backend circuit breaker used with fallbacks.
type BreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// GestureConfig tunes the camera trigger.
type GestureConfig struct {
	// Camera is the capture device index.
	Camera int `yaml:"camera"`

	// LandmarkModel is the hand landmark network file.
	LandmarkModel string `yaml:"landmark_model"`

	Fingers       int           `yaml:"fingers"`
	ConfirmFrames int           `yaml:"confirm_frames"`
	FrameInterval time.Duration `yaml:"frame_interval"`
	Settle        time.Duration `yaml:"settle"`
	ReadBackoff   time.Duration `yaml:"read_backoff"`
	MinConfidence float64       `yaml:"min_confidence"`
}

// KeysConfig tunes the key-hold trigger.
type KeysConfig struct {
	// Key is the single character that must be held.
	Key string `yaml:"key"`

	// Timeout is the poll interval and the silence that counts as release.
	Timeout time.Duration `yaml:"timeout"`
}

// RecorderConfig describes the external audio capture command.
type RecorderConfig struct {
	// Command is a shell-quoted template; {output} is replaced by the clip
	// path and {rate} by SampleRate.
	Command string `yaml:"command"`

	// Dir receives temporary clips. Empty uses the system temp directory.
	Dir string `yaml:"dir"`

	SampleRate int `yaml:"sample_rate"`

	// Keep leaves clips on disk after transcription.
	Keep bool `yaml:"keep"`
}

// ListenConfig controls the orchestrated listen loop.
type ListenConfig struct {
	Trigger Trigger `yaml:"trigger"`

	// GestureRecord is the recording length after a gesture fires.
	GestureRecord time.Duration `yaml:"gesture_record"`

	// MaxRecord bounds any single recording.
	MaxRecord time.Duration `yaml:"max_record"`

	// Once stops after the first utterance.
	Once bool `yaml:"once"`
}

// TranscriptConfig controls transcript clean-up.
type TranscriptConfig struct {
	// Vocabulary lists command phrases misheard words are snapped onto.
	Vocabulary []string `yaml:"vocabulary"`

	// Markers replaces the default non-speech markers when non-empty.
	Markers []string `yaml:"markers"`

	MinRunes int `yaml:"min_runes"`
}

// ServerConfig holds HTTP settings for serve mode.
type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Preload loads the model at startup instead of on the first request.
	Preload bool `yaml:"preload"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: LogInfo},
		ASR: ASRConfig{
			Backend:   "whisper",
			Device:    "auto",
			ModelsDir: "models",
			FFmpeg:    "ffmpeg",
			Language:  "vi",
			MaxTokens: 224,
			Whisper: WhisperConfig{
				Model:        "vinai/PhoWhisper-small",
				ChunkSeconds: 30 * time.Second,
			},
			Wav2Vec2: Wav2Vec2Config{Model: "nguyenvulebinh/wav2vec2-base-vietnamese-250h"},
			OpenAI:   OpenAIConfig{Model: "whisper-1", Timeout: 60 * time.Second},
			Breaker:  BreakerConfig{MaxFailures: 3, ResetTimeout: 30 * time.Second},
		},
		Gesture: GestureConfig{
			LandmarkModel: "models/hand_landmark.onnx",
			Fingers:       2,
			ConfirmFrames: 1,
			FrameInterval: 50 * time.Millisecond,
			Settle:        500 * time.Millisecond,
			ReadBackoff:   500 * time.Millisecond,
			MinConfidence: 0.5,
		},
		Keys: KeysConfig{Key: " ", Timeout: 100 * time.Millisecond},
		Recorder: RecorderConfig{
			Command:    "arecord -q -f S16_LE -c 1 -r {rate} {output}",
			SampleRate: 16000,
		},
		Listen: ListenConfig{
			Trigger:       TriggerKeys,
			GestureRecord: 4 * time.Second,
			MaxRecord:     30 * time.Second,
		},
		Transcript: TranscriptConfig{MinRunes: 3},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			MaxUploadBytes:  32 << 20,
			ShutdownTimeout: 10 * time.Second,
		},
	}
}
