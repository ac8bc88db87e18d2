package main

import (
	"github.com/MrWong99/voxtrigger/internal/config"
	"github.com/MrWong99/voxtrigger/pkg/provider/asr"
	"github.com/MrWong99/voxtrigger/pkg/provider/asr/openai"
	"github.com/MrWong99/voxtrigger/pkg/provider/asr/wav2vec2"
	"github.com/MrWong99/voxtrigger/pkg/provider/asr/whisper"
)

// registerBuiltinProviders registers a factory for every compiled-in
// recognition variant. Factories only construct backends; models load on
// first use.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterASR(string(asr.VariantWhisper), func(cfg config.ASRConfig) (asr.Backend, error) {
		opts := []whisper.Option{
			whisper.WithModelsDir(cfg.ModelsDir),
			whisper.WithFFmpeg(cfg.FFmpeg),
			whisper.WithChunkLength(cfg.Whisper.ChunkSeconds),
			whisper.WithBackendOptions(devicePreference(cfg)...),
		}
		if cfg.Whisper.Threads > 0 {
			opts = append(opts, whisper.WithThreads(cfg.Whisper.Threads))
		}
		return whisper.New(cfg.Whisper.Model, opts...)
	})

	reg.RegisterASR(string(asr.VariantWav2Vec2), func(cfg config.ASRConfig) (asr.Backend, error) {
		opts := []wav2vec2.Option{
			wav2vec2.WithModelsDir(cfg.ModelsDir),
			wav2vec2.WithFFmpeg(cfg.FFmpeg),
			wav2vec2.WithBackendOptions(devicePreference(cfg)...),
		}
		if cfg.Wav2Vec2.SharedLibrary != "" {
			opts = append(opts, wav2vec2.WithSharedLibrary(cfg.Wav2Vec2.SharedLibrary))
		}
		return wav2vec2.New(cfg.Wav2Vec2.Model, opts...)
	})

	// The remote variant ignores the device preference; it always reports
	// the remote device.
	reg.RegisterASR(string(asr.VariantOpenAI), func(cfg config.ASRConfig) (asr.Backend, error) {
		var opts []openai.Option
		if cfg.OpenAI.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.OpenAI.BaseURL))
		}
		if cfg.OpenAI.Organization != "" {
			opts = append(opts, openai.WithOrganization(cfg.OpenAI.Organization))
		}
		if cfg.OpenAI.Timeout > 0 {
			opts = append(opts, openai.WithTimeout(cfg.OpenAI.Timeout))
		}
		return openai.New(cfg.OpenAI.APIKey, cfg.OpenAI.Model, opts...)
	})
}

// devicePreference maps asr.device onto backend options. The value was
// validated when the configuration loaded.
func devicePreference(cfg config.ASRConfig) []asr.Option {
	pref, err := asr.ParseDevicePreference(cfg.Device)
	if err != nil {
		return nil
	}
	return []asr.Option{asr.WithDevicePreference(pref)}
}
