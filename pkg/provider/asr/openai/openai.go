// Package openai provides a remote recognition variant backed by the OpenAI
// audio transcription API or any server implementing the same endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/voxtrigger/pkg/provider/asr"
)

// DefaultModel is the default OpenAI transcription model.
const DefaultModel = string(oai.AudioModelWhisper1)

// EnvAPIKey holds the API key when none is configured explicitly.
const EnvAPIKey = "OPENAI_API_KEY"

// Ensure engine implements the asr.Engine interface.
var _ asr.Engine = (*engine)(nil)

// config holds optional configuration for the backend.
type config struct {
	baseURL      string
	organization string
	timeout      time.Duration
	backendOpts  []asr.Option
}

// Option is a functional option for the backend.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) {
		c.organization = org
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithBackendOptions forwards options to the underlying [asr.Cached].
func WithBackendOptions(opts ...asr.Option) Option {
	return func(c *config) {
		c.backendOpts = append(c.backendOpts, opts...)
	}
}

// remoteDevice reports that inference happens off-host.
func remoteDevice(asr.DevicePreference) (asr.Device, asr.Precision) {
	return asr.DeviceRemote, ""
}

// New constructs the remote backend. If model is empty, DefaultModel
// (whisper-1) is used. If apiKey is empty, OPENAI_API_KEY is read; a missing
// key is reported at load time so that the backend can be constructed for
// configuration checks.
func New(apiKey, model string, opts ...Option) (*asr.Cached, error) {
	if model == "" {
		model = DefaultModel
	}
	if apiKey == "" {
		apiKey = os.Getenv(EnvAPIKey)
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	load := func(_ context.Context, spec asr.LoadSpec) (asr.Engine, error) {
		if apiKey == "" {
			return nil, errors.New("openai: api key must not be empty")
		}
		reqOpts := []option.RequestOption{
			option.WithAPIKey(apiKey),
		}
		if cfg.baseURL != "" {
			reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
		}
		if cfg.organization != "" {
			reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
		}
		if cfg.timeout > 0 {
			reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
				Timeout: cfg.timeout,
			}))
		}
		return &engine{client: oai.NewClient(reqOpts...), model: spec.Model}, nil
	}

	backendOpts := append([]asr.Option{asr.WithDeviceResolver(remoteDevice)}, cfg.backendOpts...)
	return asr.New(asr.VariantOpenAI, model, load, backendOpts...)
}

// engine is the "loaded" remote model: an API client.
type engine struct {
	client oai.Client
	model  string
}

// Transcribe implements asr.Engine. Temperature is pinned to zero. The
// endpoint has no output length parameter, so MaxTokens does not apply.
func (e *engine) Transcribe(ctx context.Context, path string, cfg asr.DecodeConfig) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("openai: open audio: %w", err)
	}
	defer f.Close()

	resp, err := e.client.Audio.Transcriptions.New(ctx, oai.AudioTranscriptionNewParams{
		File:        f,
		Model:       oai.AudioModel(e.model),
		Language:    oai.String(cfg.Language),
		Temperature: oai.Float(0),
	})
	if err != nil {
		return "", fmt.Errorf("openai: transcribe: %w", err)
	}
	return resp.Text, nil
}

// Close is a no-op; the client holds no resources that need releasing.
func (e *engine) Close() error { return nil }
