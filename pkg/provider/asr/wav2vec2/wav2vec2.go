// Package wav2vec2 implements the fast recognition variant: a wav2vec2 CTC
// model exported to ONNX and executed with ONNX Runtime.
//
// A model directory holds the graph (model.onnx, optionally a half precision
// model.fp16.onnx for accelerators) and the CTC vocabulary (vocab.json).
// Audio is resampled to 16 kHz mono, normalised, run through one forward
// pass and decoded with a per-frame best path; there is no beam search.
//
// The ONNX Runtime shared library is located through [WithSharedLibrary] or
// the ONNXRUNTIME_LIB environment variable.
package wav2vec2

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/MrWong99/voxtrigger/pkg/audio"
	"github.com/MrWong99/voxtrigger/pkg/provider/asr"
)

const (
	// DefaultModel is the published model used when none is configured.
	DefaultModel = "nguyenvulebinh/wav2vec2-base-vietnamese-250h"

	// EnvModel overrides the model identity.
	EnvModel = "VOXTRIGGER_WAV2VEC2_MODEL"

	// EnvSharedLibrary points at libonnxruntime.
	EnvSharedLibrary = "ONNXRUNTIME_LIB"

	modelFile     = "model.onnx"
	modelFileFP16 = "model.fp16.onnx"
	vocabFile     = "vocab.json"

	defaultInputName  = "input_values"
	defaultOutputName = "logits"
)

// Compile-time assertion that engine satisfies asr.Engine.
var _ asr.Engine = (*engine)(nil)

// Option is a functional option for [New].
type Option func(*loader)

// WithModelsDir sets the directory model identities are resolved under.
// Defaults to "models".
func WithModelsDir(dir string) Option {
	return func(l *loader) { l.modelsDir = dir }
}

// WithSharedLibrary sets the path of the ONNX Runtime shared library.
func WithSharedLibrary(path string) Option {
	return func(l *loader) { l.sharedLib = path }
}

// WithFFmpeg sets the ffmpeg binary used for non-WAV input.
func WithFFmpeg(path string) Option {
	return func(l *loader) { l.ffmpeg = path }
}

// WithBackendOptions forwards options to the underlying [asr.Cached].
func WithBackendOptions(opts ...asr.Option) Option {
	return func(l *loader) { l.backendOpts = append(l.backendOpts, opts...) }
}

type loader struct {
	modelsDir   string
	sharedLib   string
	ffmpeg      string
	backendOpts []asr.Option
}

// New creates the wav2vec2 backend for model. Nothing is loaded until the
// first Load call.
func New(model string, opts ...Option) (*asr.Cached, error) {
	if model == "" {
		model = DefaultModel
	}
	l := &loader{
		modelsDir: "models",
		sharedLib: os.Getenv(EnvSharedLibrary),
		ffmpeg:    "ffmpeg",
	}
	for _, o := range opts {
		o(l)
	}
	return asr.New(asr.VariantWav2Vec2, model, l.load, l.backendOpts...)
}

// ModelFiles locates the graph and vocabulary for model. An identity naming
// an existing directory is used as-is; otherwise it is resolved under dir.
// On half precision the fp16 graph is preferred when present.
func ModelFiles(dir, model string, prec asr.Precision) (graph, vocab string, err error) {
	base := model
	if st, serr := os.Stat(base); serr != nil || !st.IsDir() {
		base = filepath.Join(dir, filepath.FromSlash(model))
	}

	vocab = filepath.Join(base, vocabFile)
	if _, err := os.Stat(vocab); err != nil {
		return "", "", fmt.Errorf("wav2vec2: vocabulary for %q: %w", model, err)
	}

	candidates := []string{modelFile}
	if prec == asr.PrecisionFP16 {
		candidates = []string{modelFileFP16, modelFile}
	}
	for _, name := range candidates {
		p := filepath.Join(base, name)
		if _, err := os.Stat(p); err == nil {
			return p, vocab, nil
		}
	}
	return "", "", fmt.Errorf("wav2vec2: no ONNX graph for %q in %s: %w", model, base, fs.ErrNotExist)
}

func (l *loader) load(_ context.Context, spec asr.LoadSpec) (asr.Engine, error) {
	graph, vocabPath, err := ModelFiles(l.modelsDir, spec.Model, spec.Precision)
	if err != nil {
		return nil, err
	}
	vocab, err := LoadVocab(vocabPath)
	if err != nil {
		return nil, err
	}
	if err := initRuntime(l.sharedLib); err != nil {
		return nil, err
	}

	inputName, outputName := defaultInputName, defaultOutputName
	if ins, outs, err := ort.GetInputOutputInfo(graph); err == nil && len(ins) > 0 && len(outs) > 0 {
		inputName, outputName = ins[0].Name, outs[0].Name
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("wav2vec2: session options: %w", err)
	}
	defer opts.Destroy()
	if spec.Device.Accelerated() {
		if err := appendAccelerator(opts, spec.Device); err != nil {
			slog.Warn("wav2vec2: accelerator unavailable, running on cpu", "device", spec.Device, "err", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(graph, []string{inputName}, []string{outputName}, opts)
	if err != nil {
		return nil, fmt.Errorf("wav2vec2: open session %q: %w", graph, err)
	}
	slog.Debug("wav2vec2: session ready", "graph", graph, "classes", vocab.Size(), "input", inputName, "output", outputName)
	return &engine{session: session, vocab: vocab, ffmpeg: l.ffmpeg}, nil
}

func appendAccelerator(opts *ort.SessionOptions, dev asr.Device) error {
	switch dev {
	case asr.DeviceCUDA:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return err
		}
		defer cuda.Destroy()
		return opts.AppendExecutionProviderCUDA(cuda)
	case asr.DeviceMetal:
		return opts.AppendExecutionProviderCoreML(0)
	default:
		return fmt.Errorf("unsupported device %s", dev)
	}
}

var (
	runtimeMu   sync.Mutex
	runtimeInit bool
)

// initRuntime initialises the process-wide ONNX Runtime environment once.
// A failed attempt may be retried.
func initRuntime(lib string) error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	if runtimeInit {
		return nil
	}
	if lib != "" {
		ort.SetSharedLibraryPath(lib)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("wav2vec2: initialise onnxruntime: %w", err)
	}
	runtimeInit = true
	return nil
}

// engine holds one ONNX Runtime session. Sessions may run concurrently.
type engine struct {
	session *ort.DynamicAdvancedSession
	vocab   *Vocab
	ffmpeg  string
}

// Transcribe implements asr.Engine. CTC emits at most one character per
// frame, so cfg.MaxTokens, sized for whisper's subword tokens, does not
// apply.
func (e *engine) Transcribe(ctx context.Context, path string, cfg asr.DecodeConfig) (string, error) {
	clip, err := audio.Load(ctx, path, audio.SpeechRate, audio.WithFFmpeg(e.ffmpeg))
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	input, err := ort.NewTensor(ort.NewShape(1, int64(len(clip.Samples))), normalize(clip.Samples))
	if err != nil {
		return "", fmt.Errorf("wav2vec2: input tensor: %w", err)
	}
	defer input.Destroy()

	outputs := []ort.Value{nil}
	if err := e.session.Run([]ort.Value{input}, outputs); err != nil {
		return "", fmt.Errorf("wav2vec2: forward pass: %w", err)
	}
	defer outputs[0].Destroy()

	logits, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return "", errors.New("wav2vec2: logits are not float32")
	}
	shape := logits.GetShape()
	if len(shape) != 3 || shape[0] != 1 {
		return "", fmt.Errorf("wav2vec2: unexpected logits shape %v", shape)
	}
	return DecodeGreedy(logits.GetData(), int(shape[1]), int(shape[2]), e.vocab)
}

// Close destroys the session.
func (e *engine) Close() error {
	return e.session.Destroy()
}
