package wav2vec2_test

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/voxtrigger/pkg/provider/asr"
	"github.com/MrWong99/voxtrigger/pkg/provider/asr/wav2vec2"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestLoadVocab(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.json")
	writeFile(t, path, `{"<pad>": 0, "<s>": 1, "|": 2, "a": 3}`)

	v, err := wav2vec2.LoadVocab(path)
	if err != nil {
		t.Fatalf("LoadVocab: %v", err)
	}
	if v.Size() != 4 {
		t.Errorf("Size = %d, want 4", v.Size())
	}
}

func TestNewVocab_Errors(t *testing.T) {
	tests := []struct {
		name string
		m    map[string]int
	}{
		{"empty", map[string]int{}},
		{"no blank", map[string]int{"a": 0, "b": 1}},
		{"sparse ids", map[string]int{"<pad>": 0, "a": 5}},
		{"duplicate ids", map[string]int{"<pad>": 0, "a": 0}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := wav2vec2.NewVocab(tc.m); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadVocab_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.json")
	writeFile(t, path, `["not", "an", "object"]`)
	if _, err := wav2vec2.LoadVocab(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestModelFiles(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "org", "model")
	writeFile(t, filepath.Join(base, "vocab.json"), `{}`)
	writeFile(t, filepath.Join(base, "model.onnx"), "graph")

	graph, vocab, err := wav2vec2.ModelFiles(dir, "org/model", asr.PrecisionFP16)
	if err != nil {
		t.Fatalf("ModelFiles: %v", err)
	}
	if graph != filepath.Join(base, "model.onnx") {
		t.Errorf("fp16 without fp16 graph: got %q, want fp32 fallback", graph)
	}
	if vocab != filepath.Join(base, "vocab.json") {
		t.Errorf("vocab = %q", vocab)
	}

	writeFile(t, filepath.Join(base, "model.fp16.onnx"), "graph")
	graph, _, _ = wav2vec2.ModelFiles(dir, "org/model", asr.PrecisionFP16)
	if graph != filepath.Join(base, "model.fp16.onnx") {
		t.Errorf("fp16 graph = %q", graph)
	}
	graph, _, _ = wav2vec2.ModelFiles(dir, "org/model", asr.PrecisionFP32)
	if graph != filepath.Join(base, "model.onnx") {
		t.Errorf("fp32 graph = %q", graph)
	}

	// A directory path is used directly.
	graph, _, err = wav2vec2.ModelFiles("/elsewhere", base, asr.PrecisionFP32)
	if err != nil || graph != filepath.Join(base, "model.onnx") {
		t.Errorf("direct dir: graph=%q err=%v", graph, err)
	}

	if _, _, err := wav2vec2.ModelFiles(dir, "missing/model", asr.PrecisionFP32); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("missing model: err = %v, want fs.ErrNotExist", err)
	}
}

func TestLoad_MissingModelIsLoadError(t *testing.T) {
	b, err := wav2vec2.New("", wav2vec2.WithModelsDir(t.TempDir()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if b.Model() != wav2vec2.DefaultModel {
		t.Errorf("Model() = %q, want default", b.Model())
	}
	res := asr.Run(context.Background(), b, asr.Request{Path: "clip.wav"})
	if res.OK() || !errors.Is(res.Err, asr.ErrLoad) {
		t.Fatalf("Run = %+v, want ErrLoad failure", res)
	}
	if b.Loaded() {
		t.Error("Loaded() = true after failed load")
	}
}

func TestONNX_Deterministic(t *testing.T) {
	dir := os.Getenv("VOXTRIGGER_WAV2VEC2_MODEL_PATH")
	clip := os.Getenv("VOXTRIGGER_TEST_AUDIO")
	if dir == "" || clip == "" {
		t.Skip("VOXTRIGGER_WAV2VEC2_MODEL_PATH or VOXTRIGGER_TEST_AUDIO not set; skipping onnxruntime test")
	}
	b, err := wav2vec2.New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h, err := b.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	req := asr.Request{Path: clip}
	first := b.Transcribe(context.Background(), h, req)
	if !first.OK() {
		t.Fatalf("Transcribe: %s", first.Cause())
	}
	for range 3 {
		if got := b.Transcribe(context.Background(), h, req); got.Text != first.Text {
			t.Fatalf("non-deterministic output: %q vs %q", got.Text, first.Text)
		}
	}
}
