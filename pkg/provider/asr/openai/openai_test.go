package openai_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/MrWong99/voxtrigger/pkg/provider/asr"
	"github.com/MrWong99/voxtrigger/pkg/provider/asr/openai"
)

type capture struct {
	mu       sync.Mutex
	path     string
	auth     string
	model    string
	language string
	temp     string
	file     []byte
}

func fakeServer(t *testing.T, status int, body any) (*httptest.Server, *capture) {
	t.Helper()
	c := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		c.mu.Lock()
		c.path = r.URL.Path
		c.auth = r.Header.Get("Authorization")
		c.model = r.FormValue("model")
		c.language = r.FormValue("language")
		c.temp = r.FormValue("temperature")
		if f, _, err := r.FormFile("file"); err == nil {
			buf := make([]byte, 64)
			n, _ := f.Read(buf)
			c.file = buf[:n]
			f.Close()
		}
		c.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func clipFile(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(p, []byte("RIFFfake"), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestTranscribe_Success(t *testing.T) {
	srv, got := fakeServer(t, http.StatusOK, map[string]string{"text": " tắt quạt "})

	b, err := openai.New("sk-test", "", openai.WithBaseURL(srv.URL+"/v1/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res := asr.Run(context.Background(), b, asr.Request{Path: clipFile(t)})
	if !res.OK() || res.Text != "tắt quạt" {
		t.Fatalf("Run = %+v, want text %q", res, "tắt quạt")
	}

	got.mu.Lock()
	defer got.mu.Unlock()
	if got.path != "/v1/audio/transcriptions" {
		t.Errorf("path = %q", got.path)
	}
	if got.auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", got.auth)
	}
	if got.model != openai.DefaultModel {
		t.Errorf("model = %q, want %q", got.model, openai.DefaultModel)
	}
	if got.language != asr.DefaultLanguage {
		t.Errorf("language = %q, want %q", got.language, asr.DefaultLanguage)
	}
	if got.temp != "0" {
		t.Errorf("temperature = %q, want 0", got.temp)
	}
	if string(got.file) != "RIFFfake" {
		t.Errorf("uploaded file = %q", got.file)
	}
}

func TestTranscribe_RemoteHandle(t *testing.T) {
	b, err := openai.New("sk-test", "gpt-4o-transcribe")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h, err := b.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if h.Device != asr.DeviceRemote {
		t.Errorf("Device = %q, want remote", h.Device)
	}
	if h.Model != "gpt-4o-transcribe" {
		t.Errorf("Model = %q", h.Model)
	}
}

func TestTranscribe_APIErrorIsFailure(t *testing.T) {
	srv, _ := fakeServer(t, http.StatusBadRequest, map[string]any{
		"error": map[string]string{"message": "unsupported file", "type": "invalid_request_error"},
	})
	b, err := openai.New("sk-test", "", openai.WithBaseURL(srv.URL+"/v1/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res := asr.Run(context.Background(), b, asr.Request{Path: clipFile(t)})
	if res.OK() || res.Err == nil {
		t.Fatalf("Run = %+v, want failure", res)
	}
}

func TestTranscribe_EmptyTextIsFailure(t *testing.T) {
	srv, _ := fakeServer(t, http.StatusOK, map[string]string{"text": ""})
	b, err := openai.New("sk-test", "", openai.WithBaseURL(srv.URL+"/v1/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res := asr.Run(context.Background(), b, asr.Request{Path: clipFile(t)})
	if !errors.Is(res.Err, asr.ErrEmptyTranscript) {
		t.Fatalf("Err = %v, want ErrEmptyTranscript", res.Err)
	}
}

func TestTranscribe_MissingFile(t *testing.T) {
	b, err := openai.New("sk-test", "", openai.WithBaseURL("http://127.0.0.1:1/v1/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res := asr.Run(context.Background(), b, asr.Request{Path: filepath.Join(t.TempDir(), "nope.wav")})
	if res.OK() {
		t.Fatalf("Run = %+v, want failure", res)
	}
}

func TestLoad_MissingAPIKey(t *testing.T) {
	t.Setenv(openai.EnvAPIKey, "")
	b, err := openai.New("", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := b.Load(context.Background()); !errors.Is(err, asr.ErrLoad) {
		t.Fatalf("Load error = %v, want ErrLoad", err)
	}
}
