package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/voxtrigger/internal/config"
)

func TestKeyName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key  byte
		want string
	}{
		{' ', "SPACE"},
		{'\r', "ENTER"},
		{'\t', "TAB"},
		{'v', "v"},
		{0x01, "Ctrl-A"},
	}
	for _, tt := range tests {
		if got := keyName(tt.key); got != tt.want {
			t.Errorf("keyName(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestUsesLocalDecoder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  config.ASRConfig
		want bool
	}{
		{"whisper", config.ASRConfig{Backend: "whisper"}, true},
		{"openai only", config.ASRConfig{Backend: "openai"}, false},
		{"openai with local fallback", config.ASRConfig{Backend: "openai", Fallbacks: []string{"wav2vec2"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := usesLocalDecoder(tt.cfg); got != tt.want {
				t.Errorf("usesLocalDecoder = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRegisterBuiltinProviders(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	got := strings.Join(reg.ASRNames(), ",")
	if got != "openai,wav2vec2,whisper" {
		t.Fatalf("ASRNames = %q", got)
	}

	// Construction must not touch model files.
	cfg := config.Default().ASR
	cfg.ModelsDir = t.TempDir()
	b, err := reg.CreateASR("whisper", cfg)
	if err != nil {
		t.Fatalf("CreateASR(whisper): %v", err)
	}
	if b.Loaded() {
		t.Error("backend loaded at construction")
	}
}

// These tests change the working directory and cannot run in parallel.

func TestLoad_MissingDefaultFileMeansDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	env := &cliEnv{configPath: defaultConfigPath, level: new(slog.LevelVar)}
	if err := env.load(false); err != nil {
		t.Fatalf("load: %v", err)
	}
	if env.fromFile {
		t.Error("fromFile = true without a config file")
	}
	if env.cfg.ASR.Backend != config.Default().ASR.Backend {
		t.Errorf("backend = %q, want default", env.cfg.ASR.Backend)
	}
}

func TestLoad_MissingExplicitFileFails(t *testing.T) {
	t.Chdir(t.TempDir())

	env := &cliEnv{configPath: "absent.yaml", level: new(slog.LevelVar)}
	err := env.load(true)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("load error = %v, want not found", err)
	}
}

func TestLoad_FileAndFlags(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv(config.EnvBackend, "")
	t.Setenv(config.EnvLogLevel, "")
	if err := os.WriteFile(filepath.Join(dir, defaultConfigPath), []byte("log:\n  level: warn\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	env := &cliEnv{configPath: defaultConfigPath, level: new(slog.LevelVar), backend: "wav2vec2"}
	if err := env.load(false); err != nil {
		t.Fatalf("load: %v", err)
	}
	if !env.fromFile {
		t.Error("fromFile = false")
	}
	if env.cfg.ASR.Backend != "wav2vec2" {
		t.Errorf("backend = %q, want flag override", env.cfg.ASR.Backend)
	}
	if env.level.Level() != slog.LevelWarn {
		t.Errorf("level = %v, want WARN", env.level.Level())
	}
}

func TestLoad_InvalidFlagRejected(t *testing.T) {
	t.Chdir(t.TempDir())

	env := &cliEnv{configPath: defaultConfigPath, level: new(slog.LevelVar), backend: "kaldi"}
	if err := env.load(false); err == nil {
		t.Fatal("expected validation error for unknown backend")
	}
}

func TestTranscribeCmd_RequiresOneArg(t *testing.T) {
	t.Chdir(t.TempDir())

	env := &cliEnv{level: new(slog.LevelVar)}
	root := newRootCmd(env)
	var stderr bytes.Buffer
	root.SetErr(&stderr)
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"transcribe"})
	if err := root.Execute(); err == nil {
		t.Fatal("expected an argument error")
	}
}
