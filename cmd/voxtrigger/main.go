// Command voxtrigger captures spoken commands behind a physical trigger.
//
// Subcommands:
//
//	gesture     wait for the configured finger count on camera
//	keys        report hold-to-talk key presses
//	transcribe  transcribe one audio file
//	listen      trigger, record, transcribe; one line per utterance
//	serve       HTTP transcription service
//
// Results go to stdout, one line each. Diagnostics go to stderr.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/voxtrigger/internal/app"
	"github.com/MrWong99/voxtrigger/internal/config"
)

const defaultConfigPath = "voxtrigger.yaml"

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env := &cliEnv{level: new(slog.LevelVar)}
	slog.SetDefault(newLogger(env.level))

	root := newRootCmd(env)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "voxtrigger: %v\n", err)
		return 1
	}
	return 0
}

// cliEnv carries state shared by all subcommands.
type cliEnv struct {
	configPath string
	logLevel   string
	backend    string

	level *slog.LevelVar
	cfg   *config.Config

	// fromFile is set when cfg came from an existing file, which serve
	// then watches for changes.
	fromFile bool
}

func newRootCmd(env *cliEnv) *cobra.Command {
	root := &cobra.Command{
		Use:   "voxtrigger",
		Short: "Trigger-gated voice command capture",
		Long: `voxtrigger waits for a physical trigger (a hand gesture on camera or a
held key), records the utterance and prints its transcript.

Configuration is read from voxtrigger.yaml when present. Environment
variables such as VOXTRIGGER_BACKEND and VOXTRIGGER_DEVICE override it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return env.load(cmd.Flags().Changed("config"))
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&env.configPath, "config", "c", defaultConfigPath, "path to the YAML configuration file")
	pf.StringVar(&env.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	pf.StringVarP(&env.backend, "backend", "b", "", "override asr.backend (whisper, wav2vec2, openai)")

	root.AddCommand(
		newGestureCmd(env),
		newKeysCmd(env),
		newTranscribeCmd(env),
		newListenCmd(env),
		newServeCmd(env),
	)
	return root
}

// load reads the configuration. A missing default file means defaults; a
// missing file named with --config is an error.
func (e *cliEnv) load(explicit bool) error {
	path := e.configPath
	if !explicit {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config file %q not found", path)
		}
		return err
	}
	if e.applyFlags(cfg) {
		if err := config.Validate(cfg); err != nil {
			return err
		}
	}

	e.cfg = cfg
	e.fromFile = path != ""
	e.level.Set(app.ParseLevel(cfg.Log.Level))
	slog.Debug("configuration loaded", "config", path, "backend", cfg.ASR.Backend, "log_level", cfg.Log.Level)
	return nil
}

// applyFlags copies command line overrides into cfg and reports whether
// any were set.
func (e *cliEnv) applyFlags(cfg *config.Config) bool {
	if e.logLevel != "" {
		cfg.Log.Level = config.LogLevel(strings.ToLower(e.logLevel))
	}
	if e.backend != "" {
		cfg.ASR.Backend = e.backend
	}
	return e.logLevel != "" || e.backend != ""
}

// newApp builds the App with the built-in backends registered.
func (e *cliEnv) newApp(opts ...app.Option) (*app.App, error) {
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	opts = append([]app.Option{app.WithLogLevel(e.level)}, opts...)
	return app.New(e.cfg, reg, opts...)
}

// newLogger returns a text logger on stderr whose level follows v.
func newLogger(v *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: v}))
}
