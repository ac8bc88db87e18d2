package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MrWong99/voxtrigger/internal/app"
	"github.com/MrWong99/voxtrigger/internal/config"
	"github.com/MrWong99/voxtrigger/internal/health"
	"github.com/MrWong99/voxtrigger/pkg/provider/asr"
)

func newServeCmd(env *cliEnv) *cobra.Command {
	var (
		addr    string
		preload bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP transcription service",
		Long: `Serve POST /v1/transcribe (multipart field "file"), /healthz, /readyz
and /metrics.

When the configuration came from a file it is watched: log level and
transcript settings apply immediately, other changes need a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := env.cfg
			if addr != "" {
				cfg.Server.ListenAddr = addr
			}
			if cmd.Flags().Changed("preload") {
				cfg.Server.Preload = preload
			}

			tel, err := initTelemetry(ctx)
			if err != nil {
				return err
			}
			defer tel.close(context.WithoutCancel(ctx))

			a, err := env.newApp(app.WithInstruments(tel.metrics))
			if err != nil {
				return err
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
				defer cancel()
				if serr := a.Shutdown(sctx); serr != nil {
					slog.Warn("serve: shutdown", "err", serr)
				}
			}()

			if env.fromFile {
				w, err := config.NewWatcher(env.configPath, func(old, new *config.Config) {
					env.applyFlags(old)
					env.applyFlags(new)
					a.Reload(old, new)
				})
				if err != nil {
					return err
				}
				a.OnShutdown(func() error {
					w.Stop()
					return nil
				})
			}

			var checks []health.Checker
			if usesLocalDecoder(cfg.ASR) {
				checks = append(checks, health.Executable(cfg.ASR.FFmpeg))
			}
			srv := app.NewServer(a.Transcriber(), cfg.Server,
				app.WithMetrics(tel.metrics),
				app.WithGatherer(tel.registry),
				app.WithReadinessChecks(checks...),
			)
			slog.Info("serve: starting",
				"addr", cfg.Server.ListenAddr,
				"backend", cfg.ASR.Backend,
				"chain", cfg.ASR.Chain(),
				"preload", cfg.Server.Preload,
				"version", version,
			)
			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVarP(&addr, "listen", "l", "", "override server.listen_addr")
	cmd.Flags().BoolVar(&preload, "preload", false, "load the model at startup")
	return cmd
}

// usesLocalDecoder reports whether any backend in the chain decodes audio
// in process and so may need ffmpeg for non-WAV uploads.
func usesLocalDecoder(cfg config.ASRConfig) bool {
	for _, name := range cfg.Chain() {
		if asr.Variant(name) != asr.VariantOpenAI {
			return true
		}
	}
	return false
}
