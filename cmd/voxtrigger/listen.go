package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/voxtrigger/internal/app"
	"github.com/MrWong99/voxtrigger/internal/config"
	"github.com/MrWong99/voxtrigger/internal/observe"
	"github.com/MrWong99/voxtrigger/internal/recorder"
)

func newListenCmd(env *cliEnv) *cobra.Command {
	var (
		trig        string
		once        bool
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Record and transcribe an utterance per trigger",
		Long: `Wait for the trigger, record the utterance with the configured capture
command and print its transcript, one line per utterance.

With the keys trigger the recording lasts as long as the key is held.
With the gesture trigger a fixed-length clip (listen.gesture_record) is
recorded once the gesture is confirmed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := env.cfg
			if trig != "" {
				cfg.Listen.Trigger = config.Trigger(trig)
				if !cfg.Listen.Trigger.IsValid() {
					return fmt.Errorf("listen: unknown trigger %q (want gesture or keys)", trig)
				}
			}
			if cmd.Flags().Changed("once") {
				cfg.Listen.Once = once
			}

			var appOpts []app.Option
			var metrics *observe.Metrics
			if metricsAddr != "" {
				tel, err := initTelemetry(ctx)
				if err != nil {
					return err
				}
				defer tel.close(context.WithoutCancel(ctx))
				metrics = tel.metrics
				appOpts = append(appOpts, app.WithInstruments(metrics))
				stopMetrics := serveMetrics(metricsAddr, tel)
				defer stopMetrics()
			}

			a, err := env.newApp(appOpts...)
			if err != nil {
				return err
			}
			defer func() {
				if serr := a.Shutdown(context.WithoutCancel(ctx)); serr != nil {
					slog.Warn("listen: shutdown", "err", serr)
				}
			}()

			rec, err := recorder.New(cfg.Recorder.Command,
				recorder.WithDir(cfg.Recorder.Dir),
				recorder.WithSampleRate(cfg.Recorder.SampleRate),
			)
			if err != nil {
				return err
			}

			det, closeDet, err := openTrigger(cfg)
			if err != nil {
				return err
			}
			a.OnShutdown(closeDet)

			opts := []app.OrchestratorOption{
				app.WithMaxRecord(cfg.Listen.MaxRecord),
				app.WithOutput(cmd.OutOrStdout()),
				app.WithOnce(cfg.Listen.Once),
				app.WithKeepClips(cfg.Recorder.Keep),
			}
			if cfg.Listen.Trigger == config.TriggerGesture {
				opts = append(opts, app.WithFixedRecording(cfg.Listen.GestureRecord))
			}
			if metrics != nil {
				opts = append(opts, app.WithTriggerMetrics(metrics, string(cfg.Listen.Trigger)))
			}
			orch, err := app.NewOrchestrator(det, app.FromRecorder(rec), a.Transcriber(), opts...)
			if err != nil {
				return err
			}

			if cfg.Listen.Trigger == config.TriggerKeys {
				fmt.Fprintf(cmd.ErrOrStderr(), "Hold %s to talk, Ctrl-C to quit.\n", keyName(cfg.Keys.Key[0]))
			}
			slog.Info("listen: ready", "trigger", cfg.Listen.Trigger, "backend", a.Backend().Variant())
			return orch.Listen(ctx)
		},
	}
	cmd.Flags().StringVarP(&trig, "trigger", "t", "", "override listen.trigger (gesture or keys)")
	cmd.Flags().BoolVar(&once, "once", false, "stop after the first utterance")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

// serveMetrics exposes tel's registry on addr in the background. The
// returned func stops the server.
func serveMetrics(addr string, tel *telemetry) func() {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", observe.MetricsHandler(tel.registry))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		slog.Info("listen: metrics endpoint", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("listen: metrics endpoint failed", "err", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
