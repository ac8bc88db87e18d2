package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MrWong99/voxtrigger/pkg/trigger"
)

func newGestureCmd(env *cliEnv) *cobra.Command {
	var (
		fingers int
		camera  int
	)
	cmd := &cobra.Command{
		Use:   "gesture",
		Short: "Wait for a finger-count gesture on camera",
		Long: `Watch the camera until a hand shows the target number of extended
fingers, print DETECTED_<n>_FINGERS and exit 0.

Exits 1 when the camera or landmark model cannot be opened, or when
interrupted before a detection.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := env.cfg
			if cmd.Flags().Changed("fingers") {
				cfg.Gesture.Fingers = fingers
			}
			if cmd.Flags().Changed("camera") {
				cfg.Gesture.Camera = camera
			}

			det, closeDet, err := openGesture(cfg)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := closeDet(); cerr != nil {
					slog.Warn("gesture: release devices", "err", cerr)
				}
			}()

			out := cmd.OutOrStdout()
			slog.Info("gesture: watching camera", "camera", cfg.Gesture.Camera, "fingers", cfg.Gesture.Fingers)
			err = det.Run(cmd.Context(), func(ev trigger.Event) {
				if ev.Kind == trigger.KindStarted {
					fmt.Fprintf(out, "DETECTED_%d_FINGERS\n", cfg.Gesture.Fingers)
				}
			})
			if errors.Is(err, trigger.ErrCanceled) {
				return errors.New("gesture: interrupted before a detection")
			}
			return err
		},
	}
	cmd.Flags().IntVar(&fingers, "fingers", 0, "override gesture.fingers")
	cmd.Flags().IntVar(&camera, "camera", 0, "override gesture.camera")
	return cmd
}
