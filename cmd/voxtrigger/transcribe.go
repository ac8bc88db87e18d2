package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func newTranscribeCmd(env *cliEnv) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "transcribe <audio>",
		Short: "Transcribe one audio file",
		Long: `Transcribe an audio file with the configured backend and print the text
as a single line. WAV is decoded natively; other formats go through ffmpeg.

On failure nothing is printed to stdout and the command exits 1.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := env.newApp()
			if err != nil {
				return err
			}
			defer func() {
				if serr := a.Shutdown(context.WithoutCancel(cmd.Context())); serr != nil {
					slog.Warn("transcribe: shutdown", "err", serr)
				}
			}()

			n, err := a.Transcriber().Transcribe(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			text := n.Text
			if raw {
				text = n.Raw
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the backend output without normalization")
	return cmd
}
