package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/MrWong99/voxtrigger/pkg/trigger"
)

func newKeysCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "Report hold-to-talk key presses",
		Long: `Put the terminal in raw mode and print PRESSED when the trigger key is
held and RELEASED when it is let go, until Ctrl-C.

Exits 1 when the terminal cannot be switched to raw mode.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			det, err := openKeys(env.cfg)
			if err != nil {
				return err
			}

			// Raw mode disables output post-processing, so a bare newline
			// would not return the cursor on a terminal.
			eol := "\n"
			if term.IsTerminal(int(os.Stdout.Fd())) {
				eol = "\r\n"
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "Hold %s to talk, Ctrl-C to quit.\n", keyName(env.cfg.Keys.Key[0]))
			out := cmd.OutOrStdout()
			return det.Run(cmd.Context(), func(ev trigger.Event) {
				switch ev.Kind {
				case trigger.KindStarted:
					fmt.Fprint(out, "PRESSED"+eol)
				case trigger.KindEnded:
					fmt.Fprint(out, "RELEASED"+eol)
				}
			})
		},
	}
}
