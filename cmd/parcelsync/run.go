package main

import (
	"os"

	"parcelsync/internal/pipeline"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	flagVerbose     bool
	flagInteractive bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one sync pass and apply the edits",
	Long: `Run one full pass: fetch and join the source, snapshot the target, diff
and apply. Exits non-zero when the run aborts; nothing is written in that
case.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		rep, err := a.runOnce(cmd.Context(), pipeline.Options{})
		if rep != nil {
			rep.Print(cmd.OutOrStdout(), flagVerbose)
		}
		return err
	},
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the edits a run would make without applying them",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		rep, err := a.runOnce(cmd.Context(), pipeline.Options{DryRun: true})
		if rep == nil {
			return err
		}
		if err == nil && flagInteractive && term.IsTerminal(int(os.Stdin.Fd())) {
			browse(rep)
			return nil
		}
		rep.Print(cmd.OutOrStdout(), flagVerbose)
		return err
	},
}

func init() {
	runCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "list every edit and issue")
	planCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "list every edit and issue")
	planCmd.Flags().BoolVarP(&flagInteractive, "interactive", "i", false, "browse the edits with the arrow keys")
}
