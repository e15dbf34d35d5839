package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initStoreCmd = &cobra.Command{
	Use:   "init-store",
	Short: "Create the parcel, lock and metadata tables in the target",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.target.CreateTable(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Target table %s ready (%s)\n", a.target.Table(), cfg.Target.Driver)
		return nil
	},
}
