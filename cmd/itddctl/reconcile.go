package main

import (
	"github.com/itdd/backend/internal/app"
	"github.com/spf13/cobra"
)

func newReconcileCmd(c *cli) *cobra.Command {
	var sf scopeFlags
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation pass over a scope and print the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := sf.key()
			if err != nil {
				return err
			}
			return c.withApp(cmd.Context(), nil, func(a *app.App) error {
				report, err := a.Reconciliation.Reconcile(cmd.Context(), key)
				if err != nil {
					return err
				}
				return c.print(report)
			})
		},
	}
	sf.register(cmd)
	return cmd
}
