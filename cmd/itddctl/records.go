package main

import (
	"github.com/itdd/backend/internal/app"
	"github.com/itdd/backend/internal/domain/resolution"
	"github.com/spf13/cobra"
)

func newRecordsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Inspect inventory records",
	}
	cmd.AddCommand(
		newRecordsListCmd(c),
		newRecordsShowCmd(c),
		newRecordsEvidenceCmd(c),
		newRecordsSimilarCmd(c),
	)
	return cmd
}

func newRecordsListCmd(c *cli) *cobra.Command {
	var (
		sf     scopeFlags
		status string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the records of a scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := sf.key()
			if err != nil {
				return err
			}
			return c.withApp(cmd.Context(), nil, func(a *app.App) error {
				views, err := a.Query.ListByScope(cmd.Context(), key, resolution.LifecycleStatus(status))
				if err != nil {
					return err
				}
				return c.print(views)
			})
		},
	}
	sf.register(cmd)
	cmd.Flags().StringVar(&status, "status", "", "Lifecycle status: active (default), merged_away or removed")
	return cmd
}

func newRecordsShowCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show one record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), nil, func(a *app.App) error {
				view, err := a.Query.GetRecord(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return c.print(view)
			})
		},
	}
}

func newRecordsEvidenceCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "evidence ID",
		Short: "Show the observation chain behind a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), nil, func(a *app.App) error {
				chain, err := a.Query.GetEvidenceChain(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return c.print(chain)
			})
		},
	}
}

func newRecordsSimilarCmd(c *cli) *cobra.Command {
	var (
		sf         scopeFlags
		name       string
		recordType string
		threshold  float64
	)
	cmd := &cobra.Command{
		Use:   "similar",
		Short: "Fuzzy-match a name against the active records of a scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := sf.key()
			if err != nil {
				return err
			}
			q := resolution.SimilarQuery{
				Name:      name,
				Scope:     key.Scope,
				DealID:    key.DealID,
				Threshold: threshold,
			}
			if recordType != "" {
				if q.Type, err = resolution.ParseRecordType(recordType); err != nil {
					return err
				}
			}
			return c.withApp(cmd.Context(), nil, func(a *app.App) error {
				matches, err := a.Query.FindSimilar(cmd.Context(), q)
				if err != nil {
					return err
				}
				return c.print(matches)
			})
		},
	}
	sf.register(cmd)
	cmd.Flags().StringVar(&name, "name", "", "Name to match")
	cmd.Flags().StringVar(&recordType, "type", "", "Restrict to application, infrastructure or organizational_role")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Minimum name similarity (default from the match policy)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
