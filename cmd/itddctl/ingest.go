package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/itdd/backend/internal/app"
	appresolution "github.com/itdd/backend/internal/application/resolution"
	"github.com/itdd/backend/internal/infrastructure/config"
	"github.com/spf13/cobra"
)

func newIngestCmd(c *cli) *cobra.Command {
	var (
		deal        string
		noReconcile bool
	)
	cmd := &cobra.Command{
		Use:   "ingest FILE",
		Short: "Ingest a batch of extraction events from a YAML or JSON file",
		Long: `Ingest reads a batch with "structured" and "narrative" event lists.

Events without a deal_scope take the --deal value. Events naming another deal
are rejected individually. Each touched scope is reconciled afterwards unless
--no-reconcile is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, err := readBatch(args[0])
			if err != nil {
				return err
			}
			if deal != "" {
				d, err := parseDeal(deal)
				if err != nil {
					return err
				}
				pinBatchDeal(&batch, d.String())
			}
			if batch.Size() == 0 {
				return fmt.Errorf("%s contains no events", args[0])
			}

			configure := func(cfg *config.Config) {
				if noReconcile {
					cfg.Resolution.ReconcileAfterBatch = false
				}
			}
			return c.withApp(cmd.Context(), configure, func(a *app.App) error {
				result, err := a.Ingestion.IngestBatch(cmd.Context(), batch)
				if err != nil {
					return err
				}
				return c.print(result)
			})
		},
	}
	cmd.Flags().StringVar(&deal, "deal", "", "Deal scope UUID applied to events without one")
	cmd.Flags().BoolVar(&noReconcile, "no-reconcile", false, "Skip the post-batch reconciliation pass")
	return cmd
}

// readBatch decodes path by extension; anything but .json is read as YAML
func readBatch(path string) (appresolution.Batch, error) {
	var batch appresolution.Batch
	raw, err := os.ReadFile(path)
	if err != nil {
		return batch, err
	}
	if !strings.EqualFold(filepath.Ext(path), ".json") {
		if raw, err = yaml.YAMLToJSON(raw); err != nil {
			return batch, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := json.Unmarshal(raw, &batch); err != nil {
		return batch, fmt.Errorf("parse %s: %w", path, err)
	}
	return batch, nil
}

func pinBatchDeal(batch *appresolution.Batch, deal string) {
	for i := range batch.Structured {
		if batch.Structured[i].DealScope == "" {
			batch.Structured[i].DealScope = deal
		}
	}
	for i := range batch.Narrative {
		if batch.Narrative[i].DealScope == "" {
			batch.Narrative[i].DealScope = deal
		}
	}
}
