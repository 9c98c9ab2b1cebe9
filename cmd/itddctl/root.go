package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/google/uuid"
	"github.com/itdd/backend/internal/app"
	"github.com/itdd/backend/internal/domain/resolution"
	"github.com/itdd/backend/internal/domain/shared"
	"github.com/itdd/backend/internal/infrastructure/config"
	"github.com/itdd/backend/internal/infrastructure/logger"
	"github.com/spf13/cobra"
)

// cli holds global flags and the seams tests replace
type cli struct {
	configDir string
	output    string
	logLevel  string

	out  io.Writer
	load func(paths ...string) (*config.Config, error)
}

func defaultCLI() *cli {
	return &cli{out: os.Stdout, load: config.LoadFrom}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "itddctl",
		Short:         "Operate the IT due-diligence inventory resolver",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch c.output {
			case "yaml", "json":
				return nil
			}
			return fmt.Errorf("--output must be yaml or json, got %q", c.output)
		},
	}
	root.SetOut(c.out)
	root.PersistentFlags().StringVar(&c.configDir, "config-dir", ".", "Directory containing config.toml")
	root.PersistentFlags().StringVarP(&c.output, "output", "o", "yaml", "Output format: yaml or json")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "Log level written to stderr")

	root.AddCommand(
		newIngestCmd(c),
		newReconcileCmd(c),
		newExportCmd(c),
		newRecordsCmd(c),
		newReviewsCmd(c),
	)
	return root
}

// withApp builds the object graph in inline mode, runs fn and tears it down.
// configure may adjust the loaded configuration first.
func (c *cli) withApp(ctx context.Context, configure func(*config.Config), fn func(*app.App) error) error {
	cfg, err := c.load(c.configDir)
	if err != nil {
		return err
	}
	cfg.Log.Level = c.logLevel
	cfg.Log.Output = "stderr"
	if configure != nil {
		configure(cfg)
	}

	log, err := logger.New(cfg.Log, cfg.App.Env)
	if err != nil {
		return err
	}
	defer func() {
		_ = log.Sync()
	}()

	a, err := app.New(ctx, cfg, log, app.ModeInline)
	if err != nil {
		return err
	}
	defer func() {
		_ = a.Close(context.Background())
	}()
	if err := a.Start(ctx); err != nil {
		return err
	}
	return fn(a)
}

// print writes v in the selected output format
func (c *cli) print(v any) error {
	var (
		data []byte
		err  error
	)
	if c.output == "json" {
		data, err = json.MarshalIndent(v, "", "  ")
		data = append(data, '\n')
	} else {
		data, err = yaml.MarshalWithOptions(v, yaml.UseJSONMarshaler(), yaml.IndentSequence(true))
	}
	if err != nil {
		return err
	}
	_, err = c.out.Write(data)
	return err
}

// scopeFlags are the --deal and --scope pair that address one ScopeKey
type scopeFlags struct {
	deal  string
	scope string
}

func (f *scopeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.deal, "deal", "", "Deal scope UUID")
	cmd.Flags().StringVar(&f.scope, "scope", "", "Ownership scope: target or acquirer")
	_ = cmd.MarkFlagRequired("deal")
	_ = cmd.MarkFlagRequired("scope")
}

func (f *scopeFlags) key() (resolution.ScopeKey, error) {
	deal, err := parseDeal(f.deal)
	if err != nil {
		return resolution.ScopeKey{}, err
	}
	scope, err := resolution.ParseOwnershipScope(f.scope)
	if err != nil {
		return resolution.ScopeKey{}, err
	}
	return resolution.ScopeKey{Scope: scope, DealID: deal}, nil
}

func parseDeal(s string) (uuid.UUID, error) {
	deal, err := uuid.Parse(s)
	if err != nil || deal == uuid.Nil {
		return uuid.Nil, shared.NewValidationError("deal", "must be a non-nil UUID")
	}
	return deal, nil
}
