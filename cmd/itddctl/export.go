package main

import (
	"os"

	"github.com/itdd/backend/internal/app"
	appresolution "github.com/itdd/backend/internal/application/resolution"
	"github.com/spf13/cobra"
)

func newExportCmd(c *cli) *cobra.Command {
	var (
		sf      scopeFlags
		format  string
		file    string
		publish bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the active records of a scope",
		Long: `Export renders the read-only projection of one scope. The document goes to
stdout, to --file, or with --publish to object storage; publishing prints the
download URL.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := sf.key()
			if err != nil {
				return err
			}
			f, err := appresolution.ParseExportFormat(format)
			if err != nil {
				return err
			}
			return c.withApp(cmd.Context(), nil, func(a *app.App) error {
				if publish {
					res, err := a.Export.Publish(cmd.Context(), key, f, a.Config.Storage.PresignExpiry)
					if err != nil {
						return err
					}
					return c.print(res)
				}
				res, err := a.Export.Render(cmd.Context(), key, f)
				if err != nil {
					return err
				}
				if file != "" {
					return os.WriteFile(file, res.Data, 0o644)
				}
				_, err = c.out.Write(res.Data)
				return err
			})
		},
	}
	sf.register(cmd)
	cmd.Flags().StringVar(&format, "format", "yaml", "Export format: yaml or json")
	cmd.Flags().StringVar(&file, "file", "", "Write the document to this path")
	cmd.Flags().BoolVar(&publish, "publish", false, "Upload to object storage and print a download URL")
	return cmd
}
