package cli

import (
	"github.com/spf13/cobra"

	"github.com/berry-13/vicsam-group-sub002/internal/di"
)

func newServeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := di.NewApp(ctx, cfg)
			if err != nil {
				return err
			}
			return a.Run(ctx)
		},
	}
}

// migrate is a no-op beyond building the admin set: the store provider
// migrates the schema and seeds the system roles.
func newMigrateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations and seed system roles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withAdmin(cmd.Context(), func(a *di.Admin) error {
				a.Logger.InfoContext(cmd.Context(), "schema migrated", "driver", a.Config.DatabaseDriver)
				return writeJSON(cmd.OutOrStdout(), map[string]any{"migrated": true})
			})
		},
	}
}
