// Package cli holds the authd command tree.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/berry-13/vicsam-group-sub002/internal/config"
	"github.com/berry-13/vicsam-group-sub002/internal/di"
	"github.com/berry-13/vicsam-group-sub002/internal/tools/common"
	"github.com/berry-13/vicsam-group-sub002/internal/tools/obscheck"
)

type options struct {
	envFile    string
	loadConfig func() (*config.Config, error)
}

// NewRootCommand builds the authd command. Configuration comes from the
// environment, optionally seeded from --env-file.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&options{loadConfig: config.Load})
}

func newRootCommand(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "authd",
		Short:         "Authentication and authorization service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "KEY=VALUE file applied before reading the environment")

	root.AddCommand(
		newServeCommand(opts),
		newMigrateCommand(opts),
		newKeysCommand(opts),
		newLegacyCommand(opts),
		newSessionsCommand(opts),
		newUsersCommand(opts),
		newAuditCommand(opts),
		newLoadgenCommand(),
		obscheck.NewCommand(),
	)
	return root
}

func (o *options) config() (*config.Config, error) {
	if err := common.LoadEnvFile(o.envFile); err != nil {
		return nil, err
	}
	return o.loadConfig()
}

// withAdmin builds the one-shot component set, runs fn and releases it.
func (o *options) withAdmin(ctx context.Context, fn func(*di.Admin) error) error {
	cfg, err := o.config()
	if err != nil {
		return err
	}
	admin, cleanup, err := di.InitializeAdmin(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(admin)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
