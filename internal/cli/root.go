// Package cli implements the claimctl command line tool
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/claim-intake/internal/config"
	"github.com/garyjia/claim-intake/internal/container"
	"github.com/garyjia/claim-intake/pkg/utils"
)

// Version is printed by the version command
var Version = "dev"

type rootOptions struct {
	configPath string
	verbose    bool
}

// NewRootCommand builds the claimctl command tree
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "claimctl",
		Short: "Run claim documents through the intake and decision pipeline",
		Long: `claimctl extracts text from claim documents, structures it into a claim
record, validates it against the rule set and anomaly model, and routes it
to AUTO_APPROVE, MANUAL_REVIEW, ESCALATE or REJECT.

Configuration comes from a YAML file (--config), a .env file and the
environment (OPENAI_API_KEY, STRIPE_SECRET_KEY, LARK_APP_ID, ...).`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default: defaults and environment only)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose logging on stderr")

	root.AddCommand(
		newProcessCommand(opts),
		newBatchCommand(opts),
		newConfigCommand(opts),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "claimctl %s\n", Version)
			},
		},
	)

	return root
}

// Execute runs the root command with ctx
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// startContainer loads the configuration and starts every pipeline
// component. The caller must Close the container.
func (o *rootOptions) startContainer(ctx context.Context) (*container.Container, *config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}

	logger, err := utils.NewCLILogger(o.verbose)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	c, err := container.New(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := c.Start(ctx); err != nil {
		return nil, nil, err
	}
	return c, cfg, nil
}

func closeContainer(c *container.Container) {
	if err := c.Close(); err != nil {
		c.Logger().Warn("Container closed with errors", zap.Error(err))
	}
	_ = c.Logger().Sync()
}
