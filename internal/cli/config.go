package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/garyjia/claim-intake/internal/config"
	"github.com/garyjia/claim-intake/internal/domain/entity"
)

func newConfigCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration without starting anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				var cfgErr *entity.ConfigurationError
				if errors.As(err, &cfgErr) {
					return fmt.Errorf("option %s: %s", cfgErr.Option, cfgErr.Reason)
				}
				return err
			}

			out := cmd.OutOrStdout()
			p := cfg.Pipeline
			fmt.Fprintln(out, "configuration is valid")
			fmt.Fprintf(out, "  fraud_threshold          %.2f\n", p.FraudThreshold)
			fmt.Fprintf(out, "  low_risk_margin          %.2f\n", p.LowRiskMargin)
			fmt.Fprintf(out, "  auto_approve_threshold   %.2f\n", p.AutoApproveThreshold)
			fmt.Fprintf(out, "  manual_review_threshold  %.2f\n", p.ManualReviewThreshold)
			fmt.Fprintf(out, "  max_claim_amount         %.2f\n", p.MaxClaimAmount)
			fmt.Fprintf(out, "  max_structuring_retries  %d\n", p.MaxStructuringRetries)
			fmt.Fprintf(out, "  ocr.engine               %s\n", cfg.OCR.Engine)
			fmt.Fprintf(out, "  stripe.enabled           %t\n", cfg.Stripe.Enabled)
			fmt.Fprintf(out, "  lark.enabled             %t\n", cfg.Lark.Enabled)
			return nil
		},
	})

	return cmd
}
