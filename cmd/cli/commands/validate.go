package commands

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/inferloop/modelops/pkg/models"
)

type ValidateOptions struct {
	VersionID string
	Promote   bool
}

func NewValidateCmd() *cobra.Command {
	opts := &ValidateOptions{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run the validation gates on a registered version",
		Long: `Run the functional, performance, security, and bias gates plus the
benchmark pass on a version in training status. A passing version moves to
testing; with --promote it is then promoted to staging.`,
		Example: `  # Validate a freshly registered version
  modelops-cli validate --version fraud-detector-v3

  # Validate and promote straight to staging
  modelops-cli validate --version fraud-detector-v3 --promote`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts)
		},
	}

	cmd.Flags().StringVar(&opts.VersionID, "version", "", "Version ID (required)")
	cmd.Flags().BoolVar(&opts.Promote, "promote", false, "Promote to staging after validation")

	cmd.MarkFlagRequired("version")

	return cmd
}

func runValidate(opts *ValidateOptions) error {
	client := newAPIClient()

	var version models.ModelVersion
	if err := client.do(http.MethodPost, "/api/v1/versions/"+opts.VersionID+"/validate", nil, &version); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Printf("Version %s validated (status %s)\n", version.ID, version.Status)
	if version.PerformanceMetrics != nil {
		fmt.Printf("  p95 latency: %.1fms\n", version.PerformanceMetrics.LatencyP95Ms)
		fmt.Printf("  throughput:  %.1f rps\n", version.PerformanceMetrics.ThroughputRPS)
	}

	if !opts.Promote {
		return nil
	}

	if err := client.do(http.MethodPost, "/api/v1/versions/"+opts.VersionID+"/promote", nil, &version); err != nil {
		return fmt.Errorf("promotion failed: %w", err)
	}
	fmt.Printf("Version %s promoted to %s\n", version.ID, version.Status)
	return nil
}
