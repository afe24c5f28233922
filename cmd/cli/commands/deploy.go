package commands

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/inferloop/modelops/pkg/models"
)

type DeployOptions struct {
	ModelID     string
	VersionID   string
	Strategy    string
	Environment string
}

func NewDeployCmd() *cobra.Command {
	opts := &DeployOptions{}

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy a validated version",
		Long: `Plan and execute a rollout of a model version. A failing health check
rolls the model back to the previously serving version automatically.`,
		Example: `  # Canary rollout
  modelops-cli deploy --model fraud-detector --version fraud-detector-v3 --strategy canary

  # Blue/green into a named environment
  modelops-cli deploy --model fraud-detector --version fraud-detector-v3 --strategy blue_green --environment production`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ModelID, "model", "m", "", "Model ID (required)")
	cmd.Flags().StringVar(&opts.VersionID, "version", "", "Version ID (required)")
	cmd.Flags().StringVarP(&opts.Strategy, "strategy", "s", "canary", "Deployment strategy (blue_green, canary, rolling)")
	cmd.Flags().StringVarP(&opts.Environment, "environment", "e", "", "Target environment (default production)")

	cmd.MarkFlagRequired("model")
	cmd.MarkFlagRequired("version")

	return cmd
}

func runDeploy(opts *DeployOptions) error {
	client := newAPIClient()

	request := map[string]string{
		"version_id":  opts.VersionID,
		"strategy":    opts.Strategy,
		"environment": opts.Environment,
	}

	var state models.DeploymentState
	if err := client.do(http.MethodPost, "/api/v1/models/"+opts.ModelID+"/deploy", request, &state); err != nil {
		return fmt.Errorf("deployment failed: %w", err)
	}

	fmt.Printf("Deployment %s finished with status %s\n", state.DeploymentID, state.Status)
	fmt.Printf("  serving:   %s\n", state.CurrentVersion)
	if state.PreviousVersion != "" {
		fmt.Printf("  previous:  %s\n", state.PreviousVersion)
	}
	fmt.Printf("  steps run: %d\n", state.CompletedSteps)
	return nil
}
