package commands

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/inferloop/modelops/pkg/models"
)

type RollbackOptions struct {
	ModelID string
}

func NewRollbackCmd() *cobra.Command {
	opts := &RollbackOptions{}

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Roll a model back to its previously serving version",
		Example: `  modelops-cli rollback --model fraud-detector`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRollback(opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ModelID, "model", "m", "", "Model ID (required)")
	cmd.MarkFlagRequired("model")

	return cmd
}

func runRollback(opts *RollbackOptions) error {
	client := newAPIClient()

	var state models.DeploymentState
	if err := client.do(http.MethodPost, "/api/v1/models/"+opts.ModelID+"/rollback", nil, &state); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}

	fmt.Printf("Model %s rolled back to %s (status %s)\n", opts.ModelID, state.CurrentVersion, state.Status)
	return nil
}
