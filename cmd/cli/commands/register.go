package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/inferloop/modelops/pkg/models"
)

type RegisterOptions struct {
	ModelID    string
	ResultFile string
}

func NewRegisterCmd() *cobra.Command {
	opts := &RegisterOptions{}

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a completed training run as a new model version",
		Example: `  # Register a training result
  modelops-cli register --model fraud-detector --result result.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegister(opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ModelID, "model", "m", "", "Model ID (required)")
	cmd.Flags().StringVarP(&opts.ResultFile, "result", "r", "", "Path to training result JSON (required)")

	cmd.MarkFlagRequired("model")
	cmd.MarkFlagRequired("result")

	return cmd
}

func runRegister(opts *RegisterOptions) error {
	data, err := os.ReadFile(opts.ResultFile)
	if err != nil {
		return fmt.Errorf("failed to read training result: %w", err)
	}

	var result models.TrainingResult
	if err := json.Unmarshal(data, &result); err != nil {
		return fmt.Errorf("failed to parse training result: %w", err)
	}

	client := newAPIClient()
	var version models.ModelVersion
	if err := client.do(http.MethodPost, "/api/v1/models/"+opts.ModelID+"/versions", &result, &version); err != nil {
		return err
	}

	fmt.Printf("Registered %s as version %s (status %s)\n", opts.ModelID, version.Version, version.Status)
	return nil
}
