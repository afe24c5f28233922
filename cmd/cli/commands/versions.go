package commands

import (
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/inferloop/modelops/pkg/models"
)

type VersionsOptions struct {
	ModelID string
	JSON    bool
}

func NewVersionsCmd() *cobra.Command {
	opts := &VersionsOptions{}

	cmd := &cobra.Command{
		Use:   "versions",
		Short: "List the registered versions of a model",
		Example: `  # List versions as a table
  modelops-cli versions --model fraud-detector

  # Raw JSON output
  modelops-cli versions --model fraud-detector --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersions(opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ModelID, "model", "m", "", "Model ID (required)")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Print raw JSON")

	cmd.MarkFlagRequired("model")

	return cmd
}

func runVersions(opts *VersionsOptions) error {
	client := newAPIClient()

	var response struct {
		ModelID  string                 `json:"model_id"`
		Versions []*models.ModelVersion `json:"versions"`
		Count    int                    `json:"count"`
	}
	if err := client.do(http.MethodGet, "/api/v1/models/"+opts.ModelID+"/versions", nil, &response); err != nil {
		return err
	}

	if opts.JSON {
		return printJSON(response)
	}

	if response.Count == 0 {
		fmt.Printf("No versions registered for %s\n", opts.ModelID)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tSTATUS\tACCURACY\tCREATED\tDEPLOYED")
	for _, version := range response.Versions {
		deployed := "-"
		if version.DeployedAt != nil {
			deployed = version.DeployedAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%.3f\t%s\t%s\n",
			version.Version,
			version.Status,
			version.ValidationMetrics.Accuracy,
			version.CreatedAt.Format("2006-01-02 15:04"),
			deployed)
	}
	return w.Flush()
}
