package commands

import (
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/inferloop/modelops/pkg/models"
)

type AlertsOptions struct {
	History bool
	JSON    bool
}

func NewAlertsCmd() *cobra.Command {
	opts := &AlertsOptions{}

	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List performance alerts",
		Example: `  # Active alerts
  modelops-cli alerts

  # Every alert ever raised
  modelops-cli alerts --history`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAlerts(opts)
		},
	}

	cmd.Flags().BoolVar(&opts.History, "history", false, "Include resolved alerts")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Print raw JSON")

	return cmd
}

func runAlerts(opts *AlertsOptions) error {
	client := newAPIClient()

	path := "/api/v1/alerts"
	if opts.History {
		path += "?history=true"
	}

	var response struct {
		Alerts []*models.Alert `json:"alerts"`
		Count  int             `json:"count"`
	}
	if err := client.do(http.MethodGet, path, nil, &response); err != nil {
		return err
	}

	if opts.JSON {
		return printJSON(response)
	}

	if response.Count == 0 {
		fmt.Println("No alerts")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tMETRIC\tSEVERITY\tVALUE\tTHRESHOLD\tRAISED\tRESOLVED")
	for _, alert := range response.Alerts {
		resolved := "-"
		if alert.Resolved && alert.ResolvedAt != nil {
			resolved = alert.ResolvedAt.Format("15:04:05")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.4g\t%.4g\t%s\t%s\n",
			alert.ModelID,
			alert.Metric,
			alert.Severity,
			alert.Value,
			alert.Threshold,
			alert.Timestamp.Format("15:04:05"),
			resolved)
	}
	return w.Flush()
}
