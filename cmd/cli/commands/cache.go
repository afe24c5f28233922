package commands

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

func NewCacheStatsCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "cache-stats",
		Short: "Show artifact cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheStats(jsonOut)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print raw JSON")

	return cmd
}

func runCacheStats(jsonOut bool) error {
	client := newAPIClient()

	var stats struct {
		Entries     int     `json:"entries"`
		MemoryBytes int64   `json:"memory_bytes"`
		Hits        int64   `json:"hits"`
		Misses      int64   `json:"misses"`
		Evictions   int64   `json:"evictions"`
		HitRate     float64 `json:"hit_rate"`
	}
	if err := client.do(http.MethodGet, "/api/v1/cache/stats", nil, &stats); err != nil {
		return err
	}

	if jsonOut {
		return printJSON(stats)
	}

	fmt.Printf("Entries:    %d\n", stats.Entries)
	fmt.Printf("Memory:     %.1f MB\n", float64(stats.MemoryBytes)/(1024*1024))
	fmt.Printf("Hits:       %d\n", stats.Hits)
	fmt.Printf("Misses:     %d\n", stats.Misses)
	fmt.Printf("Evictions:  %d\n", stats.Evictions)
	fmt.Printf("Hit rate:   %.1f%%\n", stats.HitRate*100)
	return nil
}
