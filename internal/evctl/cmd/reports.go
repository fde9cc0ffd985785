package cmd

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"
)

var (
	reportSource string
	reportFrom   string
	reportTo     string
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Query the reporter for aggregate statistics",
}

var reportsEventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Event counts by source, funnel stage and event type",
	RunE: func(cmd *cobra.Command, args []string) error {
		return fetchReport("/reports/events")
	},
}

var reportsRevenueCmd = &cobra.Command{
	Use:   "revenue",
	Short: "Purchase totals by source and campaign",
	RunE: func(cmd *cobra.Command, args []string) error {
		return fetchReport("/reports/revenue")
	},
}

var reportsDemographicsCmd = &cobra.Command{
	Use:   "demographics",
	Short: "User profile histograms per source",
	RunE: func(cmd *cobra.Command, args []string) error {
		return fetchReport("/reports/demographics")
	},
}

func fetchReport(path string) error {
	q := url.Values{}
	if reportSource != "" {
		q.Set("source", reportSource)
	}
	if reportFrom != "" {
		q.Set("from", reportFrom)
	}
	if reportTo != "" {
		q.Set("to", reportTo)
	}

	endpoint := reporterURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("querying reporter: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reporter returned %d: %s", resp.StatusCode, body)
	}

	fmt.Println(string(body))
	return nil
}

func init() {
	reportsCmd.PersistentFlags().StringVar(&reportSource, "source", "", "filter by source (facebook, tiktok)")
	reportsCmd.PersistentFlags().StringVar(&reportFrom, "from", "", "start of the time range (RFC 3339)")
	reportsCmd.PersistentFlags().StringVar(&reportTo, "to", "", "end of the time range (RFC 3339)")
	reportsCmd.AddCommand(reportsEventsCmd)
	reportsCmd.AddCommand(reportsRevenueCmd)
	reportsCmd.AddCommand(reportsDemographicsCmd)
	rootCmd.AddCommand(reportsCmd)
}
