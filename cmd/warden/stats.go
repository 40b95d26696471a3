package main

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/harunnryd/warden/internal/auth"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise routed requests by path",
	Long:  `Reads the cost ledger of a running router. --since takes a duration such as 24h or an RFC3339 time.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return fmt.Errorf("config not loaded")
		}
		if cfg.Auth.OperatorAPIKey == "" {
			return fmt.Errorf("auth.operator_api_key is required")
		}
		since, _ := cmd.Flags().GetString("since")

		path := "/stats"
		if since != "" {
			path += "?since=" + url.QueryEscape(since)
		}
		client := auth.NewOperatorClient(cfg.Approvals.ServerURL, cfg.Auth.OperatorAPIKey, clientTimeout)
		var view statsView
		if err := client.Do(commandContext(cmd), http.MethodGet, path, nil, &view); err != nil {
			return fmt.Errorf("failed to read stats: %w", err)
		}

		format, err := outputFormat(cmd)
		if err != nil {
			return err
		}
		out, err := render(format, view, func() string { return statsTable(view) })
		if err != nil {
			return err
		}
		return writeLine(cmd.OutOrStdout(), out)
	},
}

func init() {
	statsCmd.Flags().String("since", "24h", "window to summarise")
	rootCmd.AddCommand(statsCmd)
}
