package main

import (
	"github.com/spf13/cobra"

	"cardcheck/internal/logging"
	"cardcheck/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the verification engine over HTTP",
	Long: `Exposes POST /api/v1/verify (claim-driven, NDJSON event stream),
POST /api/v1/scan (legacy rulepack mode), and GET /api/v1/runs/{id} for
fetching a finished run's report. The completion-service credential is
read from the X-API-Key or Authorization header per request.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	logging.Boot("cardcheck server starting")
	return server.New(cfg).ListenAndServe()
}
