// cardcheck checks whether the claims a model card makes are supported by
// the implementation it describes.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cardcheck/internal/config"
	"cardcheck/internal/logging"
)

var (
	verbose    bool
	configPath string

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "cardcheck",
	Short: "cardcheck - model card claim verification",
	Long: `cardcheck extracts checkable claims from a model card, generates small
verification programs for them, runs those programs against a read-only
snapshot of the implementation, and reports which claims hold up.

Two modes are available: claim-driven verification (verify, serve) and the
legacy pattern-rulepack scan (scan).`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logging.Initialize(verbose); err != nil {
			return fmt.Errorf("initialize logging: %w", err)
		}
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "cardcheck.yaml", "path to config file")

	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
