package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"cardcheck/internal/rulepack"
	"cardcheck/internal/search"
	"cardcheck/internal/snapshot"
)

var (
	scanRepo string
	scanPack string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Match a fixed pattern rulepack against an implementation (legacy mode)",
	RunE:  runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanRepo, "repo", "", "implementation snapshot locator (required)")
	scanCmd.Flags().StringVar(&scanPack, "rulepack", "", "path to the YAML rulepack (required)")
	_ = scanCmd.MarkFlagRequired("repo")
	_ = scanCmd.MarkFlagRequired("rulepack")
}

func runScan(cmd *cobra.Command, args []string) error {
	pack, err := rulepack.Load(scanPack)
	if err != nil {
		return err
	}

	root, cleanup, err := snapshot.Resolve(context.Background(), scanRepo)
	if err != nil {
		return err
	}
	defer cleanup()

	snap, err := snapshot.Load(root)
	if err != nil {
		return err
	}

	toolkit := search.NewToolkit(snap, cfg.Engine.MaxMatches)
	findings := rulepack.Scan(toolkit, pack)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]interface{}{
		"pack":     pack.Name,
		"findings": findings,
	})
}
