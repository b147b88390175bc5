package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cardcheck/internal/config"
	"cardcheck/internal/perception"
	"cardcheck/internal/snapshot"
	"cardcheck/internal/stream"
	"cardcheck/internal/verify"
)

var (
	verifyCard     string
	verifyRepo     string
	verifyProvider string
	verifyModel    string
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a model card's claims against its implementation",
	Long: `Runs the claim verification pipeline and prints progress events as
newline-delimited JSON, ending with one terminal event carrying the full
report.`,
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().StringVar(&verifyCard, "card", "", "path to the model card text file (required)")
	verifyCmd.Flags().StringVar(&verifyRepo, "repo", "", "implementation snapshot locator: directory or git URL (required)")
	verifyCmd.Flags().StringVar(&verifyProvider, "provider", "", "completion-service provider override")
	verifyCmd.Flags().StringVar(&verifyModel, "model", "", "model identifier override")
	_ = verifyCmd.MarkFlagRequired("card")
	_ = verifyCmd.MarkFlagRequired("repo")
}

func runVerify(cmd *cobra.Command, args []string) error {
	cardText, err := os.ReadFile(verifyCard)
	if err != nil {
		return fmt.Errorf("read card: %w", err)
	}

	rc := config.RunConfigFrom(cfg)
	if verifyProvider != "" {
		rc.Provider = verifyProvider
	}
	if verifyModel != "" {
		rc.Model = verifyModel
	}
	if rc.APIKey == "" {
		provider, key, err := perception.DetectProvider()
		if err != nil {
			return err
		}
		if verifyProvider == "" {
			rc.Provider = string(provider)
		}
		rc.APIKey = key
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := perception.NewClientFromRun(ctx, rc)
	if err != nil {
		return err
	}

	root, cleanup, err := snapshot.Resolve(ctx, verifyRepo)
	if err != nil {
		return err
	}
	defer cleanup()

	snap, err := snapshot.Load(root)
	if err != nil {
		return err
	}

	streamer := stream.New(rc.QueueCapacity, rc.EnqueueTimeout)
	engine := verify.NewEngineForSnapshot(client, snap, rc, streamer)

	errCh := make(chan error, 1)
	go func() {
		_, err := engine.Run(ctx, string(cardText))
		errCh <- err
	}()

	enc := json.NewEncoder(os.Stdout)
	for {
		select {
		case ev := <-streamer.Events():
			_ = enc.Encode(ev)
		case ev := <-streamer.Terminal():
			_ = enc.Encode(ev)
			return <-errCh
		case <-ctx.Done():
			return <-errCh
		}
	}
}
