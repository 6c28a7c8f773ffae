package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/model"
	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/pipeline"
	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/store"
)

var (
	discoverKeywords []string
	discoverJSON     bool
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Run one full discovery pass",
	Long:  "Plans search chunks from the configured focus areas and geographic tiers, executes them against the provider, then scores and persists the deduplicated results.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		gateway, err := store.Connect(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer gateway.Close()

		p, err := pipeline.New(cfg, gateway)
		if err != nil {
			return err
		}

		result, err := p.Run(ctx, discoverKeywords)
		if err != nil {
			return err
		}

		if result.Run.Status == model.RunQuotaExhausted {
			zap.L().Warn("daily request quota exhausted; run was cut short",
				zap.Int("stored", result.Run.Stored))
		}

		if discoverJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		fmt.Printf("run %s: %s\n", result.Run.ID, result.Run.Status)
		fmt.Printf("  chunks:     %d planned, %d failed\n", result.Run.ChunksPlanned, result.Run.ChunksFailed)
		fmt.Printf("  candidates: %d parsed, %d duplicates\n", result.Run.CandidatesParsed, result.Run.Duplicates)
		fmt.Printf("  stored:     %d\n", result.Run.Stored)
		for _, g := range result.Grants {
			fmt.Printf("  %.4f  %s  %s\n", g.CompositeScore, g.Title, g.SourceURL)
		}
		return nil
	},
}

func init() {
	discoverCmd.Flags().StringSliceVar(&discoverKeywords, "keywords", nil, "extra base keywords appended to each chunk's remaining slots")
	discoverCmd.Flags().BoolVar(&discoverJSON, "json", false, "emit the full run result as JSON")
	rootCmd.AddCommand(discoverCmd)
}
