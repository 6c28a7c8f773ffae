package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/model"
	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/scorer"
	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/store"
)

var (
	scoreMinScore float64
	scoreSector   string
	scoreLimit    int
	scoreJSON     bool
	scoreRescore  bool
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "List stored grants ranked by composite score",
	Long:  "Lists stored grants ordered by composite score. With --rescore, re-runs both scoring stages against the current keyword tables and weights and persists the updated scores first.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		gateway, err := store.Connect(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer gateway.Close()

		if scoreRescore {
			if err := rescoreStored(cmd, gateway); err != nil {
				return err
			}
		}

		grants, err := gateway.ListByScore(ctx, store.GrantFilter{
			MinScore: scoreMinScore,
			Sector:   scoreSector,
			Limit:    scoreLimit,
		})
		if err != nil {
			return err
		}

		if scoreJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(grants)
		}

		for _, g := range grants {
			deadline := g.Deadline
			if deadline == "" {
				deadline = "-"
			}
			fmt.Printf("%.4f  %-60.60s  %-12s  %s\n", g.CompositeScore, g.Title, deadline, g.SourceURL)
		}
		return nil
	},
}

// rescoreStored re-runs both scoring stages over every stored grant and
// persists the refreshed scores. The scan is unbounded; the listing
// --limit only bounds the output afterwards. A failed update skips that
// grant only.
func rescoreStored(cmd *cobra.Command, gateway store.Gateway) error {
	ctx := cmd.Context()

	grants, err := gateway.ListByScore(ctx, store.GrantFilter{Limit: -1})
	if err != nil {
		return err
	}

	relevance := scorer.NewRelevanceScorer(cfg.Scoring.Relevance)
	compliance := scorer.NewComplianceScorer(cfg.Scoring.Compliance, cfg.Scoring.Weights)

	updated := 0
	for i := range grants {
		g := &grants[i]
		g.ResearchContext = model.ResearchContextScores{}
		g.Compliance = model.ComplianceScores{}
		relevance.Score(g)
		compliance.Score(g)

		if err := gateway.UpdateScores(ctx, g); err != nil {
			zap.L().Warn("rescore: update failed, skipping grant",
				zap.String("id", g.ID),
				zap.Error(err))
			continue
		}
		updated++
	}

	zap.L().Info("rescore complete",
		zap.Int("scanned", len(grants)),
		zap.Int("updated", updated))
	return nil
}

func init() {
	scoreCmd.Flags().Float64Var(&scoreMinScore, "min-score", 0, "minimum composite score")
	scoreCmd.Flags().StringVar(&scoreSector, "sector", "", "filter by sector focus")
	scoreCmd.Flags().IntVar(&scoreLimit, "limit", 50, "maximum rows to return")
	scoreCmd.Flags().BoolVar(&scoreJSON, "json", false, "emit results as JSON")
	scoreCmd.Flags().BoolVar(&scoreRescore, "rescore", false, "re-run scoring with current config before listing")
	rootCmd.AddCommand(scoreCmd)
}
