// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/report-engine/internal/llm"
	"github.com/pdiddy/report-engine/internal/secrets"
	"github.com/pdiddy/report-engine/internal/usage"
	"github.com/pdiddy/report-engine/pkg/types"
)

// llmSession is a client plus the ledger its calls are recorded in.
type llmSession struct {
	client *llm.Client
	ledger *llm.Ledger
	cfg    types.Config
	runID  string
}

func newLLMSession(cmd *cobra.Command) (*llmSession, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if model, _ := cmd.Flags().GetString("model"); model != "" {
		cfg.LLM.Model = model
	}
	if cfg.LLM.APIKey == "" {
		key, err := resolveSecret(cmd, cfg, secrets.OpenAIKey)
		if err != nil {
			return nil, fmt.Errorf("no API key (set OPENAI_API_KEY, .secrets/openai-api-key or --secret-id): %w", err)
		}
		cfg.LLM.APIKey = key
	}
	ledger := llm.NewLedger()
	return &llmSession{
		client: llm.NewClient(cfg.LLM, ledger, logger),
		ledger: ledger,
		cfg:    cfg,
		runID:  uuid.NewString(),
	}, nil
}

// save appends this run's usage to the CSV log and the usage database and
// prints the totals. Failures are logged; they never fail the command.
func (s *llmSession) save(ctx context.Context) {
	recs := s.ledger.Records()
	if len(recs) == 0 {
		return
	}
	if err := s.ledger.SaveCSV(s.cfg.Usage.CSVFile); err != nil {
		logger.Warn("saving usage CSV", zap.String("path", s.cfg.Usage.CSVFile), zap.Error(err))
	}

	store, err := usage.NewStore(s.cfg.Usage)
	if err != nil {
		logger.Warn("opening usage store", zap.Error(err))
	} else {
		defer store.Close()
		if _, err := store.Record(context.WithoutCancel(ctx), s.runID, recs); err != nil {
			logger.Warn("recording usage", zap.Error(err))
		}
	}

	tot := s.ledger.Totals()
	fmt.Fprintf(os.Stderr, "Tokens: %d in, %d out, cost $%s (%d requests)\n",
		tot.InputTokens, tot.OutputTokens, tot.CostUSD.StringFixed(6), tot.Requests)
}

func addModelFlag(cmd *cobra.Command) {
	cmd.Flags().String("model", "", "model override (default from config)")
}
