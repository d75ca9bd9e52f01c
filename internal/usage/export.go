// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

// ExportEntry is one usage record in export files.
type ExportEntry struct {
	ID           string `json:"id" yaml:"id"`
	Time         string `json:"time" yaml:"time"`
	Operation    string `json:"operation,omitempty" yaml:"operation,omitempty"`
	Model        string `json:"model" yaml:"model"`
	InputTokens  int    `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens int    `json:"output_tokens" yaml:"output_tokens"`
	CostUSD      string `json:"cost_usd" yaml:"cost_usd"`
}

// Export is the document written by ExportYAML and ExportJSON.
type Export struct {
	Summary []ExportSummary `json:"summary" yaml:"summary"`
	Records []ExportEntry   `json:"records" yaml:"records"`
}

// ExportSummary is a ModelSummary with the cost rendered as text.
type ExportSummary struct {
	Model        string `json:"model" yaml:"model"`
	Requests     int    `json:"requests" yaml:"requests"`
	InputTokens  int    `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens int    `json:"output_tokens" yaml:"output_tokens"`
	CostUSD      string `json:"cost_usd" yaml:"cost_usd"`
}

// ExportYAML writes matching usage to dir/export.yaml and returns the path.
func (s *Store) ExportYAML(ctx context.Context, opts QueryOptions) (string, error) {
	doc, err := s.export(ctx, opts)
	if err != nil {
		return "", err
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshaling YAML: %w", err)
	}
	path := filepath.Join(s.dir, "export.yaml")
	return path, os.WriteFile(path, data, 0o644)
}

// ExportJSON writes matching usage to dir/export.json and returns the path.
func (s *Store) ExportJSON(ctx context.Context, opts QueryOptions) (string, error) {
	doc, err := s.export(ctx, opts)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling JSON: %w", err)
	}
	path := filepath.Join(s.dir, "export.json")
	return path, os.WriteFile(path, data, 0o644)
}

func (s *Store) export(ctx context.Context, opts QueryOptions) (*Export, error) {
	records, err := s.Query(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("querying for export: %w", err)
	}
	summary, err := s.Summarize(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("summarizing for export: %w", err)
	}

	doc := &Export{
		Summary: make([]ExportSummary, len(summary)),
		Records: make([]ExportEntry, len(records)),
	}
	for i, m := range summary {
		doc.Summary[i] = ExportSummary{
			Model:        m.Model,
			Requests:     m.Requests,
			InputTokens:  m.InputTokens,
			OutputTokens: m.OutputTokens,
			CostUSD:      m.CostUSD.StringFixed(6),
		}
	}
	for i, r := range records {
		doc.Records[i] = ExportEntry{
			ID:           r.ID,
			Time:         r.Time.Format("2006-01-02T15:04:05Z07:00"),
			Operation:    r.Operation,
			Model:        r.Model,
			InputTokens:  r.InputTokens,
			OutputTokens: r.OutputTokens,
			CostUSD:      r.CostUSD.StringFixed(6),
		}
	}
	return doc, nil
}
