// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/report-engine/internal/report"
	"github.com/pdiddy/report-engine/internal/table"
)

var draftCmd = &cobra.Command{
	Use:   "draft <table.csv>",
	Short: "Write a report section describing a table",
	Long: `Draft sends a CSV table to the model and prints the requested section:
introduction, summary, observation (default) or conclusion. The Spanish names
introduccion, resumen, observacion and conclusion are accepted too.`,
	Args: cobra.ExactArgs(1),
	RunE: runDraft,
}

var insightsCmd = &cobra.Command{
	Use:   "insights <items-file>",
	Short: "Organise partial conclusions into a JSON insight document",
	Long: `Insights reads partial conclusions, one per line or as a YAML/JSON list,
and asks the model to group them into strategic insights. An optional CSV of
projects adds context. The result is JSON; when the model does not answer
with valid JSON the raw text is kept under "raw_response".`,
	Args: cobra.ExactArgs(1),
	RunE: runInsights,
}

func init() {
	draftCmd.Flags().String("section", "observation", "section kind")
	draftCmd.Flags().String("context", "", "project description passed to the model")
	draftCmd.Flags().StringP("out", "o", "", "write the section to this file instead of stdout")
	draftCmd.Flags().String("language", "", "answer language (default from config)")
	draftCmd.Flags().Int("max-tokens", 0, "completion limit (default from config)")
	addModelFlag(draftCmd)

	insightsCmd.Flags().String("projects", "", "CSV of projects used as context")
	insightsCmd.Flags().String("intro", "", "introductory text for the insight document")
	insightsCmd.Flags().StringP("out", "o", "", "write JSON to this file instead of stdout")
	insightsCmd.Flags().String("language", "", "answer language (default from config)")
	insightsCmd.Flags().Int("max-tokens", 0, "completion limit (default from config)")
	addModelFlag(insightsCmd)

	rootCmd.AddCommand(draftCmd, insightsCmd)
}

func runDraft(cmd *cobra.Command, args []string) error {
	sectionName, _ := cmd.Flags().GetString("section")
	section, err := report.ParseSection(sectionName)
	if err != nil {
		return err
	}
	projectCtx, _ := cmd.Flags().GetString("context")
	out, _ := cmd.Flags().GetString("out")
	language, _ := cmd.Flags().GetString("language")
	maxTokens, _ := cmd.Flags().GetInt("max-tokens")

	t, err := readTable(args[0])
	if err != nil {
		return err
	}

	s, err := newLLMSession(cmd)
	if err != nil {
		return err
	}
	defer s.save(cmd.Context())

	if language == "" {
		language = s.cfg.Report.Language
	}
	if maxTokens <= 0 {
		maxTokens = s.cfg.Report.SectionTokens
	}

	fmt.Fprintf(os.Stderr, "Drafting %s from %d rows\n", section, t.Len())
	text, err := report.AnalyzeTable(cmd.Context(), s.client, t, report.SectionOptions{
		Section:   section,
		Context:   projectCtx,
		MaxTokens: maxTokens,
		Model:     s.cfg.LLM.Model,
		Language:  language,
	})
	if err != nil {
		return err
	}
	return writeText(out, text+"\n")
}

// readItems accepts a YAML or JSON list of strings, or plain text with one
// item per line.
func readItems(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var items []string
	if err := yaml.Unmarshal(data, &items); err != nil || len(items) == 0 {
		items = items[:0]
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "- "))
			if line != "" {
				items = append(items, line)
			}
		}
	}
	return items, nil
}

func runInsights(cmd *cobra.Command, args []string) error {
	projectsPath, _ := cmd.Flags().GetString("projects")
	intro, _ := cmd.Flags().GetString("intro")
	out, _ := cmd.Flags().GetString("out")
	language, _ := cmd.Flags().GetString("language")
	maxTokens, _ := cmd.Flags().GetInt("max-tokens")

	items, err := readItems(args[0])
	if err != nil {
		return err
	}
	var projects *table.Table
	if projectsPath != "" {
		if projects, err = readTable(projectsPath); err != nil {
			return err
		}
	}

	s, err := newLLMSession(cmd)
	if err != nil {
		return err
	}
	defer s.save(cmd.Context())

	if language == "" {
		language = s.cfg.Report.Language
	}
	if maxTokens <= 0 {
		maxTokens = s.cfg.Report.InsightTokens
	}

	fmt.Fprintf(os.Stderr, "Organising %d conclusions\n", len(items))
	doc, err := report.Insights(cmd.Context(), s.client, items, projects, intro, report.InsightOptions{
		MaxTokens: maxTokens,
		Model:     s.cfg.LLM.Model,
		Language:  language,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding insights: %w", err)
	}
	return writeText(out, string(data)+"\n")
}

// writeText writes s to path, or to stdout when path is empty.
func writeText(path, s string) error {
	if path == "" {
		_, err := fmt.Print(s)
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(s), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Fprintf(os.Stderr, "Wrote %s\n", path)
	return nil
}
