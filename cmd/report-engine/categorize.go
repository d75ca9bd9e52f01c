// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/report-engine/internal/categorize"
	"github.com/pdiddy/report-engine/internal/table"
	"github.com/pdiddy/report-engine/pkg/types"
)

var categorizeCmd = &cobra.Command{
	Use:   "categorize <answers.csv>",
	Short: "Assign free-text answers to a fixed set of categories",
	Long: `Categorize splits the answers into token-bounded batches, sends the
batches to the model concurrently and writes one row per categorized answer
(id, category, confidence, batch).

Categories come from --categories as a comma-separated list, or from a file
with one category per line when written as @file.

The command fails when any batch failed after its retries; the answers that
were categorized are still written.`,
	Args: cobra.ExactArgs(1),
	RunE: runCategorize,
}

func init() {
	categorizeFlags(categorizeCmd)
	_ = categorizeCmd.MarkFlagRequired("categories")

	rootCmd.AddCommand(categorizeCmd)
}

func categorizeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("id-col", "id", "column holding the record id")
	f.String("text-col", "texto", "column holding the answer text")
	f.String("categories", "", "categories: a,b,c or @file")
	f.StringP("out", "o", "", "output file (.csv, .json or .jsonl; default stdout)")
	f.Int("workers", 0, "concurrent batches (default from config)")
	f.Int("batch-tokens", 0, "token budget per batch (default from config)")
	f.Int("retries", 0, "retries per failed batch (default from config)")
	f.String("token-method", "", "token counter: tiktoken or simple")
	f.String("fallback", "", "category for answers outside the set")
	f.Bool("dry-run", false, "print the batch plan without calling the model")
	f.Bool("history", false, "print the batch history when done")
	addModelFlag(cmd)
}

// readCategories parses "a,b,c" or reads "@file", one category per line.
func readCategories(spec string) ([]string, error) {
	var raw []string
	if path, ok := strings.CutPrefix(spec, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading categories: %w", err)
		}
		raw = strings.Split(string(data), "\n")
	} else {
		raw = strings.Split(spec, ",")
	}
	var cats []string
	for _, c := range raw {
		if c = strings.TrimSpace(c); c != "" {
			cats = append(cats, c)
		}
	}
	if len(cats) == 0 {
		return nil, categorize.ErrNoCategories
	}
	return cats, nil
}

// recordsFrom extracts id/text pairs from t.
func recordsFrom(t *table.Table, idCol, textCol string) ([]categorize.Record, error) {
	ic, ok := t.ColumnIndex(idCol)
	if !ok {
		return nil, fmt.Errorf("id column %q not found (have %s)", idCol, strings.Join(t.Names(), ", "))
	}
	tc, ok := t.ColumnIndex(textCol)
	if !ok {
		return nil, fmt.Errorf("text column %q not found (have %s)", textCol, strings.Join(t.Names(), ", "))
	}
	recs := make([]categorize.Record, t.Len())
	for r := range recs {
		recs[r] = categorize.Record{ID: t.Text(r, ic), Text: t.Text(r, tc)}
	}
	return recs, nil
}

// categorizeOverrides applies the flags the user set on top of the
// configured values. An unset --retries keeps the configured count, zero
// included.
func categorizeOverrides(cmd *cobra.Command, cc types.CategorizeConfig) types.CategorizeConfig {
	f := cmd.Flags()
	if v, _ := f.GetInt("workers"); v > 0 {
		cc.Workers = v
	}
	if v, _ := f.GetInt("batch-tokens"); v > 0 {
		cc.BatchTokens = v
	}
	if f.Changed("retries") {
		cc.MaxRetries, _ = f.GetInt("retries")
	}
	if v, _ := f.GetString("token-method"); v != "" {
		cc.TokenMethod = v
	}
	if v, _ := f.GetString("fallback"); v != "" {
		cc.Fallback = v
	}
	if v, _ := f.GetString("model"); v != "" {
		cc.Model = v
	}
	return cc
}

func runCategorize(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	idCol, _ := f.GetString("id-col")
	textCol, _ := f.GetString("text-col")
	catSpec, _ := f.GetString("categories")
	out, _ := f.GetString("out")
	dryRun, _ := f.GetBool("dry-run")
	showHistory, _ := f.GetBool("history")

	cats, err := readCategories(catSpec)
	if err != nil {
		return err
	}
	t, err := readTable(args[0])
	if err != nil {
		return err
	}
	records, err := recordsFrom(t, idCol, textCol)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cc := categorizeOverrides(cmd, cfg.Categorize)

	if dryRun {
		batches, skipped, err := categorize.New(nil, cc, logger).Plan(records, cats)
		if err != nil {
			return err
		}
		fmt.Printf("%d records, %d batches, %d blank\n", len(records), len(batches), len(skipped))
		for _, b := range batches {
			fmt.Printf("  batch %d: %d records, ~%d tokens\n", b.Index, len(b.Records), b.Tokens)
		}
		return nil
	}

	s, err := newLLMSession(cmd)
	if err != nil {
		return err
	}
	defer s.save(cmd.Context())

	c := categorize.New(s.client, cc, logger)
	fmt.Fprintf(os.Stderr, "Categorizing %d answers into %d categories\n", len(records), len(cats))
	res, runErr := c.Run(cmd.Context(), records, cats)

	if showHistory {
		for _, line := range c.History() {
			fmt.Fprintln(os.Stderr, line)
		}
	}
	sum := res.Summary
	fmt.Fprintf(os.Stderr, "Run %s: %d records, %d batches (%d ok, %d failed), %d categorized, %d missing\n",
		res.RunID, sum.Records, sum.Batches, sum.Succeeded, sum.Failed, sum.Categorized, sum.Missing)
	printCounts(res.Counts())

	if len(res.Assignments) > 0 {
		if err := writeTable(res.Table(), out); err != nil {
			return err
		}
	}
	if runErr != nil {
		return runErr
	}
	if sum.HasFailures() {
		for _, fb := range res.Failed {
			fmt.Fprintf(os.Stderr, "  batch %d (%d records): %s\n", fb.Batch, len(fb.IDs), fb.Err)
		}
		return fmt.Errorf("%d of %d batches failed", sum.Failed, sum.Batches)
	}
	return nil
}

func printCounts(counts map[string]int) {
	names := make([]string, 0, len(counts))
	for k := range counts {
		names = append(names, k)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	for _, n := range names {
		fmt.Fprintf(os.Stderr, "  %-30s %d\n", n, counts[n])
	}
}
