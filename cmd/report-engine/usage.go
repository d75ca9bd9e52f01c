// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/pdiddy/report-engine/internal/usage"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Inspect recorded token usage and cost",
	Long: `Usage reads the SQLite usage database that every model call is recorded
in. Filters apply to summary and export.`,
}

var usageSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print token and cost totals per model",
	Args:  cobra.NoArgs,
	RunE:  runUsageSummary,
}

var usageExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write usage records and totals to YAML or JSON",
	Args:  cobra.NoArgs,
	RunE:  runUsageExport,
}

var usageImportCmd = &cobra.Command{
	Use:   "import <usage.csv>",
	Short: "Load a token usage CSV into the database",
	Long: `Import reads a CSV in the format of the token log and inserts its rows.
Rows already present are skipped, so importing the same file twice is safe.`,
	Args: cobra.ExactArgs(1),
	RunE: runUsageImport,
}

func init() {
	for _, c := range []*cobra.Command{usageSummaryCmd, usageExportCmd} {
		c.Flags().String("model", "", "only this model")
		c.Flags().String("operation", "", "only this operation")
		c.Flags().String("run", "", "only this run id")
		c.Flags().String("since", "", "only records at or after this date (YYYY-MM-DD or RFC 3339)")
		c.Flags().String("until", "", "only records before this date (YYYY-MM-DD or RFC 3339)")
	}
	usageExportCmd.Flags().String("format", "yaml", "export format: yaml or json")

	usageCmd.AddCommand(usageSummaryCmd, usageExportCmd, usageImportCmd)
	rootCmd.AddCommand(usageCmd)
}

func parseWhen(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD or RFC 3339", s)
	}
	return t, nil
}

func usageFilter(cmd *cobra.Command) (usage.QueryOptions, error) {
	var opts usage.QueryOptions
	opts.Model, _ = cmd.Flags().GetString("model")
	opts.Operation, _ = cmd.Flags().GetString("operation")
	opts.RunID, _ = cmd.Flags().GetString("run")
	since, _ := cmd.Flags().GetString("since")
	until, _ := cmd.Flags().GetString("until")
	var err error
	if opts.Since, err = parseWhen(since); err != nil {
		return opts, err
	}
	if opts.Until, err = parseWhen(until); err != nil {
		return opts, err
	}
	return opts, nil
}

func openUsageStore() (*usage.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return usage.NewStore(cfg.Usage)
}

func runUsageSummary(cmd *cobra.Command, args []string) error {
	opts, err := usageFilter(cmd)
	if err != nil {
		return err
	}
	store, err := openUsageStore()
	if err != nil {
		return err
	}
	defer store.Close()

	rows, err := store.Summarize(cmd.Context(), opts)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("No usage recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tREQUESTS\tINPUT\tOUTPUT\tCOST (USD)")
	var reqs, in, out int
	cost := decimal.Zero
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n", r.Model, r.Requests, r.InputTokens, r.OutputTokens, r.CostUSD.StringFixed(6))
		reqs += r.Requests
		in += r.InputTokens
		out += r.OutputTokens
		cost = cost.Add(r.CostUSD)
	}
	fmt.Fprintf(w, "TOTAL\t%d\t%d\t%d\t%s\n", reqs, in, out, cost.StringFixed(6))
	return w.Flush()
}

func runUsageExport(cmd *cobra.Command, args []string) error {
	opts, err := usageFilter(cmd)
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	store, err := openUsageStore()
	if err != nil {
		return err
	}
	defer store.Close()

	var path string
	switch format {
	case "yaml", "yml":
		path, err = store.ExportYAML(cmd.Context(), opts)
	case "json":
		path, err = store.ExportJSON(cmd.Context(), opts)
	default:
		return fmt.Errorf("unknown format %q (use yaml or json)", format)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Exported usage to %s\n", path)
	return nil
}

func runUsageImport(cmd *cobra.Command, args []string) error {
	store, err := openUsageStore()
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.ImportCSV(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d records from %s\n", n, args[0])
	return nil
}
