// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/report-engine/internal/athena"
	"github.com/pdiddy/report-engine/internal/table"
)

var queryCmd = &cobra.Command{
	Use:   "query <sql | @file.sql>",
	Short: "Run a SQL query on Athena and save the result",
	Long: `Query runs SQL against Athena and writes the rows as CSV (default),
JSON or JSON lines, chosen by the --out extension; without --out the CSV goes
to stdout.

Modes:
  ctas    write the result as parquet through a temporary table (large results)
  direct  page through the query results API (small results)
  auto    run directly and switch to ctas when the scan exceeds the threshold

Temporary tables and their S3 objects are always removed.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

var exportCmd = &cobra.Command{
	Use:   "export <table.csv> <name>",
	Short: "Upload a CSV table to S3 as JSON lines",
	Long: `Export reads a CSV file and uploads its rows as JSON lines to
s3://<export_bucket>/<export_prefix>/<name>.json.`,
	Args: cobra.ExactArgs(2),
	RunE: runExport,
}

var createTableCmd = &cobra.Command{
	Use:   "create-table <name> <s3-location>",
	Short: "Create an Athena external table over S3 data",
	Long: `Create-table defines an external table over JSON, CSV or PARQUET data.
Columns come from --columns (name:type,...) or are inferred from a sample
CSV given with --from-csv.`,
	Args: cobra.ExactArgs(2),
	RunE: runCreateTable,
}

func init() {
	queryCmd.Flags().String("mode", "auto", "execution mode: ctas, direct or auto")
	queryCmd.Flags().String("name", "query", "name used for temporary tables")
	queryCmd.Flags().StringP("out", "o", "", "output file (.csv, .json or .jsonl)")
	queryCmd.Flags().String("export", "", "also upload the result as JSON lines under this name")

	createTableCmd.Flags().String("format", "JSON", "data format: JSON, CSV or PARQUET")
	createTableCmd.Flags().String("columns", "", "column definitions, e.g. id:bigint,texto:string")
	createTableCmd.Flags().String("from-csv", "", "infer columns from this CSV file")
	createTableCmd.Flags().String("database", "", "database (default from config)")
	createTableCmd.Flags().Bool("dry-run", false, "print the DDL without running it")

	rootCmd.AddCommand(queryCmd, exportCmd, createTableCmd)
}

func newRunner(cmd *cobra.Command) (*athena.Runner, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return athena.New(cmd.Context(), cfg.Athena, logger)
}

// readSQL returns the query text; "@path" reads it from a file.
func readSQL(arg string) (string, error) {
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading query file: %w", err)
		}
		arg = string(data)
	}
	q := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(arg), ";"))
	if q == "" {
		return "", fmt.Errorf("query is empty")
	}
	return q, nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	query, err := readSQL(args[0])
	if err != nil {
		return err
	}
	mode, _ := cmd.Flags().GetString("mode")
	name, _ := cmd.Flags().GetString("name")
	out, _ := cmd.Flags().GetString("out")
	exportName, _ := cmd.Flags().GetString("export")

	r, err := newRunner(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	var t *table.Table
	switch strings.ToLower(mode) {
	case "ctas":
		t, err = r.Run(ctx, query, name)
	case "direct":
		t, err = r.RunDirect(ctx, query)
	case "auto":
		t, err = r.RunAuto(ctx, query, name)
	default:
		return fmt.Errorf("unknown mode %q (use ctas, direct or auto)", mode)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Query returned %d rows, %d columns\n", t.Len(), len(t.Columns))

	if err := writeTable(t, out); err != nil {
		return err
	}
	if exportName != "" {
		uri, err := r.ExportJSON(ctx, t, exportName)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Exported to %s\n", uri)
	}
	return nil
}

// writeTable writes t to path in the format named by its extension, or CSV
// to stdout when path is empty.
func writeTable(t *table.Table, path string) error {
	if path == "" {
		return t.WriteCSV(os.Stdout)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	var write func(io.Writer) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		write = t.WriteJSON
	case ".jsonl", ".ndjson":
		write = t.WriteJSONLines
	default:
		write = t.WriteCSV
	}
	if err := write(f); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// readTable loads a CSV file.
func readTable(path string) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	t, err := table.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return t, nil
}

func runExport(cmd *cobra.Command, args []string) error {
	t, err := readTable(args[0])
	if err != nil {
		return err
	}
	r, err := newRunner(cmd)
	if err != nil {
		return err
	}
	uri, err := r.ExportJSON(cmd.Context(), t, args[1])
	if err != nil {
		return err
	}
	fmt.Printf("Exported %d rows to %s\n", t.Len(), uri)
	return nil
}

// parseColumns parses "name:type,name:type".
func parseColumns(s string) ([]table.ColumnDef, error) {
	var defs []table.ColumnDef
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, typ, ok := strings.Cut(part, ":")
		if !ok || strings.TrimSpace(name) == "" || strings.TrimSpace(typ) == "" {
			return nil, fmt.Errorf("column %q: want name:type", part)
		}
		defs = append(defs, table.ColumnDef{Name: strings.TrimSpace(name), Type: strings.TrimSpace(typ)})
	}
	return defs, nil
}

func runCreateTable(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	colSpec, _ := cmd.Flags().GetString("columns")
	fromCSV, _ := cmd.Flags().GetString("from-csv")
	database, _ := cmd.Flags().GetString("database")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	var cols []table.ColumnDef
	switch {
	case colSpec != "":
		var err error
		if cols, err = parseColumns(colSpec); err != nil {
			return err
		}
	case fromCSV != "":
		t, err := readTable(fromCSV)
		if err != nil {
			return err
		}
		cols = t.Schema()
	default:
		return fmt.Errorf("provide --columns or --from-csv")
	}

	ext := athena.ExternalTable{Name: args[0], Location: args[1], Columns: cols, Database: database, Format: format}
	if dryRun {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ddl, err := ext.DDL(cfg.Athena.Database)
		if err != nil {
			return err
		}
		fmt.Println(ddl)
		return nil
	}

	r, err := newRunner(cmd)
	if err != nil {
		return err
	}
	if err := r.CreateExternalTable(cmd.Context(), ext); err != nil {
		return err
	}
	fmt.Printf("Created table %s (%d columns)\n", args[0], len(cols))
	return nil
}
