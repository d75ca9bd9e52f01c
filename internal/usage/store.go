// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package usage persists chat-completion usage records in SQLite so cost can
// be reported across runs.
package usage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/pdiddy/report-engine/internal/llm"
	"github.com/pdiddy/report-engine/pkg/types"
)

const dbFile = "usage.db"

// Store manages the usage SQLite database.
type Store struct {
	db  *sql.DB
	dir string
}

// NewStore opens or creates dir/usage.db and its schema.
func NewStore(cfg types.UsageConfig) (*Store, error) {
	cfg = cfg.Defaults()
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating usage directory: %w", err)
	}

	dbPath := filepath.Join(cfg.Dir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, dir: cfg.Dir}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dir returns the directory holding the database.
func (s *Store) Dir() string { return s.dir }

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS usage (
			id TEXT PRIMARY KEY,
			run_id TEXT,
			time TEXT NOT NULL,
			operation TEXT,
			model TEXT NOT NULL,
			input_tokens INTEGER NOT NULL,
			output_tokens INTEGER NOT NULL,
			cost_usd TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_model ON usage(model)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_time ON usage(time)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Record inserts records under runID. Records whose id is already stored
// are skipped. It returns the number of rows inserted.
func (s *Store) Record(ctx context.Context, runID string, records []llm.UsageRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO usage (id, run_id, time, operation, model, input_tokens, output_tokens, cost_usd)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range records {
		res, err := stmt.ExecContext(ctx,
			r.ID, runID, r.Time.UTC().Format(time.RFC3339Nano), r.Operation, r.Model,
			r.InputTokens, r.OutputTokens, r.CostUSD.String(),
		)
		if err != nil {
			return 0, fmt.Errorf("inserting usage %s: %w", r.ID, err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing usage: %w", err)
	}
	return inserted, nil
}

// QueryOptions filters usage records. Zero fields do not filter.
type QueryOptions struct {
	Model     string
	Operation string
	RunID     string
	Since     time.Time
	Until     time.Time
}

// Query returns matching records ordered by time.
func (s *Store) Query(ctx context.Context, opts QueryOptions) ([]llm.UsageRecord, error) {
	var where []string
	var args []any
	if opts.Model != "" {
		where = append(where, "model = ?")
		args = append(args, opts.Model)
	}
	if opts.Operation != "" {
		where = append(where, "operation = ?")
		args = append(args, opts.Operation)
	}
	if opts.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, opts.RunID)
	}
	if !opts.Since.IsZero() {
		where = append(where, "time >= ?")
		args = append(args, opts.Since.UTC().Format(time.RFC3339Nano))
	}
	if !opts.Until.IsZero() {
		where = append(where, "time < ?")
		args = append(args, opts.Until.UTC().Format(time.RFC3339Nano))
	}

	q := `SELECT id, time, operation, model, input_tokens, output_tokens, cost_usd FROM usage`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY time, id"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying usage: %w", err)
	}
	defer rows.Close()

	var out []llm.UsageRecord
	for rows.Next() {
		var (
			r        llm.UsageRecord
			ts, cost string
			op       sql.NullString
		)
		if err := rows.Scan(&r.ID, &ts, &op, &r.Model, &r.InputTokens, &r.OutputTokens, &cost); err != nil {
			return nil, fmt.Errorf("scanning usage row: %w", err)
		}
		r.Operation = op.String
		if r.Time, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parsing time of %s: %w", r.ID, err)
		}
		if r.CostUSD, err = decimal.NewFromString(cost); err != nil {
			return nil, fmt.Errorf("parsing cost of %s: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ModelSummary aggregates usage for one model.
type ModelSummary struct {
	Model        string          `json:"model" yaml:"model"`
	Requests     int             `json:"requests" yaml:"requests"`
	InputTokens  int             `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens int             `json:"output_tokens" yaml:"output_tokens"`
	CostUSD      decimal.Decimal `json:"cost_usd" yaml:"cost_usd"`
}

// Summarize groups matching records by model, ordered by descending cost.
func (s *Store) Summarize(ctx context.Context, opts QueryOptions) ([]ModelSummary, error) {
	records, err := s.Query(ctx, opts)
	if err != nil {
		return nil, err
	}

	byModel := make(map[string][]llm.UsageRecord)
	for _, r := range records {
		byModel[r.Model] = append(byModel[r.Model], r)
	}

	out := make([]ModelSummary, 0, len(byModel))
	for model, recs := range byModel {
		t := llm.Sum(recs)
		out = append(out, ModelSummary{
			Model:        model,
			Requests:     t.Requests,
			InputTokens:  t.InputTokens,
			OutputTokens: t.OutputTokens,
			CostUSD:      t.CostUSD,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].CostUSD.Cmp(out[j].CostUSD); c != 0 {
			return c > 0
		}
		return out[i].Model < out[j].Model
	})
	return out, nil
}

// ImportCSV loads a usage CSV (as written by llm.Ledger.SaveCSV) into the
// store. Rows without an id get one derived from their time and model.
func (s *Store) ImportCSV(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	records, err := llm.ReadCSV(f)
	if err != nil {
		return 0, err
	}
	for i := range records {
		if records[i].ID == "" {
			records[i].ID = fmt.Sprintf("csv-%s-%s-%d", records[i].Time.Format("20060102T150405"), records[i].Model, i)
		}
	}
	return s.Record(ctx, "import", records)
}
