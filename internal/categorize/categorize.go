// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package categorize assigns free-text survey answers to categories through a
// chat-completion backend. Answers are packed into token-budgeted batches,
// dispatched concurrently with a bounded worker count, and reassembled by id.
// A failed batch is recorded and never aborts the others.
package categorize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/report-engine/internal/history"
	"github.com/pdiddy/report-engine/internal/llm"
	"github.com/pdiddy/report-engine/internal/metrics"
	"github.com/pdiddy/report-engine/internal/table"
	"github.com/pdiddy/report-engine/pkg/types"
)

var (
	// ErrNoCategories is returned when Run is given no categories.
	ErrNoCategories = errors.New("no categories given")

	// ErrDuplicateID is returned when two records share an id.
	ErrDuplicateID = errors.New("duplicate record id")
)

// Assignment is the category chosen for one record.
type Assignment struct {
	ID         string   `json:"id" yaml:"id"`
	Category   string   `json:"category" yaml:"category"`
	Confidence *float64 `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	Batch      int      `json:"batch" yaml:"batch"`
}

// BatchError describes a batch that failed after all retries.
type BatchError struct {
	Batch int      `json:"batch" yaml:"batch"`
	IDs   []string `json:"ids" yaml:"ids"`
	Err   string   `json:"error" yaml:"error"`
}

// Summary holds counts from a categorization run.
type Summary struct {
	Records     int
	Batches     int
	Succeeded   int
	Failed      int
	Categorized int
	Missing     int
}

// HasFailures reports whether any batch failed.
func (s Summary) HasFailures() bool {
	return s.Failed > 0
}

// Result is the outcome of a run. Assignments follow input order; Missing
// lists, in input order, the ids that received no category (blank text,
// failed batch, or left out by the model).
type Result struct {
	RunID       string
	Assignments []Assignment
	Missing     []string
	Failed      []BatchError
	Summary     Summary
}

// Table returns the assignments as a table with columns id, category,
// confidence and batch.
func (r Result) Table() *table.Table {
	t := table.New(
		table.Column{Name: "id", Type: table.String},
		table.Column{Name: "category", Type: table.String},
		table.Column{Name: "confidence", Type: table.Float64},
		table.Column{Name: "batch", Type: table.Int64},
	)
	for _, a := range r.Assignments {
		var conf any
		if a.Confidence != nil {
			conf = *a.Confidence
		}
		t.Rows = append(t.Rows, []any{a.ID, a.Category, conf, int64(a.Batch)})
	}
	return t
}

// WriteCSV writes the assignments table as CSV.
func (r Result) WriteCSV(w io.Writer) error {
	return r.Table().WriteCSV(w)
}

// Counts returns the number of assignments per category.
func (r Result) Counts() map[string]int {
	out := make(map[string]int)
	for _, a := range r.Assignments {
		out[a.Category]++
	}
	return out
}

// backoffBase controls the base duration for exponential backoff between
// batch attempts. Tests override this to avoid real sleeps.
var backoffBase = time.Second

// Categorizer runs batch categorization. It is safe to call Run from one
// goroutine at a time; the history log accumulates across runs.
type Categorizer struct {
	completer llm.Completer
	cfg       types.CategorizeConfig
	counter   TokenCounter
	logger    *zap.Logger
	history   *history.Log
}

// New returns a Categorizer. Zero config fields take defaults.
func New(c llm.Completer, cfg types.CategorizeConfig, logger *zap.Logger) *Categorizer {
	cfg = cfg.Defaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Categorizer{
		completer: c,
		cfg:       cfg,
		counter:   NewTokenCounter(cfg.TokenMethod),
		logger:    logger,
		history:   &history.Log{},
	}
}

// WithCounter replaces the token counter.
func (c *Categorizer) WithCounter(tc TokenCounter) *Categorizer {
	c.counter = tc
	return c
}

// History returns the batch progress lines recorded so far.
func (c *Categorizer) History() []string {
	return c.history.Lines()
}

// Plan validates the input and returns the batches Run would dispatch
// together with the ids skipped for blank text.
func (c *Categorizer) Plan(records []Record, categories []string) ([]Batch, []string, error) {
	cats := cleanCategories(categories)
	if len(cats) == 0 {
		return nil, nil, ErrNoCategories
	}
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		if seen[r.ID] {
			return nil, nil, fmt.Errorf("%w: %q", ErrDuplicateID, r.ID)
		}
		seen[r.ID] = true
	}

	empty, err := renderBatchPrompt(cats, c.cfg.Fallback, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("rendering prompt: %w", err)
	}
	batches, skipped := Split(records, c.counter, c.cfg.BatchTokens, c.counter.Count(empty))
	return batches, skipped, nil
}

// Run categorizes records into categories. Batch failures are reported in
// the result; only cancellation of ctx returns an error, together with the
// partial result.
func (c *Categorizer) Run(ctx context.Context, records []Record, categories []string) (Result, error) {
	res := Result{RunID: uuid.NewString()}
	if len(records) == 0 {
		return res, nil
	}

	batches, skipped, err := c.Plan(records, categories)
	if err != nil {
		return res, err
	}
	cats := cleanCategories(categories)

	c.logger.Info("categorization started",
		zap.String("run_id", res.RunID),
		zap.Int("records", len(records)),
		zap.Int("batches", len(batches)),
		zap.Int("skipped", len(skipped)),
		zap.Int("workers", c.cfg.Workers),
		zap.String("token_method", c.counter.Method()),
	)
	c.history.Add("run %s: %d records in %d batches (%d blank)", res.RunID, len(records), len(batches), len(skipped))

	type outcome struct {
		assignments []Assignment
		err         error
	}
	slots := make([]outcome, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers)
	for i := range batches {
		if gctx.Err() != nil {
			break
		}
		b := batches[i]
		g.Go(func() error {
			metrics.BatchesInFlight.Inc()
			defer metrics.BatchesInFlight.Dec()

			c.history.Add("batch %d: started (%d records, ~%d tokens)", b.Index, len(b.Records), b.Tokens)
			assignments, err := c.runBatch(gctx, b, cats)
			slots[i] = outcome{assignments: assignments, err: err}
			if err != nil {
				metrics.IncBatch("error")
				c.history.Add("batch %d: failed: %v", b.Index, err)
				c.logger.Warn("batch failed",
					zap.Int("batch", b.Index), zap.Int("records", len(b.Records)), zap.Error(err))
				return nil
			}
			metrics.IncBatch("ok")
			c.history.Add("batch %d: done (%d categorized)", b.Index, len(assignments))
			return nil
		})
	}
	_ = g.Wait()

	byID := make(map[string]Assignment, len(records))
	for i, s := range slots {
		if s.err != nil {
			res.Failed = append(res.Failed, BatchError{Batch: batches[i].Index, IDs: batches[i].IDs(), Err: s.err.Error()})
			continue
		}
		if s.assignments == nil {
			continue
		}
		res.Summary.Succeeded++
		for _, a := range s.assignments {
			byID[a.ID] = a
		}
	}

	for _, r := range records {
		if a, ok := byID[r.ID]; ok {
			res.Assignments = append(res.Assignments, a)
		} else {
			res.Missing = append(res.Missing, r.ID)
		}
	}

	res.Summary.Records = len(records)
	res.Summary.Batches = len(batches)
	res.Summary.Failed = len(res.Failed)
	res.Summary.Categorized = len(res.Assignments)
	res.Summary.Missing = len(res.Missing)

	c.logger.Info("categorization finished",
		zap.String("run_id", res.RunID),
		zap.Int("categorized", res.Summary.Categorized),
		zap.Int("missing", res.Summary.Missing),
		zap.Int("failed_batches", res.Summary.Failed),
	)
	c.history.Add("run %s: %d categorized, %d missing, %d failed batches",
		res.RunID, res.Summary.Categorized, res.Summary.Missing, res.Summary.Failed)

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

// runBatch sends one batch, retrying with exponential backoff.
func (c *Categorizer) runBatch(ctx context.Context, b Batch, cats []string) ([]Assignment, error) {
	prompt, err := renderBatchPrompt(cats, c.cfg.Fallback, b.Records)
	if err != nil {
		return nil, fmt.Errorf("rendering prompt: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * backoffBase
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := c.completer.Complete(ctx, llm.Request{
			Prompt:      prompt,
			Model:       c.cfg.Model,
			MaxTokens:   c.cfg.MaxTokens,
			Temperature: llm.Temperature(0),
			Operation:   "categorize",
		})
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		assignments, err := parseAssignments(resp.Text, b, cats, c.cfg.Fallback)
		if err != nil {
			lastErr = err
			continue
		}
		return assignments, nil
	}
	return nil, fmt.Errorf("after %d retries: %w", c.cfg.MaxRetries, lastErr)
}

// flexID accepts ids the model returns as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return fmt.Errorf("id must be a string or number: %s", data)
	}
	*f = flexID(n.String())
	return nil
}

type answer struct {
	ID         flexID   `json:"id"`
	Category   string   `json:"category"`
	Confidence *float64 `json:"confidence"`
}

// parseAssignments decodes the model answer for batch b. Ids outside the
// batch are ignored and categories outside cats become fallback.
func parseAssignments(text string, b Batch, cats []string, fallback string) ([]Assignment, error) {
	raw := llm.ExtractJSON(text)

	var answers []answer
	if err := json.Unmarshal([]byte(raw), &answers); err != nil {
		var wrapped struct {
			Results []answer `json:"results"`
		}
		if err2 := json.Unmarshal([]byte(raw), &wrapped); err2 != nil || wrapped.Results == nil {
			return nil, fmt.Errorf("parsing categorization JSON: %w", err)
		}
		answers = wrapped.Results
	}

	inBatch := make(map[string]bool, len(b.Records))
	for _, r := range b.Records {
		inBatch[r.ID] = true
	}
	canonical := make(map[string]string, len(cats))
	for _, cat := range cats {
		canonical[strings.ToLower(cat)] = cat
	}

	seen := make(map[string]bool)
	out := make([]Assignment, 0, len(answers))
	for _, a := range answers {
		id := strings.TrimSpace(string(a.ID))
		if !inBatch[id] || seen[id] {
			continue
		}
		seen[id] = true
		cat, ok := canonical[strings.ToLower(strings.TrimSpace(a.Category))]
		if !ok {
			cat = fallback
		}
		out = append(out, Assignment{ID: id, Category: cat, Confidence: a.Confidence, Batch: b.Index})
	}
	return out, nil
}

// cleanCategories trims and de-duplicates categories, keeping order.
func cleanCategories(categories []string) []string {
	seen := make(map[string]bool, len(categories))
	var out []string
	for _, c := range categories {
		c = strings.TrimSpace(c)
		key := strings.ToLower(c)
		if c == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}
