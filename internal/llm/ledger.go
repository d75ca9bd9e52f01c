// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// TimeLayout is the timestamp format used in the usage CSV.
const TimeLayout = "2006-01-02 15:04:05"

// csvHeader is the column order of the usage CSV.
var csvHeader = []string{"id", "time", "operation", "model", "input_tokens", "output_tokens", "cost_usd"}

// UsageRecord is one completed chat-completion request.
type UsageRecord struct {
	ID           string          `json:"id" yaml:"id"`
	Time         time.Time       `json:"time" yaml:"time"`
	Operation    string          `json:"operation,omitempty" yaml:"operation,omitempty"`
	Model        string          `json:"model" yaml:"model"`
	InputTokens  int             `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens int             `json:"output_tokens" yaml:"output_tokens"`
	CostUSD      decimal.Decimal `json:"cost_usd" yaml:"cost_usd"`
}

// Totals aggregates a set of usage records.
type Totals struct {
	Requests     int
	InputTokens  int
	OutputTokens int
	CostUSD      decimal.Decimal
}

// Ledger is an append-only usage log safe for concurrent use.
type Ledger struct {
	mu      sync.Mutex
	records []UsageRecord
	saved   int
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Add appends a record.
func (l *Ledger) Add(r UsageRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, r)
}

// Records returns a copy of all records in insertion order.
func (l *Ledger) Records() []UsageRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]UsageRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Totals sums tokens and cost over all records.
func (l *Ledger) Totals() Totals {
	return Sum(l.Records())
}

// Sum aggregates the given records.
func Sum(records []UsageRecord) Totals {
	t := Totals{CostUSD: decimal.Zero}
	for _, r := range records {
		t.Requests++
		t.InputTokens += r.InputTokens
		t.OutputTokens += r.OutputTokens
		t.CostUSD = t.CostUSD.Add(r.CostUSD)
	}
	return t
}

// WriteCSV writes all records with a header row.
func (l *Ledger) WriteCSV(w io.Writer) error {
	return writeCSV(w, l.Records(), true)
}

// SaveCSV appends the records added since the previous save to the file at
// path. The header is written only when the file is new or empty.
func (l *Ledger) SaveCSV(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	pending := l.records[l.saved:]
	if len(pending) == 0 {
		return nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating usage directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening usage file %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat usage file %s: %w", path, err)
	}

	if err := writeCSV(f, pending, info.Size() == 0); err != nil {
		return fmt.Errorf("writing usage file %s: %w", path, err)
	}
	l.saved = len(l.records)
	return nil
}

func writeCSV(w io.Writer, records []UsageRecord, header bool) error {
	cw := csv.NewWriter(w)
	if header {
		if err := cw.Write(csvHeader); err != nil {
			return err
		}
	}
	for _, r := range records {
		row := []string{
			r.ID,
			r.Time.Format(TimeLayout),
			r.Operation,
			r.Model,
			strconv.Itoa(r.InputTokens),
			strconv.Itoa(r.OutputTokens),
			r.CostUSD.StringFixed(6),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a usage CSV written by SaveCSV or WriteCSV.
func ReadCSV(r io.Reader) ([]UsageRecord, error) {
	cr := csv.NewReader(r)
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading usage csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	var out []UsageRecord
	for i, row := range rows[1:] {
		if len(row) != len(csvHeader) {
			return nil, fmt.Errorf("usage csv line %d: %d fields, want %d", i+2, len(row), len(csvHeader))
		}
		ts, err := time.ParseInLocation(TimeLayout, row[1], time.Local)
		if err != nil {
			return nil, fmt.Errorf("usage csv line %d: %w", i+2, err)
		}
		in, err := strconv.Atoi(row[4])
		if err != nil {
			return nil, fmt.Errorf("usage csv line %d: input tokens: %w", i+2, err)
		}
		outTok, err := strconv.Atoi(row[5])
		if err != nil {
			return nil, fmt.Errorf("usage csv line %d: output tokens: %w", i+2, err)
		}
		cost, err := decimal.NewFromString(row[6])
		if err != nil {
			return nil, fmt.Errorf("usage csv line %d: cost: %w", i+2, err)
		}
		out = append(out, UsageRecord{
			ID:           row[0],
			Time:         ts,
			Operation:    row[2],
			Model:        row[3],
			InputTokens:  in,
			OutputTokens: outTok,
			CostUSD:      cost,
		})
	}
	return out, nil
}
