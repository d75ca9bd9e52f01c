// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/report-engine/internal/httputil"
	"github.com/pdiddy/report-engine/pkg/types"
)

func init() {
	httputil.RetryBaseDelay = time.Millisecond
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *Ledger) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	ledger := NewLedger()
	c := NewClient(types.LLMConfig{BaseURL: ts.URL, APIKey: "sk-test"}, ledger, nil)
	c.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local) }
	return c, ledger
}

func chatReply(text string, in, out int) string {
	b, _ := json.Marshal(map[string]any{
		"model":   "gpt-4o-mini-2024-07-18",
		"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": text}}},
		"usage":   map[string]any{"prompt_tokens": in, "completion_tokens": out},
	})
	return string(b)
}

func TestComplete_SendsRequestAndRecordsUsage(t *testing.T) {
	var got chatRequest
	c, ledger := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(chatReply("  La muestra incluye 120 registros.  ", 1000, 200)))
	})

	resp, err := c.Complete(context.Background(), Request{Prompt: "Describe", Operation: "section"})
	require.NoError(t, err)

	assert.Equal(t, "La muestra incluye 120 registros.", resp.Text)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Equal(t, 1500, got.MaxTokens)
	assert.InDelta(t, 0.7, got.Temperature, 1e-9)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, SystemPrompt, got.Messages[0].Content)
	assert.Equal(t, "Describe", got.Messages[1].Content)

	// (1000*0.15 + 200*0.60) / 1e6
	assert.True(t, decimal.RequireFromString("0.00027").Equal(resp.Cost), resp.Cost.String())

	recs := ledger.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, "section", recs[0].Operation)
	assert.Equal(t, 1000, recs[0].InputTokens)
	assert.NotEmpty(t, recs[0].ID)
}

func TestComplete_ConfiguredZeroTemperature(t *testing.T) {
	var got map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(chatReply("ok", 1, 1)))
	}))
	t.Cleanup(ts.Close)

	c := NewClient(types.LLMConfig{BaseURL: ts.URL, APIKey: "sk-test", Temperature: Temperature(0)}, nil, nil)
	_, err := c.Complete(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	require.Contains(t, got, "temperature")
	assert.Zero(t, got["temperature"])
}

func TestComplete_Overrides(t *testing.T) {
	var got chatRequest
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(chatReply("ok", 1, 1)))
	})

	_, err := c.Complete(context.Background(), Request{
		Prompt:      "p",
		System:      "custom",
		Model:       "gpt-4.1",
		MaxTokens:   50,
		Temperature: Temperature(0),
	})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1", got.Model)
	assert.Equal(t, 50, got.MaxTokens)
	assert.Zero(t, got.Temperature)
	assert.Equal(t, "custom", got.Messages[0].Content)
}

func TestComplete_EmptyPrompt(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
	})
	_, err := c.Complete(context.Background(), Request{Prompt: "  \n\t"})
	assert.ErrorIs(t, err, ErrEmptyPrompt)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestComplete_RetriesRateLimit(t *testing.T) {
	var calls int32
	c, ledger := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(chatReply("ok", 10, 5)))
	})
	resp, err := c.Complete(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Len(t, ledger.Records(), 1)
}

func TestComplete_ErrorStatus(t *testing.T) {
	c, ledger := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key"}}`))
	})
	_, err := c.Complete(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Empty(t, ledger.Records())
}

func TestComplete_NoChoices(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"choices":[],"usage":{}}`))
	})
	_, err := c.Complete(context.Background(), Request{Prompt: "p"})
	assert.ErrorContains(t, err, "no choices")
}

func TestBaseModel(t *testing.T) {
	tests := []struct {
		model string
		want  string
		ok    bool
	}{
		{"gpt-4o", "gpt-4o", true},
		{"gpt-4o-mini-2024-07-18", "gpt-4o-mini", true},
		{"gpt-4o-2024-08-06", "gpt-4o", true},
		{"o3-mini-high", "o3-mini", true},
		{"o4-mini-deep-research-2025", "o4-mini-deep-research", true},
		{"claude-3", "claude-3", false},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			got, ok := BaseModel(tt.model)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestCost(t *testing.T) {
	assert.True(t, decimal.RequireFromString("10").Equal(Cost("gpt-4.1", 1_000_000, 1_000_000)))
	assert.True(t, decimal.RequireFromString("0.0000015").Equal(Cost("gpt-4.1-nano", 15, 0)))
	assert.True(t, Cost("unknown-model", 1000, 1000).IsZero())
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n[1,2]\n```\ntrailing", `[1,2]`},
		{"  {\"a\":1}  ", `{"a":1}`},
		{"```json\n{\"open\":true}", `{"open":true}`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractJSON(tt.in))
	}
}

func TestLedger_ConcurrentAddAndTotals(t *testing.T) {
	l := NewLedger()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Add(UsageRecord{Model: "gpt-4o-mini", InputTokens: 10, OutputTokens: 2, CostUSD: decimal.RequireFromString("0.001")})
		}()
	}
	wg.Wait()

	tot := l.Totals()
	assert.Equal(t, 50, tot.Requests)
	assert.Equal(t, 500, tot.InputTokens)
	assert.Equal(t, 100, tot.OutputTokens)
	assert.True(t, decimal.RequireFromString("0.05").Equal(tot.CostUSD))
}

func TestLedger_SaveCSVAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage", "registro_tokens.csv")
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)

	l := NewLedger()
	l.Add(UsageRecord{ID: "a", Time: ts, Model: "gpt-4o", InputTokens: 1, OutputTokens: 2, CostUSD: decimal.RequireFromString("0.1")})
	require.NoError(t, l.SaveCSV(path))

	// Nothing new: no write.
	require.NoError(t, l.SaveCSV(path))

	l.Add(UsageRecord{ID: "b", Time: ts, Operation: "insights", Model: "o3", InputTokens: 3, OutputTokens: 4, CostUSD: decimal.RequireFromString("0.2")})
	require.NoError(t, l.SaveCSV(path))

	// A second ledger appends to the existing file without a second header.
	l2 := NewLedger()
	l2.Add(UsageRecord{ID: "c", Time: ts, Model: "o1", CostUSD: decimal.Zero})
	require.NoError(t, l2.SaveCSV(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "id,time,operation"))

	recs, err := ReadCSV(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{recs[0].ID, recs[1].ID, recs[2].ID})
	assert.Equal(t, "insights", recs[1].Operation)
	assert.True(t, ts.Equal(recs[0].Time))
	assert.True(t, decimal.RequireFromString("0.2").Equal(recs[1].CostUSD))
}
