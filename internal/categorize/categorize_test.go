// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package categorize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pdiddy/report-engine/internal/llm"
	"github.com/pdiddy/report-engine/pkg/types"
)

func init() {
	backoffBase = time.Millisecond
}

// promptRecords pulls the records JSON array back out of a batch prompt.
func promptRecords(t *testing.T, prompt string) []Record {
	t.Helper()
	for _, line := range strings.Split(prompt, "\n") {
		if strings.HasPrefix(line, "[{\"id\"") {
			var recs []Record
			require.NoError(t, json.Unmarshal([]byte(line), &recs))
			return recs
		}
	}
	t.Fatalf("no records in prompt:\n%s", prompt)
	return nil
}

// keywordCompleter categorizes by keyword and can fail chosen batches.
type keywordCompleter struct {
	t        *testing.T
	mu       sync.Mutex
	calls    int
	failIDs  map[string]int // first record id -> number of failures before success (-1 always)
	inFlight int32
	maxSeen  int32
	delay    time.Duration
}

func (k *keywordCompleter) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	n := atomic.AddInt32(&k.inFlight, 1)
	defer atomic.AddInt32(&k.inFlight, -1)
	for {
		m := atomic.LoadInt32(&k.maxSeen)
		if n <= m || atomic.CompareAndSwapInt32(&k.maxSeen, m, n) {
			break
		}
	}
	if k.delay > 0 {
		select {
		case <-ctx.Done():
			return llm.Response{}, ctx.Err()
		case <-time.After(k.delay):
		}
	}

	recs := promptRecords(k.t, req.Prompt)

	k.mu.Lock()
	k.calls++
	if left, ok := k.failIDs[recs[0].ID]; ok && left != 0 {
		if left > 0 {
			k.failIDs[recs[0].ID] = left - 1
		}
		k.mu.Unlock()
		return llm.Response{}, errors.New("upstream error")
	}
	k.mu.Unlock()

	var out []map[string]any
	for _, r := range recs {
		cat := "Nonsense"
		switch {
		case strings.Contains(r.Text, "precio"):
			cat = "precio"
		case strings.Contains(r.Text, "envío"):
			cat = "Logística"
		}
		out = append(out, map[string]any{"id": r.ID, "category": cat})
	}
	b, _ := json.Marshal(out)
	return llm.Response{Text: "```json\n" + string(b) + "\n```"}, nil
}

func makeRecords(n int) []Record {
	recs := make([]Record, n)
	for i := range recs {
		text := "el precio es alto"
		if i%2 == 1 {
			text = "el envío tardó"
		}
		recs[i] = Record{ID: fmt.Sprintf("r%02d", i), Text: text}
	}
	return recs
}

func TestSplit_GreedyInOrder(t *testing.T) {
	c := SimpleCounter{}
	// Each record: 8 bytes text (2) + 2 bytes id (1) + framing 10 = 13 tokens.
	recs := []Record{
		{ID: "a1", Text: "12345678"},
		{ID: "a2", Text: "12345678"},
		{ID: "a3", Text: "12345678"},
		{ID: "a4", Text: "12345678"},
		{ID: "a5", Text: "12345678"},
	}
	batches, skipped := Split(recs, c, 30, 2) // room 28: two records per batch
	assert.Empty(t, skipped)
	require.Len(t, batches, 3)
	assert.Equal(t, []string{"a1", "a2"}, batches[0].IDs())
	assert.Equal(t, []string{"a3", "a4"}, batches[1].IDs())
	assert.Equal(t, []string{"a5"}, batches[2].IDs())
	for i, b := range batches {
		assert.Equal(t, i, b.Index)
		assert.LessOrEqual(t, b.Tokens, 28)
	}
}

func TestSplit_OversizedRecordAlone(t *testing.T) {
	c := SimpleCounter{}
	recs := []Record{
		{ID: "s1", Text: "short"},
		{ID: "big", Text: strings.Repeat("x", 400)},
		{ID: "s2", Text: "short"},
	}
	batches, _ := Split(recs, c, 50, 0)
	require.Len(t, batches, 3)
	assert.Equal(t, []string{"big"}, batches[1].IDs())
	assert.Greater(t, batches[1].Tokens, 50)
}

func TestSplit_SkipsBlankAndDefaultsBudget(t *testing.T) {
	recs := []Record{{ID: "1", Text: "  "}, {ID: "2", Text: "hola"}, {ID: "3", Text: ""}}
	batches, skipped := Split(recs, SimpleCounter{}, 0, 0)
	assert.Equal(t, []string{"1", "3"}, skipped)
	require.Len(t, batches, 1)
	assert.Equal(t, []string{"2"}, batches[0].IDs())

	batches, skipped = Split(nil, SimpleCounter{}, 100, 0)
	assert.Empty(t, batches)
	assert.Empty(t, skipped)
}

func TestSplit_PreservesEveryRecordOnce(t *testing.T) {
	recs := makeRecords(37)
	batches, skipped := Split(recs, SimpleCounter{}, 60, 5)
	assert.Empty(t, skipped)
	var ids []string
	for _, b := range batches {
		ids = append(ids, b.IDs()...)
	}
	require.Len(t, ids, 37)
	for i, id := range ids {
		assert.Equal(t, recs[i].ID, id)
	}
}

func TestSimpleCounter(t *testing.T) {
	assert.Equal(t, 0, SimpleCounter{}.Count(""))
	assert.Equal(t, 1, SimpleCounter{}.Count("abc"))
	assert.Equal(t, 2, SimpleCounter{}.Count("abcde"))
	assert.Equal(t, "simple", NewTokenCounter("words").Method())
}

func TestRun_CategorizesInInputOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	k := &keywordCompleter{t: t, delay: 2 * time.Millisecond}
	cat := New(k, types.CategorizeConfig{BatchTokens: 250, Workers: 3, TokenMethod: "simple"}, nil)

	recs := makeRecords(20)
	recs = append(recs, Record{ID: "blank", Text: " "})

	res, err := cat.Run(context.Background(), recs, []string{"Precio", "Logística", "Otro"})
	require.NoError(t, err)

	require.Len(t, res.Assignments, 20)
	for i, a := range res.Assignments {
		assert.Equal(t, recs[i].ID, a.ID)
		if i%2 == 0 {
			assert.Equal(t, "Precio", a.Category, "category matched case-insensitively")
		} else {
			assert.Equal(t, "Logística", a.Category)
		}
	}
	assert.Equal(t, []string{"blank"}, res.Missing)
	assert.Empty(t, res.Failed)
	assert.Equal(t, res.Summary.Batches, res.Summary.Succeeded)
	assert.Greater(t, res.Summary.Batches, 1)
	assert.LessOrEqual(t, atomic.LoadInt32(&k.maxSeen), int32(3))
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, map[string]int{"Precio": 10, "Logística": 10}, res.Counts())
}

func TestRun_FallbackCategory(t *testing.T) {
	k := &keywordCompleter{t: t}
	cat := New(k, types.CategorizeConfig{TokenMethod: "simple"}, nil)

	res, err := cat.Run(context.Background(), []Record{{ID: "x", Text: "nada que ver"}}, []string{"Precio"})
	require.NoError(t, err)
	require.Len(t, res.Assignments, 1)
	assert.Equal(t, "Other", res.Assignments[0].Category)
}

func TestRun_RetriesThenSucceeds(t *testing.T) {
	k := &keywordCompleter{t: t, failIDs: map[string]int{"r00": 2}}
	cat := New(k, types.CategorizeConfig{TokenMethod: "simple", MaxRetries: 2}, nil)

	res, err := cat.Run(context.Background(), makeRecords(2), []string{"precio"})
	require.NoError(t, err)
	assert.Len(t, res.Assignments, 2)
	assert.Equal(t, 3, k.calls)
}

func TestRun_FailedBatchDoesNotStopOthers(t *testing.T) {
	defer goleak.VerifyNone(t)

	recs := makeRecords(12)
	k := &keywordCompleter{t: t}
	cat := New(k, types.CategorizeConfig{TokenMethod: "simple", BatchTokens: 160, MaxRetries: 1, Workers: 2}, nil)

	planned, _, err := cat.Plan(recs, []string{"precio", "Logística"})
	require.NoError(t, err)
	require.Greater(t, len(planned), 2)
	k.failIDs = map[string]int{planned[1].Records[0].ID: -1}

	res, err := cat.Run(context.Background(), recs, []string{"precio", "Logística"})
	require.NoError(t, err)

	require.Len(t, res.Failed, 1)
	assert.Equal(t, 1, res.Failed[0].Batch)
	assert.Equal(t, planned[1].IDs(), res.Failed[0].IDs)
	assert.Contains(t, res.Failed[0].Err, "upstream error")
	assert.Equal(t, planned[1].IDs(), res.Missing)
	assert.Equal(t, len(recs)-len(planned[1].Records), len(res.Assignments))
	assert.True(t, res.Summary.HasFailures())

	var failedLine bool
	for _, line := range cat.History() {
		if strings.HasPrefix(line, "batch 1: failed") {
			failedLine = true
		}
	}
	assert.True(t, failedLine, "history records the failure: %v", cat.History())
}

func TestRun_Validation(t *testing.T) {
	cat := New(&keywordCompleter{t: t}, types.CategorizeConfig{TokenMethod: "simple"}, nil)

	res, err := cat.Run(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Assignments)

	_, err = cat.Run(context.Background(), makeRecords(1), []string{" ", ""})
	assert.ErrorIs(t, err, ErrNoCategories)

	_, err = cat.Run(context.Background(), []Record{{ID: "a", Text: "x"}, {ID: "a", Text: "y"}}, []string{"c"})
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestRun_Cancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	k := &keywordCompleter{t: t, delay: 200 * time.Millisecond}
	cat := New(k, types.CategorizeConfig{TokenMethod: "simple", BatchTokens: 60, Workers: 2}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res, err := cat.Run(ctx, makeRecords(10), []string{"precio"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, res.Assignments)
	assert.Len(t, res.Missing, 10)
}

func TestParseAssignments(t *testing.T) {
	b := Batch{Index: 4, Records: []Record{{ID: "1"}, {ID: "2"}, {ID: "3"}}}
	text := `{"results": [
		{"id": 1, "category": "precio", "confidence": 0.9},
		{"id": "2", "category": "desconocida"},
		{"id": "99", "category": "Precio"},
		{"id": "1", "category": "Calidad"}
	]}`
	got, err := parseAssignments(text, b, []string{"Precio", "Calidad"}, "Other")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "Precio", got[0].Category)
	require.NotNil(t, got[0].Confidence)
	assert.InDelta(t, 0.9, *got[0].Confidence, 1e-9)
	assert.Equal(t, 4, got[0].Batch)
	assert.Equal(t, "Other", got[1].Category)

	_, err = parseAssignments("not json", b, []string{"Precio"}, "Other")
	assert.Error(t, err)
}

func TestResultWriteCSV(t *testing.T) {
	conf := 0.5
	res := Result{Assignments: []Assignment{
		{ID: "a", Category: "Precio", Confidence: &conf, Batch: 0},
		{ID: "b", Category: "Other", Batch: 1},
	}}
	var buf bytes.Buffer
	require.NoError(t, res.WriteCSV(&buf))
	assert.Equal(t, "id,category,confidence,batch\na,Precio,0.5,0\nb,Other,,1\n", buf.String())
}
