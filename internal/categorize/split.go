// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package categorize

import "strings"

const (
	// DefaultBatchTokens is the budget used when none is given.
	DefaultBatchTokens = 3000

	// recordFraming approximates the JSON framing of one record in a prompt:
	// braces, keys, quotes and the separating comma.
	recordFraming = 10
)

// Record is one free-text answer to categorize.
type Record struct {
	ID   string `json:"id" yaml:"id"`
	Text string `json:"text" yaml:"text"`
}

// Batch is a run of consecutive records sent in one request.
type Batch struct {
	Index   int
	Records []Record
	// Tokens is the estimated record cost, prompt overhead excluded.
	Tokens int
}

// IDs returns the record ids of the batch in order.
func (b Batch) IDs() []string {
	ids := make([]string, len(b.Records))
	for i, r := range b.Records {
		ids[i] = r.ID
	}
	return ids
}

// RecordTokens is the estimated prompt cost of one record.
func RecordTokens(c TokenCounter, r Record) int {
	return c.Count(r.Text) + c.Count(r.ID) + recordFraming
}

// Split packs records greedily, in input order, into batches whose record
// cost fits budget-overhead. A record that alone exceeds the room forms its
// own batch. Records with blank text are left out and returned as skipped.
// A budget <= 0 means DefaultBatchTokens.
func Split(records []Record, c TokenCounter, budget, overhead int) (batches []Batch, skipped []string) {
	if budget <= 0 {
		budget = DefaultBatchTokens
	}
	room := budget - overhead
	if room < 1 {
		room = 1
	}

	var cur Batch
	flush := func() {
		if len(cur.Records) == 0 {
			return
		}
		cur.Index = len(batches)
		batches = append(batches, cur)
		cur = Batch{}
	}

	for _, r := range records {
		if strings.TrimSpace(r.Text) == "" {
			skipped = append(skipped, r.ID)
			continue
		}
		cost := RecordTokens(c, r)
		if len(cur.Records) > 0 && cur.Tokens+cost > room {
			flush()
		}
		cur.Records = append(cur.Records, r)
		cur.Tokens += cost
		if cur.Tokens >= room {
			flush()
		}
	}
	flush()
	return batches, skipped
}
