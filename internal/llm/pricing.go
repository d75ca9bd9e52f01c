// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Price is the USD cost per one million tokens.
type Price struct {
	Input  decimal.Decimal `json:"input" yaml:"input"`
	Output decimal.Decimal `json:"output" yaml:"output"`
}

func price(in, out string) Price {
	return Price{Input: decimal.RequireFromString(in), Output: decimal.RequireFromString(out)}
}

// Prices maps base model names to their per-million-token prices.
var Prices = map[string]Price{
	"gpt-4.1":                      price("2.00", "8.00"),
	"gpt-4.1-mini":                 price("0.40", "1.60"),
	"gpt-4.1-nano":                 price("0.10", "0.40"),
	"gpt-4.5-preview":              price("75.00", "150.00"),
	"gpt-4o":                       price("2.50", "10.00"),
	"gpt-4o-mini":                  price("0.15", "0.60"),
	"gpt-4o-mini-realtime-preview": price("0.60", "2.40"),
	"gpt-4o-realtime-preview":      price("5.00", "20.00"),
	"gpt-4o-audio-preview":         price("2.50", "10.00"),
	"gpt-4o-mini-audio-preview":    price("0.15", "0.60"),
	"gpt-4o-search-preview":        price("2.50", "10.00"),
	"gpt-4o-mini-search-preview":   price("0.15", "0.60"),
	"o1":                           price("15.00", "60.00"),
	"o1-pro":                       price("150.00", "600.00"),
	"o3-pro":                       price("20.00", "80.00"),
	"o3":                           price("2.00", "8.00"),
	"o3-deep-research":             price("10.00", "40.00"),
	"o4-mini":                      price("1.10", "4.40"),
	"o4-mini-deep-research":        price("2.00", "8.00"),
	"o3-mini":                      price("1.10", "4.40"),
	"o1-mini":                      price("1.10", "4.40"),
	"codex-mini-latest":            price("1.50", "6.00"),
	"computer-use-preview":         price("3.00", "12.00"),
	"gpt-image-1":                  price("5.00", "1.25"),
}

// modelsByLength holds the price table keys, longest first, so prefix
// matching picks the most specific model.
var modelsByLength = func() []string {
	keys := make([]string, 0, len(Prices))
	for k := range Prices {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}()

// BaseModel resolves a model name to a price table key. An exact key wins;
// otherwise the longest key that prefixes the model is used, so dated
// snapshots like "gpt-4o-mini-2024-07-18" price as "gpt-4o-mini". The second
// result is false when nothing matched and the model is returned unchanged.
func BaseModel(model string) (string, bool) {
	if _, ok := Prices[model]; ok {
		return model, true
	}
	for _, k := range modelsByLength {
		if len(model) > len(k) && model[:len(k)] == k {
			return k, true
		}
	}
	return model, false
}

var million = decimal.NewFromInt(1_000_000)

// Cost returns the USD cost of a request. Unknown models cost zero.
func Cost(model string, inputTokens, outputTokens int) decimal.Decimal {
	base, _ := BaseModel(model)
	p, ok := Prices[base]
	if !ok {
		return decimal.Zero
	}
	in := decimal.NewFromInt(int64(inputTokens)).Mul(p.Input)
	out := decimal.NewFromInt(int64(outputTokens)).Mul(p.Output)
	return in.Add(out).Div(million)
}
