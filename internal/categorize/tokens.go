// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package categorize

import (
	"github.com/tiktoken-go/tokenizer"
)

// bytesPerToken is the estimate used when no tokenizer is available.
const bytesPerToken = 4

// TokenCounter counts the tokens of a text.
type TokenCounter interface {
	Count(text string) int
	Method() string
}

// NewTokenCounter returns a counter for method "tiktoken" (cl100k_base) or
// "simple". Any other method, or a tokenizer that fails to load, yields the
// simple estimate.
func NewTokenCounter(method string) TokenCounter {
	if method == "tiktoken" {
		codec, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err == nil {
			return &tiktokenCounter{codec: codec}
		}
	}
	return SimpleCounter{}
}

type tiktokenCounter struct {
	codec tokenizer.Codec
}

func (c *tiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return SimpleCounter{}.Count(text)
	}
	return len(ids)
}

func (c *tiktokenCounter) Method() string { return "tiktoken" }

// SimpleCounter estimates one token per four bytes, rounding up.
type SimpleCounter struct{}

func (SimpleCounter) Count(text string) int {
	return (len(text) + bytesPerToken - 1) / bytesPerToken
}

func (SimpleCounter) Method() string { return "simple" }
