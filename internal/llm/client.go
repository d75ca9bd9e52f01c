// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm calls an OpenAI-compatible chat-completion API and tracks token
// usage and USD cost per request.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pdiddy/report-engine/internal/httputil"
	"github.com/pdiddy/report-engine/internal/metrics"
	"github.com/pdiddy/report-engine/pkg/types"
)

// ErrEmptyPrompt is returned when a request has no prompt text.
var ErrEmptyPrompt = errors.New("prompt must not be empty")

// Completer abstracts the chat-completion call so tests can supply a mock.
type Completer interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Request is one chat-completion call. Zero fields take the client defaults.
type Request struct {
	Prompt string
	// System replaces the default analyst system prompt when non-empty.
	System    string
	Model     string
	MaxTokens int
	// Temperature overrides the client default when non-nil.
	Temperature *float64
	// Operation labels the request in the usage ledger.
	Operation string
}

// Response is the trimmed model text plus the usage it incurred.
type Response struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
	Cost         decimal.Decimal
	Duration     time.Duration
}

// Temperature returns a pointer to t for use in Request.
func Temperature(t float64) *float64 { return &t }

// Client calls POST {BaseURL}/chat/completions with a bearer key. It is safe
// for concurrent use.
type Client struct {
	cfg    types.LLMConfig
	http   *http.Client
	ledger *Ledger
	logger *zap.Logger
	now    func() time.Time
}

// NewClient builds a client from cfg. Zero config fields take defaults. The
// ledger may be nil, in which case usage is only logged.
func NewClient(cfg types.LLMConfig, ledger *Ledger, logger *zap.Logger) *Client {
	cfg = cfg.Defaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		ledger: ledger,
		logger: logger,
		now:    time.Now,
	}
}

// Ledger returns the usage ledger, which may be nil.
func (c *Client) Ledger() *Ledger { return c.ledger }

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends the prompt with a system message and returns the trimmed
// response text. Token usage and cost are logged, counted and appended to
// the ledger.
func (c *Client) Complete(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return Response{}, ErrEmptyPrompt
	}

	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxTokens
	}
	temperature := *c.cfg.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	system := req.System
	if strings.TrimSpace(system) == "" {
		system = SystemPrompt
	}

	body, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: req.Prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return Response{}, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	start := time.Now()
	resp, err := httputil.DoWithRetry(ctx, c.http, httpReq, c.cfg.MaxRetries, c.logger)
	if err != nil {
		metrics.IncLLMRequest(model, "error")
		c.logger.Error("chat completion failed", zap.String("model", model), zap.Error(err))
		return Response{}, fmt.Errorf("calling chat completions: %w", err)
	}
	defer resp.Body.Close()
	metrics.ObserveDuration(metrics.LLMRequestDuration, start, model)

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		metrics.IncLLMRequest(model, "error")
		c.logger.Error("chat completion rejected",
			zap.String("model", model), zap.Int("status", resp.StatusCode), zap.ByteString("body", msg))
		return Response{}, fmt.Errorf("chat completions returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		metrics.IncLLMRequest(model, "error")
		return Response{}, fmt.Errorf("decoding chat response: %w", err)
	}
	if cr.Error != nil {
		metrics.IncLLMRequest(model, "error")
		return Response{}, fmt.Errorf("chat completions error: %s", cr.Error.Message)
	}
	if len(cr.Choices) == 0 {
		metrics.IncLLMRequest(model, "error")
		return Response{}, fmt.Errorf("chat completions returned no choices")
	}

	out := Response{
		Text:         strings.TrimSpace(cr.Choices[0].Message.Content),
		Model:        model,
		InputTokens:  cr.Usage.PromptTokens,
		OutputTokens: cr.Usage.CompletionTokens,
		Duration:     time.Since(start),
	}
	if _, ok := BaseModel(model); !ok {
		c.logger.Warn("model not in price table, cost recorded as zero", zap.String("model", model))
	}
	out.Cost = Cost(model, out.InputTokens, out.OutputTokens)

	metrics.IncLLMRequest(model, "ok")
	cost, _ := out.Cost.Float64()
	metrics.AddLLMUsage(model, out.InputTokens, out.OutputTokens, cost)

	if c.ledger != nil {
		c.ledger.Add(UsageRecord{
			ID:           uuid.NewString(),
			Time:         c.now(),
			Operation:    req.Operation,
			Model:        model,
			InputTokens:  out.InputTokens,
			OutputTokens: out.OutputTokens,
			CostUSD:      out.Cost,
		})
	}

	c.logger.Info("tokens used",
		zap.String("model", model),
		zap.String("operation", req.Operation),
		zap.Int("input_tokens", out.InputTokens),
		zap.Int("output_tokens", out.OutputTokens),
		zap.String("cost_usd", out.Cost.StringFixed(6)),
		zap.Duration("duration", out.Duration),
	)
	return out, nil
}
