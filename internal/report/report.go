// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package report turns tables into narrative report sections and partial
// conclusions into a structured insight document, using a chat-completion
// backend.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/report-engine/internal/llm"
	"github.com/pdiddy/report-engine/internal/table"
)

var (
	// ErrEmptyTable is returned when there is no data to analyse.
	ErrEmptyTable = errors.New("table is empty, nothing to analyse")

	// ErrInvalidSection is returned for an unknown section kind.
	ErrInvalidSection = errors.New("invalid section")

	// ErrNoItems is returned when Insights receives no conclusions.
	ErrNoItems = errors.New("no items to analyse")
)

// Section is a kind of report section.
type Section string

const (
	Introduction Section = "introduction"
	Summary      Section = "summary"
	Observation  Section = "observation"
	Conclusion   Section = "conclusion"
)

// Sections lists the valid section kinds in report order.
var Sections = []Section{Introduction, Summary, Observation, Conclusion}

// sectionAliases accepts the Spanish names used by existing report scripts.
var sectionAliases = map[string]Section{
	"introduccion": Introduction,
	"introducción": Introduction,
	"resumen":      Summary,
	"observacion":  Observation,
	"observación":  Observation,
	"conclusion":   Conclusion,
	"conclusión":   Conclusion,
}

// ParseSection resolves a section name, case-insensitively.
func ParseSection(s string) (Section, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if _, ok := sectionTasks[Section(name)]; ok {
		return Section(name), nil
	}
	if sec, ok := sectionAliases[name]; ok {
		return sec, nil
	}
	valid := make([]string, len(Sections))
	for i, sec := range Sections {
		valid[i] = string(sec)
	}
	return "", fmt.Errorf("%w %q: must be one of %s", ErrInvalidSection, s, strings.Join(valid, ", "))
}

// SectionOptions configures AnalyzeTable.
type SectionOptions struct {
	Section Section
	// Context describes the project (name, period). Optional.
	Context   string
	MaxTokens int
	Model     string
	Language  string
}

// AnalyzeTable asks the model for one report section describing t.
func AnalyzeTable(ctx context.Context, c llm.Completer, t *table.Table, opts SectionOptions) (string, error) {
	if t.Empty() {
		return "", ErrEmptyTable
	}
	if opts.Section == "" {
		opts.Section = Observation
	}
	sec, err := ParseSection(string(opts.Section))
	if err != nil {
		return "", err
	}
	opts.Section = sec
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1000
	}
	if opts.Language == "" {
		opts.Language = "Spanish"
	}

	data, err := t.JSON()
	if err != nil {
		return "", fmt.Errorf("serializing table: %w", err)
	}

	prompt, err := render(sectionPromptTmpl, struct {
		Context, Columns, Task, Data, Language string
		Section                                Section
		Rows, Cols                             int
	}{
		Context:  opts.Context,
		Columns:  strings.Join(t.Names(), ", "),
		Task:     sectionTasks[sec],
		Data:     data,
		Language: opts.Language,
		Section:  opts.Section,
		Rows:     t.Len(),
		Cols:     len(t.Columns),
	})
	if err != nil {
		return "", fmt.Errorf("rendering prompt: %w", err)
	}

	resp, err := c.Complete(ctx, llm.Request{
		Prompt:    prompt,
		Model:     opts.Model,
		MaxTokens: opts.MaxTokens,
		Operation: "section:" + string(opts.Section),
	})
	if err != nil {
		return "", fmt.Errorf("generating %s section: %w", opts.Section, err)
	}
	return resp.Text, nil
}

// InsightOptions configures Insights.
type InsightOptions struct {
	MaxTokens int
	Model     string
	Language  string
	Logger    *zap.Logger
}

// Insights asks the model to organise partial conclusions into a JSON insight
// document. projects is optional context. When the model's answer is not valid
// JSON the result is {"error": "invalid JSON", "raw_response": <text>} and no
// error is returned.
func Insights(ctx context.Context, c llm.Completer, items []string, projects *table.Table, intro string, opts InsightOptions) (map[string]any, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2000
	}
	if opts.Language == "" {
		opts.Language = "Spanish"
	}

	var projectsJSON string
	if !projects.Empty() {
		var err error
		if projectsJSON, err = projects.JSON(); err != nil {
			logger.Warn("serializing projects failed, continuing without them", zap.Error(err))
			projectsJSON = ""
		}
	}

	prompt, err := render(insightPromptTmpl, struct {
		Intro, Projects, Items, Language string
	}{
		Intro:    intro,
		Projects: projectsJSON,
		Items:    strings.Join(items, ", "),
		Language: opts.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("rendering prompt: %w", err)
	}

	resp, err := c.Complete(ctx, llm.Request{
		Prompt:    prompt,
		Model:     opts.Model,
		MaxTokens: opts.MaxTokens,
		Operation: "insights",
	})
	if err != nil {
		return nil, fmt.Errorf("generating insights: %w", err)
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(llm.ExtractJSON(resp.Text)), &doc); err != nil {
		logger.Error("insight response is not valid JSON",
			zap.Error(err), zap.String("response", resp.Text))
		return map[string]any{"error": "invalid JSON", "raw_response": resp.Text}, nil
	}
	logger.Info("insight JSON validated", zap.Int("sections", len(doc)))
	return doc, nil
}
