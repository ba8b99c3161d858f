// Package prompt composes the system prompt for the response model.
package prompt

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/replyforge/server/internal/agent/model"
)

//go:embed template/system_prompt.txt
var systemPromptTemplate string

// BuildInput carries everything the builder composes from. Now is injected so
// the builder stays pure: identical inputs, including Now, produce identical
// prompts.
type BuildInput struct {
	AgentName string

	// Passages come from the retriever in rank order. The relevance floor is
	// applied here, not in retrieval: only passages scoring strictly above
	// RelevanceFloor are included.
	Passages       []model.RetrievedPassage
	RelevanceFloor float64

	LeadName string
	Options  model.AgentOptions

	// CustomInstructions is the operator-supplied prompt text. It is appended
	// after the base rules, never substituted for them.
	CustomInstructions string

	Now time.Time
}

// Build renders the system prompt. Composition order is fixed: persona,
// knowledge-presence flag, formatted passages, lead hint, style modifiers,
// tool instructions, time-bound business facts, custom instructions last.
func Build(ctx context.Context, in BuildInput) (string, error) {
	name := strings.TrimSpace(in.AgentName)
	if name == "" {
		name = "the assistant"
	}

	included := filterPassages(in.Passages, in.RelevanceFloor)
	docs := formatDocuments(included)

	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(systemPromptTemplate),
	)
	vars := map[string]any{
		"AgentName":          name,
		"HasKnowledge":       len(included) > 0,
		"Documents":          docs,
		"LeadName":           strings.TrimSpace(in.LeadName),
		"Industry":           strings.TrimSpace(in.Options.Industry),
		"ToolInstructions":   strings.TrimSpace(in.Options.ToolInstructions),
		"BusinessHours":      strings.TrimSpace(in.Options.BusinessHours),
		"Promotions":         strings.TrimSpace(in.Options.Promotions),
		"CurrentTime":        in.Now.Format("Monday 15:04, 2 Jan 2006"),
		"CustomInstructions": strings.TrimSpace(in.CustomInstructions),
	}
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("system prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("system prompt render: empty result")
	}
	return strings.TrimSpace(msgs[0].Content), nil
}

// filterPassages keeps passages scoring strictly above floor, preserving the
// retriever's rank order.
func filterPassages(passages []model.RetrievedPassage, floor float64) []model.RetrievedPassage {
	out := make([]model.RetrievedPassage, 0, len(passages))
	for _, p := range passages {
		if p.Score > floor {
			out = append(out, p)
		}
	}
	return out
}

// formatDocuments renders passages as "[Document i]: content" blocks joined
// by blank lines.
func formatDocuments(passages []model.RetrievedPassage) string {
	if len(passages) == 0 {
		return ""
	}
	blocks := make([]string, 0, len(passages))
	for i, p := range passages {
		blocks = append(blocks, fmt.Sprintf("[Document %d]: %s", i+1, strings.TrimSpace(p.Content)))
	}
	return strings.Join(blocks, "\n\n")
}
