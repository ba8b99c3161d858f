package prompt

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replyforge/server/internal/agent/model"
)

var testNow = time.Date(2024, 5, 10, 14, 30, 0, 0, time.UTC)

func TestBuildRelevanceFloorIsStrict(t *testing.T) {
	out, err := Build(context.Background(), BuildInput{
		AgentName: "Nia",
		Passages: []model.RetrievedPassage{
			{Content: "at the floor", Score: 0.30, SourceID: "a"},
			{Content: "just above the floor", Score: 0.31, SourceID: "b"},
		},
		RelevanceFloor: 0.3,
		Now:            testNow,
	})
	require.NoError(t, err)

	assert.NotContains(t, out, "at the floor")
	assert.Contains(t, out, "[Document 1]: just above the floor")
	// The included passage is renumbered from 1, not 2.
	assert.NotContains(t, out, "[Document 2]")
}

func TestBuildDocumentOrderAndSeparation(t *testing.T) {
	out, err := Build(context.Background(), BuildInput{
		AgentName: "Nia",
		Passages: []model.RetrievedPassage{
			{Content: "first passage", Score: 0.9},
			{Content: "second passage", Score: 0.6},
			{Content: "third passage", Score: 0.5},
		},
		RelevanceFloor: 0.3,
		Now:            testNow,
	})
	require.NoError(t, err)

	assert.Contains(t, out, "[Document 1]: first passage\n\n[Document 2]: second passage\n\n[Document 3]: third passage")
}

func TestBuildNoKnowledgeBranch(t *testing.T) {
	tests := []struct {
		name     string
		passages []model.RetrievedPassage
	}{
		{"no passages", nil},
		{"all below floor", []model.RetrievedPassage{{Content: "weak match", Score: 0.2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Build(context.Background(), BuildInput{
				AgentName:      "Nia",
				Passages:       tt.passages,
				RelevanceFloor: 0.3,
				Now:            testNow,
			})
			require.NoError(t, err)
			assert.Contains(t, out, "No knowledge base context is available")
			assert.NotContains(t, out, "[Document")
		})
	}
}

func TestBuildCustomInstructionsAppendedNotSubstituted(t *testing.T) {
	out, err := Build(context.Background(), BuildInput{
		AgentName:          "Nia",
		CustomInstructions: "Always end with an emoji.",
		Now:                testNow,
	})
	require.NoError(t, err)

	base := strings.Index(out, "You are Nia")
	custom := strings.Index(out, "Always end with an emoji.")
	require.GreaterOrEqual(t, base, 0)
	require.Greater(t, custom, base)
	assert.Contains(t, out, "do not replace")
}

func TestBuildCompositionOrder(t *testing.T) {
	out, err := Build(context.Background(), BuildInput{
		AgentName:      "Nia",
		Passages:       []model.RetrievedPassage{{Content: "refunds within 30 days", Score: 0.8}},
		RelevanceFloor: 0.3,
		LeadName:       "Somchai",
		Options: model.AgentOptions{
			Industry:         "retail electronics",
			ToolInstructions: "Use the order lookup before quoting delivery dates.",
			BusinessHours:    "Mon-Fri 09:00-18:00",
			Promotions:       "10% off accessories this week",
		},
		CustomInstructions: "Prefer Thai when the customer writes Thai.",
		Now:                testNow,
	})
	require.NoError(t, err)

	sections := []string{
		"You are Nia",
		"[Document 1]: refunds within 30 days",
		"Somchai",
		"retail electronics",
		"order lookup",
		"Mon-Fri 09:00-18:00",
		"10% off accessories",
		"Prefer Thai",
	}
	last := -1
	for _, s := range sections {
		idx := strings.Index(out, s)
		require.GreaterOrEqual(t, idx, 0, "missing section %q", s)
		require.Greater(t, idx, last, "section %q out of order", s)
		last = idx
	}
	assert.Contains(t, out, testNow.Format("Monday 15:04, 2 Jan 2006"))
}

func TestBuildDeterministic(t *testing.T) {
	in := BuildInput{
		AgentName:      "Nia",
		Passages:       []model.RetrievedPassage{{Content: "stable content", Score: 0.7}},
		RelevanceFloor: 0.3,
		Options:        model.AgentOptions{Promotions: "promo", BusinessHours: "always open"},
		Now:            testNow,
	}
	first, err := Build(context.Background(), in)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := Build(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestBuildEmptyAgentName(t *testing.T) {
	out, err := Build(context.Background(), BuildInput{Now: testNow})
	require.NoError(t, err)
	assert.Contains(t, out, "You are the assistant")
}
