package retrieval

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replyforge/server/internal/agent/model"
)

// testEmbedder maps text deterministically onto a small normalized vector so
// identical text always has similarity 1 with itself.
func testEmbedder(_ context.Context, text string) ([]float32, error) {
	v := make([]float64, 8)
	for i, r := range text {
		v[i%8] += float64(r%31) + 1
	}
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x / norm)
	}
	return out, nil
}

func newTestIndex(t *testing.T) *ChromemIndex {
	t.Helper()
	idx, err := NewChromemIndex("", false, testEmbedder)
	require.NoError(t, err)
	return idx
}

func TestSearchReturnsIndexedDocument(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	require.NoError(t, idx.Index(ctx, "u1", "kb1", []model.KnowledgeDocument{
		{ID: "d1", Content: "refund policy: 30 days with receipt", SourceID: "doc-refunds"},
		{ID: "d2", Content: "store opening hours monday to friday", SourceID: "doc-hours"},
	}))

	got, err := idx.Search(ctx, "u1", "refund policy: 30 days with receipt", 5, []string{"kb1"})
	require.NoError(t, err)
	require.NotEmpty(t, got)

	// Exact text match ranks first with similarity ~1.
	assert.Equal(t, "doc-refunds", got[0].SourceID)
	assert.InDelta(t, 1.0, got[0].Score, 1e-3)
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i].Score, got[i-1].Score)
	}
}

func TestSearchScopeIsolationByKnowledgeBase(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	require.NoError(t, idx.Index(ctx, "u1", "kb1", []model.KnowledgeDocument{
		{ID: "d1", Content: "alpha content", SourceID: "a"},
	}))
	require.NoError(t, idx.Index(ctx, "u1", "kb2", []model.KnowledgeDocument{
		{ID: "d2", Content: "beta content", SourceID: "b"},
	}))

	got, err := idx.Search(ctx, "u1", "alpha content", 5, []string{"kb2"})
	require.NoError(t, err)
	for _, p := range got {
		assert.NotEqual(t, "a", p.SourceID)
	}
}

func TestSearchScopeIsolationByOwner(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	require.NoError(t, idx.Index(ctx, "u1", "kb1", []model.KnowledgeDocument{
		{ID: "d1", Content: "tenant one secret", SourceID: "s1"},
	}))

	got, err := idx.Search(ctx, "u2", "tenant one secret", 5, []string{"kb1"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearchEmptyScope(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	require.NoError(t, idx.Index(ctx, "u1", "kb1", []model.KnowledgeDocument{
		{ID: "d1", Content: "anything", SourceID: "s"},
	}))

	got, err := idx.Search(ctx, "u1", "anything", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearchTopKAcrossKnowledgeBases(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	require.NoError(t, idx.Index(ctx, "u1", "kb1", []model.KnowledgeDocument{
		{ID: "a1", Content: "first entry about shipping", SourceID: "a1"},
		{ID: "a2", Content: "second entry about returns", SourceID: "a2"},
	}))
	require.NoError(t, idx.Index(ctx, "u1", "kb2", []model.KnowledgeDocument{
		{ID: "b1", Content: "third entry about warranty", SourceID: "b1"},
		{ID: "b2", Content: "fourth entry about pricing", SourceID: "b2"},
	}))

	got, err := idx.Search(ctx, "u1", "entry about", 3, []string{"kb1", "kb2"})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(got), 3)
	assert.NotEmpty(t, got)
}

func TestDeleteKnowledgeBase(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	require.NoError(t, idx.Index(ctx, "u1", "kb1", []model.KnowledgeDocument{
		{ID: "d1", Content: "to be removed", SourceID: "s"},
	}))
	require.NoError(t, idx.DeleteKnowledgeBase("u1", "kb1"))

	got, err := idx.Search(ctx, "u1", "to be removed", 5, []string{"kb1"})
	require.NoError(t, err)
	assert.Empty(t, got)
}
