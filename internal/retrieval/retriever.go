// Package retrieval queries the per-user knowledge index.
package retrieval

import (
	"context"

	"github.com/replyforge/server/internal/agent/model"
)

// Retriever searches the vector index for passages relevant to a query.
// Results are scoped to the owning user AND the supplied knowledge-base ids;
// an empty scope set yields no results. Ordering is descending by score, at
// most topK entries. No relevance floor is applied here: the prompt builder
// decides inclusion, so the threshold can be tuned without touching retrieval.
// An empty result is a valid outcome, distinct from a search error.
type Retriever interface {
	Search(ctx context.Context, ownerID, query string, topK int, scopeIDs []string) ([]model.RetrievedPassage, error)
}
