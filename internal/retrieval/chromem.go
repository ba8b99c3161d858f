package retrieval

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	chromem "github.com/philippgille/chromem-go"

	"github.com/replyforge/server/internal/agent/model"
)

const metaSourceID = "source_id"

// ChromemIndex implements Retriever on the chromem-go embedded vector
// database. Scope isolation is structural: each (owner, knowledge base) pair
// is its own collection, and Search only ever touches the collections named
// by the request.
type ChromemIndex struct {
	db    *chromem.DB
	embed chromem.EmbeddingFunc
}

// NewChromemIndex opens a persistent index at path, or an in-memory one when
// path is empty.
func NewChromemIndex(path string, compress bool, embed chromem.EmbeddingFunc) (*ChromemIndex, error) {
	if embed == nil {
		return nil, fmt.Errorf("embedding func is required")
	}

	var (
		db  *chromem.DB
		err error
	)
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, compress)
		if err != nil {
			return nil, fmt.Errorf("open chromem db at %s: %w", path, err)
		}
	}
	return &ChromemIndex{db: db, embed: embed}, nil
}

func collectionName(ownerID, kbID string) string {
	return fmt.Sprintf("kb-%s-%s", ownerID, kbID)
}

// Index adds documents to one of the owner's knowledge bases.
func (x *ChromemIndex) Index(ctx context.Context, ownerID, kbID string, docs []model.KnowledgeDocument) error {
	col, err := x.db.GetOrCreateCollection(collectionName(ownerID, kbID), nil, x.embed)
	if err != nil {
		return fmt.Errorf("get collection: %w", err)
	}

	batch := make([]chromem.Document, 0, len(docs))
	for _, d := range docs {
		batch = append(batch, chromem.Document{
			ID:       d.ID,
			Content:  d.Content,
			Metadata: map[string]string{metaSourceID: d.SourceID},
		})
	}
	if len(batch) == 0 {
		return nil
	}
	if err := col.AddDocuments(ctx, batch, runtime.NumCPU()); err != nil {
		return fmt.Errorf("add documents: %w", err)
	}
	return nil
}

// DeleteKnowledgeBase drops one of the owner's knowledge-base collections.
func (x *ChromemIndex) DeleteKnowledgeBase(ownerID, kbID string) error {
	return x.db.DeleteCollection(collectionName(ownerID, kbID))
}

// Search implements Retriever. Collections that do not exist yet simply
// contribute nothing.
func (x *ChromemIndex) Search(ctx context.Context, ownerID, query string, topK int, scopeIDs []string) ([]model.RetrievedPassage, error) {
	if topK <= 0 || len(scopeIDs) == 0 {
		return nil, nil
	}

	var passages []model.RetrievedPassage
	for _, kbID := range scopeIDs {
		col := x.db.GetCollection(collectionName(ownerID, kbID), x.embed)
		if col == nil {
			continue
		}
		n := topK
		if count := col.Count(); count < n {
			n = count
		}
		if n == 0 {
			continue
		}

		results, err := col.Query(ctx, query, n, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("query knowledge base %s: %w", kbID, err)
		}
		for _, r := range results {
			score := float64(r.Similarity)
			if score < 0 {
				score = 0
			}
			sourceID := r.Metadata[metaSourceID]
			if sourceID == "" {
				sourceID = r.ID
			}
			passages = append(passages, model.RetrievedPassage{
				Content:  r.Content,
				Score:    score,
				SourceID: sourceID,
			})
		}
	}

	sort.SliceStable(passages, func(i, j int) bool {
		return passages[i].Score > passages[j].Score
	})
	if len(passages) > topK {
		passages = passages[:topK]
	}
	return passages, nil
}

var _ Retriever = (*ChromemIndex)(nil)
