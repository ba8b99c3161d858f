package model

// RetrievedPassage is one scored knowledge-base match. Ephemeral, produced per
// request; Score is a similarity in [0,1].
type RetrievedPassage struct {
	Content  string  `json:"content"`
	Score    float64 `json:"score"`
	SourceID string  `json:"source_id"`
}

// KnowledgeDocument is an ingestion unit for the vector index.
type KnowledgeDocument struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	SourceID string `json:"source_id"`
}
