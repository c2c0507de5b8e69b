// Package knowledge retrieves textbook passages from the pgvector index.
//
// The corpus lives in the textbook_chunks table: one row per passage with
// a precomputed embedding. Search embeds the query, runs a cosine
// similarity scan, and returns passages above the relevance threshold.
package knowledge

// VectorDimension is the embedding width stored in textbook_chunks.
// gemini-embedding-001 is truncated to this size via OutputDimensionality.
const VectorDimension int32 = 768

// Citation identifies the source of a retrieved passage.
type Citation struct {
	ChapterTitle   string  `json:"chapter_title"`
	DocURL         string  `json:"doc_url"`
	RelevanceScore float64 `json:"relevance_score"`
}

// Passage is a retrieved chunk of textbook content with its source.
type Passage struct {
	Citation
	Content string `json:"content"`
}
