// Package clair holds the core data model shared by every pipeline stage:
// documents, topics, queries and retrieval results. The processing engine
// lives in the subpackages (config, pipeline, job) and the task
// implementations consume and produce these records.
package clair

// Version of the clair runner.
const Version = "0.2.0"

// Doc is a document flowing through stage 1.
type Doc struct {
	ID   string `json:"id"`
	Lang string `json:"lang"`
	Text string `json:"text"`
	Date string `json:"date,omitempty"`

	// OriginalText is the text before processing. The document processor
	// sets it so the database task can store the unmodified form; it is
	// not persisted with processed documents.
	OriginalText string `json:"-"`
}

// Topic is a raw information need read from a topic file.
type Topic struct {
	ID        string `json:"id"`
	Lang      string `json:"lang"`
	Title     string `json:"title"`
	Desc      string `json:"desc,omitempty"`
	Narrative string `json:"narrative,omitempty"`
}

// Query is a topic reduced to searchable text.
type Query struct {
	ID   string `json:"id"`
	Lang string `json:"lang"`
	// Query is the processed text used for retrieval.
	Query string `json:"query"`
	// Text is the original text the query was extracted from.
	Text string `json:"text"`
}

// Hit is one ranked document in a result set.
type Hit struct {
	DocID string  `json:"doc_id"`
	Rank  int     `json:"rank"`
	Score float64 `json:"score"`
}

// Results is the ranked list produced for one query.
type Results struct {
	Query  Query  `json:"query"`
	System string `json:"system"`
	Hits   []Hit  `json:"hits"`
}
