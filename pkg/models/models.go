package models

import "time"

// SectionKind tags how a document section should be chunked.
type SectionKind string

const (
	KindStructured SectionKind = "STRUCTURED"
	KindNarrative  SectionKind = "NARRATIVE"
)

// Section is one normalized slice of a disclosure document.
type Section struct {
	Index int         `json:"index"`
	Kind  SectionKind `json:"kind"`
	Text  string      `json:"text"`
}

// Document is an immutable normalized disclosure. Sections keep the order
// they appear in the filing.
type Document struct {
	ID       string    `json:"document_id"`
	CorpName string    `json:"corp_name"`
	Sections []Section `json:"sections"`
}

// Chunk is a bounded unit of document text prepared for embedding and
// retrieval. Embedding is nil until the embedding stage fills it in.
type Chunk struct {
	ID              string      `json:"chunk_id"`
	DocumentID      string      `json:"document_id"`
	SectionIndex    int         `json:"section_index"`
	Kind            SectionKind `json:"kind"`
	Text            string      `json:"text"`
	TokenCount      int         `json:"token_count"`
	OverlapWithPrev bool        `json:"overlap_with_prev"`
	Embedding       []float32   `json:"-"`
	CreatedAt       time.Time   `json:"created_at,omitempty"`
}

// ScoredChunk pairs a chunk with its relevance for one query.
// Similarity is the raw cosine similarity before reranking.
type ScoredChunk struct {
	Chunk      Chunk   `json:"chunk"`
	Score      float64 `json:"score"`
	Similarity float64 `json:"similarity"`
}

// TaskState is a stage in the indexing lifecycle.
type TaskState string

const (
	StatePending     TaskState = "PENDING"
	StateDownloading TaskState = "DOWNLOADING"
	StateChunking    TaskState = "CHUNKING"
	StateEmbedding   TaskState = "EMBEDDING"
	StateIndexing    TaskState = "INDEXING"
	StateComplete    TaskState = "COMPLETE"
	StateFailed      TaskState = "FAILED"
)

// Terminal reports whether no further transitions are possible.
func (s TaskState) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// ErrorCause classifies task and query failures.
type ErrorCause string

const (
	CauseSourceUnavailable ErrorCause = "SOURCE_UNAVAILABLE"
	CauseChunkingError     ErrorCause = "CHUNKING_ERROR"
	CauseEmbeddingError    ErrorCause = "EMBEDDING_ERROR"
	CauseIndexError        ErrorCause = "INDEX_ERROR"
	CauseSummaryError      ErrorCause = "SUMMARY_ERROR"
	CauseTimeout           ErrorCause = "TIMEOUT"
	CauseNoContext         ErrorCause = "NO_CONTEXT"
	CauseCancelled         ErrorCause = "CANCELLED"
)

// Task is a point-in-time snapshot of an indexing job.
type Task struct {
	TaskID     string     `json:"task_id"`
	DocumentID string     `json:"document_id"`
	CorpName   string     `json:"corp_name,omitempty"`
	State      TaskState  `json:"state"`
	Cause      ErrorCause `json:"cause,omitempty"`
	Error      string     `json:"error,omitempty"`
	ChunkCount int        `json:"chunk_count,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Summary is the one-shot document digest produced after indexing.
type Summary struct {
	CompanyOverview     string    `json:"company_overview"`
	FinancialHighlights string    `json:"financial_highlights"`
	KeyChanges          string    `json:"key_changes"`
	NotablePoints       string    `json:"notable_points"`
	Keywords            []string  `json:"keywords"`
	Confidence          float64   `json:"confidence"`
	GeneratedAt         time.Time `json:"generated_at"`
}

// NewsItem is one external news snippet, tagged separately from document
// context when it reaches the language model.
type NewsItem struct {
	Title     string    `json:"title"`
	Snippet   string    `json:"snippet"`
	URL       string    `json:"url"`
	Date      time.Time `json:"date"`
	Relevance float64   `json:"relevance"`
}

// Answer is the result of one question against one indexed document.
type Answer struct {
	Answer             string     `json:"answer"`
	SupportingChunkIDs []string   `json:"supporting_chunk_ids"`
	Confidence         float64    `json:"confidence"`
	NewsIncluded       bool       `json:"news_included"`
	News               []NewsItem `json:"news,omitempty"`
}
