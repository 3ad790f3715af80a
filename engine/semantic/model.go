package semantic

// Payload keys written for every indexed chunk.
const (
	KeyDocumentID = "document_id"
	KeySourcePath = "source_path"
	KeyTitle      = "title"
	KeyChunkIndex = "chunk_index"
	KeyContent    = "content"
)

// Point is one vector in the index. ID is the chunk ID.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// SearchResult is a single similarity hit.
type SearchResult struct {
	ID         string  `json:"id"`
	Score      float32 `json:"score"`
	DocumentID string  `json:"document_id,omitempty"`
	SourcePath string  `json:"source_path,omitempty"`
	Title      string  `json:"title,omitempty"`
	ChunkIndex int     `json:"chunk_index"`
	Content    string  `json:"content,omitempty"`
}

// Candidate is a stored vector considered by the local similarity search.
type Candidate struct {
	ID     string
	Vector []float32
}
