// Package domain defines the entities shared by the ingestion and query
// pipelines, their typed update structs, and the validation gate in front
// of every external call.
package domain

import "time"

// Document is one ingested source file.
type Document struct {
	ID         string    `json:"id"`
	SourcePath string    `json:"source_path"`
	Title      string    `json:"title"`
	Checksum   string    `json:"checksum"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Chunk metadata keys, denormalized so citations never need a join.
const (
	MetaSourcePath = "source_path"
	MetaTitle      = "title"
	MetaHeading    = "heading"
)

// Chunk is a contiguous slice of a document's cleaned text.
type Chunk struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"document_id"`
	Index      int               `json:"chunk_index"`
	Content    string            `json:"content"`
	Hash       string            `json:"chunk_hash"`
	Embedding  []float32         `json:"-"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// HasEmbedding reports whether a vector has been attached.
func (c Chunk) HasEmbedding() bool { return len(c.Embedding) > 0 }

// Meta returns a metadata value or "".
func (c Chunk) Meta(key string) string {
	if c.Metadata == nil {
		return ""
	}
	return c.Metadata[key]
}

// Session groups the messages of one conversation.
type Session struct {
	ID        string            `json:"session_id"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Role is the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is an append-only entry in a session.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// DocumentUpdate lists the fields re-ingestion may change on a document.
type DocumentUpdate struct {
	Title    string
	Checksum string
	Content  string
}

// Validate checks the update before it is applied.
func (u DocumentUpdate) Validate() error {
	if !IsChecksum(u.Checksum) {
		return NewValidationError("checksum", u.Checksum, ErrInvalidChecksum)
	}
	return nil
}

// Apply validates u and copies it onto d.
func (d *Document) Apply(u DocumentUpdate, now time.Time) error {
	if err := u.Validate(); err != nil {
		return err
	}
	d.Title = u.Title
	d.Checksum = u.Checksum
	d.Content = u.Content
	d.UpdatedAt = now
	return nil
}
