// Package store persists documents, chunks, chat sessions and ingestion jobs.
// Missing rows surface as domain.NotFoundError and duplicate unique keys as
// domain.ConflictError.
package store

import (
	"context"
	"time"

	"github.com/WessleyAI/groundwork/engine/domain"
)

// Documents stores ingested source files. SourcePath is unique.
type Documents interface {
	CreateDocument(ctx context.Context, doc domain.Document) (domain.Document, error)
	GetDocument(ctx context.Context, id string) (domain.Document, error)
	DocumentByChecksum(ctx context.Context, checksum string) (domain.Document, error)
	DocumentByPath(ctx context.Context, sourcePath string) (domain.Document, error)
	UpdateDocument(ctx context.Context, id string, u domain.DocumentUpdate) (domain.Document, error)
	// DeleteDocument removes the document together with its chunks.
	DeleteDocument(ctx context.Context, id string) error
}

// Chunks stores chunk text and vectors. Hash is unique.
type Chunks interface {
	CreateChunk(ctx context.Context, c domain.Chunk) error
	// ChunksByIDs returns the chunks that exist, in the order of ids.
	ChunksByIDs(ctx context.Context, ids []string) ([]domain.Chunk, error)
	ChunksWithEmbeddings(ctx context.Context) ([]domain.Chunk, error)
	ChunksByDocument(ctx context.Context, documentID string) ([]domain.Chunk, error)
	DeleteChunksByDocument(ctx context.Context, documentID string) (int, error)
	SetChunkEmbedding(ctx context.Context, id string, v []float32) error
	CountChunks(ctx context.Context) (int, error)
}

// Sessions stores chat sessions and their append-only messages.
type Sessions interface {
	CreateSession(ctx context.Context, s domain.Session) (domain.Session, error)
	GetSession(ctx context.Context, id string) (domain.Session, error)
	TouchSession(ctx context.Context, id string, at time.Time) error
	AddMessage(ctx context.Context, m domain.Message) (domain.Message, error)
	// Messages returns the most recent limit messages in chronological
	// order. A non-positive limit returns all of them.
	Messages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error)
	CountMessages(ctx context.Context, sessionID string) (int, error)
}

// Jobs stores ingestion jobs.
type Jobs interface {
	CreateJob(ctx context.Context, j domain.IngestionJob) (domain.IngestionJob, error)
	GetJob(ctx context.Context, id string) (domain.IngestionJob, error)
	SaveJob(ctx context.Context, j domain.IngestionJob) error
}

// Store is the full persistence surface.
type Store interface {
	Documents
	Chunks
	Sessions
	Jobs
	Ping(ctx context.Context) error
	Close() error
}
