package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/WessleyAI/groundwork/engine/domain"
	"github.com/WessleyAI/groundwork/pkg/repo"
)

// Memory is an in-process Store for tests and single-binary runs.
type Memory struct {
	mu       sync.Mutex // serializes unique-key checks with inserts
	docs     *repo.Memory[domain.Document, string]
	chunks   *repo.Memory[domain.Chunk, string]
	sessions *repo.Memory[domain.Session, string]
	messages *repo.Memory[domain.Message, string]
	jobs     *repo.Memory[domain.IngestionJob, string]
	now      func() time.Time
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		docs:     repo.NewMemory(func(d domain.Document) string { return d.ID }),
		chunks:   repo.NewMemory(func(c domain.Chunk) string { return c.ID }),
		sessions: repo.NewMemory(func(s domain.Session) string { return s.ID }),
		messages: repo.NewMemory(func(m domain.Message) string { return m.ID }),
		jobs:     repo.NewMemory(func(j domain.IngestionJob) string { return j.ID }),
		now:      time.Now,
	}
}

var _ Store = (*Memory)(nil)

func mapErr(err error, resource, key string) error {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return domain.NotFound(resource, key)
	case errors.Is(err, repo.ErrExists):
		return domain.Conflict(resource, key)
	}
	return err
}

func (m *Memory) CreateDocument(ctx context.Context, doc domain.Document) (domain.Document, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs.Find(ctx, func(d domain.Document) bool { return d.SourcePath == doc.SourcePath }); ok {
		return domain.Document{}, domain.Conflict("document", doc.SourcePath)
	}
	now := m.now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = doc.CreatedAt
	out, err := m.docs.Create(ctx, doc)
	return out, mapErr(err, "document", doc.ID)
}

func (m *Memory) GetDocument(ctx context.Context, id string) (domain.Document, error) {
	d, err := m.docs.Get(ctx, id)
	return d, mapErr(err, "document", id)
}

func (m *Memory) DocumentByChecksum(ctx context.Context, checksum string) (domain.Document, error) {
	d, ok := m.docs.Find(ctx, func(d domain.Document) bool { return d.Checksum == checksum })
	if !ok {
		return domain.Document{}, domain.NotFound("document", checksum)
	}
	return d, nil
}

func (m *Memory) DocumentByPath(ctx context.Context, sourcePath string) (domain.Document, error) {
	d, ok := m.docs.Find(ctx, func(d domain.Document) bool { return d.SourcePath == sourcePath })
	if !ok {
		return domain.Document{}, domain.NotFound("document", sourcePath)
	}
	return d, nil
}

func (m *Memory) UpdateDocument(ctx context.Context, id string, u domain.DocumentUpdate) (domain.Document, error) {
	d, err := m.docs.Get(ctx, id)
	if err != nil {
		return domain.Document{}, mapErr(err, "document", id)
	}
	if err := d.Apply(u, m.now().UTC()); err != nil {
		return domain.Document{}, err
	}
	out, err := m.docs.Update(ctx, d)
	return out, mapErr(err, "document", id)
}

func (m *Memory) DeleteDocument(ctx context.Context, id string) error {
	if _, err := m.docs.Get(ctx, id); err != nil {
		return mapErr(err, "document", id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.docs.Delete(ctx, id); err != nil {
		return err
	}
	m.chunks.DeleteWhere(ctx, func(c domain.Chunk) bool { return c.DocumentID == id })
	return nil
}

func (m *Memory) CreateChunk(ctx context.Context, c domain.Chunk) error {
	if _, err := m.docs.Get(ctx, c.DocumentID); err != nil {
		return mapErr(err, "document", c.DocumentID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chunks.Find(ctx, func(x domain.Chunk) bool { return x.Hash == c.Hash }); ok {
		return domain.Conflict("chunk", c.Hash)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = m.now().UTC()
	}
	c.Embedding = append([]float32(nil), c.Embedding...)
	_, err := m.chunks.Create(ctx, c)
	return mapErr(err, "chunk", c.ID)
}

func (m *Memory) ChunksByIDs(ctx context.Context, ids []string) ([]domain.Chunk, error) {
	out := make([]domain.Chunk, 0, len(ids))
	for _, id := range ids {
		if c, err := m.chunks.Get(ctx, id); err == nil {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Memory) ChunksWithEmbeddings(ctx context.Context) ([]domain.Chunk, error) {
	return m.chunks.List(ctx, repo.ListOpts[domain.Chunk]{
		Where: func(c domain.Chunk) bool { return c.HasEmbedding() },
	})
}

func (m *Memory) ChunksByDocument(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	return m.chunks.List(ctx, repo.ListOpts[domain.Chunk]{
		Where: func(c domain.Chunk) bool { return c.DocumentID == documentID },
		Less:  func(a, b domain.Chunk) bool { return a.Index < b.Index },
	})
}

func (m *Memory) DeleteChunksByDocument(ctx context.Context, documentID string) (int, error) {
	return m.chunks.DeleteWhere(ctx, func(c domain.Chunk) bool { return c.DocumentID == documentID }), nil
}

func (m *Memory) SetChunkEmbedding(ctx context.Context, id string, v []float32) error {
	c, err := m.chunks.Get(ctx, id)
	if err != nil {
		return mapErr(err, "chunk", id)
	}
	c.Embedding = append([]float32(nil), v...)
	_, err = m.chunks.Update(ctx, c)
	return mapErr(err, "chunk", id)
}

func (m *Memory) CountChunks(ctx context.Context) (int, error) {
	return m.chunks.Count(ctx, nil), nil
}

func (m *Memory) CreateSession(ctx context.Context, s domain.Session) (domain.Session, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = m.now().UTC()
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = s.CreatedAt
	}
	out, err := m.sessions.Create(ctx, s)
	return out, mapErr(err, "session", s.ID)
}

func (m *Memory) GetSession(ctx context.Context, id string) (domain.Session, error) {
	s, err := m.sessions.Get(ctx, id)
	return s, mapErr(err, "session", id)
}

func (m *Memory) TouchSession(ctx context.Context, id string, at time.Time) error {
	s, err := m.sessions.Get(ctx, id)
	if err != nil {
		return mapErr(err, "session", id)
	}
	s.UpdatedAt = at
	_, err = m.sessions.Update(ctx, s)
	return mapErr(err, "session", id)
}

func (m *Memory) AddMessage(ctx context.Context, msg domain.Message) (domain.Message, error) {
	if _, err := m.sessions.Get(ctx, msg.SessionID); err != nil {
		return domain.Message{}, mapErr(err, "session", msg.SessionID)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = m.now().UTC()
	}
	out, err := m.messages.Create(ctx, msg)
	return out, mapErr(err, "message", msg.ID)
}

func (m *Memory) Messages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	all, err := m.messages.List(ctx, repo.ListOpts[domain.Message]{
		Where: func(x domain.Message) bool { return x.SessionID == sessionID },
		Less:  func(a, b domain.Message) bool { return a.CreatedAt.Before(b.CreatedAt) },
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (m *Memory) CountMessages(ctx context.Context, sessionID string) (int, error) {
	return m.messages.Count(ctx, func(x domain.Message) bool { return x.SessionID == sessionID }), nil
}

func (m *Memory) CreateJob(ctx context.Context, j domain.IngestionJob) (domain.IngestionJob, error) {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	out, err := m.jobs.Create(ctx, j)
	return out, mapErr(err, "ingestion job", j.ID)
}

func (m *Memory) GetJob(ctx context.Context, id string) (domain.IngestionJob, error) {
	j, err := m.jobs.Get(ctx, id)
	return j, mapErr(err, "ingestion job", id)
}

func (m *Memory) SaveJob(ctx context.Context, j domain.IngestionJob) error {
	_, err := m.jobs.Update(ctx, j)
	return mapErr(err, "ingestion job", j.ID)
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
