package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/WessleyAI/groundwork/engine/domain"
)

// Postgres is a Store on PostgreSQL with the pgvector extension.
type Postgres struct {
	DB  *sql.DB
	now func() time.Time
}

// OpenPostgres opens and pings a connection pool.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return NewPostgres(db), nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{DB: db, now: time.Now}
}

var _ Store = (*Postgres)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func notFound(err error, resource, key string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFound(resource, key)
	}
	return fmt.Errorf("store: %s %s: %w", resource, key, err)
}

// --- documents ---

const documentColumns = `id, source_path, title, checksum, content, created_at, updated_at`

func scanDocument(r rowScanner) (domain.Document, error) {
	var d domain.Document
	err := r.Scan(&d.ID, &d.SourcePath, &d.Title, &d.Checksum, &d.Content, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func (p *Postgres) CreateDocument(ctx context.Context, doc domain.Document) (domain.Document, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = p.now().UTC()
	}
	doc.UpdatedAt = doc.CreatedAt
	_, err := p.DB.ExecContext(ctx, `
INSERT INTO documents (`+documentColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		doc.ID, doc.SourcePath, doc.Title, doc.Checksum, doc.Content, doc.CreatedAt, doc.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.Document{}, domain.Conflict("document", doc.SourcePath)
	}
	if err != nil {
		return domain.Document{}, fmt.Errorf("store: create document: %w", err)
	}
	return doc, nil
}

func (p *Postgres) GetDocument(ctx context.Context, id string) (domain.Document, error) {
	d, err := scanDocument(p.DB.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if err != nil {
		return domain.Document{}, notFound(err, "document", id)
	}
	return d, nil
}

func (p *Postgres) DocumentByChecksum(ctx context.Context, checksum string) (domain.Document, error) {
	d, err := scanDocument(p.DB.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE checksum = $1 ORDER BY created_at LIMIT 1`, checksum))
	if err != nil {
		return domain.Document{}, notFound(err, "document", checksum)
	}
	return d, nil
}

func (p *Postgres) DocumentByPath(ctx context.Context, sourcePath string) (domain.Document, error) {
	d, err := scanDocument(p.DB.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE source_path = $1`, sourcePath))
	if err != nil {
		return domain.Document{}, notFound(err, "document", sourcePath)
	}
	return d, nil
}

func (p *Postgres) UpdateDocument(ctx context.Context, id string, u domain.DocumentUpdate) (domain.Document, error) {
	if err := u.Validate(); err != nil {
		return domain.Document{}, err
	}
	d, err := scanDocument(p.DB.QueryRowContext(ctx, `
UPDATE documents SET title = $2, checksum = $3, content = $4, updated_at = $5
WHERE id = $1
RETURNING `+documentColumns,
		id, u.Title, u.Checksum, u.Content, p.now().UTC()))
	if err != nil {
		return domain.Document{}, notFound(err, "document", id)
	}
	return d, nil
}

// DeleteDocument relies on ON DELETE CASCADE to drop the chunks.
func (p *Postgres) DeleteDocument(ctx context.Context, id string) error {
	res, err := p.DB.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("store: delete document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("document", id)
	}
	return nil
}

// --- chunks ---

const chunkColumns = `id, document_id, chunk_index, content, chunk_hash, embedding, metadata, created_at`

func scanChunk(r rowScanner) (domain.Chunk, error) {
	var (
		c    domain.Chunk
		vec  *pgvector.Vector
		meta []byte
	)
	if err := r.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Content, &c.Hash, &vec, &meta, &c.CreatedAt); err != nil {
		return domain.Chunk{}, err
	}
	if vec != nil {
		c.Embedding = vec.Slice()
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &c.Metadata); err != nil {
			return domain.Chunk{}, fmt.Errorf("metadata: %w", err)
		}
	}
	return c, nil
}

func (p *Postgres) queryChunks(ctx context.Context, query string, args ...any) ([]domain.Chunk, error) {
	rows, err := p.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func vectorArg(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return pgvector.NewVector(v)
}

func (p *Postgres) CreateChunk(ctx context.Context, c domain.Chunk) error {
	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("store: chunk metadata: %w", err)
	}
	if c.Metadata == nil {
		meta = []byte("{}")
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = p.now().UTC()
	}
	_, err = p.DB.ExecContext(ctx, `
INSERT INTO chunks (`+chunkColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.DocumentID, c.Index, c.Content, c.Hash, vectorArg(c.Embedding), meta, c.CreatedAt)
	if isUniqueViolation(err) {
		return domain.Conflict("chunk", c.Hash)
	}
	if err != nil {
		return fmt.Errorf("store: create chunk: %w", err)
	}
	return nil
}

func (p *Postgres) ChunksByIDs(ctx context.Context, ids []string) ([]domain.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	found, err := p.queryChunks(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("store: chunks by ids: %w", err)
	}
	byID := make(map[string]domain.Chunk, len(found))
	for _, c := range found {
		byID[c.ID] = c
	}
	out := make([]domain.Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (p *Postgres) ChunksWithEmbeddings(ctx context.Context) ([]domain.Chunk, error) {
	out, err := p.queryChunks(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE embedding IS NOT NULL ORDER BY document_id, chunk_index`)
	if err != nil {
		return nil, fmt.Errorf("store: chunks with embeddings: %w", err)
	}
	return out, nil
}

func (p *Postgres) ChunksByDocument(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	out, err := p.queryChunks(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE document_id = $1 ORDER BY chunk_index`, documentID)
	if err != nil {
		return nil, fmt.Errorf("store: chunks by document: %w", err)
	}
	return out, nil
}

func (p *Postgres) DeleteChunksByDocument(ctx context.Context, documentID string) (int, error) {
	res, err := p.DB.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, fmt.Errorf("store: delete chunks: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (p *Postgres) SetChunkEmbedding(ctx context.Context, id string, v []float32) error {
	res, err := p.DB.ExecContext(ctx, `UPDATE chunks SET embedding = $2 WHERE id = $1`, id, vectorArg(v))
	if err != nil {
		return fmt.Errorf("store: set embedding: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("chunk", id)
	}
	return nil
}

func (p *Postgres) CountChunks(ctx context.Context) (int, error) {
	var n int
	if err := p.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count chunks: %w", err)
	}
	return n, nil
}

// --- sessions ---

func (p *Postgres) CreateSession(ctx context.Context, s domain.Session) (domain.Session, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = p.now().UTC()
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = s.CreatedAt
	}
	meta, err := json.Marshal(s.Metadata)
	if err != nil {
		return domain.Session{}, fmt.Errorf("store: session metadata: %w", err)
	}
	if s.Metadata == nil {
		meta = []byte("{}")
	}
	_, err = p.DB.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, metadata, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		s.ID, meta, s.CreatedAt, s.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.Session{}, domain.Conflict("session", s.ID)
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("store: create session: %w", err)
	}
	return s, nil
}

func (p *Postgres) GetSession(ctx context.Context, id string) (domain.Session, error) {
	var (
		s    domain.Session
		meta []byte
	)
	err := p.DB.QueryRowContext(ctx,
		`SELECT id, metadata, created_at, updated_at FROM chat_sessions WHERE id = $1`, id).
		Scan(&s.ID, &meta, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return domain.Session{}, notFound(err, "session", id)
	}
	if len(meta) > 0 && string(meta) != "null" {
		if err := json.Unmarshal(meta, &s.Metadata); err != nil {
			return domain.Session{}, fmt.Errorf("store: session metadata: %w", err)
		}
	}
	return s, nil
}

func (p *Postgres) TouchSession(ctx context.Context, id string, at time.Time) error {
	res, err := p.DB.ExecContext(ctx, `UPDATE chat_sessions SET updated_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("store: touch session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("session", id)
	}
	return nil
}

func (p *Postgres) AddMessage(ctx context.Context, m domain.Message) (domain.Message, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = p.now().UTC()
	}
	_, err := p.DB.ExecContext(ctx,
		`INSERT INTO chat_messages (id, session_id, role, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.SessionID, string(m.Role), m.Content, m.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return domain.Message{}, domain.NotFound("session", m.SessionID)
		}
		return domain.Message{}, fmt.Errorf("store: add message: %w", err)
	}
	return m, nil
}

func (p *Postgres) Messages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	query := `SELECT id, session_id, role, content, created_at FROM chat_messages
WHERE session_id = $1 ORDER BY created_at`
	args := []any{sessionID}
	if limit > 0 {
		query = `SELECT id, session_id, role, content, created_at FROM (
	SELECT id, session_id, role, content, created_at FROM chat_messages
	WHERE session_id = $1 ORDER BY created_at DESC LIMIT $2
) recent ORDER BY created_at`
		args = append(args, limit)
	}

	rows, err := p.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: messages: %w", err)
	}
	defer rows.Close()
	var out []domain.Message
	for rows.Next() {
		var (
			m    domain.Message
			role string
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: messages: %w", err)
		}
		m.Role = domain.Role(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *Postgres) CountMessages(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := p.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_messages WHERE session_id = $1`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count messages: %w", err)
	}
	return n, nil
}

// --- jobs ---

const jobColumns = `id, status, source_dir, incremental, processed, total, progress, error, created_at, updated_at, completed_at`

func (p *Postgres) CreateJob(ctx context.Context, j domain.IngestionJob) (domain.IngestionJob, error) {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	_, err := p.DB.ExecContext(ctx, `
INSERT INTO ingestion_jobs (`+jobColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		j.ID, string(j.Status), j.SourceDir, j.Incremental, j.Processed, j.Total, j.Progress,
		j.Error, j.CreatedAt, j.UpdatedAt, j.CompletedAt)
	if isUniqueViolation(err) {
		return domain.IngestionJob{}, domain.Conflict("ingestion job", j.ID)
	}
	if err != nil {
		return domain.IngestionJob{}, fmt.Errorf("store: create job: %w", err)
	}
	return j, nil
}

func (p *Postgres) GetJob(ctx context.Context, id string) (domain.IngestionJob, error) {
	var (
		j         domain.IngestionJob
		status    string
		completed sql.NullTime
	)
	err := p.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM ingestion_jobs WHERE id = $1`, id).
		Scan(&j.ID, &status, &j.SourceDir, &j.Incremental, &j.Processed, &j.Total, &j.Progress,
			&j.Error, &j.CreatedAt, &j.UpdatedAt, &completed)
	if err != nil {
		return domain.IngestionJob{}, notFound(err, "ingestion job", id)
	}
	j.Status = domain.JobStatus(status)
	if completed.Valid {
		t := completed.Time
		j.CompletedAt = &t
	}
	return j, nil
}

func (p *Postgres) SaveJob(ctx context.Context, j domain.IngestionJob) error {
	res, err := p.DB.ExecContext(ctx, `
UPDATE ingestion_jobs
SET status = $2, processed = $3, total = $4, progress = $5, error = $6, updated_at = $7, completed_at = $8
WHERE id = $1`,
		j.ID, string(j.Status), j.Processed, j.Total, j.Progress, j.Error, j.UpdatedAt, j.CompletedAt)
	if err != nil {
		return fmt.Errorf("store: save job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("ingestion job", j.ID)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.DB.PingContext(ctx) }

func (p *Postgres) Close() error { return p.DB.Close() }
