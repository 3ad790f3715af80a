// Package ingest turns a directory of Markdown sources into stored, embedded
// and indexed chunks. Each file runs through a chain of named stages; an
// unchanged checksum ends the chain early.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/WessleyAI/groundwork/engine/checksum"
	"github.com/WessleyAI/groundwork/engine/chunker"
	"github.com/WessleyAI/groundwork/engine/domain"
	"github.com/WessleyAI/groundwork/engine/extract"
	"github.com/WessleyAI/groundwork/engine/jobs"
	"github.com/WessleyAI/groundwork/engine/semantic"
	"github.com/WessleyAI/groundwork/engine/store"
	"github.com/WessleyAI/groundwork/pkg/fn"
	"github.com/WessleyAI/groundwork/pkg/metrics"
	"github.com/google/uuid"
)

// DefaultExtensions are the file types picked up by Scan.
var DefaultExtensions = []string{".md", ".mdx"}

// Embedder embeds chunk texts in order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Index is the vector index written during ingestion.
type Index interface {
	Upsert(ctx context.Context, points []semantic.Point) error
	DeleteByDocument(ctx context.Context, documentID string) error
}

// Deps holds the external dependencies for the ingestion pipeline.
// Index, Jobs and Metrics are optional.
type Deps struct {
	Store    store.Store
	Embedder Embedder
	Index    Index
	Jobs     *jobs.Service
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Options configures the pipeline.
type Options struct {
	// SourceDir is the root that stored source paths are relative to.
	SourceDir  string
	Extensions []string
	Chunker    chunker.Options
}

// Pipeline ingests files one at a time.
type Pipeline struct {
	deps    Deps
	opts    Options
	chunker *chunker.Chunker
	log     *slog.Logger
	stages  fn.Stage[*work, *work]
}

// Outcome is the result of processing one file. Unchanged is set when a
// document with the same checksum already existed; Chunks is then nil.
type Outcome struct {
	Document  domain.Document
	Chunks    []domain.Chunk
	Unchanged bool
}

// work carries one file through the stages.
type work struct {
	root     string
	path     string
	rel      string
	raw      []byte
	checksum string

	unchanged bool
	previous  *domain.Document
	extracted extract.Extracted
	doc       domain.Document
	chunks    []domain.Chunk
}

// New creates a Pipeline.
func New(deps Deps, opts Options) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultExtensions
	}
	p := &Pipeline{
		deps:    deps,
		opts:    opts,
		chunker: chunker.New(opts.Chunker),
		log:     deps.Logger,
	}
	p.stages = fn.Until(func(w *work) bool { return w.unchanged },
		p.stage("read", p.read),
		p.stage("checksum", p.dedup),
		p.stage("extract", p.extract),
		p.stage("document", p.prepareDocument),
		p.stage("chunk", p.chunk),
		p.stage("embed", p.embed),
		p.stage("commit", p.commit),
		p.stage("index", p.index),
	)
	return p
}

// stage names, traces and logs one step.
func (p *Pipeline) stage(name string, f func(context.Context, *work) error) fn.Stage[*work, *work] {
	return fn.TracedStage("ingest."+name, func(ctx context.Context, w *work) fn.Result[*work] {
		p.log.Debug("stage.enter", "stage", name, "path", w.rel)
		start := time.Now()
		defer func() {
			p.log.Debug("stage.exit", "stage", name, "path", w.rel, "duration", time.Since(start))
		}()
		if err := f(ctx, w); err != nil {
			return fn.Err[*work](fmt.Errorf("%s: %w", name, err))
		}
		return fn.Ok(w)
	})
}

// Scan lists the files under dir whose extension is configured, sorted.
// Extensions match case-insensitively.
func (p *Pipeline) Scan(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, domain.NotFound("directory", dir)
	}
	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ingest: scan %s: %w", dir, err)
	}
	files = fn.Filter(files, p.accepts)
	slices.Sort(files)
	return files, nil
}

func (p *Pipeline) accepts(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, want := range p.opts.Extensions {
		if strings.ToLower(want) == ext {
			return true
		}
	}
	return false
}

// Process ingests one file under Options.SourceDir.
func (p *Pipeline) Process(ctx context.Context, path string) (Outcome, error) {
	return p.process(ctx, &work{root: p.opts.SourceDir, path: path})
}

func (p *Pipeline) process(ctx context.Context, w *work) (Outcome, error) {
	w.rel = relativePath(w.root, w.path)
	w, err := p.stages(ctx, w).Unwrap()
	if err != nil {
		p.deps.Metrics.Document(metrics.OutcomeFailed)
		return Outcome{}, fmt.Errorf("ingest: %w", err)
	}
	if w.unchanged {
		p.deps.Metrics.Document(metrics.OutcomeUnchanged)
		p.log.Info("ingest: unchanged, skipping", "path", w.rel, "checksum", w.checksum)
		return Outcome{Document: w.doc, Unchanged: true}, nil
	}
	p.deps.Metrics.Document(metrics.OutcomeIngested)
	p.deps.Metrics.Chunks(len(w.chunks))
	p.log.Info("ingest: document ingested", "path", w.rel, "document_id", w.doc.ID, "chunks", len(w.chunks))
	return Outcome{Document: w.doc, Chunks: w.chunks}, nil
}

// relativePath returns path relative to root, or path itself when it is
// not under root.
func relativePath(root, path string) string {
	if root == "" {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func (p *Pipeline) read(_ context.Context, w *work) error {
	if w.raw != nil {
		return nil
	}
	raw, err := os.ReadFile(w.path)
	if err != nil {
		return err
	}
	w.raw = raw
	return nil
}

// dedup ends the chain when a document with the same checksum exists.
func (p *Pipeline) dedup(ctx context.Context, w *work) error {
	if w.checksum == "" {
		w.checksum = checksum.Bytes(w.raw)
	}
	doc, err := p.deps.Store.DocumentByChecksum(ctx, w.checksum)
	switch {
	case err == nil:
		w.doc = doc
		w.unchanged = true
		return nil
	case errors.Is(err, domain.ErrNotFound):
		return nil
	default:
		return err
	}
}

func (p *Pipeline) extract(_ context.Context, w *work) error {
	w.extracted = extract.Parse(string(w.raw))
	if w.extracted.Title == "" {
		w.extracted.Title = extract.TitleFromPath(w.path)
	}
	return nil
}

// prepareDocument builds the document in memory. An older version at the
// same path keeps its ID; nothing is written until commit.
func (p *Pipeline) prepareDocument(ctx context.Context, w *work) error {
	prev, err := p.deps.Store.DocumentByPath(ctx, w.rel)
	switch {
	case err == nil:
		w.previous = &prev
		w.doc = prev
	case errors.Is(err, domain.ErrNotFound):
		w.doc = domain.Document{ID: uuid.NewString(), SourcePath: w.rel}
	default:
		return err
	}
	w.doc.Title = w.extracted.Title
	w.doc.Checksum = w.checksum
	w.doc.Content = w.extracted.Body
	return nil
}

// chunk splits the body and attaches denormalized citation metadata.
func (p *Pipeline) chunk(_ context.Context, w *work) error {
	headings := extract.Headings(w.doc.Content)
	w.chunks = p.chunker.Chunk(w.doc.Content, w.doc.ID)
	offset := 0
	for i := range w.chunks {
		w.chunks[i].Metadata = map[string]string{
			domain.MetaSourcePath: w.doc.SourcePath,
			domain.MetaTitle:      w.doc.Title,
		}
		if h := extract.HeadingAt(headings, offset); h != "" {
			w.chunks[i].Metadata[domain.MetaHeading] = h
		}
		offset += len(w.chunks[i].Content)
	}
	return nil
}

func (p *Pipeline) embed(ctx context.Context, w *work) error {
	if len(w.chunks) == 0 {
		return nil
	}
	texts := fn.Map(w.chunks, func(c domain.Chunk) string { return c.Content })
	vectors, err := p.deps.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(w.chunks) {
		return fmt.Errorf("got %d embeddings for %d chunks", len(vectors), len(w.chunks))
	}
	for i := range w.chunks {
		w.chunks[i].Embedding = vectors[i]
	}
	return nil
}

// commit writes the document and its chunks. The new checksum is stored
// last, so a document whose chunks are not all stored is never taken for
// unchanged. On failure the document is removed and the next run starts
// over.
func (p *Pipeline) commit(ctx context.Context, w *work) error {
	if w.previous == nil {
		doc, err := p.deps.Store.CreateDocument(ctx, w.doc)
		if err != nil {
			return err
		}
		w.doc = doc
	} else {
		n, err := p.deps.Store.DeleteChunksByDocument(ctx, w.doc.ID)
		if err != nil {
			return err
		}
		if p.deps.Index != nil {
			if err := p.deps.Index.DeleteByDocument(ctx, w.doc.ID); err != nil {
				p.log.Warn("ingest: delete stale index points failed", "document_id", w.doc.ID, "error", err)
			}
		}
		p.log.Info("ingest: replacing changed document", "path", w.rel, "document_id", w.doc.ID, "stale_chunks", n)
	}

	id := w.doc.ID
	err := p.persist(ctx, w)
	if err == nil && w.previous != nil {
		var doc domain.Document
		doc, err = p.deps.Store.UpdateDocument(ctx, id, domain.DocumentUpdate{
			Title:    w.doc.Title,
			Checksum: w.doc.Checksum,
			Content:  w.doc.Content,
		})
		if err == nil {
			w.doc = doc
		}
	}
	if err != nil {
		p.rollback(ctx, id, w.rel)
		return err
	}
	return nil
}

func (p *Pipeline) persist(ctx context.Context, w *work) error {
	for _, c := range w.chunks {
		if err := p.deps.Store.CreateChunk(ctx, c); err != nil {
			return fmt.Errorf("chunk %d: %w", c.Index, err)
		}
	}
	return nil
}

func (p *Pipeline) rollback(ctx context.Context, documentID, rel string) {
	ctx = context.WithoutCancel(ctx)
	if err := p.deps.Store.DeleteDocument(ctx, documentID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		p.log.Error("ingest: rollback failed", "path", rel, "document_id", documentID, "error", err)
	}
	if p.deps.Index != nil {
		if err := p.deps.Index.DeleteByDocument(ctx, documentID); err != nil {
			p.log.Warn("ingest: rollback index points failed", "document_id", documentID, "error", err)
		}
	}
}

// index upserts each chunk on its own. A failed upsert is logged and
// counted; the stored chunk remains the source of truth.
func (p *Pipeline) index(ctx context.Context, w *work) error {
	if p.deps.Index == nil {
		return nil
	}
	for _, c := range w.chunks {
		err := p.deps.Index.Upsert(ctx, []semantic.Point{PointFor(c)})
		if err != nil {
			p.deps.Metrics.UpsertFailure()
			p.log.Error("ingest: upsert failed", "chunk_id", c.ID, "path", w.rel, "error", err)
		}
	}
	return nil
}

// PointFor builds the index point of a chunk with its denormalized payload.
func PointFor(c domain.Chunk) semantic.Point {
	return semantic.Point{
		ID:     c.ID,
		Vector: c.Embedding,
		Payload: map[string]any{
			semantic.KeyDocumentID: c.DocumentID,
			semantic.KeySourcePath: c.Meta(domain.MetaSourcePath),
			semantic.KeyTitle:      c.Meta(domain.MetaTitle),
			semantic.KeyChunkIndex: c.Index,
			semantic.KeyContent:    c.Content,
		},
	}
}
