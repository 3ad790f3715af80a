// Package retrieval finds the stored chunks most similar to a question.
//
// Search is a two-step strategy: the vector index first, then a local cosine
// scan over every chunk with a stored vector when the index fails. A
// confidence gate turns weak candidate sets into an empty result.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/WessleyAI/groundwork/engine/domain"
	"github.com/WessleyAI/groundwork/engine/semantic"
	"github.com/WessleyAI/groundwork/engine/store"
	"github.com/WessleyAI/groundwork/pkg/metrics"
	"github.com/WessleyAI/groundwork/pkg/resilience"
)

// Searcher returns the limit nearest stored vectors, highest score first.
type Searcher interface {
	Search(ctx context.Context, vector []float32, limit int) ([]semantic.SearchResult, error)
}

// QueryEmbedder embeds the question.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Scored is a resolved chunk and its similarity to the question.
type Scored struct {
	Chunk domain.Chunk `json:"chunk"`
	Score float64      `json:"score"`
}

// Scores lists the scores of results in order.
func Scores(results []Scored) []float64 {
	out := make([]float64, len(results))
	for i, r := range results {
		out[i] = r.Score
	}
	return out
}

// IndexSearcher queries the vector index behind a circuit breaker, so a
// down index fails fast instead of timing out on every query.
type IndexSearcher struct {
	Index   Searcher
	Breaker *resilience.Breaker
}

// NewIndexSearcher wraps index with a breaker. Validation errors do not
// count as failures.
func NewIndexSearcher(index Searcher, opts resilience.BreakerOpts) *IndexSearcher {
	if opts.IsFailure == nil {
		opts.IsFailure = func(err error) bool { return err != nil && !domain.IsValidation(err) }
	}
	return &IndexSearcher{Index: index, Breaker: resilience.NewBreaker(opts)}
}

// Search implements Searcher.
func (s *IndexSearcher) Search(ctx context.Context, vector []float32, limit int) ([]semantic.SearchResult, error) {
	return resilience.Do(ctx, s.Breaker, func(ctx context.Context) ([]semantic.SearchResult, error) {
		return s.Index.Search(ctx, vector, limit)
	})
}

// LocalSearcher scores every chunk that carries a vector in memory.
type LocalSearcher struct {
	Chunks store.Chunks
}

// Search implements Searcher.
func (s LocalSearcher) Search(ctx context.Context, vector []float32, limit int) ([]semantic.SearchResult, error) {
	chunks, err := s.Chunks.ChunksWithEmbeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("retrieval: load vectors: %w", err)
	}
	candidates := make([]semantic.Candidate, len(chunks))
	for i, c := range chunks {
		candidates[i] = semantic.Candidate{ID: c.ID, Vector: c.Embedding}
	}
	return semantic.TopK(vector, candidates, limit), nil
}

// Engine runs retrieval. Primary may be nil, in which case every search
// goes to Fallback.
type Engine struct {
	Embedder QueryEmbedder
	Primary  Searcher
	Fallback Searcher
	Chunks   store.Chunks
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// New creates an Engine whose fallback is a LocalSearcher over chunks.
func New(emb QueryEmbedder, primary Searcher, chunks store.Chunks, m *metrics.Metrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		Embedder: emb,
		Primary:  primary,
		Fallback: LocalSearcher{Chunks: chunks},
		Chunks:   chunks,
		Metrics:  m,
		Logger:   logger,
	}
}

// Retrieve validates the parameters, embeds the question and returns the
// resolved chunks that passed the confidence gate, best first. An empty
// result means nothing qualified.
func (e *Engine) Retrieve(ctx context.Context, question string, topK int, threshold float64) ([]Scored, error) {
	if err := domain.ValidateQuestion(question); err != nil {
		return nil, err
	}
	if err := domain.ValidateRetrieval(topK, threshold); err != nil {
		return nil, err
	}
	vector, err := e.Embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed question: %w", err)
	}
	candidates, err := e.Candidates(ctx, vector, topK)
	if err != nil {
		return nil, err
	}
	passed := Gate(candidates, threshold)
	if len(passed) == 0 {
		e.Logger.Info("retrieval: low confidence", "candidates", len(candidates), "threshold", threshold)
		return nil, nil
	}
	return e.Resolve(ctx, passed)
}

// Candidates asks the primary searcher and falls back to the local scan
// when it fails. Only a fallback failure is returned.
func (e *Engine) Candidates(ctx context.Context, vector []float32, topK int) ([]semantic.SearchResult, error) {
	if e.Primary != nil {
		start := time.Now()
		res, err := e.Primary.Search(ctx, vector, topK)
		e.Metrics.Retrieval(metrics.PathPrimary, start)
		if err == nil {
			return res, nil
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		e.Metrics.Fallback()
		e.Logger.Warn("retrieval: vector index failed, using local scan", "error", err)
	}

	start := time.Now()
	res, err := e.Fallback.Search(ctx, vector, topK)
	e.Metrics.Retrieval(metrics.PathFallback, start)
	if err != nil {
		return nil, fmt.Errorf("retrieval: fallback search: %w", err)
	}
	return res, nil
}

// Gate returns no candidates when none reaches threshold and all of them,
// in score order, otherwise.
func Gate(candidates []semantic.SearchResult, threshold float64) []semantic.SearchResult {
	for _, c := range candidates {
		if float64(c.Score) >= threshold {
			return candidates
		}
	}
	return nil
}

// Resolve loads the chunks behind candidates, keeping candidate order.
// Candidates whose chunk no longer exists are dropped.
func (e *Engine) Resolve(ctx context.Context, candidates []semantic.SearchResult) ([]Scored, error) {
	ids := make([]string, len(candidates))
	scores := make(map[string]float64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
		scores[c.ID] = float64(c.Score)
	}
	chunks, err := e.Chunks.ChunksByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("retrieval: resolve chunks: %w", err)
	}
	out := make([]Scored, len(chunks))
	for i, c := range chunks {
		out[i] = Scored{Chunk: c, Score: scores[c.ID]}
	}
	if dropped := len(candidates) - len(out); dropped > 0 {
		e.Logger.Warn("retrieval: candidates without stored chunk", "dropped", dropped)
	}
	return out, nil
}
