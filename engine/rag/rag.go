// Package rag answers questions from retrieved document chunks.
//
// Every answer passes the same gates: something must be retrieved, the
// assembled context must be long enough, the scores must be confident and
// the generated text must be grounded in the context. Anything else becomes
// a refusal. Query never returns an error.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/WessleyAI/groundwork/engine/citation"
	"github.com/WessleyAI/groundwork/engine/domain"
	"github.com/WessleyAI/groundwork/engine/guard"
	"github.com/WessleyAI/groundwork/engine/retrieval"
	"github.com/WessleyAI/groundwork/engine/session"
	"github.com/WessleyAI/groundwork/pkg/metrics"
)

// Retrieval defaults used when a request leaves them unset.
const (
	DefaultTopK      = 5
	DefaultThreshold = 0.1
)

// Retriever returns gated, resolved chunks for a question.
type Retriever interface {
	Retrieve(ctx context.Context, question string, topK int, threshold float64) ([]retrieval.Scored, error)
}

// Options configures an Orchestrator.
type Options struct {
	TopK      int
	Threshold float64
	Guard     guard.Options
	// SnippetLength bounds citation snippets.
	SnippetLength int
}

// DefaultOptions returns the standard retrieval and guard settings.
func DefaultOptions() Options {
	return Options{
		TopK:          DefaultTopK,
		Threshold:     DefaultThreshold,
		Guard:         guard.DefaultOptions(),
		SnippetLength: citation.DefaultSnippetLength,
	}
}

// Request is one question. Zero TopK and nil Threshold take the defaults.
type Request struct {
	Question  string   `json:"question"`
	TopK      int      `json:"top_k,omitempty"`
	Threshold *float64 `json:"similarity_threshold,omitempty"`
}

// Response is an answer or a refusal.
type Response struct {
	Answer     string              `json:"answer"`
	Citations  []citation.Citation `json:"citations"`
	Confidence float64             `json:"confidence_score"`
	Refused    bool                `json:"was_refused"`
	Reason     guard.Reason        `json:"refusal_reason,omitempty"`
	ChunkCount int                 `json:"retrieved_chunks_count"`
	Error      string              `json:"error,omitempty"`
}

// Orchestrator runs retrieval, context assembly, generation and the
// grounding checks.
type Orchestrator struct {
	retriever Retriever
	generator Generator
	sessions  *session.Service
	guard     *guard.Guard
	citations citation.Builder
	opts      Options
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates an Orchestrator. sessions may be nil when Chat is not used.
func New(r Retriever, g Generator, sessions *session.Service, opts Options, m *metrics.Metrics, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TopK == 0 {
		opts.TopK = DefaultTopK
	}
	return &Orchestrator{
		retriever: r,
		generator: g,
		sessions:  sessions,
		guard:     guard.New(opts.Guard),
		citations: citation.Builder{SnippetLength: opts.SnippetLength},
		opts:      opts,
		metrics:   m,
		logger:    logger,
	}
}

// Resolve fills in defaults and validates req.
func (o *Orchestrator) Resolve(req Request) (Request, error) {
	if req.TopK == 0 {
		req.TopK = o.opts.TopK
	}
	if req.Threshold == nil {
		t := o.opts.Threshold
		req.Threshold = &t
	}
	if err := domain.ValidateQuestion(req.Question); err != nil {
		return req, err
	}
	if err := domain.ValidateRetrieval(req.TopK, *req.Threshold); err != nil {
		return req, err
	}
	return req, nil
}

// Query answers req or refuses.
func (o *Orchestrator) Query(ctx context.Context, req Request) Response {
	start := time.Now()
	req, err := o.Resolve(req)
	if err != nil {
		o.logger.Warn("rag: invalid request", "error", err)
		return o.refuse(guard.ReasonRetrievalError, 0, err)
	}
	threshold := *req.Threshold
	log := o.logger.With("question_len", len(req.Question), "top_k", req.TopK, "threshold", threshold)

	results, err := o.retrieve(ctx, req.Question, req.TopK, threshold)
	if err != nil {
		log.Error("rag: retrieval failed", "error", err)
		return o.refuse(guard.ReasonRetrievalError, 0, err)
	}
	if len(results) == 0 {
		log.Info("rag: no relevant chunks")
		return o.refuse(guard.ReasonNoRelevantChunks, 0, nil)
	}

	scores := retrieval.Scores(results)
	confidence := maxScore(scores)
	chunks := make([]domain.Chunk, len(results))
	for i, r := range results {
		chunks[i] = r.Chunk
	}
	contextText, cites := o.citations.Build(chunks)

	if reason := o.guard.RefusalReason(contextText, scores, threshold); reason != guard.ReasonNone {
		log.Info("rag: refusing before generation", "reason", reason)
		resp := o.refuse(reason, confidence, nil)
		resp.ChunkCount = len(results)
		return resp
	}

	answer, err := o.generator.Generate(ctx, req.Question, contextText)
	if err != nil {
		log.Error("rag: generation failed", "error", err)
		resp := o.refuse(guard.ReasonGenerationError, confidence, err)
		resp.ChunkCount = len(results)
		return resp
	}

	if !o.guard.ProperlyGrounded(answer, contextText) {
		log.Warn("rag: answer not grounded in context", "overlap", guard.Overlap(answer, contextText))
		resp := o.refuse(guard.ReasonNotGrounded, confidence*0.5, nil)
		resp.ChunkCount = len(results)
		return resp
	}

	log.Info("rag: answered", "chunks", len(results), "confidence", confidence, "duration", time.Since(start))
	return Response{
		Answer:     answer,
		Citations:  cites,
		Confidence: confidence,
		ChunkCount: len(results),
	}
}

// retrieve turns a panic in the retriever into an error.
func (o *Orchestrator) retrieve(ctx context.Context, question string, topK int, threshold float64) (results []retrieval.Scored, err error) {
	defer func() {
		if r := recover(); r != nil {
			results, err = nil, fmt.Errorf("rag: retrieval panic: %v", r)
		}
	}()
	return o.retriever.Retrieve(ctx, question, topK, threshold)
}

func (o *Orchestrator) refuse(reason guard.Reason, confidence float64, err error) Response {
	o.metrics.Refusal(string(reason))
	resp := Response{
		Answer:     guard.RefusalText(reason),
		Citations:  []citation.Citation{},
		Confidence: confidence,
		Refused:    true,
		Reason:     reason,
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}

func maxScore(scores []float64) float64 {
	m := 0.0
	for i, s := range scores {
		if i == 0 || s > m {
			m = s
		}
	}
	return m
}
