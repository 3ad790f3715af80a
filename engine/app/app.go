// Package app assembles the ingestion and query services from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/groundwork/engine/chunker"
	"github.com/WessleyAI/groundwork/engine/embed"
	"github.com/WessleyAI/groundwork/engine/guard"
	"github.com/WessleyAI/groundwork/engine/ingest"
	"github.com/WessleyAI/groundwork/engine/jobs"
	"github.com/WessleyAI/groundwork/engine/rag"
	"github.com/WessleyAI/groundwork/engine/retrieval"
	"github.com/WessleyAI/groundwork/engine/semantic"
	"github.com/WessleyAI/groundwork/engine/session"
	"github.com/WessleyAI/groundwork/engine/store"
	"github.com/WessleyAI/groundwork/pkg/config"
	"github.com/WessleyAI/groundwork/pkg/fn"
	"github.com/WessleyAI/groundwork/pkg/metrics"
	"github.com/WessleyAI/groundwork/pkg/ollama"
	"github.com/WessleyAI/groundwork/pkg/openai"
	"github.com/WessleyAI/groundwork/pkg/resilience"
)

// Deps overrides backends that would otherwise be built from the config.
// Every field is optional.
type Deps struct {
	Logger        *slog.Logger
	Store         store.Store
	EmbedProvider embed.Provider
	ChatModel     rag.ChatModel
	Metrics       *metrics.Metrics
}

// App holds the wired services. Index and NATS are nil when disabled.
type App struct {
	Config    config.Config
	Logger    *slog.Logger
	Store     store.Store
	Index     *semantic.VectorStore
	NATS      *nats.Conn
	Metrics   *metrics.Metrics
	Embedder  *embed.Service
	Retrieval *retrieval.Engine
	Jobs      *jobs.Service
	Ingest    *ingest.Pipeline
	Sessions  *session.Service
	RAG       *rag.Orchestrator

	closers []func() error
}

// New connects the configured backends and builds every service. On error
// anything already opened is closed.
func New(ctx context.Context, cfg config.Config, deps Deps) (_ *App, err error) {
	a := &App{Config: cfg, Logger: deps.Logger, Metrics: deps.Metrics}
	if a.Logger == nil {
		a.Logger = slog.Default()
	}
	if a.Metrics == nil {
		a.Metrics = metrics.New()
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.Store, err = a.openStore(ctx, deps.Store); err != nil {
		return nil, err
	}
	if err = a.openIndex(ctx); err != nil {
		return nil, err
	}
	if err = a.openNATS(); err != nil {
		return nil, err
	}

	provider := deps.EmbedProvider
	if provider == nil {
		provider = embedProvider(cfg.Embedding)
	}
	a.Embedder = embed.NewService(provider, embed.Options{
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		Burst:             cfg.Embedding.Burst,
		Workers:           cfg.Embedding.Workers,
		Retry:             fn.DefaultRetry,
	}, a.Logger)

	var pub jobs.Publisher
	if a.NATS != nil {
		pub = jobs.NewNATSPublisher(a.NATS)
	}
	a.Jobs = jobs.New(a.Store, pub, a.Logger)

	ingestDeps := ingest.Deps{
		Store:    a.Store,
		Embedder: a.Embedder,
		Jobs:     a.Jobs,
		Metrics:  a.Metrics,
		Logger:   a.Logger,
	}
	if a.Index != nil {
		ingestDeps.Index = a.Index
	}
	a.Ingest = ingest.New(ingestDeps, ingest.Options{
		SourceDir:  cfg.Ingest.SourceDir,
		Extensions: cfg.Ingest.Extensions,
		Chunker:    chunker.Options{Size: cfg.Ingest.ChunkSize, Overlap: cfg.Ingest.ChunkOverlap},
	})

	var primary retrieval.Searcher
	if a.Index != nil {
		primary = retrieval.NewIndexSearcher(a.Index, resilience.BreakerOpts{
			FailThreshold: cfg.Index.BreakerFailures,
			Timeout:       cfg.Index.BreakerTimeout,
			OnStateChange: func(from, to resilience.State) {
				a.Logger.Warn("retrieval: index breaker", "from", from.String(), "to", to.String())
			},
		})
	}
	a.Retrieval = retrieval.New(a.Embedder, primary, a.Store, a.Metrics, a.Logger)

	chat := deps.ChatModel
	if chat == nil {
		chat = chatModel(cfg.LLM)
	}
	gen := rag.NewLLMGenerator(chat)
	gen.Temperature = float32(cfg.LLM.Temperature)
	if cfg.LLM.MaxTokens > 0 {
		gen.MaxTokens = cfg.LLM.MaxTokens
	}

	a.Sessions = session.New(a.Store, a.Logger)
	a.RAG = rag.New(a.Retrieval, gen, a.Sessions, rag.Options{
		TopK:      cfg.Retrieval.TopK,
		Threshold: cfg.Retrieval.Threshold,
		Guard: guard.Options{
			GroundingThreshold: cfg.Guard.GroundingThreshold,
			MinContextLength:   cfg.Guard.MinContextLength,
		},
		SnippetLength: cfg.Retrieval.SnippetLength,
	}, a.Metrics, a.Logger)

	return a, nil
}

func (a *App) openStore(ctx context.Context, injected store.Store) (store.Store, error) {
	if injected != nil {
		return injected, nil
	}
	switch a.Config.Store.Driver {
	case config.DriverPostgres:
		pg, err := store.OpenPostgres(ctx, a.Config.Store.DSN)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		a.Logger.Info("app: postgres store connected")
		return pg, nil
	default:
		a.Logger.Info("app: using in-memory store")
		return store.NewMemory(), nil
	}
}

func (a *App) openIndex(ctx context.Context) error {
	if a.Config.Index.Driver != config.DriverQdrant {
		return nil
	}
	vs, err := semantic.New(a.Config.Index.Addr, a.Config.Index.Collection, a.Config.Embedding.Dimensions)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	a.closers = append(a.closers, vs.Close)
	a.Index = vs
	// Retrieval falls back to the local scan, so a missing index is not fatal.
	if err := vs.EnsureCollection(ctx); err != nil {
		a.Logger.Warn("app: ensure collection failed", "collection", a.Config.Index.Collection, "error", err)
	}
	return nil
}

func (a *App) openNATS() error {
	if a.Config.NATS.URL == "" {
		return nil
	}
	nc, err := nats.Connect(a.Config.NATS.URL, nats.Name(a.Config.Server.ServiceName))
	if err != nil {
		return fmt.Errorf("app: nats connect: %w", err)
	}
	a.closers = append(a.closers, nc.Drain)
	a.NATS = nc
	return nil
}

// StartConsumer subscribes the ingestion pipeline to queued requests when
// NATS is configured and consuming is enabled.
func (a *App) StartConsumer() (*nats.Subscription, error) {
	if a.NATS == nil || !a.Config.NATS.Consumer {
		return nil, nil
	}
	sub, err := a.Ingest.StartConsumer(a.NATS)
	if err != nil {
		return nil, fmt.Errorf("app: subscribe %s: %w", ingest.Subject, err)
	}
	a.Logger.Info("app: ingestion consumer started", "subject", ingest.Subject)
	return sub, nil
}

// Close releases connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func embedProvider(c config.EmbeddingConfig) embed.Provider {
	if c.Provider == config.ProviderOpenAI {
		return openai.New(openai.Config{
			APIKey:     c.APIKey,
			BaseURL:    c.BaseURL,
			EmbedModel: c.Model,
			Dimensions: c.Dimensions,
		})
	}
	return ollama.NewEmbedClient(c.BaseURL, c.Model, c.Dimensions)
}

func chatModel(c config.LLMConfig) rag.ChatModel {
	if c.Provider == config.ProviderOpenAI {
		return openai.New(openai.Config{APIKey: c.APIKey, BaseURL: c.BaseURL, ChatModel: c.Model})
	}
	return ollama.NewChatClient(c.BaseURL, c.Model)
}
