// Package main implements the groundwork query and ingestion server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/WessleyAI/groundwork/engine/app"
	"github.com/WessleyAI/groundwork/pkg/config"
	"github.com/WessleyAI/groundwork/pkg/mid"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}
	logger := config.NewLogger(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Deps{Logger: logger})
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}
	defer a.Close()

	sub, err := a.StartConsumer()
	if err != nil {
		return err
	}
	if sub != nil {
		defer sub.Unsubscribe()
	}

	s := newServer(a, logger)
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      s.handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ragd starting", "addr", cfg.Server.Addr, "store", cfg.Store.Driver, "index", cfg.Index.Driver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	err = srv.Shutdown(shutCtx)
	s.wait(shutCtx)
	return err
}

func (s *server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.HandleFunc("POST /api/query", s.handleQuery)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/sessions/{id}/messages", s.handleHistory)
	mux.HandleFunc("GET /api/sessions/{id}/stats", s.handleStats)
	mux.HandleFunc("POST /api/ingest", s.handleIngest)
	mux.HandleFunc("GET /api/ingest/jobs/{id}", s.handleJob)
	mux.Handle("GET /metrics", s.app.Metrics.Handler())

	return mid.Chain(mux,
		mid.RequestID,
		mid.Recover(s.logger),
		mid.Logger(s.logger),
		mid.CORS(s.app.Config.Server.CORSOrigin),
		mid.OTel(s.app.Config.Server.ServiceName),
		mid.Metrics(s.app.Metrics),
	)
}
