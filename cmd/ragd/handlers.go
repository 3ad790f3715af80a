package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/WessleyAI/groundwork/engine/app"
	"github.com/WessleyAI/groundwork/engine/domain"
	"github.com/WessleyAI/groundwork/engine/ingest"
	"github.com/WessleyAI/groundwork/engine/rag"
)

type server struct {
	app    *app.App
	logger *slog.Logger
	// runs tracks in-process ingestion runs started without NATS.
	runs sync.WaitGroup
}

func newServer(a *app.App, logger *slog.Logger) *server {
	return &server{app: a, logger: logger}
}

// wait blocks until background runs finish or ctx ends.
func (s *server) wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("ingest: background runs still active at shutdown")
	}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func statusFor(err error) int {
	switch {
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("http: "+op+" failed", "err", err)
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

// --- Handlers ---

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Store.Ping(r.Context()); err != nil {
		s.logger.Warn("http: readiness check failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req rag.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req, err := s.app.RAG.Resolve(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.app.RAG.Query(r.Context(), req))
}

func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req rag.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := s.app.RAG.Resolve(rag.Request{Question: req.Message, TopK: req.TopK, Threshold: req.Threshold}); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := s.app.RAG.Chat(r.Context(), req)
	if err != nil {
		s.fail(w, "chat", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	msgs, err := s.app.RAG.History(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		s.fail(w, "history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": r.PathValue("id"), "messages": msgs})
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.app.RAG.Stats(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, "stats", err)
		return
	}
	if stats == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// IngestRequest is the JSON body for POST /api/ingest. Dir is relative to
// the configured source directory; empty means the directory itself.
type IngestRequest struct {
	Dir         string `json:"dir,omitempty"`
	Incremental bool   `json:"incremental"`
}

func (s *server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.Dir != "" && !filepath.IsLocal(req.Dir) {
		writeError(w, http.StatusBadRequest, "dir must be a relative path inside the source directory")
		return
	}
	dir := filepath.Join(s.app.Config.Ingest.SourceDir, req.Dir)
	job, err := s.app.Jobs.Create(r.Context(), dir, req.Incremental)
	if err != nil {
		s.fail(w, "create job", err)
		return
	}

	if s.app.NATS != nil {
		if err := ingest.Enqueue(r.Context(), s.app.NATS, ingest.Request{JobID: job.ID}); err != nil {
			s.logger.Error("ingest: enqueue failed", "job_id", job.ID, "err", err)
			if _, ferr := s.app.Jobs.Fail(context.WithoutCancel(r.Context()), job.ID, err.Error()); ferr != nil {
				s.logger.Error("ingest: mark job failed", "job_id", job.ID, "err", ferr)
			}
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
	} else {
		ctx := context.WithoutCancel(r.Context())
		s.runs.Add(1)
		go func() {
			defer s.runs.Done()
			if _, err := s.app.Ingest.RunJob(ctx, job.ID); err != nil {
				s.logger.Error("ingest: job failed", "job_id", job.ID, "err", err)
			}
		}()
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *server) handleJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.app.Jobs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, "get job", err)
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}
