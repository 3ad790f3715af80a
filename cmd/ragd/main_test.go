package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/WessleyAI/groundwork/engine/app"
	"github.com/WessleyAI/groundwork/engine/domain"
	"github.com/WessleyAI/groundwork/engine/guard"
	"github.com/WessleyAI/groundwork/pkg/config"
)

// --- Fakes ---

type constProvider struct{}

func (constProvider) Embed(context.Context, string) ([]float32, error) { return []float32{0, 1}, nil }
func (constProvider) Dimensions() int                                  { return 2 }

type cannedModel struct{}

func (cannedModel) Chat(context.Context, string, string, float32, int) (string, error) {
	return "Hold the reset button for ten seconds until the light blinks.", nil
}

const manual = `# Troubleshooting

Hold the reset button for ten seconds until the status light blinks twice.
`

func newTestServer(t *testing.T) (*server, *httptest.Server) {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "reset.md"), []byte(manual), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Embedding.Dimensions = 2
	cfg.Ingest.SourceDir = dir
	cfg.NATS.URL = ""

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := app.New(context.Background(), cfg, app.Deps{
		Logger:        logger,
		EmbedProvider: constProvider{},
		ChatModel:     cannedModel{},
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { a.Close() })

	s := newServer(a, logger)
	ts := httptest.NewServer(s.handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

type queryBody struct {
	Answer    string `json:"answer"`
	Refused   bool   `json:"was_refused"`
	Reason    string `json:"refusal_reason"`
	Citations []struct {
		SourcePath string `json:"source_path"`
	} `json:"citations"`
	SessionID string `json:"session_id"`
}

// --- Tests ---

func TestHealthAndReady(t *testing.T) {
	_, ts := newTestServer(t)
	for _, path := range []string{"/api/health", "/api/ready"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s = %d", path, resp.StatusCode)
		}
	}
}

func TestQueryValidation(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/query", "application/json", strings.NewReader("{bad"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad json = %d", resp.StatusCode)
	}

	tests := []map[string]any{
		{"question": "  "},
		{"question": "q", "top_k": 21},
		{"question": "q", "similarity_threshold": 1.5},
	}
	for _, body := range tests {
		resp := postJSON(t, ts.URL+"/api/query", body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%v = %d", body, resp.StatusCode)
		}
	}
}

func TestQueryBeforeIngestRefuses(t *testing.T) {
	_, ts := newTestServer(t)
	resp := postJSON(t, ts.URL+"/api/query", map[string]any{"question": "How do I reset it?"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	got := decode[queryBody](t, resp)
	if !got.Refused || got.Reason != string(guard.ReasonNoRelevantChunks) || got.Answer != guard.TextInsufficientContext {
		t.Errorf("got %+v", got)
	}
}

func TestIngestThenQuery(t *testing.T) {
	s, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/ingest", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("ingest status = %d", resp.StatusCode)
	}
	job := decode[domain.IngestionJob](t, resp)
	s.runs.Wait()

	resp, err = http.Get(ts.URL + "/api/ingest/jobs/" + job.ID)
	if err != nil {
		t.Fatal(err)
	}
	done := decode[domain.IngestionJob](t, resp)
	if done.Status != domain.JobCompleted || done.Progress != 100 || done.Processed != 1 {
		t.Fatalf("job = %+v", done)
	}

	got := decode[queryBody](t, postJSON(t, ts.URL+"/api/query", map[string]any{"question": "How do I reset it?"}))
	if got.Refused || len(got.Citations) != 1 || got.Citations[0].SourcePath != "reset.md" {
		t.Errorf("got %+v", got)
	}
}

func TestIngestMissingDirFailsJob(t *testing.T) {
	s, ts := newTestServer(t)
	resp := postJSON(t, ts.URL+"/api/ingest", map[string]any{"dir": "missing", "incremental": true})
	job := decode[domain.IngestionJob](t, resp)
	s.runs.Wait()

	got, _ := s.app.Jobs.Get(context.Background(), job.ID)
	if got.Status != domain.JobFailed || got.Error == "" || !got.Incremental {
		t.Errorf("job = %+v", got)
	}
}

func TestIngestRejectsDirOutsideSource(t *testing.T) {
	_, ts := newTestServer(t)
	for _, dir := range []string{"/etc", "../other", "a/../../b"} {
		resp := postJSON(t, ts.URL+"/api/ingest", map[string]any{"dir": dir})
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("dir %q = %d, want 400", dir, resp.StatusCode)
		}
	}
}

func TestUnknownJob(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/ingest/jobs/nope")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestChatSession(t *testing.T) {
	s, ts := newTestServer(t)
	if _, err := s.app.Ingest.RunFull(context.Background(), s.app.Config.Ingest.SourceDir); err != nil {
		t.Fatal(err)
	}

	first := decode[queryBody](t, postJSON(t, ts.URL+"/api/chat", map[string]any{"message": "How do I reset it?"}))
	if first.SessionID == "" || first.Refused {
		t.Fatalf("first = %+v", first)
	}
	decode[queryBody](t, postJSON(t, ts.URL+"/api/chat", map[string]any{"session_id": first.SessionID, "message": "And after?"}))

	resp, err := http.Get(ts.URL + "/api/sessions/" + first.SessionID + "/messages?limit=3")
	if err != nil {
		t.Fatal(err)
	}
	history := decode[struct {
		Messages []domain.Message `json:"messages"`
	}](t, resp)
	if len(history.Messages) != 3 || history.Messages[0].Role != domain.RoleAssistant {
		t.Errorf("history = %+v", history.Messages)
	}

	resp, err = http.Get(ts.URL + "/api/sessions/" + first.SessionID + "/stats")
	if err != nil {
		t.Fatal(err)
	}
	stats := decode[struct {
		Count int `json:"message_count"`
	}](t, resp)
	if stats.Count != 4 {
		t.Errorf("message_count = %d", stats.Count)
	}

	resp, err = http.Get(ts.URL + "/api/sessions/9b2f3c9e-4f43-4d49-9a8e-3f4b8b1f2a11/stats")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown session stats = %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/api/sessions/" + first.SessionID + "/messages?limit=x")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit = %d", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/api/chat", map[string]any{"message": ""})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty message = %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `groundwork_http_request_duration_seconds_count{method="GET",route="GET /api/health",status="200"} 1`) {
		t.Errorf("metrics missing health request:\n%s", body)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.NewValidationError("top_k", "0", domain.ErrInvalidTopK), http.StatusBadRequest},
		{domain.NotFound("session", "x"), http.StatusNotFound},
		{domain.Conflict("document", "a.md"), http.StatusConflict},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
