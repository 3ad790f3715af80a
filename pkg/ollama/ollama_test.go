package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req ollamaEmbedReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.Model != "nomic-embed-text" || req.Prompt != "hello" {
			t.Errorf("unexpected body %+v", req)
		}
		json.NewEncoder(w).Encode(ollamaEmbedResp{Embedding: []float64{0.5, -1, 2}})
	}))
	defer srv.Close()

	c := NewEmbedClient(srv.URL+"/", "", 3)
	v, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(v) != 3 || v[0] != 0.5 || v[1] != -1 || v[2] != 2 {
		t.Fatalf("unexpected vector %v", v)
	}
	if c.Dimensions() != 3 {
		t.Fatalf("Dimensions = %d", c.Dimensions())
	}
}

func TestEmbedDefaults(t *testing.T) {
	c := NewEmbedClient("http://localhost:11434", "", 0)
	if c.model != DefaultEmbedModel || c.Dimensions() != DefaultDimensions {
		t.Fatalf("unexpected defaults %s %d", c.model, c.Dimensions())
	}
}

func TestEmbedErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"status", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		}},
		{"bad json", func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("{"))
		}},
		{"empty", func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"embedding":[]}`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			if _, err := NewEmbedClient(srv.URL, "m", 2).Embed(context.Background(), "x"); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req chatReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.Stream || len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "question" {
			t.Errorf("unexpected request %+v", req)
		}
		if req.Options.Temperature != 0.3 || req.Options.NumPredict != 1000 {
			t.Errorf("unexpected options %+v", req.Options)
		}
		w.Write([]byte(`{"message":{"role":"assistant","content":"answer"},"done":true}`))
	}))
	defer srv.Close()

	got, err := NewChatClient(srv.URL, "llama3").Chat(context.Background(), "sys", "question", 0.3, 1000)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "answer" {
		t.Fatalf("got %q", got)
	}
}

func TestChatServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	if _, err := NewChatClient(srv.URL, "m").Chat(context.Background(), "s", "u", 0, 0); err == nil {
		t.Fatal("expected error")
	}
}
