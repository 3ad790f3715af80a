package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/WessleyAI/groundwork/engine/app"
	"github.com/WessleyAI/groundwork/engine/checksum"
	"github.com/WessleyAI/groundwork/engine/ingest"
)

type constProvider struct{}

func (constProvider) Embed(context.Context, string) ([]float32, error) {
	v := make([]float32, 768)
	v[0] = 1
	return v, nil
}
func (constProvider) Dimensions() int { return 768 }

type cannedModel struct{ reply string }

func (m cannedModel) Chat(context.Context, string, string, float32, int) (string, error) {
	return m.reply, nil
}

func testDeps(reply string) app.Deps {
	return app.Deps{
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		EmbedProvider: constProvider{},
		ChatModel:     cannedModel{reply: reply},
	}
}

func execute(t *testing.T, deps app.Deps, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(deps)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeDocs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	doc := "# Storage\n\nKeep the batteries in a dry place below thirty degrees.\n"
	if err := os.WriteFile(filepath.Join(dir, "storage.md"), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestIngestCommand(t *testing.T) {
	dir := writeDocs(t)
	out, err := execute(t, testDeps(""), "ingest", "--memory", "--dir", dir)
	if err != nil {
		t.Fatalf("ingest: %v\n%s", err, out)
	}
	var res ingest.Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("output is not a result: %v\n%s", err, out)
	}
	if res.Processed != 1 || res.CreatedChunks != 1 || len(res.Errors) != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestIngestMissingDir(t *testing.T) {
	if _, err := execute(t, testDeps(""), "ingest", "--memory", "--incremental", "--dir", filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestQueryCommand(t *testing.T) {
	t.Setenv("GROUNDWORK_INGEST_SOURCE_DIR", writeDocs(t))

	out, err := execute(t, testDeps("Keep the batteries in a dry place."), "query", "--memory", "Where", "do", "batteries", "go?")
	if err != nil {
		t.Fatalf("query: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Keep the batteries in a dry place.") || !strings.Contains(out, "[1] storage.md") {
		t.Errorf("output = %s", out)
	}
}

func TestQueryCommandRefusal(t *testing.T) {
	t.Setenv("GROUNDWORK_INGEST_SOURCE_DIR", writeDocs(t))

	out, err := execute(t, testDeps("Penguins live in Antarctica."), "query", "--memory", "--json", "Where do batteries go?")
	if err != nil {
		t.Fatalf("query: %v\n%s", err, out)
	}
	var resp struct {
		Refused bool   `json:"was_refused"`
		Reason  string `json:"refusal_reason"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if !resp.Refused || resp.Reason != "not_properly_grounded" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestQueryCommandValidation(t *testing.T) {
	for _, args := range [][]string{
		{"query", "--memory", "--top-k", "30", "q"},
		{"query", "--memory", "--threshold", "2", "q"},
		{"query", "--memory", "  "},
		{"query", "--memory"},
	} {
		if _, err := execute(t, testDeps(""), args...); err == nil {
			t.Errorf("%v: expected error", args)
		}
	}
}

func TestChecksumCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.md")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	want := checksum.String("hello")

	out, err := execute(t, app.Deps{}, "checksum", path)
	if err != nil || !strings.HasPrefix(out, want) {
		t.Errorf("checksum = %q, %v", out, err)
	}
	if out, err := execute(t, app.Deps{}, "checksum", "--verify", want, path); err != nil || !strings.Contains(out, "OK") {
		t.Errorf("verify = %q, %v", out, err)
	}
	if _, err := execute(t, app.Deps{}, "checksum", "--verify", strings.Repeat("0", 64), path); err == nil {
		t.Error("expected mismatch error")
	}
}

func TestMigrateRejectsUnknownDirection(t *testing.T) {
	if _, err := execute(t, app.Deps{}, "migrate", "--direction", "sideways"); err == nil {
		t.Fatal("expected error")
	}
}

func TestReindexNeedsIndex(t *testing.T) {
	if _, err := execute(t, testDeps(""), "reindex", "--memory"); err == nil {
		t.Fatal("expected error without a vector index")
	}
}
