package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/WessleyAI/groundwork/engine/semantic"
)

func TestWatchPicksUpNewFiles(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.md", "alpha text")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	passes := make(chan Result, 16)
	done := make(chan error, 1)
	go func() {
		done <- f.p.Watch(ctx, f.dir, 10*time.Millisecond, func(r Result) { passes <- r })
	}()

	first := <-passes
	if first.Processed != 1 {
		t.Fatalf("first pass = %+v", first)
	}
	f.write(t, "b.md", "beta text")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case r := <-passes:
			if r.Processed == 1 && r.Skipped == 1 {
				cancel()
				if err := <-done; err != nil {
					t.Fatalf("Watch: %v", err)
				}
				return
			}
		case <-deadline:
			t.Fatal("new file never ingested")
		}
	}
}

func TestWatchRejectsBadInterval(t *testing.T) {
	f := newFixture(t)
	if err := f.p.Watch(context.Background(), f.dir, 0, nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestReindex(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.write(t, "guide.md", guide)
	if _, err := f.p.RunFull(ctx, f.dir); err != nil {
		t.Fatal(err)
	}
	stored, _ := f.store.CountChunks(ctx)

	f.index.mu.Lock()
	f.index.points = map[string]semantic.Point{}
	f.index.mu.Unlock()
	n, err := f.p.Reindex(ctx, 3)
	if err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	if n != stored || len(f.index.points) != stored {
		t.Errorf("reindexed %d, index has %d, store has %d", n, len(f.index.points), stored)
	}

	f.index.upsertErr = errors.New("qdrant down")
	if _, err := f.p.Reindex(ctx, 0); err == nil {
		t.Error("expected upsert error")
	}
}

func TestReindexWithoutIndex(t *testing.T) {
	f := newFixture(t)
	f.p.deps.Index = nil
	if _, err := f.p.Reindex(context.Background(), 10); err == nil {
		t.Fatal("expected error")
	}
}
