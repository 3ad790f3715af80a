package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/WessleyAI/groundwork/engine/semantic"
)

// Watch runs an incremental pass over dir immediately and then every
// interval until ctx is done. A failed pass is logged and retried on the
// next tick. onPass, if set, sees every completed pass.
func (p *Pipeline) Watch(ctx context.Context, dir string, interval time.Duration, onPass func(Result)) error {
	if interval <= 0 {
		return fmt.Errorf("ingest: watch interval must be positive, got %s", interval)
	}
	p.log.Info("ingest: watching", "dir", dir, "interval", interval)

	pass := func() {
		res, err := p.RunIncremental(ctx, dir)
		if err != nil {
			if ctx.Err() == nil {
				p.log.Error("ingest: watch pass failed", "dir", dir, "error", err)
			}
			return
		}
		if onPass != nil {
			onPass(res)
		}
	}

	pass()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.log.Info("ingest: watch stopped", "dir", dir)
			return nil
		case <-ticker.C:
			pass()
		}
	}
}

// Reindex upserts every stored chunk that has a vector into the index, in
// batches of batchSize. It repairs an index that missed upserts while it
// was unavailable. It returns the number of points written.
func (p *Pipeline) Reindex(ctx context.Context, batchSize int) (int, error) {
	if p.deps.Index == nil {
		return 0, errors.New("ingest: reindex: no index configured")
	}
	if batchSize <= 0 {
		batchSize = 64
	}
	chunks, err := p.deps.Store.ChunksWithEmbeddings(ctx)
	if err != nil {
		return 0, fmt.Errorf("ingest: reindex: %w", err)
	}
	written := 0
	for start := 0; start < len(chunks); start += batchSize {
		end := min(start+batchSize, len(chunks))
		points := make([]semantic.Point, 0, end-start)
		for _, c := range chunks[start:end] {
			points = append(points, PointFor(c))
		}
		if err := p.deps.Index.Upsert(ctx, points); err != nil {
			p.deps.Metrics.UpsertFailure()
			return written, fmt.Errorf("ingest: reindex: upsert batch at %d: %w", start, err)
		}
		written += len(points)
	}
	p.log.Info("ingest: reindexed", "points", written)
	return written, nil
}
