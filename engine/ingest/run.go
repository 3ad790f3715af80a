package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/WessleyAI/groundwork/engine/checksum"
	"github.com/WessleyAI/groundwork/engine/domain"
	"github.com/WessleyAI/groundwork/pkg/metrics"
)

// Result aggregates one run over a directory.
type Result struct {
	Processed     int      `json:"processed_documents"`
	Skipped       int      `json:"skipped_documents"`
	CreatedChunks int      `json:"created_chunks"`
	Errors        []string `json:"errors"`
}

func (r *Result) fail(path string, err error) {
	r.Errors = append(r.Errors, fmt.Sprintf("Error processing %s: %v", path, err))
}

// RunFull processes every file under dir. Files whose checksum is already
// stored still short-circuit inside Process and count as processed with no
// new chunks. A failing file is recorded and the run goes on; only a scan
// failure is returned as an error.
func (p *Pipeline) RunFull(ctx context.Context, dir string) (Result, error) {
	return p.run(ctx, dir, false, nil)
}

// RunIncremental checksums each file before any other work and counts the
// ones already stored as skipped.
func (p *Pipeline) RunIncremental(ctx context.Context, dir string) (Result, error) {
	return p.run(ctx, dir, true, nil)
}

func (p *Pipeline) run(ctx context.Context, dir string, incremental bool, onFile func(done, total int)) (Result, error) {
	res := Result{Errors: []string{}}
	files, err := p.Scan(dir)
	if err != nil {
		return res, err
	}
	p.log.Info("ingest: run started", "dir", dir, "files", len(files), "incremental", incremental)

	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		p.runFile(ctx, &res, dir, path, incremental)
		if onFile != nil {
			onFile(i+1, len(files))
		}
	}

	p.log.Info("ingest: run finished", "dir", dir,
		"processed", res.Processed, "skipped", res.Skipped,
		"chunks", res.CreatedChunks, "errors", len(res.Errors))
	return res, nil
}

func (p *Pipeline) runFile(ctx context.Context, res *Result, root, path string, incremental bool) {
	w := &work{root: root, path: path}
	if incremental {
		skip, err := p.stored(ctx, w)
		if err != nil {
			p.log.Error("ingest: file failed", "path", path, "error", err)
			res.fail(path, err)
			return
		}
		if skip {
			res.Skipped++
			p.deps.Metrics.Document(metrics.OutcomeUnchanged)
			return
		}
	}
	out, err := p.process(ctx, w)
	if err != nil {
		p.log.Error("ingest: file failed", "path", path, "error", err)
		res.fail(path, err)
		return
	}
	res.Processed++
	res.CreatedChunks += len(out.Chunks)
}

// stored reads and checksums the file, reporting whether a document with
// that checksum exists. The bytes stay on w for the later stages.
func (p *Pipeline) stored(ctx context.Context, w *work) (bool, error) {
	raw, err := os.ReadFile(w.path)
	if err != nil {
		return false, err
	}
	w.raw = raw
	w.checksum = checksum.Bytes(raw)
	_, err = p.deps.Store.DocumentByChecksum(ctx, w.checksum)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// RunJob drives a stored job through processing to completed or failed,
// recording file-level progress. The job fails when the directory cannot be
// scanned or when every file failed.
func (p *Pipeline) RunJob(ctx context.Context, jobID string) (Result, error) {
	return p.runJob(ctx, jobID, true)
}

// runJob leaves a job that failed a non-final attempt in processing, so a
// later attempt can pick it up again.
func (p *Pipeline) runJob(ctx context.Context, jobID string, final bool) (Result, error) {
	if p.deps.Jobs == nil {
		return Result{}, errors.New("ingest: no job service configured")
	}
	job, err := p.deps.Jobs.Start(ctx, jobID)
	if err != nil {
		return Result{}, fmt.Errorf("ingest: run job: %w", err)
	}
	log := p.log.With("job_id", job.ID)

	res, runErr := p.run(ctx, job.SourceDir, job.Incremental, func(done, total int) {
		if _, err := p.deps.Jobs.Progress(ctx, job.ID, done, total); err != nil {
			log.Warn("ingest: job progress failed", "error", err)
		}
	})
	if runErr == nil && len(res.Errors) > 0 && res.Processed == 0 && res.Skipped == 0 {
		runErr = errors.New(res.Errors[0])
	}
	if runErr != nil && !final {
		log.Warn("ingest: job attempt failed, awaiting retry", "error", runErr)
		return res, fmt.Errorf("ingest: run job: %w", runErr)
	}
	if runErr != nil {
		if _, err := p.deps.Jobs.Fail(context.WithoutCancel(ctx), job.ID, runErr.Error()); err != nil {
			log.Error("ingest: mark job failed", "error", err)
		}
		return res, fmt.Errorf("ingest: run job: %w", runErr)
	}
	if _, err := p.deps.Jobs.Complete(ctx, job.ID); err != nil {
		return res, fmt.Errorf("ingest: run job: %w", err)
	}
	return res, nil
}
