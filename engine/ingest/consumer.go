package ingest

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/groundwork/pkg/natsutil"
)

const (
	// Subject carries ingestion requests.
	Subject = "groundwork.ingest"
	// DLQSubject receives requests that kept failing.
	DLQSubject = "groundwork.ingest.dlq"
	// MaxRetries before sending to DLQ.
	MaxRetries = 3
)

// Request asks for an ingestion run. With a JobID the stored job supplies
// the directory and mode; otherwise Dir and Incremental are used directly.
type Request struct {
	JobID       string `json:"job_id,omitempty"`
	Dir         string `json:"dir,omitempty"`
	Incremental bool   `json:"incremental"`
}

// dlqMessage is published to the DLQ on repeated failure.
type dlqMessage struct {
	Request Request `json:"request"`
	Error   string  `json:"error"`
	Retries int     `json:"retries"`
}

// handle runs one request. final is passed on to job runs.
func (p *Pipeline) handle(ctx context.Context, req Request, final bool) (Result, error) {
	switch {
	case req.JobID != "":
		return p.runJob(ctx, req.JobID, final)
	case req.Incremental:
		return p.RunIncremental(ctx, req.Dir)
	default:
		return p.RunFull(ctx, req.Dir)
	}
}

// StartConsumer subscribes to Subject and runs every request through the
// pipeline. A failed request is republished with an incremented retry
// header until MaxRetries, then sent to DLQSubject. A job stays processing
// between attempts and is marked failed only by the last one.
func (p *Pipeline) StartConsumer(nc *nats.Conn) (*nats.Subscription, error) {
	return natsutil.Subscribe(nc, Subject,
		func(ctx context.Context, msg *nats.Msg, req Request) {
			p.consume(ctx, nc, msg, req)
		},
		func(msg *nats.Msg, err error) {
			p.log.Error("ingest: unmarshal failed", "subject", msg.Subject, "error", err)
		})
}

func (p *Pipeline) consume(ctx context.Context, pub natsutil.Publisher, msg *nats.Msg, req Request) {
	retries := natsutil.RetryCount(msg) + 1
	final := retries >= MaxRetries

	res, err := p.handle(ctx, req, final)
	if err == nil {
		p.log.Info("ingest: request done", "job_id", req.JobID, "dir", req.Dir,
			"processed", res.Processed, "skipped", res.Skipped, "errors", len(res.Errors))
		return
	}

	log := p.log.With("job_id", req.JobID, "dir", req.Dir, "retry", retries)
	log.Error("ingest: request failed", "error", err)

	if final {
		dlq := dlqMessage{Request: req, Error: err.Error(), Retries: retries}
		if err := natsutil.Publish(ctx, pub, DLQSubject, dlq); err != nil {
			log.Error("ingest: DLQ publish failed", "error", err)
		}
		return
	}
	if rerr := natsutil.Redeliver(pub, msg, retries); rerr != nil {
		log.Error("ingest: retry publish failed", "error", rerr)
		if req.JobID != "" && p.deps.Jobs != nil {
			if _, ferr := p.deps.Jobs.Fail(context.WithoutCancel(ctx), req.JobID, err.Error()); ferr != nil {
				log.Error("ingest: mark job failed", "error", ferr)
			}
		}
	}
}

// Enqueue publishes req on Subject.
func Enqueue(ctx context.Context, pub natsutil.Publisher, req Request) error {
	return natsutil.Publish(ctx, pub, Subject, req)
}

