// Package jobs tracks ingestion runs through their lifecycle and announces
// every transition.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/groundwork/engine/domain"
	"github.com/WessleyAI/groundwork/engine/store"
	"github.com/WessleyAI/groundwork/pkg/natsutil"
)

// SubjectPrefix is followed by the job status, e.g. "groundwork.jobs.completed".
const SubjectPrefix = "groundwork.jobs."

// Event is published after every job change.
type Event struct {
	Job domain.IngestionJob `json:"job"`
	At  time.Time           `json:"at"`
}

// Publisher announces job events.
type Publisher interface {
	PublishJob(ctx context.Context, e Event) error
}

// NATSPublisher publishes events on SubjectPrefix + status.
type NATSPublisher struct {
	Conn natsutil.Publisher
}

// PublishJob implements Publisher.
func (p NATSPublisher) PublishJob(ctx context.Context, e Event) error {
	return natsutil.Publish(ctx, p.Conn, SubjectPrefix+string(e.Job.Status), e)
}

// NewNATSPublisher returns a Publisher on nc.
func NewNATSPublisher(nc *nats.Conn) NATSPublisher { return NATSPublisher{Conn: nc} }

// Service creates and advances ingestion jobs. Every change goes through a
// validated domain.JobUpdate.
type Service struct {
	Store     store.Jobs
	Publisher Publisher
	Logger    *slog.Logger
	Now       func() time.Time

	mu sync.Mutex
}

// New creates a Service. pub may be nil.
func New(s store.Jobs, pub Publisher, logger *slog.Logger) *Service {
	return &Service{Store: s, Publisher: pub, Logger: logger}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Create records a pending job for dir.
func (s *Service) Create(ctx context.Context, dir string, incremental bool) (domain.IngestionJob, error) {
	now := s.now()
	job, err := s.Store.CreateJob(ctx, domain.IngestionJob{
		ID:          uuid.NewString(),
		Status:      domain.JobPending,
		SourceDir:   dir,
		Incremental: incremental,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return domain.IngestionJob{}, fmt.Errorf("jobs: create: %w", err)
	}
	s.publish(ctx, job)
	return job, nil
}

// Get returns the job, or nil when it does not exist.
func (s *Service) Get(ctx context.Context, id string) (*domain.IngestionJob, error) {
	job, err := s.Store.GetJob(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("jobs: get: %w", err)
	}
	return &job, nil
}

// Start moves a pending job to processing.
func (s *Service) Start(ctx context.Context, id string) (domain.IngestionJob, error) {
	return s.Update(ctx, id, domain.StatusUpdate(domain.JobProcessing))
}

// Progress records processed out of total.
func (s *Service) Progress(ctx context.Context, id string, processed, total int) (domain.IngestionJob, error) {
	return s.Update(ctx, id, domain.ProgressUpdate(processed, total))
}

// Complete marks the job completed; progress becomes 100.
func (s *Service) Complete(ctx context.Context, id string) (domain.IngestionJob, error) {
	return s.Update(ctx, id, domain.StatusUpdate(domain.JobCompleted))
}

// Fail marks the job failed with msg.
func (s *Service) Fail(ctx context.Context, id, msg string) (domain.IngestionJob, error) {
	return s.Update(ctx, id, domain.FailureUpdate(msg))
}

// Update validates u against the stored job, applies it and persists the
// result. An invalid update leaves the job untouched.
func (s *Service) Update(ctx context.Context, id string, u domain.JobUpdate) (domain.IngestionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.Store.GetJob(ctx, id)
	if err != nil {
		return domain.IngestionJob{}, fmt.Errorf("jobs: update %s: %w", id, err)
	}
	if err := job.Apply(u, s.now()); err != nil {
		return domain.IngestionJob{}, fmt.Errorf("jobs: update %s: %w", id, err)
	}
	if err := s.Store.SaveJob(ctx, job); err != nil {
		return domain.IngestionJob{}, fmt.Errorf("jobs: update %s: %w", id, err)
	}
	s.publish(ctx, job)
	return job, nil
}

func (s *Service) publish(ctx context.Context, job domain.IngestionJob) {
	if s.Publisher == nil {
		return
	}
	if err := s.Publisher.PublishJob(ctx, Event{Job: job, At: job.UpdatedAt}); err != nil {
		s.logger().Warn("jobs: publish event failed", "job_id", job.ID, "status", job.Status, "error", err)
	}
}
