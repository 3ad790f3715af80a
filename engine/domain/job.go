package domain

import (
	"fmt"
	"time"
)

// JobStatus is the lifecycle state of an ingestion job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s JobStatus) Terminal() bool { return s == JobCompleted || s == JobFailed }

var jobTransitions = map[JobStatus][]JobStatus{
	JobPending:    {JobProcessing, JobFailed},
	JobProcessing: {JobCompleted, JobFailed},
}

func (s JobStatus) valid() bool {
	switch s {
	case JobPending, JobProcessing, JobCompleted, JobFailed:
		return true
	}
	return false
}

func (s JobStatus) canMoveTo(next JobStatus) bool {
	if s == next {
		return !s.Terminal()
	}
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IngestionJob is the outward status contract of an ingestion run.
type IngestionJob struct {
	ID          string     `json:"id"`
	Status      JobStatus  `json:"status"`
	SourceDir   string     `json:"source_dir"`
	Incremental bool       `json:"incremental"`
	Processed   int        `json:"processed"`
	Total       int        `json:"total"`
	Progress    int        `json:"progress"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// JobUpdate lists the legal mutable fields of a job. Nil fields are left alone.
type JobUpdate struct {
	Status    *JobStatus
	Processed *int
	Total     *int
	Error     *string
}

// StatusUpdate is shorthand for a status-only update.
func StatusUpdate(s JobStatus) JobUpdate { return JobUpdate{Status: &s} }

// ProgressUpdate is shorthand for a counters-only update.
func ProgressUpdate(processed, total int) JobUpdate {
	return JobUpdate{Processed: &processed, Total: &total}
}

// FailureUpdate moves a job to failed with the given message.
func FailureUpdate(msg string) JobUpdate {
	s := JobFailed
	return JobUpdate{Status: &s, Error: &msg}
}

// Validate checks u against the current job without modifying it.
func (u JobUpdate) Validate(job IngestionJob) error {
	if u.Status != nil {
		if !u.Status.valid() {
			return NewValidationError("status", string(*u.Status), ErrInvalidStatus)
		}
		if !job.Status.canMoveTo(*u.Status) {
			return NewValidationError("status", fmt.Sprintf("%s->%s", job.Status, *u.Status), ErrInvalidTransition)
		}
		if *u.Status == JobFailed && (u.Error == nil || *u.Error == "") {
			return NewValidationError("error", "", ErrMissingJobError)
		}
	} else if job.Status.Terminal() {
		return NewValidationError("status", string(job.Status), ErrInvalidTransition)
	}
	if u.Processed != nil && *u.Processed < 0 {
		return NewValidationError("processed", fmt.Sprint(*u.Processed), ErrInvalidProgress)
	}
	if u.Total != nil && *u.Total < 0 {
		return NewValidationError("total", fmt.Sprint(*u.Total), ErrInvalidProgress)
	}
	return nil
}

// Apply validates u and assigns it, recomputing progress.
func (j *IngestionJob) Apply(u JobUpdate, now time.Time) error {
	if err := u.Validate(*j); err != nil {
		return err
	}
	if u.Processed != nil {
		j.Processed = *u.Processed
	}
	if u.Total != nil {
		j.Total = *u.Total
	}
	if u.Error != nil {
		j.Error = *u.Error
	}
	if u.Status != nil {
		j.Status = *u.Status
	}
	j.Progress = Progress(j.Processed, j.Total)
	if j.Status == JobCompleted {
		j.Progress = 100
	}
	if j.Status.Terminal() {
		t := now
		j.CompletedAt = &t
	}
	j.UpdatedAt = now
	return nil
}

// Progress is floor(min(100, processed/total*100)) for total > 0, else 0.
func Progress(processed, total int) int {
	if total <= 0 || processed <= 0 {
		return 0
	}
	if processed >= total {
		return 100
	}
	return processed * 100 / total
}
