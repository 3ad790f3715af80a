package domain

import (
	"errors"
	"testing"
	"time"
)

func TestProgress(t *testing.T) {
	cases := []struct {
		processed, total, want int
	}{
		{0, 0, 0},
		{5, 0, 0},
		{0, 10, 0},
		{1, 3, 33},
		{2, 3, 66},
		{29, 100, 29},
		{10, 10, 100},
		{15, 10, 100},
		{-1, 10, 0},
	}
	for _, c := range cases {
		if got := Progress(c.processed, c.total); got != c.want {
			t.Errorf("Progress(%d, %d) = %d, want %d", c.processed, c.total, got, c.want)
		}
	}
}

func TestProgressInvariant(t *testing.T) {
	for total := 1; total <= 50; total++ {
		for processed := 0; processed <= total*2; processed++ {
			p := Progress(processed, total)
			if p < 0 || p > 100 {
				t.Fatalf("Progress(%d, %d) = %d out of range", processed, total, p)
			}
			want := processed * 100 / total
			if want > 100 {
				want = 100
			}
			if p != want {
				t.Fatalf("Progress(%d, %d) = %d, want %d", processed, total, p, want)
			}
		}
	}
}

func TestJobLifecycle(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	job := IngestionJob{ID: "j1", Status: JobPending}

	if err := job.Apply(StatusUpdate(JobProcessing), now); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := job.Apply(ProgressUpdate(1, 4), now); err != nil {
		t.Fatalf("progress: %v", err)
	}
	if job.Progress != 25 {
		t.Fatalf("expected 25, got %d", job.Progress)
	}
	if err := job.Apply(StatusUpdate(JobCompleted), now); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if job.Progress != 100 {
		t.Fatalf("completed job must report 100, got %d", job.Progress)
	}
	if job.CompletedAt == nil || !job.CompletedAt.Equal(now) {
		t.Fatalf("expected CompletedAt to be set, got %v", job.CompletedAt)
	}
}

func TestJobFailedRequiresError(t *testing.T) {
	job := IngestionJob{Status: JobProcessing}
	failed := JobFailed
	err := job.Apply(JobUpdate{Status: &failed}, time.Now())
	if !errors.Is(err, ErrMissingJobError) {
		t.Fatalf("expected ErrMissingJobError, got %v", err)
	}
	if job.Status != JobProcessing {
		t.Fatal("rejected update must not be applied")
	}

	if err := job.Apply(FailureUpdate("disk full"), time.Now()); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if job.Status != JobFailed || job.Error != "disk full" {
		t.Fatalf("unexpected job: %+v", job)
	}
}

func TestJobRejectsIllegalUpdates(t *testing.T) {
	bogus := JobStatus("paused")
	neg := -1
	cases := []struct {
		name string
		job  IngestionJob
		upd  JobUpdate
		want error
	}{
		{"unknown status", IngestionJob{Status: JobPending}, JobUpdate{Status: &bogus}, ErrInvalidStatus},
		{"pending to completed", IngestionJob{Status: JobPending}, StatusUpdate(JobCompleted), ErrInvalidTransition},
		{"completed to processing", IngestionJob{Status: JobCompleted}, StatusUpdate(JobProcessing), ErrInvalidTransition},
		{"progress after completion", IngestionJob{Status: JobCompleted}, ProgressUpdate(1, 2), ErrInvalidTransition},
		{"negative processed", IngestionJob{Status: JobProcessing}, JobUpdate{Processed: &neg}, ErrInvalidProgress},
		{"negative total", IngestionJob{Status: JobProcessing}, JobUpdate{Total: &neg}, ErrInvalidProgress},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.job.Apply(c.upd, time.Now())
			if !errors.Is(err, c.want) {
				t.Fatalf("expected %v, got %v", c.want, err)
			}
			if !IsValidation(err) {
				t.Fatalf("expected a ValidationError, got %T", err)
			}
		})
	}
}
