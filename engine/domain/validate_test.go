package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestValidateRetrieval(t *testing.T) {
	valid := []struct {
		topK      int
		threshold float64
	}{{1, 0}, {5, 0.1}, {20, 1}}
	for _, v := range valid {
		if err := ValidateRetrieval(v.topK, v.threshold); err != nil {
			t.Errorf("ValidateRetrieval(%d, %v): unexpected %v", v.topK, v.threshold, err)
		}
	}

	if err := ValidateRetrieval(0, 0.5); !errors.Is(err, ErrInvalidTopK) {
		t.Errorf("expected ErrInvalidTopK, got %v", err)
	}
	if err := ValidateRetrieval(21, 0.5); !errors.Is(err, ErrInvalidTopK) {
		t.Errorf("expected ErrInvalidTopK, got %v", err)
	}
	if err := ValidateRetrieval(5, 1.5); !errors.Is(err, ErrInvalidThreshold) {
		t.Errorf("expected ErrInvalidThreshold, got %v", err)
	}
	if err := ValidateRetrieval(5, -0.1); !errors.Is(err, ErrInvalidThreshold) {
		t.Errorf("expected ErrInvalidThreshold, got %v", err)
	}
}

func TestValidateQuestion(t *testing.T) {
	if err := ValidateQuestion("  \n"); !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("expected ErrEmptyQuestion, got %v", err)
	}
	if err := ValidateQuestion("what is ROS?"); err != nil {
		t.Fatalf("unexpected %v", err)
	}
}

func TestParseRole(t *testing.T) {
	for _, s := range []string{"user", "Assistant", " system "} {
		if _, err := ParseRole(s); err != nil {
			t.Errorf("ParseRole(%q): %v", s, err)
		}
	}
	if _, err := ParseRole("robot"); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestValidateVector(t *testing.T) {
	if err := ValidateVector("vector", make([]float32, 3), 3); err != nil {
		t.Fatalf("unexpected %v", err)
	}
	err := ValidateVector("vector", make([]float32, 2), 3)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "vector" {
		t.Fatalf("expected ValidationError on field vector, got %v", err)
	}
}

func TestErrorKinds(t *testing.T) {
	if !errors.Is(NotFound("document", "x"), ErrNotFound) {
		t.Error("NotFoundError should match ErrNotFound")
	}
	if !errors.Is(Conflict("chunk", "h"), ErrConflict) {
		t.Error("ConflictError should match ErrConflict")
	}

	cause := errors.New("connection refused")
	ext := fmt.Errorf("retrieve: %w", External("qdrant", cause))
	if !errors.Is(ext, ErrExternal) || !errors.Is(ext, cause) {
		t.Errorf("ExternalError should match ErrExternal and its cause: %v", ext)
	}
	if External("qdrant", nil) != nil {
		t.Error("External(nil) should be nil")
	}
}

func TestDocumentApply(t *testing.T) {
	doc := Document{ID: "d1", Title: "Old", Checksum: "x"}
	now := time.Now()
	err := doc.Apply(DocumentUpdate{Title: "New", Checksum: "not-a-digest"}, now)
	if !errors.Is(err, ErrInvalidChecksum) {
		t.Fatalf("expected ErrInvalidChecksum, got %v", err)
	}
	if doc.Title != "Old" {
		t.Fatal("rejected update must not be applied")
	}

	sum := "dffd6021bb2bd5b0af676290809ec3a53191dd81c7f70a4b28688a362182986f"
	if err := doc.Apply(DocumentUpdate{Title: "New", Checksum: sum, Content: "body"}, now); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if doc.Title != "New" || doc.Checksum != sum || !doc.UpdatedAt.Equal(now) {
		t.Fatalf("unexpected document: %+v", doc)
	}
}
