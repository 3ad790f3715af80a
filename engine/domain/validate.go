package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// Retrieval parameter bounds.
const (
	MinTopK = 1
	MaxTopK = 20
)

var checksumRegex = regexp.MustCompile(`^[0-9a-f]{64}$`)

// IsChecksum reports whether s is a lowercase hex SHA-256 digest.
func IsChecksum(s string) bool { return checksumRegex.MatchString(s) }

// ValidateQuestion rejects blank questions.
func ValidateQuestion(q string) error {
	if strings.TrimSpace(q) == "" {
		return NewValidationError("question", q, ErrEmptyQuestion)
	}
	return nil
}

// ValidateRetrieval checks top_k and the similarity threshold.
func ValidateRetrieval(topK int, threshold float64) error {
	if topK < MinTopK || topK > MaxTopK {
		return NewValidationError("top_k", fmt.Sprint(topK), ErrInvalidTopK)
	}
	if threshold < 0 || threshold > 1 {
		return NewValidationError("similarity_threshold", fmt.Sprint(threshold), ErrInvalidThreshold)
	}
	return nil
}

// ParseRole validates a message role.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleUser, RoleAssistant, RoleSystem:
		return r, nil
	}
	return "", NewValidationError("role", s, ErrInvalidRole)
}

// ValidateVector checks a vector against the collection dimensionality.
func ValidateVector(field string, v []float32, dims int) error {
	if len(v) != dims {
		return NewValidationError(field, fmt.Sprintf("len=%d want=%d", len(v), dims), ErrDimensionMismatch)
	}
	return nil
}
