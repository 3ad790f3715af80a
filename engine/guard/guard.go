// Package guard decides when an answer must be replaced by a refusal.
//
// Grounding is a lexical check: the share of distinct answer words that
// also occur in the context. It is deliberately coarse and conservative;
// it does not judge meaning.
package guard

import (
	"strings"
	"unicode/utf8"
)

// Reason names why a query was refused. The string values are stable.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonInsufficientContext Reason = "insufficient_context"
	ReasonLowConfidence       Reason = "low_confidence"
	ReasonNotGrounded         Reason = "not_properly_grounded"
	ReasonNoRelevantChunks    Reason = "no_relevant_chunks_found"
	ReasonRetrievalError      Reason = "retrieval_error"
	ReasonGenerationError     Reason = "generation_error"
)

// Refusal texts.
const (
	TextInsufficientContext = "I don't have sufficient information in the book content to answer this question."
	TextLowConfidence       = "The retrieved information doesn't have sufficient confidence to provide a reliable answer."
	TextDefault             = "I cannot provide an answer based on the available book content."
	TextRetrievalError      = "Sorry, I'm having trouble accessing the document repository right now."
)

// Defaults for Options.
const (
	DefaultGroundingThreshold = 0.3
	DefaultMinContextLength   = 10
)

// Options tunes a Guard.
type Options struct {
	// GroundingThreshold is the minimum share of answer words found in the
	// context.
	GroundingThreshold float64
	// MinContextLength is the minimum trimmed context length in characters.
	MinContextLength int
}

// DefaultOptions returns the standard policy.
func DefaultOptions() Options {
	return Options{GroundingThreshold: DefaultGroundingThreshold, MinContextLength: DefaultMinContextLength}
}

// Guard applies one policy.
type Guard struct {
	opts Options
}

// New creates a Guard. Zero fields take their defaults.
func New(opts Options) *Guard {
	if opts.GroundingThreshold <= 0 {
		opts.GroundingThreshold = DefaultGroundingThreshold
	}
	if opts.MinContextLength <= 0 {
		opts.MinContextLength = DefaultMinContextLength
	}
	return &Guard{opts: opts}
}

// Options returns the effective policy.
func (g *Guard) Options() Options { return g.opts }

// Report is the combined verdict on an answer.
type Report struct {
	IsGrounded               bool   `json:"is_grounded"`
	HasSufficientContext     bool   `json:"has_sufficient_context"`
	HasHighConfidenceResults bool   `json:"has_high_confidence_results"`
	ShouldRefuse             bool   `json:"should_refuse_to_answer"`
	RefusalReason            Reason `json:"refusal_reason"`
	ValidationPassed         bool   `json:"validation_passed"`
}

// ContextInsufficient reports whether the trimmed context is shorter than
// minLen characters.
func ContextInsufficient(context string, minLen int) bool {
	return utf8.RuneCountInString(strings.TrimSpace(context)) < minLen
}

// LowConfidence reports whether no score reaches threshold. No scores at
// all is low confidence.
func LowConfidence(scores []float64, threshold float64) bool {
	for _, s := range scores {
		if s >= threshold {
			return false
		}
	}
	return true
}

// Overlap is the share of distinct lowercase answer words that occur in the
// context. It is 0 for an empty answer.
func Overlap(answer, context string) float64 {
	answerWords := wordSet(answer)
	if len(answerWords) == 0 {
		return 0
	}
	contextWords := wordSet(context)
	common := 0
	for w := range answerWords {
		if _, ok := contextWords[w]; ok {
			common++
		}
	}
	return float64(common) / float64(len(answerWords))
}

func wordSet(s string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// ProperlyGrounded applies the default grounding threshold.
func ProperlyGrounded(answer, context string) bool {
	return grounded(answer, context, DefaultGroundingThreshold)
}

func grounded(answer, context string, threshold float64) bool {
	if strings.TrimSpace(answer) == "" || strings.TrimSpace(context) == "" {
		return false
	}
	return Overlap(answer, context) >= threshold
}

// RefusalText returns the canned message for reason.
func RefusalText(reason Reason) string {
	switch reason {
	case ReasonInsufficientContext, ReasonNoRelevantChunks:
		return TextInsufficientContext
	case ReasonLowConfidence:
		return TextLowConfidence
	case ReasonRetrievalError:
		return TextRetrievalError
	default:
		return TextDefault
	}
}

// RefusalReason applies the default minimum context length.
func RefusalReason(context string, scores []float64, threshold float64) Reason {
	return New(DefaultOptions()).RefusalReason(context, scores, threshold)
}

// Validate applies the default policy.
func Validate(answer, context string, scores []float64, threshold float64) Report {
	return New(DefaultOptions()).Validate(answer, context, scores, threshold)
}

// ContextInsufficient checks context against the configured minimum.
func (g *Guard) ContextInsufficient(context string) bool {
	return ContextInsufficient(context, g.opts.MinContextLength)
}

// ProperlyGrounded checks answer against the configured threshold.
func (g *Guard) ProperlyGrounded(answer, context string) bool {
	return grounded(answer, context, g.opts.GroundingThreshold)
}

// RefusalReason checks the context first, then the scores. Scores are only
// judged when there are some; an empty retrieval is reported separately by
// the caller.
func (g *Guard) RefusalReason(context string, scores []float64, threshold float64) Reason {
	if g.ContextInsufficient(context) {
		return ReasonInsufficientContext
	}
	if len(scores) > 0 && LowConfidence(scores, threshold) {
		return ReasonLowConfidence
	}
	return ReasonNone
}

// Validate combines every check. It passes only when the answer is grounded
// and no refusal is due.
func (g *Guard) Validate(answer, context string, scores []float64, threshold float64) Report {
	reason := g.RefusalReason(context, scores, threshold)
	r := Report{
		IsGrounded:               g.ProperlyGrounded(answer, context),
		HasSufficientContext:     !g.ContextInsufficient(context),
		HasHighConfidenceResults: len(scores) == 0 || !LowConfidence(scores, threshold),
		ShouldRefuse:             reason != ReasonNone,
		RefusalReason:            reason,
	}
	r.ValidationPassed = r.IsGrounded && !r.ShouldRefuse
	return r
}
