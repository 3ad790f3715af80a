// Package embed turns text into fixed-length vectors through a pluggable
// provider, with throttling, retries and bounded fan-out.
package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	"github.com/WessleyAI/groundwork/engine/domain"
	"github.com/WessleyAI/groundwork/pkg/fn"
)

// Provider produces one embedding per call.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Options tunes a Service.
type Options struct {
	// RequestsPerSecond limits provider calls. Zero disables throttling.
	RequestsPerSecond float64
	Burst             int
	// Workers bounds concurrent provider calls in EmbedBatch.
	Workers int
	Retry   fn.RetryOpts
}

// DefaultOptions returns options suited to a local model server.
func DefaultOptions() Options {
	return Options{
		RequestsPerSecond: 20,
		Burst:             5,
		Workers:           4,
		Retry:             fn.DefaultRetry,
	}
}

// Service wraps a Provider and enforces its dimensionality.
type Service struct {
	provider Provider
	limiter  *rate.Limiter
	opts     Options
	logger   *slog.Logger
}

// NewService creates a Service. A nil logger uses slog.Default().
func NewService(p Provider, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	opts.Retry.Retryable = retryable
	return &Service{provider: p, limiter: limiter, opts: opts, logger: logger}
}

// Dimensions reports the provider's vector length.
func (s *Service) Dimensions() int { return s.provider.Dimensions() }

// Embed returns the embedding for text. A vector whose length differs from
// Dimensions is rejected.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	r := fn.Retry(ctx, s.opts.Retry, func(ctx context.Context) fn.Result[[]float32] {
		if err := s.limiter.Wait(ctx); err != nil {
			return fn.Err[[]float32](err)
		}
		v, err := s.provider.Embed(ctx, text)
		if err != nil {
			s.logger.Warn("embed: provider call failed", "error", err)
			return fn.Err[[]float32](domain.External("embedding", err))
		}
		return fn.Ok(v)
	})
	v, err := r.Unwrap()
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if err := domain.ValidateVector("embedding", v, s.Dimensions()); err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	return v, nil
}

// EmbedBatch embeds texts concurrently and returns vectors in input order.
// Blank texts get a zero vector without a provider call.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := fn.ParMapResult(texts, s.opts.Workers, func(text string) fn.Result[[]float32] {
		if strings.TrimSpace(text) == "" {
			return fn.Ok(make([]float32, s.Dimensions()))
		}
		return fn.FromPair(s.Embed(ctx, text))
	})
	out, err := fn.Collect(results).Unwrap()
	if err != nil {
		return nil, err
	}
	return out, nil
}

// retryable keeps retries to provider failures; validation and
// cancellation are final.
func retryable(err error) bool {
	return !domain.IsValidation(err) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}
