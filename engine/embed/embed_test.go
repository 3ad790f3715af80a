package embed

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/WessleyAI/groundwork/engine/domain"
	"github.com/WessleyAI/groundwork/pkg/fn"
)

type mockProvider struct {
	mu    sync.Mutex
	dims  int
	calls int
	fail  int // number of leading calls that fail
	short bool
}

func (m *mockProvider) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.calls <= m.fail {
		return nil, errors.New("model unavailable")
	}
	n := m.dims
	if m.short {
		n--
	}
	v := make([]float32, n)
	v[0] = float32(len(text))
	return v, nil
}

func (m *mockProvider) Dimensions() int { return m.dims }

func testOpts() Options {
	return Options{Workers: 3, Retry: fn.RetryOpts{MaxAttempts: 3}}
}

func TestEmbed(t *testing.T) {
	p := &mockProvider{dims: 4}
	s := NewService(p, testOpts(), nil)
	v, err := s.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(v) != 4 || v[0] != 5 {
		t.Fatalf("unexpected vector %v", v)
	}
}

func TestEmbedRetriesProviderFailures(t *testing.T) {
	p := &mockProvider{dims: 2, fail: 2}
	s := NewService(p, testOpts(), nil)
	if _, err := s.Embed(context.Background(), "x"); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if p.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", p.calls)
	}
}

func TestEmbedExhaustedRetriesIsExternal(t *testing.T) {
	p := &mockProvider{dims: 2, fail: 10}
	s := NewService(p, testOpts(), nil)
	_, err := s.Embed(context.Background(), "x")
	if !errors.Is(err, domain.ErrExternal) {
		t.Fatalf("expected external error, got %v", err)
	}
}

func TestEmbedRejectsWrongDimensions(t *testing.T) {
	p := &mockProvider{dims: 3, short: true}
	s := NewService(p, testOpts(), nil)
	_, err := s.Embed(context.Background(), "x")
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
}

func TestEmbedBatchPreservesOrderAndSkipsBlank(t *testing.T) {
	p := &mockProvider{dims: 2}
	s := NewService(p, testOpts(), nil)
	texts := []string{"a", "   ", "abc", strings.Repeat("z", 10)}
	out, err := s.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []float32{1, 0, 3, 10}
	for i, v := range out {
		if len(v) != 2 || v[0] != want[i] {
			t.Fatalf("vector %d = %v, want first component %v", i, v, want[i])
		}
	}
	if p.calls != 3 {
		t.Fatalf("blank text must not reach the provider, got %d calls", p.calls)
	}
}

func TestEmbedBatchFailsOnAnyError(t *testing.T) {
	p := &mockProvider{dims: 2, fail: 100}
	s := NewService(p, Options{Workers: 2, Retry: fn.RetryOpts{MaxAttempts: 1}}, nil)
	if _, err := s.EmbedBatch(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestEmbedCancelledContext(t *testing.T) {
	p := &mockProvider{dims: 2}
	s := NewService(p, Options{RequestsPerSecond: 1, Burst: 1, Retry: fn.RetryOpts{MaxAttempts: 1}}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Embed(ctx, "x"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
