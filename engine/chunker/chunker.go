// Package chunker splits cleaned document text into bounded chunks with
// identifiers that are reproducible across runs.
package chunker

import (
	"crypto/sha256"
	"fmt"

	"github.com/WessleyAI/groundwork/engine/domain"
	"github.com/google/uuid"
)

const (
	// DefaultSize is the maximum number of characters per chunk.
	DefaultSize = 1000
	// DefaultOverlap is the configured overlap in characters.
	DefaultOverlap = 200
	// Lookback bounds how far back from the cut point a natural break is searched.
	Lookback = 50
	// IDPrefixLen is how many leading characters of a chunk feed its identifier.
	IDPrefixLen = 100
)

// Options configures a Chunker.
type Options struct {
	Size    int
	Overlap int
}

// DefaultOptions returns the defaults.
func DefaultOptions() Options {
	return Options{Size: DefaultSize, Overlap: DefaultOverlap}
}

// Chunker is safe for concurrent use.
type Chunker struct {
	opts Options
}

// New creates a Chunker. Non-positive sizes fall back to the default.
func New(opts Options) *Chunker {
	if opts.Size <= 0 {
		opts.Size = DefaultSize
	}
	if opts.Overlap < 0 {
		opts.Overlap = 0
	}
	return &Chunker{opts: opts}
}

// Options returns the effective options.
func (c *Chunker) Options() Options { return c.opts }

// Chunk splits text and assigns each piece its deterministic ID.
// Empty text yields no chunks.
func (c *Chunker) Chunk(text, documentID string) []domain.Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	var chunks []domain.Chunk
	start, index := 0, 0
	for start < len(runes) {
		end := start + c.opts.Size
		if end < len(runes) {
			end = breakPoint(runes, start, end)
		} else {
			end = len(runes)
		}

		content := string(runes[start:end])
		id := ID(documentID, index, content)
		chunks = append(chunks, domain.Chunk{
			ID:         id,
			DocumentID: documentID,
			Index:      index,
			Content:    content,
			Hash:       id,
		})

		// The cursor never moves behind the end of the chunk just emitted,
		// which guarantees progress for any overlap.
		next := end - c.opts.Overlap
		if next < end {
			next = end
		}
		start = next
		index++
	}
	return chunks
}

// breakPoint looks back from end for a sentence terminator, then for
// whitespace, and cuts right after it. Without either it cuts at end.
func breakPoint(runes []rune, start, end int) int {
	floor := end - Lookback
	if floor < start {
		floor = start
	}
	for _, isBreak := range []func(rune) bool{isTerminator, isSpace} {
		for i := end - 1; i > floor; i-- {
			if isBreak(runes[i]) {
				if i+1 > start {
					return i + 1
				}
				return end
			}
		}
	}
	return end
}

func isTerminator(r rune) bool { return r == '.' || r == '!' || r == '?' }

func isSpace(r rune) bool { return r == ' ' || r == '\t' || r == '\n' }

// ID derives a chunk identifier from the owning document, the chunk's
// position and the first IDPrefixLen characters of its content.
func ID(documentID string, index int, content string) string {
	prefix := []rune(content)
	if len(prefix) > IDPrefixLen {
		prefix = prefix[:IDPrefixLen]
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%s", documentID, index, string(prefix))))
	id, _ := uuid.FromBytes(sum[:16])
	return id.String()
}

// Chunk is a convenience wrapper around New(Options{size, overlap}).Chunk.
func Chunk(text, documentID string, size, overlap int) []domain.Chunk {
	return New(Options{Size: size, Overlap: overlap}).Chunk(text, documentID)
}
