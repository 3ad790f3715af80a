// Package citation assembles retrieved chunks into a prompt context and the
// matching source references.
package citation

import (
	"fmt"
	"slices"
	"strings"

	"github.com/WessleyAI/groundwork/engine/domain"
	"github.com/WessleyAI/groundwork/pkg/fn"
)

// DefaultSnippetLength is the number of characters kept in a snippet.
const DefaultSnippetLength = 100

// Citation points at the chunk an answer draws on.
type Citation struct {
	SourcePath string `json:"source_path"`
	Title      string `json:"title"`
	Heading    string `json:"heading,omitempty"`
	ChunkIndex int    `json:"chunk_index"`
	Snippet    string `json:"snippet"`
}

// String renders the citation inline.
func (c Citation) String() string {
	heading := c.Heading
	if heading == "" {
		heading = c.Title
	}
	return fmt.Sprintf("[Source: %s, Heading: %s, Chunk: %d]", c.SourcePath, heading, c.ChunkIndex)
}

type key struct {
	path  string
	index int
}

func (c Citation) key() key { return key{c.SourcePath, c.ChunkIndex} }

// Builder builds contexts with a configurable snippet length.
type Builder struct {
	SnippetLength int
}

// Build joins chunk texts with blank lines, in order, and returns one
// citation per chunk.
func (b Builder) Build(chunks []domain.Chunk) (string, []Citation) {
	n := b.SnippetLength
	if n <= 0 {
		n = DefaultSnippetLength
	}
	parts := make([]string, len(chunks))
	citations := make([]Citation, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Content
		citations[i] = Citation{
			SourcePath: c.Meta(domain.MetaSourcePath),
			Title:      c.Meta(domain.MetaTitle),
			Heading:    c.Meta(domain.MetaHeading),
			ChunkIndex: c.Index,
			Snippet:    Snippet(c.Content, n),
		}
	}
	return strings.Join(parts, "\n\n"), citations
}

// Build uses DefaultSnippetLength.
func Build(chunks []domain.Chunk) (string, []Citation) {
	return Builder{}.Build(chunks)
}

// Snippet keeps the first n characters of s and appends "..." when it cut
// anything.
func Snippet(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// Merge appends the incoming citations not already present, keyed by
// source path and chunk index. Order is kept.
func Merge(existing, incoming []Citation) []Citation {
	out := fn.UniqueBy(slices.Concat(existing, incoming), Citation.key)
	if out == nil {
		return []Citation{}
	}
	return out
}

// Format renders a numbered source list.
func Format(citations []Citation) string {
	var b strings.Builder
	for i, c := range citations {
		fmt.Fprintf(&b, "[%d] %s", i+1, c.SourcePath)
		if c.Title != "" {
			fmt.Fprintf(&b, " - %s", c.Title)
		}
		if c.Heading != "" && c.Heading != c.Title {
			fmt.Fprintf(&b, " > %s", c.Heading)
		}
		fmt.Fprintf(&b, " (chunk %d)\n", c.ChunkIndex)
	}
	return b.String()
}
