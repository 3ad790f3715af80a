// Package extract pulls front-matter, a title and the clean body out of
// Markdown and MDX sources.
package extract

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

var (
	frontMatterRe = regexp.MustCompile(`(?s)^---\s*\n(.*?)\n---\s*\n(.*)`)
	headingRe     = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
)

// Extracted is the result of Parse.
type Extracted struct {
	Body        string
	FrontMatter map[string]string
	Title       string
}

// Heading is a markdown heading and the byte offset of its line in the body.
type Heading struct {
	Level  int
	Text   string
	Offset int
}

// Parse splits content into front-matter and body and derives a title from
// the front-matter or the first level-one heading. A front-matter block that
// is not valid YAML is ignored and the original content is kept as the body.
func Parse(content string) Extracted {
	out := Extracted{FrontMatter: map[string]string{}}
	body := content

	if m := frontMatterRe.FindStringSubmatch(content); m != nil {
		if fm, err := parseFrontMatter(m[1]); err == nil {
			out.FrontMatter = fm
			body = m[2]
		}
	}

	out.Title = out.FrontMatter["title"]
	if out.Title == "" {
		out.Title = firstTitle(body)
	}
	out.Body = strings.TrimSpace(body)
	return out
}

func parseFrontMatter(block string) (map[string]string, error) {
	raw := map[string]any{}
	if err := yaml.Unmarshal([]byte(block), &raw); err != nil {
		return nil, fmt.Errorf("extract: front-matter: %w", err)
	}
	fm := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			fm[k] = ""
			continue
		}
		fm[k] = strings.TrimSpace(fmt.Sprint(v))
	}
	return fm, nil
}

func firstTitle(body string) string {
	for _, line := range strings.Split(body, "\n") {
		if m := headingRe.FindStringSubmatch(line); m != nil && len(m[1]) == 1 {
			return strings.TrimSpace(m[2])
		}
	}
	return ""
}

// TitleFromPath builds a title from a file name: the stem with underscores
// and dashes turned into spaces, title-cased.
func TitleFromPath(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	stem = strings.NewReplacer("_", " ", "-", " ").Replace(stem)
	return cases.Title(language.Und).String(stem)
}

// Headings lists the markdown headings of body in order.
func Headings(body string) []Heading {
	var out []Heading
	offset := 0
	inFence := false
	for _, line := range strings.SplitAfter(body, "\n") {
		trimmed := strings.TrimRight(line, "\r\n")
		if strings.HasPrefix(strings.TrimSpace(trimmed), "```") {
			inFence = !inFence
		}
		if !inFence {
			if m := headingRe.FindStringSubmatch(trimmed); m != nil {
				out = append(out, Heading{Level: len(m[1]), Text: strings.TrimSpace(m[2]), Offset: offset})
			}
		}
		offset += len(line)
	}
	return out
}

// HeadingAt returns the text of the last heading that starts at or before
// offset, or "" when there is none.
func HeadingAt(headings []Heading, offset int) string {
	text := ""
	for _, h := range headings {
		if h.Offset > offset {
			break
		}
		text = h.Text
	}
	return text
}
