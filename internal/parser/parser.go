// Package parser turns fetched site content into searchable text and keywords.
package parser

import (
	"bytes"
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"gopkg.in/yaml.v3"
)

var (
	tagRe   = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
	spaceRe = regexp.MustCompile(`\s+`)

	strict = bluemonday.StrictPolicy()
)

// Result holds the output of parsing a document.
type Result struct {
	Frontmatter map[string]interface{}
	Title       string
	Keywords    []string
	Text        string
}

// KeywordString joins the keywords for storage in the index.
func (r *Result) KeywordString() string {
	return strings.Join(r.Keywords, " ")
}

// Markdown extracts frontmatter, keywords, a title and the plain text of a
// README-style Markdown document.
func Markdown(data []byte) (*Result, error) {
	fm, body := splitFrontmatter(data)

	var rendered bytes.Buffer
	if err := goldmark.Convert([]byte(body), &rendered); err != nil {
		return nil, err
	}

	return &Result{
		Frontmatter: fm,
		Title:       deriveTitle(fm, body),
		Keywords:    extractKeywords(body, fm),
		Text:        textOf(rendered.String()),
	}, nil
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. If no frontmatter is found the entire content is body.
func splitFrontmatter(data []byte) (map[string]interface{}, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data)
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]interface{}
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		// Invalid YAML: treat the whole document as body.
		return nil, string(data)
	}

	return fm, body
}

// extractKeywords collects the frontmatter "keywords" and "tags" fields and
// inline #tags from body, lowercased and deduplicated in first-seen order.
func extractKeywords(body string, fm map[string]interface{}) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(s string) {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	for _, key := range []string{"keywords", "tags"} {
		switch v := fm[key].(type) {
		case []interface{}:
			for _, item := range v {
				if s, ok := item.(string); ok {
					add(s)
				}
			}
		case string:
			for _, s := range strings.Split(v, ",") {
				add(s)
			}
		}
	}

	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}

	return out
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(fm map[string]interface{}, body string) string {
	if t, ok := fm["title"].(string); ok && t != "" {
		return t
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

// textOf strips all markup from an HTML fragment and collapses whitespace.
func textOf(fragment string) string {
	text := html.UnescapeString(strict.Sanitize(fragment))
	return strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
}
