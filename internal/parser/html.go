package parser

import (
	"bytes"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTML extracts the <title>, <meta name="keywords"> and visible text of a
// page. Script and style contents are dropped.
func HTML(data []byte) (*Result, error) {
	var (
		res      Result
		seen     = make(map[string]struct{})
		inTitle  bool
		skip     int
		visible  strings.Builder
		titleBuf strings.Builder
	)

	z := html.NewTokenizer(bytes.NewReader(data))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return nil, err
			}
			res.Title = strings.TrimSpace(spaceRe.ReplaceAllString(titleBuf.String(), " "))
			res.Text = textOf(visible.String())
			return &res, nil

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				if tt == html.StartTagToken {
					skip++
				}
			case atom.Title:
				inTitle = tt == html.StartTagToken
			case atom.Meta:
				if kw, ok := metaKeywords(tok); ok {
					for _, s := range strings.Split(kw, ",") {
						s = strings.ToLower(strings.TrimSpace(s))
						if _, dup := seen[s]; s != "" && !dup {
							seen[s] = struct{}{}
							res.Keywords = append(res.Keywords, s)
						}
					}
				}
			default:
				visible.WriteByte(' ')
			}

		case html.EndTagToken:
			tok := z.Token()
			switch tok.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				if skip > 0 {
					skip--
				}
			case atom.Title:
				inTitle = false
			default:
				visible.WriteByte(' ')
			}

		case html.TextToken:
			switch {
			case inTitle:
				titleBuf.Write(z.Text())
			case skip == 0:
				// Re-escape so textOf can unescape exactly once.
				visible.WriteString(html.EscapeString(string(z.Text())))
			}
		}
	}
}

func metaKeywords(tok html.Token) (string, bool) {
	var name, content string
	for _, a := range tok.Attr {
		switch strings.ToLower(a.Key) {
		case "name":
			name = strings.ToLower(a.Val)
		case "content":
			content = a.Val
		}
	}
	return content, name == "keywords"
}

// Sniff picks the HTML or Markdown parser from a content type and the
// leading bytes of data.
func Sniff(contentType string, data []byte) (*Result, error) {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "text/html"):
		return HTML(data)
	case strings.Contains(ct, "markdown"):
		return Markdown(data)
	}
	head := bytes.ToLower(bytes.TrimSpace(data))
	if len(head) > 512 {
		head = head[:512]
	}
	if bytes.HasPrefix(head, []byte("<!doctype html")) || bytes.HasPrefix(head, []byte("<html")) {
		return HTML(data)
	}
	return Markdown(data)
}
