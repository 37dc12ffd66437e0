package resolver

import (
	"bytes"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/starford/virt/internal/apperr"
	"github.com/starford/virt/internal/names"
)

const htmlType = "text/html; charset=utf-8"

var fallbackTmpl = template.Must(template.New("fallback").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Name}}</title>
<link rel="stylesheet" href="virt://lookin.at/style.css">
</head>
<body>
<main>
<h1>{{.Name}}</h1>
{{if .Missing}}<p>This name is not registered yet.</p>
<p><a href="{{.RegisterURL}}">Register {{.Name}}</a></p>
{{else}}<p>The site behind this name could not be reached right now.</p>
<p>Try again later, or <a href="{{.RegisterURL}}">see registration details</a>.</p>
{{end}}<nav><a href="virt://lookin.at">Search</a></nav>
</main>
</body>
</html>
`))

var unreachableTmpl = template.Must(template.New("unreachable").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Unreachable</title>
</head>
<body>
<main>
<h1>Site unreachable</h1>
<p>{{.URL}} could not be loaded.</p>
<nav><a href="virt://lookin.at">Back to lookin.at</a></nav>
</main>
</body>
</html>
`))

// renderFailedPage is served when a page template fails to execute.
const renderFailedPage = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>virt</title></head>
<body><main><p>This page could not be displayed.</p></main></body>
</html>
`

// render executes t, falling back to a static page on error so a caller
// never receives a truncated document.
func render(t *template.Template, data any) []byte {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		slog.Default().Error("render page",
			slog.String("template", t.Name()),
			slog.String("error", err.Error()))
		return []byte(renderFailedPage)
	}
	return buf.Bytes()
}

// RegisterURL links to the registration page prefilled with name.
func RegisterURL(name string) template.URL {
	return template.URL(names.Scheme + names.SystemRegister + "?name=" + url.QueryEscape(name))
}

// FallbackPage renders the page shown for an unresolvable reserved name.
// It depends only on its arguments.
func FallbackPage(name string, missing bool) []byte {
	return render(fallbackTmpl, struct {
		Name        string
		Missing     bool
		RegisterURL template.URL
	}{name, missing, RegisterURL(name)})
}

func fallback(name string, status int, err error) *Result {
	return &Result{
		Outcome:     Fallback,
		Status:      status,
		ContentType: htmlType,
		Body:        FallbackPage(name, errors.Is(err, apperr.ErrNotFound)),
		Err:         err,
	}
}

func unreachable(u string, err error) *Result {
	return &Result{
		Outcome:     Fallback,
		Status:      http.StatusBadGateway,
		ContentType: htmlType,
		Body:        render(unreachableTmpl, struct{ URL string }{u}),
		Source:      u,
		Err:         err,
	}
}
