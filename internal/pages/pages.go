// Package pages renders the proxy's built-in Xiino-legal pages: the
// about page and the error pages for every failure kind in spec §7. None
// of these pass through internal/transcode - they are emitted already
// within the legal subset, the same way the teacher's theme package
// builds its Default() struct literal directly instead of deriving it
// from an external source.
package pages

import (
	"bytes"
	"fmt"
	"text/template"
)

// Kind identifies which built-in page to render.
type Kind string

const (
	About           Kind = "about"
	BadRequest      Kind = "bad_request"
	NotFound        Kind = "not_found"
	ServerError     Kind = "server_error"
	Timeout         Kind = "timeout"
	RateLimited     Kind = "rate_limited"
	RequestTooLarge Kind = "request_too_large"
	UpstreamError   Kind = "upstream_error"
	PaletteDemo     Kind = "palette_demo"
)

// page pairs a page Kind with its title and body template, mirroring
// the teacher's constant-driven layout tables (pkg/raster's RowHeight /
// ColWidth / Padding constants feeding one rendering routine).
type page struct {
	title string
	body  *template.Template
}

var pages = map[Kind]page{
	About: {
		title: "About xiinoproxy",
		body: mustParse(`<html><head><title>About</title></head><body>
<h1 align="center">xiinoproxy</h1>
<p>A transcoding proxy for Xiino and Palmscape browsers.</p>
<p>Request ID: {{.RequestID}}</p>
</body></html>`),
	},
	BadRequest: {
		title: "Bad Request",
		body: mustParse(`<html><head><title>Bad Request</title></head><body>
<h1 align="center">Bad Request</h1>
<p>{{.Message}}</p>
<p>Request ID: {{.RequestID}}</p>
</body></html>`),
	},
	NotFound: {
		title: "Not Found",
		body: mustParse(`<html><head><title>Not Found</title></head><body>
<h1 align="center">Not Found</h1>
<p>The requested page could not be retrieved.</p>
<p>Request ID: {{.RequestID}}</p>
</body></html>`),
	},
	ServerError: {
		title: "Server Error",
		body: mustParse(`<html><head><title>Server Error</title></head><body>
<h1 align="center">Server Error</h1>
<p>Something went wrong processing this page.</p>
<p>Request ID: {{.RequestID}}</p>
</body></html>`),
	},
	Timeout: {
		title: "Timeout",
		body: mustParse(`<html><head><title>Timeout</title></head><body>
<h1 align="center">Timeout</h1>
<p>The upstream site took too long to respond.</p>
<p>Request ID: {{.RequestID}}</p>
</body></html>`),
	},
	RateLimited: {
		title: "Too Many Requests",
		body: mustParse(`<html><head><title>Too Many Requests</title></head><body>
<h1 align="center">Slow down</h1>
<p>This device has sent too many requests. Please wait and try again.</p>
<p>Request ID: {{.RequestID}}</p>
</body></html>`),
	},
	RequestTooLarge: {
		title: "Request Too Large",
		body: mustParse(`<html><head><title>Request Too Large</title></head><body>
<h1 align="center">Request Too Large</h1>
<p>{{.Message}}</p>
<p>Request ID: {{.RequestID}}</p>
</body></html>`),
	},
	UpstreamError: {
		title: "Upstream Error",
		body: mustParse(`<html><head><title>Upstream Error</title></head><body>
<h1 align="center">Upstream Error</h1>
<p>{{.Message}}</p>
<p>Request ID: {{.RequestID}}</p>
</body></html>`),
	},
	PaletteDemo: {
		title: "Palette Test",
		body: mustParse(`<html><head><title>Palette Test</title></head><body>
<h1 align="center">Palette Test</h1>
{{range .Swatches}}<font color="{{.}}">&#9608;&#9608;</font>{{end}}
</body></html>`),
	},
}

// Data carries the values a built-in page's template may reference.
type Data struct {
	RequestID string
	Message   string
	Swatches  []string
}

func mustParse(body string) *template.Template {
	return template.Must(template.New("page").Parse(body))
}

// Render produces the full HTML for kind, substituting data into its
// template. An unknown kind renders the generic server-error body.
func Render(kind Kind, data Data) string {
	p, ok := pages[kind]
	if !ok {
		p = pages[ServerError]
	}
	var buf bytes.Buffer
	if err := p.body.Execute(&buf, data); err != nil {
		return fmt.Sprintf("<html><body><h1>%s</h1></body></html>", p.title)
	}
	return buf.String()
}
