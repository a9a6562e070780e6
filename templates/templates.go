// Package templates embeds the setlist page and its static assets.
package templates

import (
	"embed"
	"html/template"
	"io"
	"io/fs"
	"time"
)

// CacheBusterLayout formats the asset version appended to static URLs.
const CacheBusterLayout = "20060102150405"

//go:embed index.html
var indexHTML string

//go:embed static
var staticFiles embed.FS

var indexTemplate = template.Must(template.New("index").Parse(indexHTML))

// PageData is the data rendered into the setlist page
type PageData struct {
	Title       string // Page heading
	CacheBuster string // Asset version, changes on every render
	PollMillis  int64  // Playhead poll interval shown in the footer
}

// NewPageData builds page data stamped with the current time
func NewPageData(title string, poll time.Duration) PageData {
	if title == "" {
		title = "Setlist"
	}
	return PageData{
		Title:       title,
		CacheBuster: time.Now().Format(CacheBusterLayout),
		PollMillis:  poll.Milliseconds(),
	}
}

// RenderIndex writes the setlist page to w
func RenderIndex(w io.Writer, data PageData) error {
	return indexTemplate.Execute(w, data)
}

// Static returns the embedded static assets rooted at the static directory
func Static() fs.FS {
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err) // the directory is embedded at build time
	}
	return sub
}
