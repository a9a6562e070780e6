package templates

import (
	"bytes"
	"io/fs"
	"strings"
	"testing"
	"time"
)

func TestRenderIndexCacheBuster(t *testing.T) {
	data := NewPageData("", 150*time.Millisecond)

	if len(data.CacheBuster) != len(CacheBusterLayout) {
		t.Errorf("Unexpected cache buster %q", data.CacheBuster)
	}
	if _, err := time.Parse(CacheBusterLayout, data.CacheBuster); err != nil {
		t.Errorf("Cache buster should parse as a timestamp: %v", err)
	}

	var buf bytes.Buffer
	if err := RenderIndex(&buf, data); err != nil {
		t.Fatalf("RenderIndex failed: %v", err)
	}
	html := buf.String()

	if !strings.Contains(html, "/static/app.js?v="+data.CacheBuster) {
		t.Error("Script URL should carry the cache buster")
	}
	if !strings.Contains(html, "<title>Setlist</title>") {
		t.Error("Empty title should default to Setlist")
	}
	if !strings.Contains(html, "150ms") {
		t.Error("Poll interval should be rendered")
	}
}

func TestRenderIndexEscapesTitle(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderIndex(&buf, NewPageData("<b>Show</b>", time.Second)); err != nil {
		t.Fatalf("RenderIndex failed: %v", err)
	}
	if strings.Contains(buf.String(), "<b>Show</b>") {
		t.Error("Title should be HTML escaped")
	}
}

func TestStaticAssets(t *testing.T) {
	for _, name := range []string{"app.js", "app.css"} {
		data, err := fs.ReadFile(Static(), name)
		if err != nil {
			t.Fatalf("Missing static asset %s: %v", name, err)
		}
		if len(data) == 0 {
			t.Errorf("Static asset %s is empty", name)
		}
	}

	js, _ := fs.ReadFile(Static(), "app.js")
	for _, route := range []string{"/get_cue_points", "/play_song", "/monitor_playhead", "/stop_song"} {
		if !bytes.Contains(js, []byte(route)) {
			t.Errorf("app.js should call %s", route)
		}
	}
}
