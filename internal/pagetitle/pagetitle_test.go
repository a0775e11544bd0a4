package pagetitle

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lotas/tabgroupsync/internal/types"
)

const articleHTML = `<!DOCTYPE html>
<html><head><title>Test Article</title></head>
<body>
<article>
<h1>Test Article</h1>
<p>This is the main content of the article. It has enough text to be considered readable content by the readability algorithm. The quick brown fox jumps over the lazy dog. This paragraph needs to be long enough for readability to pick it up as meaningful content.</p>
<p>Second paragraph with more meaningful content that helps the readability parser understand this is a real article and not just navigation or boilerplate. We need several sentences here to make this work properly.</p>
</article>
</body></html>`

func articleServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(articleHTML))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTitle(t *testing.T) {
	srv := articleServer(t)
	title, err := New().Title(t.Context(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if title != "Test Article" {
		t.Errorf("title = %q, want %q", title, "Test Article")
	}
}

func TestTitleSkipsNonHTTP(t *testing.T) {
	urls := []string{
		"about:newtab",
		"moz-extension://abc/page",
		"chrome-extension://abc/page",
		"file:///home/user/doc.html",
		"chrome://settings",
		"data:text/html,hello",
	}
	r := New()
	for _, u := range urls {
		if _, err := r.Title(t.Context(), u); err == nil {
			t.Errorf("expected error for %q, got nil", u)
		}
	}
}

func TestTitleSendsUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html><html><head><title>T</title></head><body><p>text</p></body></html>`))
	}))
	defer srv.Close()

	New().Title(t.Context(), srv.URL)
	if gotUA == "" || gotUA == "Go-http-client/1.1" {
		t.Errorf("expected browser-like User-Agent, got %q", gotUA)
	}
}

func TestTitleHTTPError(t *testing.T) {
	srv := articleServer(t)
	if _, err := New().Title(t.Context(), srv.URL+"/missing"); err == nil {
		t.Error("expected error for 404 response")
	}
}

func TestFillTitles(t *testing.T) {
	srv := articleServer(t)
	groups := []types.SavedTabGroup{
		types.NewSavedTabGroup("Reading", types.ColorBlue, []types.SavedTabGroupTab{
			types.NewSavedTabGroupTab(srv.URL+"/a", ""),
			types.NewSavedTabGroupTab(srv.URL+"/b", "Kept"),
			types.NewSavedTabGroupTab(srv.URL+"/missing", ""),
		}),
	}

	found := New().FillTitles(t.Context(), groups)
	if found != 1 {
		t.Errorf("found = %d, want 1", found)
	}
	tabs := groups[0].Tabs
	if tabs[0].Title != "Test Article" {
		t.Errorf("tab 0 title = %q", tabs[0].Title)
	}
	if tabs[1].Title != "Kept" {
		t.Errorf("existing title overwritten: %q", tabs[1].Title)
	}
	if tabs[2].Title != srv.URL+"/missing" {
		t.Errorf("unreachable tab should fall back to its URL, got %q", tabs[2].Title)
	}
}
