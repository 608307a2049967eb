package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const ddgHTML = `
<html><body>
  <div class="result">
    <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc%2F">Go Documentation</a>
    <div class="result__snippet">The official Go documentation.</div>
  </div>
  <div class="result">
    <a class="result__a" href="https://pkg.go.dev/">Go Packages</a>
    <div class="result__snippet">Discover Go packages.</div>
  </div>
  <div class="result">
    <a class="result__a" href="">Broken entry</a>
  </div>
  <div class="result">
    <a class="result__a" href="//example.com/page">Scheme-less</a>
    <div class="result__snippet">Relative protocol link.</div>
  </div>
</body></html>`

func TestParseResults(t *testing.T) {
	results, err := parseResults(strings.NewReader(ddgHTML), 10)
	require.NoError(t, err)
	require.Len(t, results, 3) // 無效的項目被略過

	require.Equal(t, "Go Documentation", results[0].Title)
	require.Equal(t, "https://go.dev/doc/", results[0].URL)
	require.Equal(t, "The official Go documentation.", results[0].Snippet)
	require.Equal(t, "DuckDuckGo", results[0].Source)

	require.Equal(t, "https://pkg.go.dev/", results[1].URL)
	require.Equal(t, "https://example.com/page", results[2].URL)
}

func TestParseResultsRespectsLimit(t *testing.T) {
	results, err := parseResults(strings.NewReader(ddgHTML), 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestResolveRedirect(t *testing.T) {
	require.Equal(t, "https://go.dev/",
		resolveRedirect("//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2F"))
	require.Equal(t, "https://pkg.go.dev/", resolveRedirect("https://pkg.go.dev/"))
	require.Equal(t, "https://example.com/x", resolveRedirect("//example.com/x"))
}

func TestWebSearchExecuteAndCache(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "golang", r.FormValue("q"))
		w.Write([]byte(ddgHTML))
	}))
	defer srv.Close()

	ws := NewWebSearch(5, 16)
	ws.endpoint = srv.URL

	res, err := ws.Execute(context.Background(), map[string]any{"query": "golang"})
	require.NoError(t, err)
	require.Contains(t, res.Content, "Go Documentation")
	require.Contains(t, res.Content, "https://go.dev/doc/")
	require.Equal(t, 3, res.Details["result_count"])

	// 第二次相同查詢走快取
	_, err = ws.Execute(context.Background(), map[string]any{"query": "golang"})
	require.NoError(t, err)
	require.Equal(t, 1, hits)
}

func TestWebSearchExecuteRequiresQuery(t *testing.T) {
	ws := NewWebSearch(5, 16)
	_, err := ws.Execute(context.Background(), map[string]any{})
	require.Error(t, err)

	_, err = ws.Execute(context.Background(), map[string]any{"query": "   "})
	require.Error(t, err)
}

func TestWebSearchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ws := NewWebSearch(5, 16)
	ws.endpoint = srv.URL

	_, err := ws.Search(context.Background(), "golang", 5)
	require.ErrorContains(t, err, "503")
}

func TestFormatSearchResults(t *testing.T) {
	out := FormatSearchResults("golang", []SearchResult{
		{Title: "Go", URL: "https://go.dev", Snippet: "The Go language"},
	})
	require.Contains(t, out, `Search results for "golang":`)
	require.Contains(t, out, "1. Go")
	require.Contains(t, out, "URL: https://go.dev")

	empty := FormatSearchResults("nothing", nil)
	require.Equal(t, "No search results found for: nothing", empty)
}
