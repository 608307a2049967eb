package tools

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"concord/pkg/api"

	"github.com/PuerkitoBio/goquery"
	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultSearchURL is the no-JS DuckDuckGo endpoint. It needs no API key,
// matching the keyless search path of the original deployment.
const defaultSearchURL = "https://html.duckduckgo.com/html/"

const maxSearchResults = 10

// SearchResult is a single web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Source  string `json:"source"`
}

// WebSearch performs web lookups for the research agent. Repeated queries
// are answered from a small LRU cache instead of re-hitting the network.
type WebSearch struct {
	client     *http.Client
	endpoint   string
	maxResults int
	cache      *lru.Cache[string, []SearchResult]
}

// NewWebSearch creates the search tool. maxResults is the default result
// count, cacheSize bounds the query cache; both fall back to sane values
// when non-positive.
func NewWebSearch(maxResults, cacheSize int) *WebSearch {
	if maxResults <= 0 || maxResults > maxSearchResults {
		maxResults = 8
	}
	if cacheSize <= 0 {
		cacheSize = 128
	}
	cache, _ := lru.New[string, []SearchResult](cacheSize)

	return &WebSearch{
		client:     &http.Client{Timeout: 30 * time.Second},
		endpoint:   defaultSearchURL,
		maxResults: maxResults,
		cache:      cache,
	}
}

// Name implements api.Tool.
func (t *WebSearch) Name() string {
	return "web_search"
}

// Description implements api.Tool.
func (t *WebSearch) Description() string {
	return "Search the web via DuckDuckGo and return titles, URLs and snippets"
}

// Execute implements api.Tool. Arguments: query (string, required),
// max_results (number, optional, clamped to 1..10).
func (t *WebSearch) Execute(ctx context.Context, args map[string]any) (*api.ToolResult, error) {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("missing query")
	}

	maxResults := t.maxResults
	if mr, ok := args["max_results"].(float64); ok {
		maxResults = int(mr)
		if maxResults < 1 {
			maxResults = 1
		}
		if maxResults > maxSearchResults {
			maxResults = maxSearchResults
		}
	}

	results, err := t.Search(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}

	return &api.ToolResult{
		Content: FormatSearchResults(query, results),
		Details: map[string]any{
			"query":        query,
			"result_count": len(results),
		},
	}, nil
}

// Search runs the query and returns structured results.
func (t *WebSearch) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	cacheKey := fmt.Sprintf("%s|%d", query, maxResults)
	if cached, ok := t.cache.Get(cacheKey); ok {
		slog.Debug("Search cache hit", "query", query)
		return cached, nil
	}

	form := url.Values{}
	form.Set("q", query)
	form.Set("kl", "us-en")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; concord/1.0)")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	results, err := parseResults(resp.Body, maxResults)
	if err != nil {
		return nil, err
	}

	slog.Info("Web search completed", "query", query, "results", len(results))
	t.cache.Add(cacheKey, results)
	return results, nil
}

// parseResults extracts result entries from the DuckDuckGo HTML response.
func parseResults(body io.Reader, maxResults int) ([]SearchResult, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	results := make([]SearchResult, 0, maxResults)
	doc.Find("div.result").EachWithBreak(func(i int, s *goquery.Selection) bool {
		link := s.Find("a.result__a").First()
		title := strings.TrimSpace(link.Text())
		href, _ := link.Attr("href")
		snippet := strings.TrimSpace(s.Find(".result__snippet").First().Text())

		if title == "" || href == "" {
			return true
		}

		results = append(results, SearchResult{
			Title:   title,
			URL:     resolveRedirect(href),
			Snippet: snippet,
			Source:  "DuckDuckGo",
		})
		return len(results) < maxResults
	})

	return results, nil
}

// resolveRedirect unwraps DuckDuckGo's /l/?uddg=<target> redirect links.
func resolveRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "" {
		return "https:" + href
	}
	return href
}

// FormatSearchResults renders results as a numbered block suitable for
// prompt injection.
func FormatSearchResults(query string, results []SearchResult) string {
	if len(results) == 0 {
		return fmt.Sprintf("No search results found for: %s", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Search results for %q:\n\n", query)
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, r.Title)
		fmt.Fprintf(&sb, "   URL: %s\n", r.URL)
		if r.Snippet != "" {
			fmt.Fprintf(&sb, "   %s\n", r.Snippet)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
