package collab

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/harunnryd/warden/internal/auth"
)

const snippetLimit = 100

type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url,omitempty"`
	Snippet string `json:"snippet"`
}

type Searcher interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

type executeRequest struct {
	Tool      string         `json:"tool"`
	Params    map[string]any `json:"params"`
	SessionID string         `json:"session_id"`
}

// SearchClient runs web searches through the vault's tool endpoint.
type SearchClient struct {
	client     *auth.Client
	maxResults int
}

func NewSearchClient(client *auth.Client, maxResults int) *SearchClient {
	if maxResults <= 0 {
		maxResults = 3
	}
	return &SearchClient{client: client, maxResults: maxResults}
}

func (s *SearchClient) Search(ctx context.Context, query string) ([]SearchResult, error) {
	req := executeRequest{
		Tool: "web_search",
		Params: map[string]any{
			"query":       query,
			"max_results": s.maxResults,
		},
		SessionID: "gateway",
	}
	var out struct {
		Results  []SearchResult `json:"results"`
		Provider string         `json:"provider"`
	}
	if err := s.client.Do(ctx, http.MethodPost, "/execute", req, &out); err != nil {
		return nil, err
	}
	slog.Debug("Search completed", "provider", out.Provider, "results", len(out.Results))
	if len(out.Results) > s.maxResults {
		out.Results = out.Results[:s.maxResults]
	}
	return out.Results, nil
}

// SearchPrompt packs results and the question into a compact prompt for
// local summarisation. With no results the query is returned unchanged.
func SearchPrompt(query string, results []SearchResult) string {
	if len(results) == 0 {
		return query
	}
	var b strings.Builder
	b.WriteString("Search results:\n")
	for i, r := range results {
		title := r.Title
		if title == "" {
			title = "No title"
		}
		snippet := r.Snippet
		if snippet == "" {
			snippet = "No snippet"
		}
		if len(snippet) > snippetLimit {
			snippet = snippet[:snippetLimit] + "..."
		}
		fmt.Fprintf(&b, "[%d] %s\n    %s\n", i+1, title, snippet)
	}
	fmt.Fprintf(&b, "\nQuestion: %s\n", query)
	return b.String()
}
