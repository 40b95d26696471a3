package retrieval

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/harunnryd/warden/internal/auth"
)

// Context is the knowledge handed to the local model alongside a query.
type Context struct {
	Text           string   `json:"context"`
	TokensEstimate int      `json:"tokens_estimate"`
	Sources        []string `json:"sources"`
}

// Empty reports whether there is nothing to ground the answer on.
func (c Context) Empty() bool {
	return c.Text == ""
}

type Retriever interface {
	Retrieve(ctx context.Context, query string, maxTokens int) (Context, error)
}

// EstimateTokens uses the four-characters-per-token rule of thumb.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// truncate keeps the context within maxTokens, marking the cut.
func truncate(text string, maxTokens int) string {
	if maxTokens <= 0 || EstimateTokens(text) <= maxTokens {
		return text
	}
	limit := maxTokens * 4
	if limit > len(text) {
		return text
	}
	return text[:limit] + "..."
}

// HTTPRetriever asks the retrieval collaborator over a signed channel.
type HTTPRetriever struct {
	client *auth.Client
}

func NewHTTPRetriever(client *auth.Client) *HTTPRetriever {
	return &HTTPRetriever{client: client}
}

func (r *HTTPRetriever) Retrieve(ctx context.Context, query string, maxTokens int) (Context, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("max_tokens", strconv.Itoa(maxTokens))

	var out Context
	if err := r.client.Do(ctx, http.MethodGet, "/context?"+params.Encode(), nil, &out); err != nil {
		return Context{}, err
	}
	out.Text = truncate(out.Text, maxTokens)
	if out.TokensEstimate == 0 {
		out.TokensEstimate = EstimateTokens(out.Text)
	}
	return out, nil
}
