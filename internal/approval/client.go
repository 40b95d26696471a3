package approval

import (
	"context"
	"net/http"
	"net/url"

	"github.com/harunnryd/warden/internal/auth"
	wardenErrors "github.com/harunnryd/warden/internal/errors"
)

// RequestResponse is the reply to a filed request.
type RequestResponse struct {
	ID     string `json:"id"`
	Status State  `json:"status"`
}

// ResolveRequest is the operator's decision body.
type ResolveRequest struct {
	Decision Decision `json:"decision"`
}

// Client is the agent side of the approval API. Every call is signed.
type Client struct {
	http *auth.Client
}

func NewClient(client *auth.Client) *Client {
	return &Client{http: client}
}

func (c *Client) Request(ctx context.Context, payload Payload) (string, error) {
	var resp RequestResponse
	if err := c.http.Do(ctx, http.MethodPost, "/approvals/request", payload, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", wardenErrors.Unavailable("approval server returned no id")
	}
	return resp.ID, nil
}

func (c *Client) Status(ctx context.Context, id string) (Item, error) {
	var item Item
	if err := c.http.Do(ctx, http.MethodGet, "/approvals/status/"+url.PathEscape(id), nil, &item); err != nil {
		return Item{}, err
	}
	return item, nil
}

// OperatorClient drives the operator routes with the operator API key.
type OperatorClient struct {
	http *auth.Client
}

func NewOperatorClient(client *auth.Client) *OperatorClient {
	return &OperatorClient{http: client}
}

func (c *OperatorClient) Pending(ctx context.Context) ([]Item, error) {
	var items []Item
	if err := c.http.Do(ctx, http.MethodGet, "/approvals/pending", nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *OperatorClient) Resolve(ctx context.Context, id string, decision Decision) (Item, error) {
	var item Item
	if err := c.http.Do(ctx, http.MethodPost, "/approvals/resolve/"+url.PathEscape(id), ResolveRequest{Decision: decision}, &item); err != nil {
		return Item{}, err
	}
	return item, nil
}
