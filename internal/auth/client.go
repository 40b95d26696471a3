package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	wardenErrors "github.com/harunnryd/warden/internal/errors"
)

const maxResponseBytes = 4 << 20

// Client sends JSON requests to one base URL, signed for service calls or
// carrying the operator key for operator routes.
type Client struct {
	baseURL string
	signer  *Signer
	apiKey  string
	http    *http.Client
	mapper  wardenErrors.ErrorMapper
}

func NewClient(baseURL string, signer *Signer, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		signer:  signer,
		http:    &http.Client{Timeout: timeout},
		mapper:  wardenErrors.NewDefaultErrorMapper(),
	}
}

// NewOperatorClient authenticates with the operator API key instead of a
// signature.
func NewOperatorClient(baseURL, apiKey string, timeout time.Duration) *Client {
	c := NewClient(baseURL, nil, timeout)
	c.apiKey = apiKey
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do signs and sends a request. pathAndQuery is signed exactly as given, so
// the query must already be encoded. in is marshalled as the JSON body when
// non-nil; out receives the decoded response when non-nil.
func (c *Client) Do(ctx context.Context, method, pathAndQuery string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+pathAndQuery, bytes.NewReader(body))
	if err != nil {
		return wardenErrors.InvalidInput(err.Error())
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.signer != nil {
		c.signer.Sign(method, req.URL.RequestURI(), body).Apply(req.Header)
	}
	if c.apiKey != "" {
		req.Header.Set(HeaderAPIKey, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return c.mapper.MapError(fmt.Errorf("%s %s: %w", method, pathAndQuery, err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return wardenErrors.Unavailable(fmt.Sprintf("read response: %v", err))
	}

	if resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return wardenErrors.Unavailable(fmt.Sprintf("decode response from %s: %v", pathAndQuery, err))
	}
	return nil
}

func statusError(status int, body []byte) error {
	var payload struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &payload)
	detail := payload.Error
	if detail == "" {
		detail = http.StatusText(status)
	}

	var sentinel error
	switch status {
	case http.StatusUnauthorized:
		switch detail {
		case "expired":
			sentinel = wardenErrors.ErrExpired
		case "replayed":
			sentinel = wardenErrors.ErrReplayed
		default:
			sentinel = wardenErrors.ErrUnauthenticated
		}
	case http.StatusForbidden:
		sentinel = wardenErrors.ErrForbidden
	case http.StatusNotFound:
		sentinel = wardenErrors.ErrApprovalNotFound
	case http.StatusConflict:
		sentinel = wardenErrors.ErrAlreadyResolved
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		sentinel = wardenErrors.ErrInvalidInput
	case http.StatusTooManyRequests:
		sentinel = wardenErrors.ErrRateLimited
	case http.StatusRequestTimeout:
		sentinel = wardenErrors.ErrApprovalTimeout
	default:
		sentinel = wardenErrors.ErrCollaboratorUnavailable
	}
	return fmt.Errorf("status %d: %s: %w", status, detail, sentinel)
}
