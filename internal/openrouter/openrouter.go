// Package openrouter locates the OpenRouter catalog and per-model endpoint
// documents and fetches them through a JSON fetcher.
package openrouter

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
)

const (
	// DefaultBaseURL is the public OpenRouter API root.
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	// Source tags every artifact produced from this API.
	Source = "openrouter-provider-endpoints"
)

// Fetcher retrieves one JSON document.
type Fetcher interface {
	GetJSON(ctx context.Context, url string) (json.RawMessage, error)
}

// Client reads the model catalog and per-model endpoint lists.
type Client struct {
	baseURL string
	fetcher Fetcher
}

// New creates a client rooted at baseURL. An empty baseURL uses DefaultBaseURL.
func New(baseURL string, f Fetcher) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), fetcher: f}
}

// ModelsURL is the catalog endpoint: {data: [...]}.
func (c *Client) ModelsURL() string {
	return c.baseURL + "/models"
}

// EndpointsURL is the per-model endpoint list: {data: {id, endpoints: [...]}}.
// Model ids contain a vendor prefix ("mistralai/mistral-large"); the slash is
// kept as a path separator and each segment is escaped.
func (c *Client) EndpointsURL(modelID string) string {
	segments := strings.Split(modelID, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return c.baseURL + "/models/" + strings.Join(segments, "/") + "/endpoints"
}

// Models fetches the raw catalog document.
func (c *Client) Models(ctx context.Context) (json.RawMessage, error) {
	return c.fetcher.GetJSON(ctx, c.ModelsURL())
}

// Endpoints fetches the raw endpoint document for one model.
func (c *Client) Endpoints(ctx context.Context, modelID string) (json.RawMessage, error) {
	return c.fetcher.GetJSON(ctx, c.EndpointsURL(modelID))
}
