// Package notion is a minimal Notion REST client covering the database query
// and page update surface the CMS sync jobs need.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultBaseURL = "https://api.notion.com"
	apiVersion     = "2022-06-28"
)

// Client talks to the Notion API. Unlike the notification clients a nil
// check is not offered here: CMS sync is a hard dependency of its jobs, and
// errors must propagate so the queue retries.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a Notion client. The token must be set.
func New(token string) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("notion token is required")
	}
	return &Client{
		baseURL: defaultBaseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// NewWithBaseURL is New with an overridable API host, for tests.
func NewWithBaseURL(token, baseURL string) (*Client, error) {
	c, err := New(token)
	if err != nil {
		return nil, err
	}
	if baseURL != "" {
		c.baseURL = baseURL
	}
	return c, nil
}

// Page is one database row. Properties stay raw; use the extraction helpers.
type Page struct {
	ID             string                     `json:"id"`
	LastEditedTime time.Time                  `json:"last_edited_time"`
	Properties     map[string]json.RawMessage `json:"properties"`
}

type queryRequest struct {
	Filter      json.RawMessage `json:"filter,omitempty"`
	StartCursor string          `json:"start_cursor,omitempty"`
	PageSize    int             `json:"page_size,omitempty"`
}

type queryResponse struct {
	Results    []Page `json:"results"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor"`
}

// QueryDatabase returns every page of a database matching the optional raw
// filter, following pagination cursors.
func (c *Client) QueryDatabase(ctx context.Context, databaseID string, filter json.RawMessage, pageSize int) ([]Page, error) {
	var pages []Page
	cursor := ""
	for {
		req := queryRequest{Filter: filter, StartCursor: cursor, PageSize: pageSize}
		var resp queryResponse
		path := fmt.Sprintf("/v1/databases/%s/query", databaseID)
		if err := c.do(ctx, http.MethodPost, path, req, &resp); err != nil {
			return nil, fmt.Errorf("failed to query database %s: %w", databaseID, err)
		}
		pages = append(pages, resp.Results...)
		if !resp.HasMore || resp.NextCursor == "" {
			break
		}
		cursor = resp.NextCursor
	}
	return pages, nil
}

// GetPage fetches a single page by id.
func (c *Client) GetPage(ctx context.Context, pageID string) (*Page, error) {
	var p Page
	if err := c.do(ctx, http.MethodGet, "/v1/pages/"+pageID, nil, &p); err != nil {
		return nil, fmt.Errorf("failed to get page %s: %w", pageID, err)
	}
	return &p, nil
}

// UpdatePageProperties patches the given properties on a page.
func (c *Client) UpdatePageProperties(ctx context.Context, pageID string, properties map[string]interface{}) error {
	body := map[string]interface{}{"properties": properties}
	if err := c.do(ctx, http.MethodPatch, "/v1/pages/"+pageID, body, nil); err != nil {
		return fmt.Errorf("failed to update page %s: %w", pageID, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", apiVersion)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("notion API returned %d: %s", resp.StatusCode, string(raw))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// Property extraction helpers. Notion encodes every property as a tagged
// object; these unwrap the common shapes and return "" / nil when the
// property is absent or differently typed.

type richText struct {
	PlainText string `json:"plain_text"`
}

// PlainText extracts a title or rich_text property as a concatenated string.
func (p *Page) PlainText(property string) string {
	raw, ok := p.Properties[property]
	if !ok {
		return ""
	}
	var wrapper struct {
		Title    []richText `json:"title"`
		RichText []richText `json:"rich_text"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return ""
	}
	parts := wrapper.Title
	if len(parts) == 0 {
		parts = wrapper.RichText
	}
	out := ""
	for _, part := range parts {
		out += part.PlainText
	}
	return out
}

// MultiSelect extracts a multi_select property as its option names.
func (p *Page) MultiSelect(property string) []string {
	raw, ok := p.Properties[property]
	if !ok {
		return nil
	}
	var wrapper struct {
		MultiSelect []struct {
			Name string `json:"name"`
		} `json:"multi_select"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil
	}
	names := make([]string, 0, len(wrapper.MultiSelect))
	for _, opt := range wrapper.MultiSelect {
		names = append(names, opt.Name)
	}
	return names
}

// Checkbox extracts a checkbox property.
func (p *Page) Checkbox(property string) bool {
	raw, ok := p.Properties[property]
	if !ok {
		return false
	}
	var wrapper struct {
		Checkbox bool `json:"checkbox"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return false
	}
	return wrapper.Checkbox
}
