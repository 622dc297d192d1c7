// Package resend is a minimal Resend REST client covering transactional email
// and audience contact management.
package resend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultBaseURL = "https://api.resend.com"

// Client talks to the Resend API. A nil *Client is valid and drops every
// call, mirroring the unconfigured-notifications contract of the telegram
// client.
type Client struct {
	baseURL    string
	apiKey     string
	audienceID string
	http       *http.Client
}

// New creates a Resend client. Returns nil when the API key is empty. The
// audience id may be empty; audience sync calls then no-op.
func New(apiKey, audienceID string) *Client {
	if apiKey == "" {
		return nil
	}
	return &Client{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		audienceID: audienceID,
		http:       &http.Client{Timeout: 15 * time.Second},
	}
}

// NewWithBaseURL is New with an overridable API host, for tests.
func NewWithBaseURL(apiKey, audienceID, baseURL string) *Client {
	c := New(apiKey, audienceID)
	if c != nil && baseURL != "" {
		c.baseURL = baseURL
	}
	return c
}

// SendEmailParams describes one transactional email.
type SendEmailParams struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

type sendEmailResponse struct {
	ID string `json:"id"`
}

// SendEmail sends one transactional email and returns the provider id.
func (c *Client) SendEmail(ctx context.Context, params SendEmailParams) (string, error) {
	if c == nil {
		return "", nil
	}
	var out sendEmailResponse
	if err := c.do(ctx, http.MethodPost, "/emails", params, &out); err != nil {
		return "", fmt.Errorf("failed to send email: %w", err)
	}
	return out.ID, nil
}

// Contact is one audience member.
type Contact struct {
	Email        string `json:"email"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	Unsubscribed bool   `json:"unsubscribed"`
}

// UpsertContact adds or updates a contact in the configured audience.
func (c *Client) UpsertContact(ctx context.Context, contact Contact) error {
	if c == nil || c.audienceID == "" {
		return nil
	}
	path := fmt.Sprintf("/audiences/%s/contacts", c.audienceID)
	if err := c.do(ctx, http.MethodPost, path, contact, nil); err != nil {
		return fmt.Errorf("failed to upsert contact: %w", err)
	}
	return nil
}

// RemoveContact deletes a contact from the configured audience by email.
func (c *Client) RemoveContact(ctx context.Context, email string) error {
	if c == nil || c.audienceID == "" {
		return nil
	}
	path := fmt.Sprintf("/audiences/%s/contacts/%s", c.audienceID, url.PathEscape(email))
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("failed to remove contact: %w", err)
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
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
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
		return fmt.Errorf("resend API returned %d: %s", resp.StatusCode, string(raw))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
