// Package telegram is a minimal Telegram Bot API client used for operator
// notifications.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.telegram.org"

// Client posts messages to one chat. A nil *Client is valid and drops every
// message, so callers never need to branch on whether notifications are
// configured.
type Client struct {
	baseURL string
	token   string
	chatID  string
	http    *http.Client
}

// New creates a Telegram client. Returns nil when token or chat id is empty.
func New(token, chatID string) *Client {
	if token == "" || chatID == "" {
		return nil
	}
	return &Client{
		baseURL: defaultBaseURL,
		token:   token,
		chatID:  chatID,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// NewWithBaseURL is New with an overridable API host, for tests.
func NewWithBaseURL(token, chatID, baseURL string) *Client {
	c := New(token, chatID)
	if c != nil && baseURL != "" {
		c.baseURL = baseURL
	}
	return c
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

// SendMessage delivers one MarkdownV2 message to the configured chat.
func (c *Client) SendMessage(ctx context.Context, text string) error {
	if c == nil {
		return nil
	}

	body, err := json.Marshal(sendMessageRequest{
		ChatID:    c.chatID,
		Text:      text,
		ParseMode: "MarkdownV2",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal telegram message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	var parsed apiResponse
	_ = json.Unmarshal(raw, &parsed)
	if resp.StatusCode >= 300 || !parsed.OK {
		return fmt.Errorf("telegram API returned %d: %s", resp.StatusCode, parsed.Description)
	}
	return nil
}

// Notify formats a titled notification and sends it. Field order follows the
// order given.
func (c *Client) Notify(ctx context.Context, title string, fields ...[2]string) error {
	if c == nil {
		return nil
	}

	var b strings.Builder
	b.WriteString("*" + EscapeMarkdown(title) + "*")
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		b.WriteString("\n" + EscapeMarkdown(f[0]) + ": " + EscapeMarkdown(f[1]))
	}
	return c.SendMessage(ctx, b.String())
}

var markdownEscaper = strings.NewReplacer(
	"_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]", "(", "\\(", ")", "\\)",
	"~", "\\~", "`", "\\`", ">", "\\>", "#", "\\#", "+", "\\+", "-", "\\-",
	"=", "\\=", "|", "\\|", "{", "\\{", "}", "\\}", ".", "\\.", "!", "\\!",
)

// EscapeMarkdown escapes the characters MarkdownV2 reserves.
func EscapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
