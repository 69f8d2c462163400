// Package email sends notification mail through the Postmark HTTP API.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
)

const postmarkURL = "https://api.postmarkapp.com/email"

type Client struct {
	serverToken string
	fromEmail   string
	baseURL     string
	apiURL      string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithAPIURL points the client at another Postmark-compatible endpoint.
func WithAPIURL(u string) Option {
	return func(cl *Client) {
		cl.apiURL = u
	}
}

func NewClient(serverToken, fromEmail, baseURL string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		baseURL:     baseURL,
		apiURL:      postmarkURL,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

// SendVaultAdded tells toEmail that inviter added them to vaultName.
func (c *Client) SendVaultAdded(ctx context.Context, toEmail, inviter, vaultName, role string) error {
	subject := fmt.Sprintf("%s added you to %s", inviter, vaultName)
	text := fmt.Sprintf("%s added you to the family vault %q as %s.\n\nOpen it at %s", inviter, vaultName, role, c.baseURL)
	body := fmt.Sprintf(`<p>%s added you to the family vault <strong>%s</strong> as %s.</p><p><a href="%s">Open Nonna</a></p>`,
		html.EscapeString(inviter), html.EscapeString(vaultName), html.EscapeString(role), c.baseURL)
	return c.send(ctx, toEmail, subject, text, body)
}

// SendMemoryShared tells toEmail that sharer shared a memory with them.
func (c *Client) SendMemoryShared(ctx context.Context, toEmail, sharer, memoryTitle, message string) error {
	subject := fmt.Sprintf("%s shared a memory with you", sharer)
	text := fmt.Sprintf("%s shared %q with you.", sharer, memoryTitle)
	body := fmt.Sprintf(`<p>%s shared <strong>%s</strong> with you.</p>`, html.EscapeString(sharer), html.EscapeString(memoryTitle))
	if message != "" {
		text += "\n\n" + message
		body += "<blockquote>" + html.EscapeString(message) + "</blockquote>"
	}
	text += "\n\nOpen it at " + c.baseURL
	body += fmt.Sprintf(`<p><a href="%s">Open Nonna</a></p>`, c.baseURL)
	return c.send(ctx, toEmail, subject, text, body)
}

func (c *Client) send(ctx context.Context, to, subject, text, htmlBody string) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing server token")
	}

	payload := postmarkEmail{
		From:     c.fromEmail,
		To:       to,
		Subject:  subject,
		HtmlBody: htmlBody,
		TextBody: text,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}
	return nil
}
