// ABOUTME: HTTP client for the upstream messaging provider
// ABOUTME: Delivers operator replies to end users through the provider's send API

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Client talks to the messaging provider's HTTP API. All requests carry the
// service secret; the provider is trusted infrastructure, not a user-facing
// surface.
type Client struct {
	baseURL     string
	adminUserID string
	secret      string
	httpClient  *http.Client
	logger      *slog.Logger
}

// Config holds the provider connection settings.
type Config struct {
	BaseURL     string
	AdminUserID string
	Secret      string
	Timeout     time.Duration
}

// New creates a provider client. Pass nil logger for default.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:     cfg.BaseURL,
		adminUserID: cfg.AdminUserID,
		secret:      cfg.Secret,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger.With("component", "provider"),
	}
}

// sendRequest is the provider's message payload.
type sendRequest struct {
	FromUserID  string `json:"from_user_id"`
	ToUserID    string `json:"to_user_id"`
	Content     string `json:"content"`
	ContentType int    `json:"content_type"`
}

type sendResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SendMessage delivers content to the user as the support account. A non-2xx
// HTTP status or a non-zero provider code is a delivery failure.
func (c *Client) SendMessage(ctx context.Context, userID, content string, contentType int) error {
	body, err := json.Marshal(sendRequest{
		FromUserID:  c.adminUserID,
		ToUserID:    userID,
		Content:     content,
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("encoding send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/messages/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("provider returned %d: %s", resp.StatusCode, snippet)
	}

	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decoding provider response: %w", err)
	}
	if out.Code != 0 {
		return fmt.Errorf("provider rejected send: code=%d %s", out.Code, out.Message)
	}

	c.logger.Debug("message delivered",
		"to_user_id", userID,
		"content_type", contentType)
	return nil
}
