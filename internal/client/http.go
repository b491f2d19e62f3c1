package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"lichka/internal/models"
)

// HTTPClient talks to the request API with a session token.
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewHTTPClient(baseURL, token string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

// Send creates a message. It satisfies Sender.
func (c *HTTPClient) Send(ctx context.Context, receiverID, content string) (models.Message, error) {
	var msg models.Message
	err := c.do(ctx, http.MethodPost, "/api/conversations/"+url.PathEscape(receiverID)+"/messages",
		map[string]string{"content": content}, &msg)
	return msg, err
}

func (c *HTTPClient) Conversation(ctx context.Context, peerID string) ([]models.Message, error) {
	var msgs []models.Message
	err := c.do(ctx, http.MethodGet, "/api/conversations/"+url.PathEscape(peerID), nil, &msgs)
	return msgs, err
}

func (c *HTTPClient) Me(ctx context.Context) (models.User, error) {
	var user models.User
	err := c.do(ctx, http.MethodGet, "/api/me", nil, &user)
	return user, err
}

func (c *HTTPClient) MarkRead(ctx context.Context, peerID string) error {
	return c.do(ctx, http.MethodPost, "/api/conversations/"+url.PathEscape(peerID)+"/read", nil, nil)
}

func (c *HTTPClient) DeleteForEveryone(ctx context.Context, msgID string) (models.Message, error) {
	var msg models.Message
	err := c.do(ctx, http.MethodPost, "/api/messages/"+url.PathEscape(msgID)+"/delete-for-everyone", nil, &msg)
	return msg, err
}

func (c *HTTPClient) Block(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodPost, "/api/users/"+url.PathEscape(userID)+"/block", nil, nil)
}

func (c *HTTPClient) BlockStatus(ctx context.Context, userID string) (models.BlockStatus, error) {
	var status models.BlockStatus
	err := c.do(ctx, http.MethodGet, "/api/users/"+url.PathEscape(userID)+"/block-status", nil, &status)
	return status, err
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		var apiErr models.APIResponse
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return statusError(resp.StatusCode, apiErr.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// statusError maps an API status back to the sentinel it came from.
func statusError(status int, message string) error {
	var sentinel error
	switch status {
	case http.StatusBadRequest:
		sentinel = models.ErrValidation
	case http.StatusNotFound:
		sentinel = models.ErrNotFound
	case http.StatusConflict:
		sentinel = models.ErrConflict
	case http.StatusForbidden:
		sentinel = models.ErrForbidden
	default:
		return fmt.Errorf("unexpected status %d: %s", status, message)
	}
	return fmt.Errorf("%w: %s", sentinel, message)
}
