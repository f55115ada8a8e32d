package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/profitwave/support-chat-api/models"
)

// RESTClient talks to the chat store endpoints. It is the fallback path when
// the realtime transport is down, and the only path for history reads.
type RESTClient struct {
	// BaseURL is the API root, e.g. https://api.profitwave.io
	BaseURL string
	// Token is the bearer token sent on every request
	Token string
	// Admin routes requests through the /admin/chat endpoints
	Admin bool
	// HTTP is the underlying client; a 10s-timeout default is used when nil
	HTTP *http.Client
}

// NewRESTClient creates a store client for an end user
func NewRESTClient(baseURL, token string) *RESTClient {
	return &RESTClient{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// NewAdminRESTClient creates a store client using the admin endpoints
func NewAdminRESTClient(baseURL, token string) *RESTClient {
	c := NewRESTClient(baseURL, token)
	c.Admin = true
	return c
}

// History fetches the full conversation for one user, oldest first
func (c *RESTClient) History(ctx context.Context, userID string) ([]models.ChatMessage, error) {
	u := fmt.Sprintf("%s%s?userId=%s", c.BaseURL, c.chatPath(), url.QueryEscape(userID))
	var resp models.ChatHistoryResponse
	if err := c.do(ctx, http.MethodGet, u, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// Send persists one message through the store endpoint
func (c *RESTClient) Send(ctx context.Context, userID, message string) (models.ChatMessage, error) {
	var msg models.ChatMessage
	err := c.do(ctx, http.MethodPost, c.BaseURL+c.chatPath(), models.CreateChatMessageRequest{
		UserID:  userID,
		Message: message,
	}, &msg)
	return msg, err
}

// MarkRead flips one message to read
func (c *RESTClient) MarkRead(ctx context.Context, userID, messageID string) error {
	return c.do(ctx, http.MethodPut, c.BaseURL+c.chatPath(), models.MarkChatMessageReadRequest{
		UserID:    userID,
		MessageID: messageID,
	}, nil)
}

// Conversations fetches the admin conversation list, most recent first
func (c *RESTClient) Conversations(ctx context.Context) ([]models.ConversationSummary, error) {
	var resp models.ConversationsResponse
	err := c.do(ctx, http.MethodGet, c.BaseURL+"/api/v1/admin/chat/conversations", nil, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

func (c *RESTClient) chatPath() string {
	if c.Admin {
		return "/api/v1/admin/chat"
	}
	return "/api/v1/chat"
}

func (c *RESTClient) do(ctx context.Context, method, url string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		var apiErr models.ErrorMessageResponse
		if json.Unmarshal(b, &apiErr) == nil && apiErr.Response != "" {
			return fmt.Errorf("chat api returned %d: %s", resp.StatusCode, apiErr.Response)
		}
		return fmt.Errorf("chat api returned %d: %s", resp.StatusCode, string(b))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
