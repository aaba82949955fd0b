// internal/api/client.go
// REST client for the avatar backend: message send and exchange-rate
// endpoints. The backend owns the endpoints; this package only speaks their
// request/response contracts.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"avatar/internal/chat"
	"avatar/internal/logger"
)

// APIError is a logical failure reported by the backend (quota exceeded,
// provider misconfigured). It is user-relevant and rendered inline.
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// ChatRequest is the message-send payload.
type ChatRequest struct {
	Content       string         `json:"content"`
	Role          string         `json:"role"`
	Provider      string         `json:"provider,omitempty"`
	Model         string         `json:"model,omitempty"`
	ChatMode      string         `json:"chatMode"`
	GroupSettings *GroupSettings `json:"groupSettings,omitempty"`
}

// GroupSettings selects the providers participating in a group turn.
type GroupSettings struct {
	SelectedProviders []SelectedProvider `json:"selectedProviders"`
	ReplyStrategy     string             `json:"replyStrategy"`
	SystemPrompt      string             `json:"systemPrompt,omitempty"`
}

type SelectedProvider struct {
	Provider string `json:"provider"`
	ModelID  string `json:"model_id,omitempty"`
}

// ChatResult is the decoded response for one turn: either a single-provider
// reply or a set of group responses.
type ChatResult struct {
	Group     bool
	Content   string
	Provider  string
	Model     string
	Responses []chat.ProviderResponse
}

type rateResponse struct {
	Success      bool    `json:"success"`
	Rate         float64 `json:"rate"`
	CurrencyPair string  `json:"currency_pair"`
	Timestamp    float64 `json:"timestamp"`
	Error        string  `json:"error,omitempty"`
	Message      string  `json:"message,omitempty"`
}

// Client talks to the avatar backend over REST.
type Client struct {
	baseURL string
	http    *retryingClient
	log     *logrus.Entry
	now     func() time.Time
}

func NewClient(baseURL string) *Client {
	return NewClientWithPolicy(baseURL, DefaultRetryPolicy())
}

func NewClientWithPolicy(baseURL string, policy RetryPolicy) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    newRetryingClient(policy),
		log:     logger.WithComponent("api"),
		now:     time.Now,
	}
}

// SendMessage posts one user turn and decodes whichever response shape the
// backend chose: an error payload, a group payload, or a single reply.
// Logical backend failures come back as *APIError.
func (c *Client) SendMessage(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := newJSONRequest(ctx, http.MethodPost, c.baseURL+"/chat", body)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.do(ctx, httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding chat response: %w", err)
	}

	if msg := errorMessage(raw); msg != "" {
		c.log.WithField("error", msg).Warn("backend reported an application error")
		return nil, &APIError{Message: msg}
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("chat request failed: HTTP %d", resp.StatusCode)
	}

	return c.decodeResult(raw), nil
}

func (c *Client) decodeResult(raw map[string]any) *ChatResult {
	if isGroupPayload(raw) {
		list, _ := raw["responses"].([]any)
		result := &ChatResult{Group: true}
		for _, item := range list {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			result.Responses = append(result.Responses, chat.Normalize(entry, c.now()))
		}
		return result
	}

	single := chat.Normalize(raw, c.now())
	return &ChatResult{
		Content:  single.Content,
		Provider: single.Provider,
		Model:    single.Model,
	}
}

func isGroupPayload(raw map[string]any) bool {
	if v, ok := raw["group_chat"].(bool); ok && v {
		return true
	}
	_, ok := raw["responses"].([]any)
	return ok
}

// errorMessage extracts an application error from a payload; the backend
// uses either "error" or "detail".
func errorMessage(raw map[string]any) string {
	if s, ok := raw["error"].(string); ok && s != "" {
		return s
	}
	if s, ok := raw["detail"].(string); ok && s != "" {
		return s
	}
	return ""
}

// FetchRate fetches the live USD→CNY rate.
func (c *Client) FetchRate(ctx context.Context) (float64, error) {
	return c.fetchRate(ctx, "/exchange-rate")
}

// FetchCachedRate fetches the backend's cached rate, the fallback when the
// live fetch fails.
func (c *Client) FetchCachedRate(ctx context.Context) (float64, error) {
	return c.fetchRate(ctx, "/exchange-rate/current")
}

func (c *Client) fetchRate(ctx context.Context, path string) (float64, error) {
	req, err := newJSONRequest(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.http.do(ctx, req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("exchange-rate request failed: HTTP %d", resp.StatusCode)
	}

	var rr rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return 0, fmt.Errorf("decoding exchange-rate response: %w", err)
	}
	if rr.Rate <= 0 {
		return 0, fmt.Errorf("backend returned invalid rate %v", rr.Rate)
	}
	if !rr.Success && rr.Message != "" {
		c.log.WithField("message", rr.Message).Warn("exchange-rate endpoint warning")
	}
	return rr.Rate, nil
}
