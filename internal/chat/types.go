// internal/chat/types.go
package chat

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author side of a timeline message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Performance holds per-response timing metrics reported by the backend.
type Performance struct {
	FirstTokenTime  float64 `json:"first_token_time,omitempty"`
	ResponseTime    float64 `json:"response_time,omitempty"`
	TokensPerSecond float64 `json:"tokens_per_second,omitempty"`
}

// TokenUsage holds the token and cost breakdown for one response.
// Costs are in the backend's normalized currency.
type TokenUsage struct {
	Input      int     `json:"input,omitempty"`
	Output     int     `json:"output,omitempty"`
	Cache      int     `json:"cache,omitempty"`
	Total      int     `json:"total,omitempty"`
	InputCost  float64 `json:"input_cost,omitempty"`
	OutputCost float64 `json:"output_cost,omitempty"`
	CacheCost  float64 `json:"cache_cost,omitempty"`
	TotalCost  float64 `json:"total_cost,omitempty"`
}

// ProviderResponse is one provider's contribution to a group turn.
// Content grows by append while streaming and is frozen once Complete.
type ProviderResponse struct {
	Provider    string
	Name        string // display name
	Content     string
	Model       string
	Timestamp   time.Time
	Complete    bool
	Performance *Performance
	Tokens      *TokenUsage
}

// Message is one timeline entry: either a plain single-author message or a
// group container holding ProviderResponses, never both.
type Message struct {
	ID          string
	Role        Role
	Content     string
	Provider    string
	Model       string
	Responses   []ProviderResponse
	Performance *Performance
	Tokens      *TokenUsage
	Timestamp   time.Time
	IsError     bool
}

// IsGroup reports whether the message is a group container.
func (m Message) IsGroup() bool {
	return len(m.Responses) > 0 || (m.Role == RoleAssistant && m.Content == "" && m.Responses != nil)
}

// NewMessageID returns an identifier that stays unique under rapid
// concurrent creation.
func NewMessageID() string {
	return uuid.NewString()
}
