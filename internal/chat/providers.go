// internal/chat/providers.go
package chat

import (
	"strings"

	"avatar/internal/config"
)

// ProviderInfo contains display information for a selected provider.
type ProviderInfo struct {
	ID       string // provider key, possibly provider:model_id
	Name     string // display name
	Provider string // bare provider name
	ModelID  string
	Color    string // hex color for UI
}

// Registry holds the providers selected for group chat.
type Registry struct {
	providers map[string]ProviderInfo
	order     []string // preserve order for consistent display
}

// NewRegistry creates a registry from the configured group selection.
func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{
		providers: make(map[string]ProviderInfo),
		order:     []string{},
	}

	for _, gp := range cfg.Group.Providers {
		id := gp.Provider
		if gp.ModelID != "" {
			id = gp.Provider + ":" + gp.ModelID
		}
		if _, exists := r.providers[id]; exists {
			continue
		}
		r.providers[id] = ProviderInfo{
			ID:       id,
			Name:     DisplayName(id, ""),
			Provider: gp.Provider,
			ModelID:  gp.ModelID,
			Color:    ProviderColor(id),
		}
		r.order = append(r.order, id)
	}

	return r
}

// Get returns a provider by ID.
func (r *Registry) Get(id string) (ProviderInfo, bool) {
	p, ok := r.providers[id]
	return p, ok
}

// All returns all selected providers in order.
func (r *Registry) All() []ProviderInfo {
	result := make([]ProviderInfo, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.providers[id])
	}
	return result
}

// Count returns the number of selected providers.
func (r *Registry) Count() int {
	return len(r.order)
}

// ProviderColor returns the hex UI color for a provider identifier.
func ProviderColor(provider string) string {
	p := strings.ToLower(provider)
	switch {
	case strings.HasPrefix(p, "openrouter"):
		return "#8b5cf6"
	case strings.Contains(p, "deepseek"):
		return "#1976d2"
	case strings.Contains(p, "glm"):
		return "#4caf50"
	case strings.Contains(p, "claude"), strings.Contains(p, "anthropic"):
		return "#ff6b35"
	case strings.Contains(p, "gpt"), strings.Contains(p, "openai"):
		return "#10a37f"
	case strings.Contains(p, "google"), strings.Contains(p, "gemini"):
		return "#4285f4"
	default:
		return "#00ffff"
	}
}
