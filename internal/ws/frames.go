// internal/ws/frames.go
package ws

import "time"

// ModelInfo identifies one participant sent with group-chat initialization.
type ModelInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

// SystemPrompts carries either one unified prompt or per-model prompts.
type SystemPrompts struct {
	Mode    string            `json:"mode"` // unified or individual
	Prompt  string            `json:"prompt,omitempty"`
	Prompts map[string]string `json:"prompts,omitempty"`
}

type frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type initializePayload struct {
	Models        []ModelInfo   `json:"models"`
	SystemPrompts SystemPrompts `json:"systemPrompts"`
}

type userMessagePayload struct {
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// InitializeGroupChat sends the group-chat initialization frame.
func (m *Manager) InitializeGroupChat(models []ModelInfo, prompts SystemPrompts) error {
	return m.Send(frame{
		Type: "initialize_group_chat",
		Data: initializePayload{Models: models, SystemPrompts: prompts},
	})
}

// SendUserMessage sends one user message frame.
func (m *Manager) SendUserMessage(content string) error {
	return m.Send(frame{
		Type: "user_message",
		Data: userMessagePayload{
			Content:   content,
			Timestamp: time.Now().Format(time.RFC3339),
		},
	})
}
