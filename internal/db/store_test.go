// internal/db/store_test.go
package db

import (
	"path/filepath"
	"testing"
	"time"

	"avatar/internal/chat"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenAt(filepath.Join(t.TempDir(), "avatar.db"))
	if err != nil {
		t.Fatalf("OpenAt() failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreHistory(t *testing.T) {
	store := openTestStore(t)

	user := chat.Message{
		ID:        "msg-1",
		Role:      chat.RoleUser,
		Content:   "hello",
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := store.SaveMessage(user); err != nil {
		t.Fatalf("SaveMessage() failed: %v", err)
	}

	group := chat.Message{
		ID:        "msg-2",
		Role:      chat.RoleAssistant,
		Timestamp: time.Date(2025, 6, 1, 12, 0, 5, 0, time.UTC),
		Responses: []chat.ProviderResponse{
			{Provider: "glm", Name: "GLM-4", Content: "hi from glm", Timestamp: time.Date(2025, 6, 1, 12, 0, 6, 0, time.UTC)},
			{Provider: "deepseek", Name: "DeepSeek", Content: "hi from deepseek", Tokens: &chat.TokenUsage{Input: 10, Output: 20, Total: 30}, Timestamp: time.Date(2025, 6, 1, 12, 0, 7, 0, time.UTC)},
		},
	}
	if err := store.SaveMessage(group); err != nil {
		t.Fatalf("SaveMessage() group failed: %v", err)
	}

	history, err := store.History()
	if err != nil {
		t.Fatalf("History() failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(history))
	}
	if history[0].ID != "msg-1" || history[1].ID != "msg-2" {
		t.Errorf("History order wrong: %s, %s", history[0].ID, history[1].ID)
	}
	if history[0].Content != "hello" || history[0].Role != chat.RoleUser {
		t.Errorf("User message not preserved: %+v", history[0])
	}

	responses := history[1].Responses
	if len(responses) != 2 {
		t.Fatalf("Expected 2 responses, got %d", len(responses))
	}
	if responses[0].Provider != "glm" || responses[1].Provider != "deepseek" {
		t.Errorf("Response order wrong: %s, %s", responses[0].Provider, responses[1].Provider)
	}
	if responses[1].Tokens == nil || responses[1].Tokens.Total != 30 {
		t.Errorf("Token usage not round-tripped: %+v", responses[1].Tokens)
	}
	if responses[0].Tokens != nil {
		t.Error("Missing token usage should stay nil")
	}
}

func TestSaveMessageReplacesResponses(t *testing.T) {
	store := openTestStore(t)

	m := chat.Message{
		ID:        "msg-1",
		Role:      chat.RoleAssistant,
		Timestamp: time.Now(),
		Responses: []chat.ProviderResponse{{Provider: "glm", Content: "partial"}},
	}
	if err := store.SaveMessage(m); err != nil {
		t.Fatalf("SaveMessage() failed: %v", err)
	}

	m.Responses = []chat.ProviderResponse{
		{Provider: "glm", Content: "final"},
		{Provider: "deepseek", Content: "also final"},
	}
	if err := store.SaveMessage(m); err != nil {
		t.Fatalf("SaveMessage() re-save failed: %v", err)
	}

	history, err := store.History()
	if err != nil {
		t.Fatalf("History() failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(history))
	}
	if len(history[0].Responses) != 2 {
		t.Fatalf("Expected 2 responses after re-save, got %d", len(history[0].Responses))
	}
	if history[0].Responses[0].Content != "final" {
		t.Errorf("Responses not replaced: %q", history[0].Responses[0].Content)
	}
}

func TestClearHistory(t *testing.T) {
	store := openTestStore(t)

	m := chat.Message{ID: "msg-1", Role: chat.RoleUser, Content: "hello", Timestamp: time.Now()}
	if err := store.SaveMessage(m); err != nil {
		t.Fatalf("SaveMessage() failed: %v", err)
	}

	if err := store.ClearHistory(); err != nil {
		t.Fatalf("ClearHistory() failed: %v", err)
	}

	history, err := store.History()
	if err != nil {
		t.Fatalf("History() failed: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("Expected empty history, got %d messages", len(history))
	}
}

func TestSettings(t *testing.T) {
	store := openTestStore(t)

	value, err := store.GetSetting("missing")
	if err != nil {
		t.Fatalf("GetSetting() failed: %v", err)
	}
	if value != "" {
		t.Errorf("Missing key should yield empty string, got %q", value)
	}

	if err := store.SetSetting("usd_to_cny_rate", "7.25"); err != nil {
		t.Fatalf("SetSetting() failed: %v", err)
	}
	if err := store.SetSetting("usd_to_cny_rate", "7.30"); err != nil {
		t.Fatalf("SetSetting() overwrite failed: %v", err)
	}

	value, err = store.GetSetting("usd_to_cny_rate")
	if err != nil {
		t.Fatalf("GetSetting() failed: %v", err)
	}
	if value != "7.30" {
		t.Errorf("Expected overwritten value 7.30, got %q", value)
	}
}
