// internal/export/markdown.go
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"avatar/internal/chat"
)

// ExportConversation generates a formatted markdown transcript.
func ExportConversation(messages []chat.Message, exportedAt time.Time) string {
	var sb strings.Builder

	sb.WriteString("# Avatar Conversation\n\n")
	sb.WriteString("---\n\n")
	sb.WriteString(fmt.Sprintf("**Exported:** %s\n\n", exportedAt.Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("**Messages:** %d\n\n", len(messages)))
	sb.WriteString("---\n\n")
	sb.WriteString("## Transcript\n\n")

	for i, msg := range messages {
		writeMessage(&sb, msg)
		if i < len(messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	sb.WriteString("\n---\n\n")
	sb.WriteString(fmt.Sprintf("*Exported from Avatar on %s*\n", exportedAt.Format("2006-01-02 15:04:05")))

	return sb.String()
}

func writeMessage(sb *strings.Builder, msg chat.Message) {
	ts := msg.Timestamp.Format("15:04:05")

	if msg.IsGroup() {
		for _, r := range msg.Responses {
			name := chat.DisplayName(r.Provider, r.Name)
			sb.WriteString(fmt.Sprintf("### [%s] %s\n\n", r.Timestamp.Format("15:04:05"), name))
			writeContent(sb, r.Content)
			sb.WriteString("\n")
		}
		return
	}

	sb.WriteString(fmt.Sprintf("### [%s] %s\n\n", ts, sourceName(msg)))
	writeContent(sb, msg.Content)
	sb.WriteString("\n")
}

func writeContent(sb *strings.Builder, content string) {
	content = strings.TrimSpace(content)
	if containsCodeBlock(content) {
		// Content already has code blocks, render as-is
		sb.WriteString(content)
		sb.WriteString("\n")
		return
	}
	for _, line := range strings.Split(content, "\n") {
		sb.WriteString("> ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
}

func sourceName(msg chat.Message) string {
	switch {
	case msg.IsError:
		return "Error"
	case msg.Role == chat.RoleUser:
		return "You"
	case msg.Provider == "system":
		return "System"
	case msg.Provider != "":
		return chat.DisplayName(msg.Provider, "")
	default:
		return "Assistant"
	}
}

// WriteConversation exports the transcript to a markdown file under
// baseDir/conversations and returns the file path.
func WriteConversation(messages []chat.Message, baseDir string) (string, error) {
	now := time.Now()
	filename := fmt.Sprintf("%s-chat.md", now.Format("2006-01-02-150405"))

	exportDir := filepath.Join(baseDir, "conversations")
	if err := os.MkdirAll(exportDir, 0755); err != nil {
		return "", fmt.Errorf("create conversations directory: %w", err)
	}

	path := filepath.Join(exportDir, filename)
	content := ExportConversation(messages, now)

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	return path, nil
}

// containsCodeBlock checks if content already has markdown code blocks
func containsCodeBlock(content string) bool {
	return strings.Contains(content, "```")
}
