// internal/ui/view.go
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"avatar/internal/chat"
	"avatar/internal/status"
)

// jobKey names the typewriter job for one response inside a message.
func jobKey(messageID, provider string) string {
	return messageID + ":" + provider
}

// renderTimeline renders the full message list. Responses with an active
// typewriter job show the revealed prefix instead of their final content.
func renderTimeline(messages []chat.Message, displayed map[string]string, renderer *glamour.TermRenderer) string {
	var sb strings.Builder

	for _, msg := range messages {
		ts := msg.Timestamp.Format("15:04")

		switch {
		case msg.IsError:
			sb.WriteString(ErrorStyle.Render(fmt.Sprintf("[%s] Error:", ts)))
			sb.WriteString("\n")
			writeIndented(&sb, ErrorStyle.Render(msg.Content))

		case msg.Role == chat.RoleUser:
			sb.WriteString(UserStyle.Render(fmt.Sprintf("[%s] You:", ts)))
			sb.WriteString("\n")
			writeIndented(&sb, msg.Content)

		case msg.Provider == "system":
			sb.WriteString(SystemStyle.Render(fmt.Sprintf("[%s] System:", ts)))
			sb.WriteString("\n")
			writeIndented(&sb, SystemStyle.Render(msg.Content))

		case msg.IsGroup():
			for _, r := range msg.Responses {
				renderResponse(&sb, msg.ID, r, displayed, renderer)
			}

		default:
			name := chat.DisplayName(msg.Provider, "")
			sb.WriteString(ProviderStyle(msg.Provider).Render(fmt.Sprintf("[%s] %s:", ts, name)))
			sb.WriteString("\n")
			writeResponseContent(&sb, msg.Content, jobKey(msg.ID, msg.Provider), displayed, renderer)
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func renderResponse(sb *strings.Builder, messageID string, r chat.ProviderResponse, displayed map[string]string, renderer *glamour.TermRenderer) {
	ts := r.Timestamp.Format("15:04")
	header := fmt.Sprintf("[%s] %s:", ts, chat.DisplayName(r.Provider, r.Name))
	if chip := metricsChip(r); chip != "" {
		header += " " + DimStyle.Render(chip)
	}
	sb.WriteString(ProviderStyle(r.Provider).Render(header))
	sb.WriteString("\n")
	writeResponseContent(sb, r.Content, jobKey(messageID, r.Provider), displayed, renderer)
}

// writeResponseContent picks the typewriter prefix when a reveal is in
// flight, and glamour-rendered markdown once the full content is shown.
func writeResponseContent(sb *strings.Builder, content, key string, displayed map[string]string, renderer *glamour.TermRenderer) {
	if prefix, ok := displayed[key]; ok {
		writeIndented(sb, prefix+"▌")
		return
	}
	if renderer != nil {
		if out, err := renderer.Render(content); err == nil {
			sb.WriteString(strings.TrimRight(out, "\n"))
			sb.WriteString("\n")
			return
		}
	}
	writeIndented(sb, content)
}

func writeIndented(sb *strings.Builder, content string) {
	for _, line := range strings.Split(content, "\n") {
		sb.WriteString("  ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
}

func metricsChip(r chat.ProviderResponse) string {
	if !r.Complete {
		return ""
	}
	var parts []string
	if r.Performance != nil && r.Performance.ResponseTime > 0 {
		parts = append(parts, fmt.Sprintf("%.1fs", r.Performance.ResponseTime))
	}
	if r.Tokens != nil && r.Tokens.Total > 0 {
		parts = append(parts, fmt.Sprintf("%d tok", r.Tokens.Total))
	}
	if len(parts) == 0 {
		return ""
	}
	return "(" + strings.Join(parts, " · ") + ")"
}

// renderStatusLine shows the group-turn phase and per-provider progress.
func renderStatusLine(tracker *status.Tracker) string {
	name, index, total := tracker.Current()

	switch tracker.Phase() {
	case status.PhaseThinking:
		return fmt.Sprintf("%s %s %s",
			StatusWarn.Render("●"),
			SystemStyle.Render(name+" is thinking..."),
			progressBar(tracker.Progress(), index, total))
	case status.PhaseResponding:
		return fmt.Sprintf("%s %s %s",
			StatusOK.Render("●"),
			SystemStyle.Render(name+" is responding..."),
			progressBar(tracker.Progress(), index, total))
	default:
		return ""
	}
}

func progressBar(progress float64, index, total int) string {
	const barWidth = 20
	filled := int(progress * barWidth)
	if filled > barWidth {
		filled = barWidth
	}
	bar := ProgressFilled.Render(strings.Repeat("█", filled)) +
		ProgressEmpty.Render(strings.Repeat("░", barWidth-filled))
	return fmt.Sprintf("%s %s", bar, DimStyle.Render(fmt.Sprintf("%d/%d", index+1, total)))
}

// renderConnState maps the connection state to a colored chip.
func renderConnState(state string) string {
	switch state {
	case "connected":
		return StatusOK.Render("● online")
	case "reconnecting":
		return StatusWarn.Render("● reconnecting")
	case "offline":
		return StatusCrit.Render("● offline")
	default:
		return DimStyle.Render("● idle")
	}
}
