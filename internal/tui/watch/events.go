package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/folio/internal/events"
)

const eventLogSize = 50

func renderEventStream(eventLog []events.Event, theme Theme, width, rows int) string {
	innerWidth := width - 4
	title := theme.Title.Render("EVENT STREAM")

	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left, title, theme.Dim.Render("  Waiting for events..."))
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, e := range eventLog {
		if i >= rows {
			break
		}
		lines = append(lines, formatEvent(e, theme))
	}

	body := lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
	return theme.Border.Width(innerWidth).Render(lipgloss.JoinVertical(lipgloss.Left, title, body))
}

func eventStyle(eventType string, theme Theme) lipgloss.Style {
	switch {
	case strings.HasSuffix(eventType, ".completed"), eventType == "session.created":
		return theme.StatusOK
	case strings.HasSuffix(eventType, ".failed"), eventType == "session.expired":
		return theme.StatusFailed
	case strings.HasSuffix(eventType, ".started"):
		return theme.StatusRunning
	case eventType == "session.deleted":
		return theme.StatusGone
	case strings.HasPrefix(eventType, "scheduler"), eventType == "session.exported":
		return theme.Highlight
	}
	return theme.Dim
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Format("15:04:05"))
	typeName := eventStyle(e.Type, theme).Render(fmt.Sprintf("%-20s", e.Type))
	return fmt.Sprintf("%s %s %s", ts, typeName, describeEvent(e))
}

// describeEvent summarizes the payload: short session id, operation,
// filename and any failure kind or export key.
func describeEvent(e events.Event) string {
	data := make(map[string]any)
	_ = json.Unmarshal(e.Data, &data)

	var parts []string
	if e.SessionID != "" {
		parts = append(parts, fmt.Sprintf("[%s]", shortID(e.SessionID)))
	}
	for _, key := range []string{"op", "filename", "mode", "kind", "key"} {
		if v, ok := data[key].(string); ok && v != "" {
			parts = append(parts, v)
		}
	}
	if ms, ok := data["duration_ms"].(float64); ok {
		parts = append(parts, fmt.Sprintf("%dms", int64(ms)))
	}

	if len(parts) == 0 {
		raw := string(e.Data)
		if raw == "{}" {
			return ""
		}
		if len(raw) > 60 {
			raw = raw[:60] + "..."
		}
		return raw
	}
	return strings.Join(parts, " ")
}
