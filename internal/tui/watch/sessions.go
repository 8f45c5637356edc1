package watch

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"

	"github.com/mattjoyce/folio/internal/events"
)

// retainClosed is how long deleted or expired sessions stay on screen.
const retainClosed = 2 * time.Minute

// SessionState is the monitor's view of one session, built from polling
// and from the event stream.
type SessionState struct {
	ID        string
	Mode      string
	Status    string
	CreatedAt time.Time
	ExpiresAt time.Time
	ClosedAt  time.Time

	Running    string
	LastOp     string
	LastResult string
	Completed  int
	Failed     int
}

func (s *SessionState) closed() bool {
	return s.Status == "Deleted" || s.Status == "Expired"
}

func (s *SessionState) close(status string, at time.Time) {
	s.Status = status
	s.ClosedAt = at
	s.Running = ""
}

type eventPayload struct {
	SessionID string    `json:"session_id"`
	Mode      string    `json:"mode"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Op        string    `json:"op"`
	Filename  string    `json:"filename"`
	Kind      string    `json:"kind"`
}

// applyEvent folds a session or operation event into the table state.
func applyEvent(sessions map[string]*SessionState, e events.Event, now time.Time) {
	if e.SessionID == "" {
		return
	}
	var p eventPayload
	_ = json.Unmarshal(e.Data, &p)

	s, ok := sessions[e.SessionID]
	if !ok {
		if e.Type != "session.created" && !strings.HasPrefix(e.Type, "operation.") {
			return
		}
		s = &SessionState{ID: e.SessionID, Status: "Active"}
		sessions[e.SessionID] = s
	}

	switch e.Type {
	case "session.created":
		s.Mode = p.Mode
		s.CreatedAt = p.CreatedAt
		s.ExpiresAt = p.ExpiresAt
	case "session.deleted":
		s.close("Deleted", now)
	case "session.expired":
		s.close("Expired", now)
	case "operation.started":
		s.Running = opLabel(p)
	case "operation.completed":
		s.Running = ""
		s.LastOp = opLabel(p)
		s.LastResult = "ok"
		s.Completed++
	case "operation.failed":
		s.Running = ""
		s.LastOp = opLabel(p)
		s.LastResult = p.Kind
		if s.LastResult == "" {
			s.LastResult = "failed"
		}
		s.Failed++
	}
}

func opLabel(p eventPayload) string {
	if p.Filename == "" {
		return p.Op
	}
	return p.Op + " " + p.Filename
}

// mergeSnapshot reconciles a GET /sessions result. Sessions the server no
// longer lists are marked closed; closed ones are dropped after retainClosed.
func mergeSnapshot(sessions map[string]*SessionState, list []SessionSummary, now time.Time) {
	seen := make(map[string]bool, len(list))
	for _, sum := range list {
		seen[sum.SessionID] = true
		s, ok := sessions[sum.SessionID]
		if !ok {
			s = &SessionState{ID: sum.SessionID}
			sessions[sum.SessionID] = s
		}
		s.Mode = sum.Mode
		s.Status = sum.Status
		s.CreatedAt = sum.CreatedAt
		s.ExpiresAt = sum.ExpiresAt
	}

	for id, s := range sessions {
		if !seen[id] && !s.closed() {
			s.close("Closed", now)
		}
		if !s.ClosedAt.IsZero() && now.Sub(s.ClosedAt) > retainClosed {
			delete(sessions, id)
		}
	}
}

func sortedSessions(sessions map[string]*SessionState) []*SessionState {
	out := make([]*SessionState, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func sessionColumns(width int) []table.Column {
	activity := width - 10 - 8 - 9 - 10 - 7 - 16
	if activity < 20 {
		activity = 20
	}
	return []table.Column{
		{Title: "SESSION", Width: 10},
		{Title: "MODE", Width: 8},
		{Title: "STATUS", Width: 9},
		{Title: "REMAINING", Width: 10},
		{Title: "OPS", Width: 7},
		{Title: "ACTIVITY", Width: activity},
	}
}

func sessionRows(list []*SessionState, now time.Time) []table.Row {
	rows := make([]table.Row, 0, len(list))
	for _, s := range list {
		rows = append(rows, table.Row{
			shortID(s.ID),
			s.Mode,
			s.Status,
			remaining(s, now),
			fmt.Sprintf("%d/%d", s.Completed, s.Failed),
			activity(s),
		})
	}
	return rows
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func remaining(s *SessionState, now time.Time) string {
	if s.closed() || s.Status == "Closed" || s.ExpiresAt.IsZero() {
		return "-"
	}
	left := s.ExpiresAt.Sub(now)
	if left < 0 {
		left = 0
	}
	return formatDuration(left)
}

func activity(s *SessionState) string {
	switch {
	case s.Running != "":
		return "▶ " + s.Running
	case s.LastOp != "":
		return s.LastOp + " (" + s.LastResult + ")"
	}
	return "idle"
}

func renderSessions(tbl table.Model, count int, theme Theme, width int) string {
	title := theme.Title.Render(fmt.Sprintf("SESSIONS (%d)", count))
	body := tbl.View()
	if count == 0 {
		body = theme.Dim.Render("  No sessions")
	}
	return theme.Border.Width(width - 4).Render(title + "\n" + body)
}
