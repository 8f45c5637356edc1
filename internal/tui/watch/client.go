package watch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/folio/internal/events"
)

type eventMsg events.Event

type healthMsg struct {
	Status             string `json:"status"`
	UptimeSeconds      int64  `json:"uptime_seconds"`
	SessionsActive     int    `json:"sessions_active"`
	OperationsInFlight int    `json:"operations_in_flight"`
	OperationsCapacity int    `json:"operations_capacity"`
}

type sessionsMsg []SessionSummary

// SessionSummary is one entry of GET /sessions.
type SessionSummary struct {
	SessionID        string    `json:"session_id"`
	Mode             string    `json:"mode"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	RemainingSeconds int64     `json:"remaining_seconds"`
}

type tickMsg time.Time

type errMsg error

type sseDisconnectedMsg struct{}
type reconnectMsg struct{}

// Client talks to a folio server on behalf of the monitor.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	stream  *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 3 * time.Second},
		// The event stream stays open indefinitely.
		stream: &http.Client{},
	}
}

func (c *Client) newRequest(ctx context.Context, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, path)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Health fetches /healthz.
func (c *Client) Health(ctx context.Context) (healthMsg, error) {
	var h healthMsg
	err := c.getJSON(ctx, "/healthz", &h)
	return h, err
}

// Sessions fetches the active session list.
func (c *Client) Sessions(ctx context.Context) ([]SessionSummary, error) {
	var body struct {
		Sessions []SessionSummary `json:"sessions"`
	}
	if err := c.getJSON(ctx, "/sessions", &body); err != nil {
		return nil, err
	}
	return body.Sessions, nil
}

// Stream reads /events until the connection drops, resuming after lastID.
func (c *Client) Stream(ctx context.Context, lastID int64, ch chan<- events.Event) error {
	req, err := c.newRequest(ctx, "/events")
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	if lastID > 0 {
		req.Header.Set("Last-Event-ID", strconv.FormatInt(lastID, 10))
	}

	resp, err := c.stream.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET /events: %s", resp.Status)
	}
	return readSSE(resp.Body, func(e events.Event) { ch <- e })
}

// readSSE decodes an event stream. Comment lines (keep-alives) are skipped
// and a blank line terminates each event.
func readSSE(r io.Reader, emit func(events.Event)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var (
		cur  events.Event
		data []string
	)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				cur.Data = []byte(strings.Join(data, "\n"))
				cur.At = time.Now()
				cur.SessionID = sessionIDOf(cur.Data)
				emit(cur)
			}
			cur, data = events.Event{}, nil
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "id:"):
			if id, err := strconv.ParseInt(strings.TrimSpace(line[3:]), 10, 64); err == nil {
				cur.ID = id
			}
		case strings.HasPrefix(line, "event:"):
			cur.Type = strings.TrimSpace(line[6:])
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(line[5:], " "))
		}
	}
	return scanner.Err()
}

func sessionIDOf(data []byte) string {
	var body struct {
		SessionID string `json:"session_id"`
	}
	_ = json.Unmarshal(data, &body)
	return body.SessionID
}

// --- Commands ---

// subscribeToEvents feeds the SSE stream into ch and reports the drop.
func subscribeToEvents(c *Client, lastID int64, ch chan<- events.Event) tea.Cmd {
	return func() tea.Msg {
		_ = c.Stream(context.Background(), lastID, ch)
		return sseDisconnectedMsg{}
	}
}

// receiveNextEvent waits for the next event from the channel.
func receiveNextEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ch)
	}
}

func fetchHealth(c *Client) tea.Cmd {
	return func() tea.Msg {
		h, err := c.Health(context.Background())
		if err != nil {
			return errMsg(err)
		}
		return h
	}
}

func fetchSessions(c *Client) tea.Cmd {
	return func() tea.Msg {
		list, err := c.Sessions(context.Background())
		if err != nil {
			return errMsg(err)
		}
		return sessionsMsg(list)
	}
}
