package watch

import (
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/folio/internal/events"
)

const (
	pollInterval   = 5 * time.Second
	reconnectDelay = 3 * time.Second
)

type pollMsg struct{}

// Model is the BubbleTea model for the monitor.
type Model struct {
	client *Client
	now    func() time.Time

	width  int
	height int

	health      HealthState
	sessions    map[string]*SessionState
	eventLog    []events.Event
	lastEventID int64

	ticker   Ticker
	activity Activity

	theme Theme
	table table.Model

	hubEvents chan events.Event

	lastError string
}

// New creates a monitor for the server at apiURL.
func New(apiURL, token string) *Model {
	theme := NewDefaultTheme()
	tbl := table.New(
		table.WithColumns(sessionColumns(80)),
		table.WithFocused(true),
		table.WithHeight(8),
	)
	tbl.SetStyles(theme.Table)

	return &Model{
		client:    NewClient(apiURL, token),
		now:       time.Now,
		sessions:  make(map[string]*SessionState),
		hubEvents: make(chan events.Event, 100),
		ticker:    NewTicker(),
		theme:     theme,
		table:     tbl,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.client, 0, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		fetchHealth(m.client),
		fetchSessions(m.client),
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.Tick(pollInterval, func(time.Time) tea.Msg { return pollMsg{} }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, tea.Batch(fetchHealth(m.client), fetchSessions(m.client))
		}
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetColumns(sessionColumns(m.width - 8))
		m.table.SetHeight(m.tableHeight())
		m.refreshRows()

	case tickMsg:
		m.activity.Decay(m.now())
		m.refreshRows()
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case pollMsg:
		return m, tea.Batch(
			fetchHealth(m.client),
			fetchSessions(m.client),
			tea.Tick(pollInterval, func(time.Time) tea.Msg { return pollMsg{} }),
		)

	case eventMsg:
		e := events.Event(msg)
		now := m.now()

		m.eventLog = append([]events.Event{e}, m.eventLog...)
		if len(m.eventLog) > eventLogSize {
			m.eventLog = m.eventLog[:eventLogSize]
		}
		if e.ID > m.lastEventID {
			m.lastEventID = e.ID
		}
		m.activity.OnEvent(now)
		if e.Type == "scheduler.tick" {
			m.ticker.Tick(now)
		}

		applyEvent(m.sessions, e, now)
		m.refreshRows()

		m.health.Connected = true
		m.lastError = ""
		return m, receiveNextEvent(m.hubEvents)

	case healthMsg:
		m.health.Status = msg.Status
		m.health.UptimeSeconds = msg.UptimeSeconds
		m.health.SessionsActive = msg.SessionsActive
		m.health.OperationsInFlight = msg.OperationsInFlight
		m.health.OperationsCapacity = msg.OperationsCapacity
		m.health.Connected = true
		m.health.LastCheck = m.now()
		m.lastError = ""

	case sessionsMsg:
		mergeSnapshot(m.sessions, msg, m.now())
		m.refreshRows()

	case sseDisconnectedMsg:
		m.health.Connected = false
		m.lastError = "event stream disconnected, reconnecting..."
		// The pending receiveNextEvent keeps reading the same channel, so
		// the new subscription feeds it directly.
		return m, tea.Tick(reconnectDelay, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return m, subscribeToEvents(m.client, m.lastEventID, m.hubEvents)

	case errMsg:
		m.lastError = msg.Error()
	}

	return m, nil
}

// tableHeight gives the session table whatever the header and a minimal
// event stream leave over.
func (m *Model) tableHeight() int {
	h := m.height/2 - 6
	if h < 3 {
		h = 3
	}
	return h
}

func (m *Model) eventRows() int {
	rows := m.height - m.tableHeight() - 16
	if rows < 3 {
		rows = 3
	}
	return rows
}

func (m *Model) refreshRows() {
	m.table.SetRows(sessionRows(sortedSessions(m.sessions), m.now()))
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to folio..."
	}
	now := m.now()

	header := renderHeader(m.health, m.ticker, m.activity, m.theme, m.width, now)
	sessions := renderSessions(m.table, len(m.sessions), m.theme, m.width)
	stream := renderEventStream(m.eventLog, m.theme, m.width, m.eventRows())

	parts := []string{header, sessions, stream}
	if m.lastError != "" {
		parts = append(parts, m.theme.StatusFailed.Render(" ⚠ "+m.lastError))
	}
	parts = append(parts, m.theme.Dim.Render(" [q] Quit • [↑/↓] Select session • [r] Refresh"))

	return lipgloss.NewStyle().Margin(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}
