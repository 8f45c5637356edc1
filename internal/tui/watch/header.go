package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// tickStale dims the scheduler glyph once ticks stop arriving.
const tickStale = 5 * time.Minute

// HealthState tracks server health from /healthz polling.
type HealthState struct {
	Status             string
	UptimeSeconds      int64
	SessionsActive     int
	OperationsInFlight int
	OperationsCapacity int
	Connected          bool
	LastCheck          time.Time
}

func renderHeader(health HealthState, ticker Ticker, act Activity, theme Theme, width int, now time.Time) string {
	innerWidth := width - 4

	statusText := theme.StatusOK.Render("HEALTHY")
	if !health.Connected {
		statusText = theme.StatusFailed.Render("CONNECTING")
	} else if health.Status != "ok" && health.Status != "" {
		statusText = theme.StatusFailed.Render("DEGRADED")
	}

	uptime := formatDuration(time.Duration(health.UptimeSeconds) * time.Second)

	lastEvent := "never"
	if !act.LastEvent().IsZero() {
		lastEvent = fmt.Sprintf("%s ago", now.Sub(act.LastEvent()).Round(time.Second))
	}

	tickStyle := theme.TickerActive
	if last := ticker.LastTick(); last.IsZero() || now.Sub(last) > tickStale {
		tickStyle = theme.TickerInactive
	}
	title := fmt.Sprintf(" FOLIO WATCH %s", tickStyle.Render(ticker.Current()))
	clock := theme.Dim.Render(now.Format("15:04:05"))
	pad := innerWidth - lipgloss.Width(title) - lipgloss.Width(clock) - 4
	if pad < 1 {
		pad = 1
	}
	titleLine := title + strings.Repeat(" ", pad) + clock + " "

	statsLine := fmt.Sprintf(" %s  up %s  Sessions: %d  Operations: %s",
		statusText,
		uptime,
		health.SessionsActive,
		renderLoad(health, theme),
	)

	activityLine := fmt.Sprintf(" Last event: %s %s", lastEvent, act.Render(theme))

	content := lipgloss.JoinVertical(lipgloss.Left, titleLine, statsLine, activityLine)
	return theme.Border.Width(innerWidth).Render(content)
}

func renderLoad(health HealthState, theme Theme) string {
	load := fmt.Sprintf("%d/%d", health.OperationsInFlight, health.OperationsCapacity)
	switch {
	case health.OperationsCapacity > 0 && health.OperationsInFlight >= health.OperationsCapacity:
		return theme.StatusFailed.Render(load)
	case health.OperationsInFlight > 0:
		return theme.StatusRunning.Render(load)
	}
	return theme.Dim.Render(load)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
