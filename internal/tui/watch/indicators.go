package watch

import (
	"strings"
	"time"
)

// Ticker flips on every scheduler.tick the server publishes, so a frozen
// glyph means the sweeper has stopped.
type Ticker struct {
	frames   []string
	index    int
	lastTick time.Time
}

func NewTicker() Ticker {
	return Ticker{frames: []string{"⟲", "⟳"}}
}

func (t *Ticker) Tick(at time.Time) {
	t.index = (t.index + 1) % len(t.frames)
	t.lastTick = at
}

func (t Ticker) Current() string {
	return t.frames[t.index]
}

func (t Ticker) LastTick() time.Time {
	return t.lastTick
}

// Activity lights up on events and fades one dot per two quiet seconds.
type Activity struct {
	dots      int
	lastEvent time.Time
}

func (a *Activity) OnEvent(at time.Time) {
	a.dots = activityDots
	a.lastEvent = at
}

const activityDots = 5

// Decay recomputes the lit dots from the time since the last event.
func (a *Activity) Decay(now time.Time) {
	if a.lastEvent.IsZero() {
		a.dots = 0
		return
	}
	lit := activityDots - int(now.Sub(a.lastEvent)/(2*time.Second))
	if lit < 0 {
		lit = 0
	}
	if lit > activityDots {
		lit = activityDots
	}
	a.dots = lit
}

func (a Activity) Render(theme Theme) string {
	var b strings.Builder
	for i := range activityDots {
		if i < a.dots {
			b.WriteString(theme.TickerActive.Render("●"))
		} else {
			b.WriteString(theme.TickerInactive.Render("○"))
		}
	}
	return b.String()
}

func (a Activity) LastEvent() time.Time {
	return a.lastEvent
}
