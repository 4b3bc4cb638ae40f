package dashboard

import (
	"fmt"
	"math"
	"sync"

	"portfolio-enginev1/internal/display"
	"portfolio-enginev1/internal/notification"
	"portfolio-enginev1/internal/portfolio"
)

// AlertPolicy decides when a day's move is worth a notification.
// A zero DayChangePct disables alerts.
type AlertPolicy struct {
	DayChangePct float64
}

// Evaluate returns WARNING when |TotalDayChangePercent| reaches the
// threshold and CRITICAL when it reaches twice the threshold.
func (p AlertPolicy) Evaluate(s portfolio.Summary) (notification.AlertLevel, bool) {
	if p.DayChangePct <= 0 {
		return "", false
	}
	move := math.Abs(s.TotalDayChangePercent)
	switch {
	case move >= 2*p.DayChangePct:
		return notification.AlertCritical, true
	case move >= p.DayChangePct:
		return notification.AlertWarning, true
	default:
		return "", false
	}
}

func buildAlert(level notification.AlertLevel, view SummaryView, threshold float64) notification.Alert {
	s := view.Summary
	direction := "up"
	if s.TotalDayChangePercent < 0 {
		direction = "down"
	}
	msg := fmt.Sprintf("Portfolio is %s %s today (%s), threshold %s",
		direction,
		display.SignedPercent(s.TotalDayChangePercent),
		display.SignedMoney(s.TotalDayChange, currency),
		display.Percent(threshold),
	)
	return notification.NewAlert(level, "Portfolio day change", msg).
		With("snapshot_id", view.SnapshotID).
		With("current_value", display.IndianMoney(s.TotalCurrentValue)).
		With("overall_pnl", display.SignedMoney(s.OverallPnL, currency))
}

// alertGate suppresses repeats: within one day an alert is sent only when
// its level is higher than the last one delivered.
type alertGate struct {
	mu    sync.Mutex
	day   string
	level notification.AlertLevel
}

func rank(l notification.AlertLevel) int {
	switch l {
	case notification.AlertCritical:
		return 3
	case notification.AlertWarning:
		return 2
	case notification.AlertInfo:
		return 1
	}
	return 0
}

func (g *alertGate) allow(day string, level notification.AlertLevel) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.day != day || rank(level) > rank(g.level)
}

// delivered records level as sent for day.
func (g *alertGate) delivered(day string, level notification.AlertLevel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.day == day && rank(level) <= rank(g.level) {
		return
	}
	g.day, g.level = day, level
}
