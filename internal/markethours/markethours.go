// Package markethours knows the NSE cash session calendar in IST. It
// decides when broker data is worth syncing.
package markethours

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

const dateLayout = "2006-01-02"

// Session boundaries as minutes after midnight IST.
const (
	preOpenStart = 9*60 + 0
	openStart    = 9*60 + 15
	closeStart   = 15*60 + 30
	postCloseEnd = 16*60 + 0
)

// State is the phase of a trading day.
type State int

const (
	Closed State = iota
	PreOpen
	Open
	PostClose
)

func (s State) String() string {
	switch s {
	case PreOpen:
		return "pre_open"
	case Open:
		return "open"
	case PostClose:
		return "post_close"
	default:
		return "closed"
	}
}

// Calendar is a trading calendar: weekdays minus holidays. Safe for
// concurrent use.
type Calendar struct {
	mu       sync.RWMutex
	holidays map[string]string
}

// NewCalendar returns a calendar with the built-in NSE holidays.
func NewCalendar() *Calendar {
	c := &Calendar{holidays: make(map[string]string, len(nseHolidays))}
	for d, name := range nseHolidays {
		c.holidays[d] = name
	}
	return c
}

// Default is the calendar used by the package-level helpers.
var Default = NewCalendar()

// AddHoliday marks the IST date of t as a holiday.
func (c *Calendar) AddHoliday(t time.Time, name string) {
	c.mu.Lock()
	c.holidays[t.In(IST).Format(dateLayout)] = name
	c.mu.Unlock()
}

// AddHolidays parses a comma-separated list of YYYY-MM-DD dates, as found
// in MARKET_HOLIDAYS, and adds each one.
func (c *Calendar) AddHolidays(list string) error {
	for _, s := range strings.Split(list, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		d, err := time.ParseInLocation(dateLayout, s, IST)
		if err != nil {
			return fmt.Errorf("markethours: bad holiday %q: %w", s, err)
		}
		c.AddHoliday(d, "custom")
	}
	return nil
}

// Holiday returns the holiday name for t's IST date.
func (c *Calendar) Holiday(t time.Time) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.holidays[t.In(IST).Format(dateLayout)]
	return name, ok
}

// IsTradingDay reports whether t's IST date is a weekday and not a holiday.
func (c *Calendar) IsTradingDay(t time.Time) bool {
	ist := t.In(IST)
	if wd := ist.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	_, holiday := c.Holiday(ist)
	return !holiday
}

// State returns the session phase at t: pre-open 09:00-09:15, open
// 09:15-15:30, post-close 15:30-16:00, closed otherwise.
func (c *Calendar) State(t time.Time) State {
	if !c.IsTradingDay(t) {
		return Closed
	}
	ist := t.In(IST)
	m := ist.Hour()*60 + ist.Minute()
	switch {
	case m >= openStart && m < closeStart:
		return Open
	case m >= preOpenStart && m < openStart:
		return PreOpen
	case m >= closeStart && m < postCloseEnd:
		return PostClose
	default:
		return Closed
	}
}

// IsOpen reports whether the continuous session is running at t.
func (c *Calendar) IsOpen(t time.Time) bool {
	return c.State(t) == Open
}

// NextOpen returns the next 09:15 IST on a trading day at or after t.
func (c *Calendar) NextOpen(t time.Time) time.Time {
	ist := t.In(IST)
	day := time.Date(ist.Year(), ist.Month(), ist.Day(), 0, 0, 0, 0, IST)
	for i := 0; i < 30; i++ {
		open := day.Add(openStart * time.Minute)
		if c.IsTradingDay(day) && !open.Before(ist) {
			return open
		}
		day = day.AddDate(0, 0, 1)
	}
	return day.Add(openStart * time.Minute)
}

// SessionClose returns 15:30 IST on t's date.
func (c *Calendar) SessionClose(t time.Time) time.Time {
	ist := t.In(IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), 0, 0, 0, 0, IST).Add(closeStart * time.Minute)
}

// Status returns a one-line description such as "open, closes in 2h5m".
func (c *Calendar) Status(t time.Time) string {
	switch st := c.State(t); st {
	case Open:
		return fmt.Sprintf("open, closes in %s", fmtDur(c.SessionClose(t).Sub(t)))
	default:
		next := c.NextOpen(t)
		desc := st.String()
		if name, ok := c.Holiday(t); ok {
			desc = "holiday (" + name + ")"
		}
		return fmt.Sprintf("%s, opens %s %s (in %s)", desc,
			next.Weekday().String()[:3], next.Format("15:04"), fmtDur(next.Sub(t)))
	}
}

// IsTradingDay reports whether t is a trading day on the Default calendar.
func IsTradingDay(t time.Time) bool { return Default.IsTradingDay(t) }

// IsOpen reports whether the Default calendar's session is open at t.
func IsOpen(t time.Time) bool { return Default.IsOpen(t) }

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}

// Watch calls fn with the Default calendar's state now and then every
// interval until ctx is done.
func Watch(ctx context.Context, interval time.Duration, fn func(State)) {
	fn(Default.State(time.Now()))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			fn(Default.State(t))
		}
	}
}
