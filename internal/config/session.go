package config

import (
	"fmt"
	"time"
)

// Session is the regular trading session of one exchange calendar day.
type Session struct {
	loc             *time.Location
	open            time.Duration
	close           time.Duration
	startAfterOpen  time.Duration
	stopBeforeClose time.Duration
}

// LoadLocation resolves tz, falling back to America/New_York and then a fixed ET offset
// for minimal containers without tzdata.
func LoadLocation(tz string) *time.Location {
	if tz == "" {
		tz = "America/New_York"
	}
	if loc, err := time.LoadLocation(tz); err == nil {
		return loc
	}
	if loc, err := time.LoadLocation("America/New_York"); err == nil {
		return loc
	}
	return time.FixedZone("ET", -5*60*60)
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// NewSession parses "HH:MM" open and close times in tz.
func NewSession(tz, open, close string, startAfterOpenMinutes, stopBeforeCloseMinutes int) (*Session, error) {
	o, err1 := parseClock(open)
	c, err2 := parseClock(close)
	if err1 != nil || err2 != nil || o >= c {
		return nil, fmt.Errorf("schedule session window invalid (open/close parse/order)")
	}
	if startAfterOpenMinutes < 0 || stopBeforeCloseMinutes < 0 {
		return nil, fmt.Errorf("schedule entry offsets must be >= 0")
	}
	s := &Session{
		loc:             LoadLocation(tz),
		open:            o,
		close:           c,
		startAfterOpen:  time.Duration(startAfterOpenMinutes) * time.Minute,
		stopBeforeClose: time.Duration(stopBeforeCloseMinutes) * time.Minute,
	}
	if s.open+s.startAfterOpen >= s.close-s.stopBeforeClose {
		return nil, fmt.Errorf("schedule entry window is empty")
	}
	return s, nil
}

// Location returns the session timezone.
func (s *Session) Location() *time.Location { return s.loc }

// CloseOffset is the close as an offset from midnight.
func (s *Session) CloseOffset() time.Duration { return s.close }

func (s *Session) midnight(day time.Time) time.Time {
	d := day.In(s.loc)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, s.loc)
}

// Open returns the session open on day's calendar date.
func (s *Session) Open(day time.Time) time.Time {
	return s.midnight(day).Add(s.open)
}

// Close returns the session close on day's calendar date.
func (s *Session) Close(day time.Time) time.Time {
	return s.midnight(day).Add(s.close)
}

// IsTradingDay reports whether now falls on a weekday in the session timezone.
func (s *Session) IsTradingDay(now time.Time) bool {
	wd := now.In(s.loc).Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// IsOpen reports whether now is inside [open, close) on a trading day.
func (s *Session) IsOpen(now time.Time) bool {
	if !s.IsTradingDay(now) {
		return false
	}
	return !now.Before(s.Open(now)) && now.Before(s.Close(now))
}

// InEntryWindow reports whether new positions may be opened at now.
func (s *Session) InEntryWindow(now time.Time) bool {
	if !s.IsTradingDay(now) {
		return false
	}
	start := s.Open(now).Add(s.startAfterOpen)
	end := s.Close(now).Add(-s.stopBeforeClose)
	// Inclusive start, exclusive end
	return !now.Before(start) && now.Before(end)
}

// MinutesSinceOpen is negative before the open.
func (s *Session) MinutesSinceOpen(now time.Time) float64 {
	return now.Sub(s.Open(now)).Minutes()
}

// MinutesToClose is negative after the close.
func (s *Session) MinutesToClose(now time.Time) float64 {
	return s.Close(now).Sub(now).Minutes()
}

// DayKey is the session-local calendar date of now.
func (s *Session) DayKey(now time.Time) string {
	return now.In(s.loc).Format("2006-01-02")
}
