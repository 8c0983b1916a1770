package schedule

import "time"

// Calendar describes the trading session for session-class instruments.
// Times are interpreted in Location; days outside Days never open.
type Calendar struct {
	Location    *time.Location
	OpenHour    int
	OpenMinute  int
	CloseHour   int
	CloseMinute int
	Days        map[time.Weekday]bool
}

// DefaultCalendar is a weekday cash-equity style session, 09:30-16:00 UTC.
func DefaultCalendar() *Calendar {
	return &Calendar{
		Location:    time.UTC,
		OpenHour:    9,
		OpenMinute:  30,
		CloseHour:   16,
		CloseMinute: 0,
		Days: map[time.Weekday]bool{
			time.Monday:    true,
			time.Tuesday:   true,
			time.Wednesday: true,
			time.Thursday:  true,
			time.Friday:    true,
		},
	}
}

// InSession reports whether now falls inside an open trading session.
func (c *Calendar) InSession(now time.Time) bool {
	local := now.In(c.Location)
	if !c.Days[local.Weekday()] {
		return false
	}
	open := c.openAt(local)
	close := c.closeAt(local)
	return !local.Before(open) && local.Before(close)
}

// NextOpen returns the start of the next session at or after now.
// When now is already inside a session it returns that session's open.
func (c *Calendar) NextOpen(now time.Time) time.Time {
	local := now.In(c.Location)
	for d := 0; d < 8; d++ {
		day := local.AddDate(0, 0, d)
		if !c.Days[day.Weekday()] {
			continue
		}
		open := c.openAt(day)
		if d == 0 {
			if local.Before(c.closeAt(day)) {
				return open
			}
			continue
		}
		return open
	}
	// unreachable with at least one trading day configured
	return local
}

func (c *Calendar) openAt(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.OpenHour, c.OpenMinute, 0, 0, c.Location)
}

func (c *Calendar) closeAt(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.CloseHour, c.CloseMinute, 0, 0, c.Location)
}
