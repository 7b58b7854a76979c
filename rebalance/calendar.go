package rebalance

import "time"

// Calendar decides from the clock instrument's trading days whether a
// day is a rebalance day. It only sees days on which the clock traded,
// so "first trading day" means the first observed day of a month.
type Calendar struct {
	schedule    string
	quarterDays int

	last       time.Time
	dayInMonth int
}

// NewCalendar supports "monthly" (first trading day of each month) and
// "quarterly" (the first quarterDays trading days of January, April,
// July and October).
func NewCalendar(schedule string, quarterDays int) *Calendar {
	if schedule == "" {
		schedule = "monthly"
	}
	if quarterDays <= 0 {
		quarterDays = 3
	}
	return &Calendar{schedule: schedule, quarterDays: quarterDays}
}

// Observe registers a new trading day and reports whether it triggers.
// Repeated or older days never trigger.
func (c *Calendar) Observe(day time.Time) bool {
	day = dateOf(day)
	if !c.last.IsZero() && !day.After(c.last) {
		return false
	}
	if c.last.IsZero() || day.Year() != c.last.Year() || day.Month() != c.last.Month() {
		c.dayInMonth = 1
	} else {
		c.dayInMonth++
	}
	c.last = day

	switch c.schedule {
	case "quarterly":
		switch day.Month() {
		case time.January, time.April, time.July, time.October:
			return c.dayInMonth <= c.quarterDays
		}
		return false
	default:
		return c.dayInMonth == 1
	}
}

// Reset forgets every observed day.
func (c *Calendar) Reset() {
	c.last = time.Time{}
	c.dayInMonth = 0
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
