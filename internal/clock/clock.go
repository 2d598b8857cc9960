package clock

import (
	"fmt"
	"time"

	"github.com/catscratch/catbot/internal/domain"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Clock resolves "now" and all schedule math in one fixed reference timezone,
// so a record created as "09:00" fires at 09:00 regardless of server locale.
type Clock struct {
	loc *time.Location
}

func New(timezone string) (*Clock, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", timezone, err)
	}
	return &Clock{loc: loc}, nil
}

// NewInLocation is a constructor for tests that already hold a location.
func NewInLocation(loc *time.Location) *Clock {
	return &Clock{loc: loc}
}

func (c *Clock) Now() time.Time {
	return time.Now().In(c.loc)
}

func (c *Clock) Location() *time.Location {
	return c.loc
}

// ParseDateTime combines a YYYY-MM-DD date and an HH:MM time into an instant
// in the reference timezone.
func (c *Clock) ParseDateTime(date, hhmm string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+hhmm, c.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date/time %q %q: %w", date, hhmm, err)
	}
	return t, nil
}

// NextOccurrence returns the first instant strictly after `after` at which a
// record with the given anchor date, time and repeat rule should fire.
//
// For RepeatNone the literal anchor instant is returned even when it is in
// the past; callers decide whether a past one-shot is an error.
//
// Monthly recurrences anchored on a day a month does not have (say the 31st)
// skip that month and fire in the next month that has the day.
func (c *Clock) NextOccurrence(date, hhmm string, repeat domain.RepeatRule, after time.Time) (time.Time, error) {
	anchor, err := c.ParseDateTime(date, hhmm)
	if err != nil {
		return time.Time{}, err
	}

	after = after.In(c.loc)
	hour, minute := anchor.Hour(), anchor.Minute()

	switch repeat {
	case domain.RepeatNone:
		return anchor, nil

	case domain.RepeatDaily:
		next := time.Date(after.Year(), after.Month(), after.Day(), hour, minute, 0, 0, c.loc)
		if !next.After(after) {
			next = next.AddDate(0, 0, 1)
		}
		return next, nil

	case domain.RepeatWeekly:
		next := time.Date(after.Year(), after.Month(), after.Day(), hour, minute, 0, 0, c.loc)
		days := int(anchor.Weekday()-next.Weekday()+7) % 7
		next = next.AddDate(0, 0, days)
		if !next.After(after) {
			next = next.AddDate(0, 0, 7)
		}
		return next, nil

	case domain.RepeatMonthly:
		day := anchor.Day()
		// Walk month-firsts so AddDate never normalizes past a short month.
		first := time.Date(after.Year(), after.Month(), 1, 0, 0, 0, 0, c.loc)
		for i := 0; i < 48; i++ {
			year, month, _ := first.AddDate(0, i, 0).Date()
			next := time.Date(year, month, day, hour, minute, 0, 0, c.loc)
			// time.Date normalizes Feb 31 to Mar 3; a shifted day means
			// this month does not have the anchor day, so skip it.
			if next.Day() != day {
				continue
			}
			if next.After(after) {
				return next, nil
			}
		}
		return time.Time{}, fmt.Errorf("no monthly occurrence found for day %d", day)

	default:
		return time.Time{}, fmt.Errorf("unknown repeat rule %q", repeat)
	}
}
