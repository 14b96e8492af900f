package service

import (
	"strings"
	"time"
)

const (
	dateTokenLayout  = "2006-01-02"
	defaultRangeDays = 7
)

// DateRange is a half-open interval [From, To) over assignment creation times.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.From) && t.Before(r.To)
}

// ResolveDateRange turns optional from/to tokens into a concrete range.
//
// A token is either a calendar date (YYYY-MM-DD) or an RFC 3339 timestamp. A
// calendar from starts at midnight UTC, a calendar to ends one nanosecond before
// the next midnight. Missing bounds are derived seven days away from the other
// bound, or from now when both are missing.
func ResolveDateRange(fromToken, toToken string, now time.Time) (DateRange, error) {
	from, err := parseDateToken("from", fromToken, false)
	if err != nil {
		return DateRange{}, err
	}

	to, err := parseDateToken("to", toToken, true)
	if err != nil {
		return DateRange{}, err
	}

	switch {
	case from == nil && to == nil:
		end := now.UTC()
		start := end.AddDate(0, 0, -defaultRangeDays)
		from, to = &start, &end
	case from == nil:
		start := to.AddDate(0, 0, -defaultRangeDays)
		from = &start
	case to == nil:
		end := from.AddDate(0, 0, defaultRangeDays)
		to = &end
	}

	if from.After(*to) {
		return DateRange{}, validationError("'from' must not be after 'to'")
	}

	return DateRange{From: *from, To: *to}, nil
}

func parseDateToken(name, value string, endOfDay bool) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	if !strings.Contains(value, "T") {
		day, err := time.ParseInLocation(dateTokenLayout, value, time.UTC)
		if err != nil {
			return nil, invalidDateToken(name)
		}
		if endOfDay {
			day = day.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		return &day, nil
	}

	// query strings decode a literal '+' offset into a space
	value = strings.ReplaceAll(value, " ", "+")
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return nil, invalidDateToken(name)
	}
	parsed = parsed.UTC()
	return &parsed, nil
}

func invalidDateToken(name string) error {
	return validationError("invalid '%s' value, use YYYY-MM-DD or RFC3339 date-time", name)
}
