package dump

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Bound selects how a partial date such as "2024-01" is resolved.
type Bound int

const (
	BoundStart Bound = iota // first day of the period
	BoundEnd                // last day of the period
)

var durationRe = regexp.MustCompile(`^([0-9]+)([ywdm])$`)

// FormatDate renders a calendar date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// Midnight truncates t to the start of its day in its own location.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// ParseDate normalizes a date given as YYYY-MM-DD, YYYY-MM, YYYY or RFC3339.
// An empty string means today in the location of now.
func ParseDate(dateStr string, bound Bound, now time.Time) (time.Time, error) {
	dateStr = strings.TrimSpace(dateStr)
	loc := now.Location()
	if dateStr == "" {
		return Midnight(now), nil
	}

	if t, err := time.ParseInLocation(dateLayout, dateStr, loc); err == nil {
		return t, nil
	}

	if t, err := time.ParseInLocation("2006-01", dateStr, loc); err == nil {
		if bound == BoundEnd {
			// Day 0 of the next month is the last day of this one
			return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, loc), nil
		}
		return t, nil
	}

	if t, err := time.ParseInLocation("2006", dateStr, loc); err == nil {
		if bound == BoundEnd {
			return time.Date(t.Year(), 12, 31, 0, 0, 0, 0, loc), nil
		}
		return t, nil
	}

	if t, err := time.Parse(time.RFC3339, dateStr); err == nil {
		return Midnight(t.In(loc)), nil
	}

	return time.Time{}, fmt.Errorf("invalid date %q. Use YYYY-MM-DD, YYYY-MM, or YYYY", dateStr)
}

// parseDuration parses a simplified prometheus-style duration string
// Supports: y (years), w (weeks), d (days), m (months)
// Examples: "30d", "2w", "1y", "6m"
// No combinations allowed (e.g., "1y2w" is invalid)
func parseDuration(durationStr string) (days int, err error) {
	matches := durationRe.FindStringSubmatch(durationStr)
	if len(matches) != 3 {
		return 0, fmt.Errorf("invalid duration format. Use format like '30d', '2w', '1y', or '6m' (no combinations allowed)")
	}

	value, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, fmt.Errorf("invalid duration value: %s", matches[1])
	}

	switch matches[2] {
	case "y":
		// Approximate: 365 days per year
		return value * 365, nil
	case "w":
		return value * 7, nil
	case "d":
		return value, nil
	case "m":
		// Approximate: 30 days per month
		return value * 30, nil
	default:
		return 0, fmt.Errorf("invalid duration unit: %s (use y, w, d, or m)", matches[2])
	}
}

// parseSinceDate parses a --since parameter which can be either:
//   - A date string (YYYY-MM-DD, YYYY-MM, or YYYY format)
//   - A duration string (30d, 2w, 1y, 6m) - counted back from the until date,
//     so "7d" with until 2024-01-10 covers 2024-01-04..2024-01-10
func parseSinceDate(sinceStr string, untilDate time.Time, now time.Time) (time.Time, error) {
	if days, err := parseDuration(sinceStr); err == nil {
		if days == 0 {
			return untilDate, nil
		}
		return untilDate.AddDate(0, 0, -(days - 1)), nil
	}
	return ParseDate(sinceStr, BoundStart, now)
}

// ValidateAndParseRange validates and parses the since and until parameters.
// Until defaults to today, since defaults to until (a one-day range).
func ValidateAndParseRange(sinceStr, untilStr string, now time.Time) (since, until time.Time, err error) {
	until, err = ParseDate(untilStr, BoundEnd, now)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("failed to parse until date: %w", err)
	}

	if strings.TrimSpace(sinceStr) == "" {
		since = until
	} else {
		since, err = parseSinceDate(strings.TrimSpace(sinceStr), until, now)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("failed to parse since date: %w", err)
		}
	}

	if since.After(until) {
		return time.Time{}, time.Time{}, fmt.Errorf("--since date (%s) must not be after --until date (%s)", FormatDate(since), FormatDate(until))
	}

	return since, until, nil
}

// ClampToToday replaces a future date by today. The bool reports whether the
// date was changed.
func ClampToToday(day time.Time, now time.Time) (time.Time, bool) {
	today := Midnight(now)
	if day.After(today) {
		return today, true
	}
	return day, false
}
