package agent

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const deadlineLayout = "January 2, 2006"

const monthNames = `january|february|march|april|may|june|july|august|september|october|november|december`

var (
	// "25th october 2025", "25 October 2025"
	dayFirstPattern = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(` + monthNames + `),?\s+(\d{4})\b`)
	// "October 25, 2025", "october 25th 2025"
	monthFirstPattern = regexp.MustCompile(`(?i)\b(` + monthNames + `)\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)
)

// parseDeadline finds the first calendar date in msg and returns the last
// second of that day in loc.
func parseDeadline(msg string, loc *time.Location) (time.Time, bool) {
	var day, month, year string
	if m := dayFirstPattern.FindStringSubmatch(msg); m != nil {
		day, month, year = m[1], m[2], m[3]
	} else if m := monthFirstPattern.FindStringSubmatch(msg); m != nil {
		month, day, year = m[1], m[2], m[3]
	} else {
		return time.Time{}, false
	}

	d, _ := strconv.Atoi(day)
	y, _ := strconv.Atoi(year)
	mon, ok := monthIndex(month)
	if !ok {
		return time.Time{}, false
	}
	t := time.Date(y, mon, d, 23, 59, 59, 0, loc)
	if t.Day() != d || t.Month() != mon {
		// Feb 30 and friends.
		return time.Time{}, false
	}
	return t, true
}

func monthIndex(name string) (time.Month, bool) {
	name = strings.ToLower(name)
	for m := time.January; m <= time.December; m++ {
		if strings.ToLower(m.String()) == name {
			return m, true
		}
	}
	return 0, false
}

func formatDeadline(t time.Time) string {
	return t.Format(deadlineLayout)
}

// resolveDeadline picks the submission deadline: a date in the message,
// then one remembered earlier in the conversation, then the default.
func (a *Agent) resolveDeadline(msg, remembered string) time.Time {
	loc := a.now().Location()
	if d, ok := parseDeadline(msg, loc); ok {
		return d
	}
	for _, s := range []string{remembered, a.defaultDeadline} {
		if s == "" {
			continue
		}
		if d, err := time.ParseInLocation(deadlineLayout, s, loc); err == nil {
			return time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 0, loc)
		}
	}
	return time.Time{}
}
