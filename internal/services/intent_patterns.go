package services

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// isoLayout is the zone-less ISO form used for parsed times
const isoLayout = "2006-01-02T15:04:05"

// Task detection patterns, first match wins
var taskPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:create|add|make) (?:a |an )?task(?: to)? (.+)`),
	regexp.MustCompile(`(?i)(?:i need to|i have to|i should) (.+)`),
	regexp.MustCompile(`(?i)(?:remind me|note) (.+)`),
}

// Schedule detection patterns, first match wins
var schedulePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:schedule|set up|plan) (.+?) (?:at|for) (.+)`),
	regexp.MustCompile(`(?i)(?:meeting|appointment) (.+?) (?:at|on) (.+)`),
}

var (
	updatePattern   = regexp.MustCompile(`(?i)(?:update|change|reschedule) (.+?) (?:to|at) (.+)`)
	reminderPattern = regexp.MustCompile(`(?i)(?:remind me|set a reminder) (?:to )?(.+?) (?:in|at) (.+)`)

	clockPattern    = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	meridiemPattern = regexp.MustCompile(`(?i)(\d{1,2})(?::(\d{2}))?\s*(am|pm)`)
	minutesPattern  = regexp.MustCompile(`(?i)(\d+) minutes?`)
	hoursPattern    = regexp.MustCompile(`(?i)(\d+) hours?`)
)

// Query detection patterns, checked in order
var queryPatterns = []struct {
	pattern   *regexp.Regexp
	completed bool
}{
	{regexp.MustCompile(`(?i)(?:show|list|get) (?:done|completed) tasks?`), true},
	{regexp.MustCompile(`(?i)(?:show|list|get) (?:undone|incomplete|pending) tasks?`), false},
	{regexp.MustCompile(`(?i)(?:what|show) (?:do i have|are my) tasks?`), false},
}

// parseClock parses a whole-string 24h HH:MM
func parseClock(s string) (hour, minute int, ok bool) {
	m := clockPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, 0, false
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	if hour > 23 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}

// parseMeridiem finds a 12h time such as 3pm or 10:30 am anywhere in s
func parseMeridiem(s string) (hour, minute int, ok bool) {
	m := meridiemPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, false
	}
	hour, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	if hour < 1 || hour > 12 || minute > 59 {
		return 0, 0, false
	}

	switch strings.ToLower(m[3]) {
	case "pm":
		if hour != 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	return hour, minute, true
}

// parseTimeOfDay accepts HH:MM, falling back to a 12h time
func parseTimeOfDay(s string) (hour, minute int, ok bool) {
	if hour, minute, ok = parseClock(s); ok {
		return hour, minute, true
	}
	return parseMeridiem(s)
}

// atClock places hour:minute on now's calendar day
func atClock(now time.Time, hour, minute int) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, hour, minute, 0, 0, now.Location())
}

// parseReminderTime understands "N minutes", "N hours" and clock times.
// Clock times already past today roll over to tomorrow.
func parseReminderTime(s string, now time.Time) (time.Time, bool) {
	if m := minutesPattern.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 0 {
			return now.Add(time.Duration(n) * time.Minute), true
		}
	}
	if m := hoursPattern.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 0 {
			return now.Add(time.Duration(n) * time.Hour), true
		}
	}
	if hour, minute, ok := parseTimeOfDay(s); ok {
		at := atClock(now, hour, minute)
		if !at.After(now) {
			at = at.AddDate(0, 0, 1)
		}
		return at, true
	}
	return time.Time{}, false
}

var timestampLayouts = []string{
	isoLayout,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseTimestamp reads the time formats the parsers emit: RFC 3339, or the
// zone-less ISO form interpreted in loc
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}

	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
