// Package ratelimit detects upstream usage-limit messages in agent
// output and computes how long the monitor should pause until the
// limit clears. It owns the one canonical phrase set; the classifier
// and the monitor both consult it, so additions belong here and
// nowhere else.
package ratelimit

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// SleepBuffer is added to every computed wait so the limit has
	// actually cleared before agents resume (absorbs clock skew).
	SleepBuffer = 120 * time.Second

	// MaxPlausibleWait caps believable rate-limit windows. A computed
	// wait beyond this means the reset time is stale or misparsed, and
	// the monitor must not block on it.
	MaxPlausibleWait = 4 * time.Hour
)

// rateLimitPatterns is the canonical usage-limit phrase set.
var rateLimitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)usage limit reached`),
	regexp.MustCompile(`(?i)rate[\s._-]?limit`),
	regexp.MustCompile(`(?i)quota exceeded`),
	regexp.MustCompile(`(?i)too many requests`),
	regexp.MustCompile(`(?i)(http|status|error|code)\D{0,10}\b429\b`),
	regexp.MustCompile(`(?i)\b429\b.{0,10}(too many|rate|limit)`),
}

// resetTimeRegex matches the reset clause of a usage-limit message,
// e.g. "Your limit will reset at 4am (UTC)." or "resets at 16:30".
var resetTimeRegex = regexp.MustCompile(`(?i)reset[s]?\s+at\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)?`)

// Detect reports whether output contains a usage-limit message.
func Detect(output string) bool {
	for _, re := range rateLimitPatterns {
		if re.MatchString(output) {
			return true
		}
	}
	return false
}

// ExtractResetTime pulls the reset time-of-day out of a usage-limit
// message. The returned string is normalized ("4am", "4:30pm",
// "16:30") and round-trips through CalculateSleep. Returns false when
// no reset clause is present or the hour is out of range for its form
// (1-12 with a meridiem, 0-23 without).
func ExtractResetTime(content string) (string, bool) {
	m := resetTimeRegex.FindStringSubmatch(content)
	if m == nil {
		return "", false
	}

	hour, err := strconv.Atoi(m[1])
	if err != nil {
		return "", false
	}
	meridiem := strings.ToLower(m[3])

	if meridiem != "" {
		if hour < 1 || hour > 12 {
			return "", false
		}
	} else if hour > 23 {
		return "", false
	}

	if m[2] != "" {
		minute, err := strconv.Atoi(m[2])
		if err != nil || minute > 59 {
			return "", false
		}
		return fmt.Sprintf("%d:%02d%s", hour, minute, meridiem), true
	}
	return fmt.Sprintf("%d%s", hour, meridiem), true
}

// CalculateSleep computes how long to pause for a reset time string.
// The reset is always the next occurrence of that clock time: today if
// still ahead of now, otherwise tomorrow. The result includes
// SleepBuffer. A wait beyond MaxPlausibleWait returns 0 so a stale
// reset time never blocks the loop for hours.
//
// Pure: the caller supplies now, nothing reads the wall clock.
func CalculateSleep(resetStr string, now time.Time) (time.Duration, error) {
	hour, minute, err := parseResetClock(resetStr)
	if err != nil {
		return 0, err
	}

	reset := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !reset.After(now) {
		reset = reset.Add(24 * time.Hour)
	}

	sleep := reset.Sub(now) + SleepBuffer
	if sleep > MaxPlausibleWait+SleepBuffer {
		return 0, nil
	}
	return sleep, nil
}

// parseResetClock normalizes "4am" / "4:30pm" / "16:30" / "16" to a
// 24-hour clock.
func parseResetClock(s string) (hour, minute int, err error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, 0, fmt.Errorf("empty reset time")
	}

	meridiem := ""
	switch {
	case strings.HasSuffix(s, "am"):
		meridiem = "am"
		s = strings.TrimSuffix(s, "am")
	case strings.HasSuffix(s, "pm"):
		meridiem = "pm"
		s = strings.TrimSuffix(s, "pm")
	}
	s = strings.TrimSpace(s)

	hourPart := s
	if h, m, ok := strings.Cut(s, ":"); ok {
		hourPart = h
		minute, err = strconv.Atoi(m)
		if err != nil || minute < 0 || minute > 59 {
			return 0, 0, fmt.Errorf("invalid minutes in reset time %q", s)
		}
	}

	hour, err = strconv.Atoi(strings.TrimSpace(hourPart))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid hour in reset time %q: %w", s, err)
	}

	switch meridiem {
	case "am":
		if hour < 1 || hour > 12 {
			return 0, 0, fmt.Errorf("hour %d out of range for 12-hour clock", hour)
		}
		if hour == 12 {
			hour = 0
		}
	case "pm":
		if hour < 1 || hour > 12 {
			return 0, 0, fmt.Errorf("hour %d out of range for 12-hour clock", hour)
		}
		if hour != 12 {
			hour += 12
		}
	default:
		if hour < 0 || hour > 23 {
			return 0, 0, fmt.Errorf("hour %d out of range for 24-hour clock", hour)
		}
	}
	return hour, minute, nil
}

// Detection describes a usage-limit hit parsed from pane output.
type Detection struct {
	// Limited is true when a usage-limit phrase was found.
	Limited bool
	// ResetTime is the normalized reset clock time; empty when the
	// message carried none that parsed.
	ResetTime string
	// Sleep is the full pause including SleepBuffer; zero when the
	// reset time is unknown or implausibly far away.
	Sleep time.Duration
}

// Analyze runs detection and sleep computation in one pass, the way
// the monitor consumes it each tick.
func Analyze(output string, now time.Time) Detection {
	d := Detection{Limited: Detect(output)}
	if !d.Limited {
		return d
	}
	reset, ok := ExtractResetTime(output)
	if !ok {
		return d
	}
	d.ResetTime = reset
	if sleep, err := CalculateSleep(reset, now); err == nil {
		d.Sleep = sleep
	}
	return d
}
