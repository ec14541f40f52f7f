package probe

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// NoInterval disables timed flushes.
const NoInterval time.Duration = 0

// IntervalNone is the configuration keyword for NoInterval.
const IntervalNone = "none"

var intervalPattern = regexp.MustCompile(`(?i)^(-?(?:\d+)?\.?\d+) *(milliseconds?|msecs?|ms|seconds?|secs?|s|minutes?|mins?|m|hours?|hrs?|h|days?|d|weeks?|w|years?|yrs?|y)?$`)

const (
	day  = 24 * time.Hour
	week = 7 * day
	year = time.Duration(365.25 * float64(day))
)

// ParseInterval converts a human readable interval such as "1s", "10 minutes"
// or "2d" to a duration. A bare number is read as milliseconds. The empty
// string and "none" yield NoInterval.
func ParseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, IntervalNone) {
		return NoInterval, nil
	}

	m := intervalPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid interval %q", s)
	}

	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative interval %q", s)
	}

	unit := time.Millisecond
	switch strings.ToLower(m[2]) {
	case "years", "year", "yrs", "yr", "y":
		unit = year
	case "weeks", "week", "w":
		unit = week
	case "days", "day", "d":
		unit = day
	case "hours", "hour", "hrs", "hr", "h":
		unit = time.Hour
	case "minutes", "minute", "mins", "min", "m":
		unit = time.Minute
	case "seconds", "second", "secs", "sec", "s":
		unit = time.Second
	}

	total := n * float64(unit)
	if total >= math.MaxInt64 {
		return 0, fmt.Errorf("interval %q out of range", s)
	}
	return time.Duration(total), nil
}
