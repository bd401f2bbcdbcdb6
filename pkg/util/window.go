package util

import (
	"strconv"
	"strings"
	"time"
)

// Window is a lookback range read from query parameters.
type Window struct {
	Since time.Time
	Limit int
}

// WindowOptions bound what ReadWindow accepts.
type WindowOptions struct {
	Lookback     time.Duration
	DefaultLimit int
	MaxLimit     int
}

// ReadWindow turns since/window/limit query values into a Window. since
// wins over window; both fall back to opts.Lookback before now. The limit
// is clamped to [1, opts.MaxLimit].
func ReadWindow(now time.Time, since, window, limit string, opts WindowOptions) Window {
	w := Window{Since: now.Add(-ParseWindow(window, opts.Lookback))}
	if t, ok := ParseTime(since); ok {
		w.Since = t
	}
	n, err := strconv.Atoi(strings.TrimSpace(limit))
	if err != nil {
		n = opts.DefaultLimit
	}
	w.Limit = max(1, min(n, opts.MaxLimit))
	return w
}

// ParseTime accepts RFC3339 (with or without fractional seconds) and unix
// seconds.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil && sec > 0 {
		return time.Unix(sec, 0).UTC(), true
	}
	return time.Time{}, false
}

// ParseWindow reads "90m", "24h" or "7d". Bare integers are hours.
// Anything non-positive or unparsable yields def.
func ParseWindow(s string, def time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	var d time.Duration
	switch n, err := strconv.Atoi(s); {
	case s == "":
		return def
	case err == nil:
		d = time.Duration(n) * time.Hour
	case strings.HasSuffix(s, "d"):
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return def
		}
		d = time.Duration(days) * 24 * time.Hour
	default:
		if d, err = time.ParseDuration(s); err != nil {
			return def
		}
	}
	if d <= 0 {
		return def
	}
	return d
}
