package util

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseTime(t *testing.T) {
	got, ok := ParseTime("2024-10-10T10:10:10.5+02:00")
	assert.True(t, ok)
	assert.Equal(t, time.Date(2024, 10, 10, 8, 10, 10, 5e8, time.UTC), got)

	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	got, ok = ParseTime(strconv.FormatInt(ts.Unix(), 10))
	assert.True(t, ok)
	assert.Equal(t, ts, got)

	for _, bad := range []string{"", "yesterday", "-5"} {
		_, ok = ParseTime(bad)
		assert.False(t, ok, bad)
	}
}

func TestParseWindow(t *testing.T) {
	def := time.Hour
	cases := map[string]time.Duration{
		"":     def,
		"6":    6 * time.Hour,
		"90m":  90 * time.Minute,
		"7d":   7 * 24 * time.Hour,
		"0":    def,
		"-2h":  def,
		"xd":   def,
		"soon": def,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseWindow(in, def), in)
	}
}

func TestReadWindow(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	opts := WindowOptions{Lookback: time.Hour, DefaultLimit: 500, MaxLimit: 5000}

	w := ReadWindow(now, "", "", "", opts)
	assert.Equal(t, now.Add(-time.Hour), w.Since)
	assert.Equal(t, 500, w.Limit)

	w = ReadWindow(now, "", "2d", "99999", opts)
	assert.Equal(t, now.Add(-48*time.Hour), w.Since)
	assert.Equal(t, 5000, w.Limit)

	w = ReadWindow(now, "2025-02-01T00:00:00Z", "2d", "0", opts)
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), w.Since)
	assert.Equal(t, 1, w.Limit)
}
