package activity

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// DefaultDelay applies when a delay activity carries no usable duration.
const DefaultDelay = time.Second

// MaxDelay caps values too large to represent as a time.Duration.
const MaxDelay = time.Duration(math.MaxInt64)

// DelayDuration reads a delay activity's value as milliseconds. Numbers and
// numeric strings are accepted; anything else yields DefaultDelay.
func DelayDuration(a *Activity) time.Duration {
	if a == nil || len(a.Value) == 0 {
		return DefaultDelay
	}
	var n json.Number
	if err := json.Unmarshal(a.Value, &n); err == nil {
		if ms, ok := parseMillis(n.String()); ok {
			return ms
		}
		return DefaultDelay
	}
	var s string
	if err := json.Unmarshal(a.Value, &s); err == nil {
		if ms, ok := parseMillis(strings.TrimSpace(s)); ok {
			return ms
		}
	}
	return DefaultDelay
}

func parseMillis(s string) (time.Duration, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	ns := f * float64(time.Millisecond)
	if ns >= float64(MaxDelay) {
		return MaxDelay, true
	}
	return time.Duration(ns), true
}
