package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// durationTerm matches one number+unit term, e.g. "1.5d" or "250ms".
var durationTerm = regexp.MustCompile(`^(\d+(?:\.\d+)?)([a-zµμ]+)`)

var bareSeconds = regexp.MustCompile(`^\d+(?:\.\d+)?$`)

var extendedUnits = map[string]time.Duration{
	"d": 24 * time.Hour,
	"w": 7 * 24 * time.Hour,
}

// parseDurationExtended accepts Go durations plus days ("d") and weeks ("w"),
// e.g. "1w2d3h" or "1.5d". A bare number is read as seconds, which is how
// retry delays and timeouts are usually written in the policy files.
func parseDurationExtended(raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("duration is required")
	}
	if bareSeconds.MatchString(s) {
		secs, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}

	sign := time.Duration(1)
	switch s[0] {
	case '-':
		sign = -1
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if s == "" {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}

	var total time.Duration
	for s != "" {
		m := durationTerm.FindStringSubmatch(s)
		if m == nil {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		s = s[len(m[0]):]

		if unit, ok := extendedUnits[m[2]]; ok {
			n, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				return 0, fmt.Errorf("invalid duration %q", raw)
			}
			total += time.Duration(n * float64(unit))
			continue
		}
		d, err := time.ParseDuration(m[0])
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
		}
		total += d
	}
	return sign * total, nil
}
