package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const day = 24 * time.Hour

// ParseDurationField parses a non-negative Go duration, or a whole number of
// days such as "7d". Empty means zero. Errors name the field path.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := parseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0, got %q", path, raw)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def for empty or zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	switch d, err := ParseDurationField(path, raw); {
	case err != nil:
		return 0, err
	case d == 0:
		return def, nil
	default:
		return d, nil
	}
}

func parseDuration(s string) (time.Duration, error) {
	if n, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("day count %q is not an integer", n)
		}
		return time.Duration(days) * day, nil
	}
	return time.ParseDuration(s)
}
