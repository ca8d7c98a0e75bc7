package scheduler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// normalizeSpec turns a schedule into a robfig/cron spec. Accepted forms are
// cron expressions ("0 6 * * *", optionally with seconds), descriptors
// ("@daily", "@every 1h") and bare Go durations ("90m" becomes "@every 1h30m").
// Daily wall-clock times belong in JobDef.At instead.
func normalizeSpec(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	switch {
	case s == "":
		return "", errors.New("schedule required")
	case strings.HasPrefix(s, "@"), len(strings.Fields(s)) >= 5:
		return strings.Join(strings.Fields(s), " "), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return "", fmt.Errorf("invalid schedule %q (want a cron expression, @descriptor or duration)", raw)
	}
	if d <= 0 {
		return "", fmt.Errorf("invalid schedule %q: interval must be > 0", raw)
	}
	return "@every " + d.String(), nil
}

// parseHHMM parses a wall-clock time of day such as "06:00".
func parseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	hs, ms, ok := strings.Cut(s, ":")
	if !ok || len(hs) != 2 || len(ms) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(ms)
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}

// ValidateTimeOfDay reports whether s is a valid HH:MM wall-clock time.
func ValidateTimeOfDay(s string) error {
	_, _, err := parseHHMM(s)
	return err
}
