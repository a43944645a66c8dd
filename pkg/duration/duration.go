// Package duration parses and formats durations with day and week units
// on top of Go's standard duration syntax.
//
// Supported forms:
//   - "720h", "30m", "1h30m" (anything time.ParseDuration accepts)
//   - "30d" (days, 24h each), "2w" (weeks, 7 days each)
//   - mixed, largest unit first: "1w2d12h"
package duration

import (
	"fmt"
	"strings"
	"time"
)

// Day is 24 hours.
const Day = 24 * time.Hour

// Week is 7 days.
const Week = 7 * Day

// Parse parses a duration string. Day ("d") and week ("w") components are
// converted to hours and the remainder is handed to time.ParseDuration.
func Parse(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("duration: empty string")
	}

	negative := strings.HasPrefix(s, "-")
	if negative {
		s = s[1:]
	}

	var extended time.Duration
	rest := s
	for {
		value, unit, tail, ok := leadingUnit(rest)
		if !ok {
			break
		}
		switch unit {
		case 'd':
			extended += time.Duration(value) * Day
		case 'w':
			extended += time.Duration(value) * Week
		}
		rest = tail
	}

	total := extended
	if rest != "" {
		d, err := time.ParseDuration(rest)
		if err != nil {
			return 0, fmt.Errorf("duration: %w", err)
		}
		total += d
	} else if extended == 0 {
		return 0, fmt.Errorf("duration: no units in %q", s)
	}

	if negative {
		total = -total
	}
	return total, nil
}

// leadingUnit splits off a leading "<digits>d" or "<digits>w" component.
// Components like "12h" are left for time.ParseDuration.
func leadingUnit(s string) (value int64, unit byte, rest string, ok bool) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		value = value*10 + int64(s[i]-'0')
		i++
	}
	if i == 0 || i >= len(s) {
		return 0, 0, s, false
	}
	if c := s[i]; c == 'd' || c == 'w' {
		// "1ms" must not match as days; the unit must end the component.
		if i+1 < len(s) {
			next := s[i+1]
			if next < '0' || next > '9' {
				return 0, 0, s, false
			}
		}
		return value, c, s[i+1:], true
	}
	return 0, 0, s, false
}

// MustParse is like Parse but panics on error. Use for constants only.
func MustParse(s string) time.Duration {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Format renders a duration using the largest fitting units, omitting zero
// components: 9 days becomes "1w2d", 90 minutes becomes "1h30m".
func Format(d time.Duration) string {
	if d == 0 {
		return "0s"
	}

	var b strings.Builder
	if d < 0 {
		b.WriteByte('-')
		d = -d
	}

	if d < time.Second {
		// Sub-second values keep Go's own rendering (ms/µs/ns).
		b.WriteString(d.String())
		return b.String()
	}

	steps := []struct {
		span time.Duration
		unit string
	}{
		{Week, "w"},
		{Day, "d"},
		{time.Hour, "h"},
		{time.Minute, "m"},
		{time.Second, "s"},
	}
	for _, step := range steps {
		if n := d / step.span; n > 0 {
			fmt.Fprintf(&b, "%d%s", n, step.unit)
			d -= n * step.span
		}
	}
	return b.String()
}
