// Package bytesize parses and formats byte sizes with binary (1024) units.
//
// Accepted forms: "1024" (bare bytes), "500KB", "1.5 GB", "5MiB". Units are
// case-insensitive; K/KB/KiB and friends are all binary.
package bytesize

import (
	"fmt"
	"strconv"
	"strings"
)

// Size represents a byte size as int64.
type Size int64

// Binary (1024) size constants.
const (
	B  Size = 1
	KB Size = 1024
	MB Size = 1024 * KB
	GB Size = 1024 * MB
	TB Size = 1024 * GB
	PB Size = 1024 * TB
)

var units = map[string]Size{
	"":    B,
	"b":   B,
	"k":   KB,
	"kb":  KB,
	"kib": KB,
	"m":   MB,
	"mb":  MB,
	"mib": MB,
	"g":   GB,
	"gb":  GB,
	"gib": GB,
	"t":   TB,
	"tb":  TB,
	"tib": TB,
	"p":   PB,
	"pb":  PB,
	"pib": PB,
}

// Parse parses a human-readable byte size. A bare number is bytes.
func Parse(s string) (Size, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("bytesize: empty string")
	}

	split := len(s)
	for i, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			split = i
			break
		}
	}

	value, err := strconv.ParseFloat(s[:split], 64)
	if err != nil {
		return 0, fmt.Errorf("bytesize: invalid number in %q", s)
	}

	unit := strings.ToLower(strings.TrimSpace(s[split:]))
	multiplier, ok := units[unit]
	if !ok {
		return 0, fmt.Errorf("bytesize: unknown unit %q", unit)
	}

	return Size(value * float64(multiplier)), nil
}

// MustParse is like Parse but panics on error. Use for constants only.
func MustParse(s string) Size {
	size, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return size
}

// Format renders a size using the largest unit with a value >= 1,
// trimming trailing zeros from fractional values.
func Format(s Size) string {
	if s == 0 {
		return "0B"
	}

	prefix := ""
	if s < 0 {
		prefix = "-"
		s = -s
	}

	steps := []struct {
		span Size
		unit string
	}{
		{PB, "PB"},
		{TB, "TB"},
		{GB, "GB"},
		{MB, "MB"},
		{KB, "KB"},
	}
	for _, step := range steps {
		if s < step.span {
			continue
		}
		value := float64(s) / float64(step.span)
		if value == float64(int64(value)) {
			return fmt.Sprintf("%s%d%s", prefix, int64(value), step.unit)
		}
		text := strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", value), "0"), ".")
		return prefix + text + step.unit
	}
	return fmt.Sprintf("%s%dB", prefix, s)
}

// Bytes returns the size in bytes as int64.
func (s Size) Bytes() int64 {
	return int64(s)
}

// Int64 returns the size as int64.
func (s Size) Int64() int64 {
	return int64(s)
}

// String returns the human-readable form.
func (s Size) String() string {
	return Format(s)
}
