// Package bytesize parses and formats byte counts such as "10MiB" or "512KB".
//
// All units are binary (1024-based); "MB" and "MiB" mean the same thing.
// A bare number is a count of bytes.
package bytesize

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Size is a count of bytes.
type Size int64

// Binary units.
const (
	B   Size = 1
	KiB Size = 1 << 10
	MiB Size = 1 << 20
	GiB Size = 1 << 30
)

var units = map[string]Size{
	"":      B,
	"b":     B,
	"bytes": B,
	"k":     KiB,
	"kb":    KiB,
	"kib":   KiB,
	"m":     MiB,
	"mb":    MiB,
	"mib":   MiB,
	"g":     GiB,
	"gb":    GiB,
	"gib":   GiB,
}

// Parse converts a human-readable size into bytes.
func Parse(s string) (Size, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("bytesize: empty string")
	}

	split := strings.IndexFunc(trimmed, func(r rune) bool {
		return !unicode.IsDigit(r) && r != '.'
	})
	number, unit := trimmed, ""
	if split >= 0 {
		number, unit = trimmed[:split], strings.TrimSpace(trimmed[split:])
	}

	value, err := strconv.ParseFloat(number, 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("bytesize: invalid number in %q", s)
	}

	multiplier, ok := units[strings.ToLower(unit)]
	if !ok {
		return 0, fmt.Errorf("bytesize: unknown unit %q", unit)
	}

	return Size(value * float64(multiplier)), nil
}

// Format renders a size with the largest unit that keeps the value >= 1.
func Format(s Size) string {
	switch {
	case s >= GiB:
		return trim(float64(s)/float64(GiB)) + "GiB"
	case s >= MiB:
		return trim(float64(s)/float64(MiB)) + "MiB"
	case s >= KiB:
		return trim(float64(s)/float64(KiB)) + "KiB"
	default:
		return strconv.FormatInt(int64(s), 10) + "B"
	}
}

func trim(v float64) string {
	out := strconv.FormatFloat(v, 'f', 2, 64)
	out = strings.TrimRight(out, "0")
	return strings.TrimSuffix(out, ".")
}

// String implements fmt.Stringer.
func (s Size) String() string {
	return Format(s)
}

// Int returns the size as an int, for use with len() comparisons.
func (s Size) Int() int {
	return int(s)
}
