package statusx

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// durationPattern matches the config/CLI duration grammar from spec.md §6:
// an integer followed by ms, s, or m. No other units, no fractional values,
// no combined units.
var durationPattern = regexp.MustCompile(`^(\d+)(ms|s|m)$`)

// ParseDuration parses a config or CLI duration string such as "500ms",
// "3s", or "1m". It rejects anything that does not match durationPattern,
// including stdlib-legal forms like "1.5s" or "1h30m" that spec.md's
// grammar does not allow.
func ParseDuration(raw string) (time.Duration, error) {
	m := durationPattern.FindStringSubmatch(raw)
	if m == nil {
		return 0, fmt.Errorf("invalid duration %q: want an integer followed by ms, s, or m", raw)
	}

	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}

	switch m[2] {
	case "ms":
		return time.Duration(n) * time.Millisecond, nil
	case "s":
		return time.Duration(n) * time.Second, nil
	case "m":
		return time.Duration(n) * time.Minute, nil
	default:
		// Unreachable: durationPattern only captures these three units.
		return 0, fmt.Errorf("invalid duration unit in %q", raw)
	}
}
