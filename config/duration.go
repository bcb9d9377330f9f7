package config

import (
	"strconv"
	"strings"
)

// unitSeconds maps duration unit characters to their length in seconds.
var unitSeconds = map[byte]int{
	'w': 7 * 86400,
	'd': 86400,
	'h': 3600,
	'm': 60,
	's': 1,
}

// Dur2Sec converts a duration expression into seconds. Durations are a
// concatenation of N{w,d,h,m,s} segments plus an optional trailing bare
// integer interpreted as seconds, e.g. "1w2d3h4m5s", "90", "1h30".
// The second return value holds any trailing characters that could not be
// understood; callers log a warning when it is non-empty.
func Dur2Sec(expr string) (int, string) {
	total := 0
	rest := strings.TrimSpace(expr)

	for rest != "" {
		i := 0
		for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
			i++
		}
		if i == 0 {
			// no leading digits, nothing more to consume
			return total, rest
		}
		n, err := strconv.Atoi(rest[:i])
		if err != nil {
			return total, rest
		}
		if i == len(rest) {
			// trailing bare integer is seconds
			return total + n, ""
		}
		mult, ok := unitSeconds[rest[i]]
		if !ok {
			return total, rest
		}
		total += n * mult
		rest = rest[i+1:]
	}
	return total, ""
}

// ParseBool coerces a configuration value into a boolean. yes/true/on/1
// (case-insensitive) are true, anything else is false.
func ParseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "true", "on", "1":
		return true
	}
	return false
}
