package drive

import (
	"regexp"
	"time"
)

// TimestampFormat is the canonical textual form for every date-time
// value returned through the proxy: millisecond precision with an
// explicit numeric zone offset.
const TimestampFormat = "2006-01-02T15:04:05.000-0700"

// timestampPattern cheaply gates which strings are worth a full parse.
var timestampPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}`)

// NormalizeTimestamps walks a decoded JSON value and rewrites every
// RFC3339 date-time string to TimestampFormat. All other values pass
// through unchanged. Already-canonical strings do not parse as RFC3339,
// so the rewrite is idempotent.
func NormalizeTimestamps(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			t[k] = NormalizeTimestamps(child)
		}

		return t
	case []any:
		for i, child := range t {
			t[i] = NormalizeTimestamps(child)
		}

		return t
	case string:
		return normalizeTimestampString(t)
	default:
		return v
	}
}

func normalizeTimestampString(s string) any {
	if !timestampPattern.MatchString(s) {
		return s
	}

	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return s
	}

	return parsed.Format(TimestampFormat)
}

// ParseTimestamp parses a canonical timestamp back into an instant.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(TimestampFormat, s)
}
