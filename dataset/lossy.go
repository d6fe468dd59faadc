package dataset

import (
	"strconv"
	"strings"
)

// LossyInt is the permissive numeric coercion used throughout derivation:
// whitespace is trimmed, float notation is accepted ("1985.0" -> 1985), and
// anything unparseable falls back to the caller's default instead of
// aborting the run. Each call site picks its own default deliberately.
func LossyInt(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return int(f)
}

// LossyFloat is the float variant of the lossy-parse policy.
func LossyFloat(s string, def float64) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}
