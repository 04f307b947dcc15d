package config

import (
	"strconv"
	"strings"
)

// ParseUint64 parses v as an unsigned integer, accepting a "0x" prefix for
// hex, matching gravwell's config.ParseUint64 convention for numeric
// config parameters (ether-types, rate limits, ids).
func ParseUint64(v string) (uint64, error) {
	if strings.HasPrefix(v, "0x") {
		return strconv.ParseUint(strings.TrimPrefix(v, "0x"), 16, 64)
	}
	return strconv.ParseUint(v, 10, 64)
}
