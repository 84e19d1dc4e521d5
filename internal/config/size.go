package config

import (
	"fmt"
	"strconv"
	"strings"
)

var sizeSuffixes = map[string]int64{
	"B": 1,
	"K": 1 << 10,
	"M": 1 << 20,
	"G": 1 << 30,
	"T": 1 << 40,
}

// ParseSize parses a human-readable size string into bytes. Accepts a
// plain number or a K/M/G/T/B suffix (case-insensitive, powers of 1024),
// so "32M", "1.5G" and "4096" are all valid.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	multiplier := int64(1)
	num := s
	if m, ok := sizeSuffixes[strings.ToUpper(s[len(s)-1:])]; ok {
		multiplier = m
		num = s[:len(s)-1]
	}
	if num == "" {
		return 0, fmt.Errorf("invalid size: %q", s)
	}

	if n, err := strconv.ParseInt(num, 10, 64); err == nil {
		return n * multiplier, nil
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size: %q", s)
	}
	return int64(f * float64(multiplier)), nil
}
