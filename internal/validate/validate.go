package validate

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	reID       = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	reUsername = regexp.MustCompile(`^@?[A-Za-z0-9_]{5,32}$`)
	reCategory = regexp.MustCompile(`^[A-Za-z0-9 _&'-]{1,50}$`)
)

// ID validates a resource identifier (product, order, job).
func ID(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != "" && reID.MatchString(s)
}

// Username validates a chat handle, with or without the leading @.
func Username(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return strings.TrimPrefix(s, "@"), reUsername.MatchString(s)
}

func Category(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != "" && reCategory.MatchString(s)
}

// Price parses a non-negative amount.
func Price(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v, err == nil && v >= 0
}

// Payload trims a message body and enforces a sane length for the transport.
func Payload(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 4000 {
		return "", false
	}
	return s, true
}

// Reason caps a human-entered decision reason.
func Reason(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
