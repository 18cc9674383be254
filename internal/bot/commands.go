package bot

import (
	"strconv"
	"strings"
)

// ParseCreate splits "/create" arguments into name, interval in minutes and
// question. The question is everything after the second space. The
// interval must be a positive integer.
func ParseCreate(args string) (name string, interval int64, question string, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(args), " ", 3)
	if len(parts) != 3 {
		return "", 0, "", false
	}
	n, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || n <= 0 {
		return "", 0, "", false
	}
	question = strings.TrimSpace(parts[2])
	if parts[0] == "" || question == "" {
		return "", 0, "", false
	}
	return parts[0], n, question, true
}
