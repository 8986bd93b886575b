package tool

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// PageRange is an inclusive, 1-based page interval.
type PageRange struct {
	From int
	To   int
}

// ParseRanges parses expressions such as "1-3,5,8-10".
func ParseRanges(expr string) ([]PageRange, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.New("empty page range")
	}
	parts := strings.Split(expr, ",")
	out := make([]PageRange, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("empty segment in %q", expr)
		}
		from, to, isSpan := strings.Cut(part, "-")
		start, err := parsePage(from)
		if err != nil {
			return nil, err
		}
		end := start
		if isSpan {
			if end, err = parsePage(to); err != nil {
				return nil, err
			}
		}
		if end < start {
			return nil, fmt.Errorf("descending range %q", part)
		}
		out = append(out, PageRange{From: start, To: end})
	}
	return out, nil
}

func parsePage(s string) (int, error) {
	s = strings.TrimSpace(s)
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid page number %q", s)
	}
	return n, nil
}
