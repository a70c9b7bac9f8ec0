package alerts

import (
	"fmt"
	"strings"
)

// Range is the date filter selected on the alerts page.
type Range string

const (
	RangeToday     Range = "today"
	RangeYesterday Range = "yesterday"
	RangeWeek      Range = "week"
	RangeMonth     Range = "month"
)

// ParseRange accepts the filter names; an empty string means today.
func ParseRange(s string) (Range, error) {
	switch r := Range(strings.ToLower(strings.TrimSpace(s))); r {
	case "":
		return RangeToday, nil
	case RangeToday, RangeYesterday, RangeWeek, RangeMonth:
		return r, nil
	default:
		return "", fmt.Errorf("unknown date range %q", s)
	}
}

func (r Range) includes(d Day) bool {
	switch r {
	case RangeToday:
		return d == DayToday
	case RangeYesterday:
		return d == DayYesterday
	case RangeWeek:
		return d == DayToday || d == DayYesterday || d == DayWeek
	case RangeMonth:
		return true
	}
	return false
}

// Filter keeps catalog order.
func Filter(cards []Card, r Range, criticalOnly bool) []Card {
	out := make([]Card, 0, len(cards))
	for _, c := range cards {
		if !r.includes(c.Day) {
			continue
		}
		if criticalOnly && !c.Critical() {
			continue
		}
		out = append(out, c)
	}
	return out
}
