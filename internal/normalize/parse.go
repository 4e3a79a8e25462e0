package normalize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05.000Z",
	"2006/01/02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"02/01/2006 15:04:05",
}

// ParseDate accepts the date shapes the upstream APIs emit. Day-first layouts
// win over month-first because the sources are Colombian.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty date")
	}
	if isNumeric(value) {
		if ts, err := parseUnix(value); err == nil {
			return ts, nil
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date format: %q", value)
}

// ParseDateAny is ParseDate over a decoded JSON value.
func ParseDateAny(v any) (time.Time, bool) {
	switch val := v.(type) {
	case nil:
		return time.Time{}, false
	case float64:
		return ParseDateAny(strconv.FormatInt(int64(val), 10))
	case string:
		t, err := ParseDate(val)
		return t, err == nil
	}
	return time.Time{}, false
}

func isNumeric(value string) bool {
	for _, ch := range value {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return len(value) > 0
}

func parseUnix(value string) (time.Time, error) {
	if len(value) >= 13 {
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(0, ms*int64(time.Millisecond)).UTC(), nil
	}
	if len(value) < 9 {
		return time.Time{}, errors.New("not a unix timestamp")
	}
	sec, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0).UTC(), nil
}

// ParseAmount reads currency figures such as "$ 1.600.000.000", "1,600,000,000.50"
// or "1600000000". A lone separator followed by exactly three digits is a
// thousands separator.
func ParseAmount(value string) (float64, bool) {
	s := strings.TrimSpace(value)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "COP"), "cop")
	var b strings.Builder
	b.Grow(len(s))
	neg := false
	for _, ch := range s {
		switch {
		case ch >= '0' && ch <= '9', ch == '.', ch == ',':
			b.WriteRune(ch)
		case ch == '-' && b.Len() == 0:
			neg = true
		case ch == '$' || ch == '%' || ch == ' ' || ch == '\u00a0':
		default:
			return 0, false
		}
	}
	s = b.String()
	if s == "" {
		return 0, false
	}
	lastDot := strings.LastIndexByte(s, '.')
	lastComma := strings.LastIndexByte(s, ',')
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastDot > lastComma {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastDot >= 0:
		s = resolveSingleSeparator(s, '.')
	case lastComma >= 0:
		s = resolveSingleSeparator(s, ',')
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		f = -f
	}
	return f, true
}

func resolveSingleSeparator(s string, sep byte) string {
	sepStr := string(sep)
	if strings.Count(s, sepStr) > 1 {
		return strings.ReplaceAll(s, sepStr, "")
	}
	idx := strings.IndexByte(s, sep)
	if len(s)-idx-1 == 3 {
		return strings.ReplaceAll(s, sepStr, "")
	}
	return strings.Replace(s, sepStr, ".", 1)
}
