package domain

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidPeriod = errors.New("invalid_period")

var (
	rangeSeparators = []string{" - ", " – ", " to ", " au ", "..", "→"}
	dateLayouts     = []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02",
		"2006/01/02",
		"02/01/2006",
		"02-01-2006",
		"02.01.2006",
	}
	monthPattern    = regexp.MustCompile(`^\s*(\d{4})[-/](\d{1,2})\s*$`)
	monthYearLayout = regexp.MustCompile(`^\s*(\d{1,2})[-/](\d{4})\s*$`)
)

// PeriodEnd resolves the last day of a reporting period label. A range label
// resolves to its upper bound; a month or a single date resolves to the end
// of that month.
func PeriodEnd(label string) (time.Time, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return time.Time{}, ErrInvalidPeriod
	}

	for _, sep := range rangeSeparators {
		if idx := strings.LastIndex(label, sep); idx > 0 {
			end, err := ParseDate(label[idx+len(sep):])
			if err != nil {
				return time.Time{}, ErrInvalidPeriod
			}
			return end, nil
		}
	}

	if m := monthPattern.FindStringSubmatch(label); m != nil {
		return monthEnd(atoi(m[1]), atoi(m[2]))
	}
	if m := monthYearLayout.FindStringSubmatch(label); m != nil {
		return monthEnd(atoi(m[2]), atoi(m[1]))
	}

	d, err := ParseDate(label)
	if err != nil {
		return time.Time{}, ErrInvalidPeriod
	}
	return monthEnd(d.Year(), int(d.Month()))
}

// ParseDate parses a calendar date in one of the accepted layouts and
// truncates it to midnight UTC.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, ErrInvalidPeriod
}

func monthEnd(year, month int) (time.Time, error) {
	if month < 1 || month > 12 {
		return time.Time{}, ErrInvalidPeriod
	}
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, 1, -1), nil
}

func atoi(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}
