package runtime

import (
	"strings"
	"time"
)

// AgeFunc derives an age in whole years from a birth date and an optional
// reference date. An empty reference date means "today".
type AgeFunc func(birthDate, referenceDate string) int

// dateLayouts are tried in order when parsing record dates.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// AgeCalculator computes ages against an injectable clock.
type AgeCalculator struct {
	Now func() time.Time
}

// CalculateAge returns the age in whole years as of deathDate, or as of today
// when deathDate is empty. Missing or unparsable input yields 0.
func CalculateAge(birthDate, deathDate string) int {
	return AgeCalculator{Now: time.Now}.Calculate(birthDate, deathDate)
}

func (c AgeCalculator) Calculate(birthDate, deathDate string) int {
	if strings.TrimSpace(birthDate) == "" {
		return 0
	}

	birth, ok := ParseDate(birthDate)
	if !ok {
		return 0
	}

	var reference time.Time
	if strings.TrimSpace(deathDate) != "" {
		reference, ok = ParseDate(deathDate)
		if !ok {
			return 0
		}
	} else {
		now := time.Now
		if c.Now != nil {
			now = c.Now
		}
		reference = now()
	}

	age := reference.Year() - birth.Year()

	// Birthday not reached yet in the reference year
	if reference.Month() < birth.Month() ||
		(reference.Month() == birth.Month() && reference.Day() < birth.Day()) {
		age--
	}

	return max(0, age)
}

// ParseDate parses a calendar date in one of the accepted layouts.
func ParseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
