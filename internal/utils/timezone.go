package utils

import "time"

// LoadLocation falls back to UTC for an empty or unknown zone name.
func LoadLocation(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

func FormatInTimezone(t time.Time, tz string) string {
	if t.IsZero() {
		return ""
	}
	return t.In(LoadLocation(tz)).Format("2006-01-02 15:04")
}

func ClockInTimezone(t time.Time, tz string) string {
	if t.IsZero() {
		return ""
	}
	return t.In(LoadLocation(tz)).Format("15:04")
}
