package inventory

import "time"

// DateKeyLayout is the layout of the day keys used by the weekly menu and the
// cooked log.
const DateKeyLayout = "2006-01-02"

// DateKey returns the local calendar-day key for t.
func DateKey(t time.Time) string {
	return t.Format(DateKeyLayout)
}

// ParseDateKey parses a day key in t's location. Keys written without zero
// padding ("2024-3-5") are accepted too.
func ParseDateKey(key string, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation(DateKeyLayout, key, loc); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-1-2", key, loc)
}

// StartOfDay truncates t to local midnight.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// WeekStart returns midnight of the Monday of t's week. Sunday belongs to the
// week that started the previous Monday.
func WeekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return StartOfDay(t).AddDate(0, 0, -offset)
}

// WeekDays returns the seven day starts of the week containing t, shifted by
// offset weeks.
func WeekDays(t time.Time, offset int) []time.Time {
	start := WeekStart(t).AddDate(0, 0, 7*offset)
	days := make([]time.Time, 7)
	for i := range days {
		days[i] = start.AddDate(0, 0, i)
	}
	return days
}
