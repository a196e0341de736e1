package aggregate

import "time"

const dateLayout = "2006-01-02"

// dayOf truncates t to its UTC calendar date. The result is usable as a map key.
func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// addDays moves a day by whole calendar days.
func addDays(day time.Time, n int) time.Time {
	return day.AddDate(0, 0, n)
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
