package core

import "time"

// WeekStart returns the Monday of the week containing t, as a date in t's
// location. Sunday belongs to the week that started six days earlier.
func WeekStart(t time.Time) Date {
	day := DateOf(t)
	offset := int(day.Weekday()) - 1 // Monday=0 ... Saturday=5
	if day.Weekday() == time.Sunday {
		offset = 6
	}
	return day.AddDays(-offset)
}

// WeekEnd returns the Sunday closing the week that starts at start.
func WeekEnd(start Date) Date {
	return start.AddDays(6)
}
