package streak

import "time"

// DayKeyLayout renders a calendar day as weekday, month, day and year.
const DayKeyLayout = "Mon Jan 02 2006"

const hoursPerDay = 24

// Day is a date-only identifier in the calculator's location.
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

// DayOf projects a timestamp onto its calendar day in the given location.
func DayOf(timestamp time.Time, location *time.Location) Day {
	if location == nil {
		location = time.UTC
	}
	year, month, day := timestamp.In(location).Date()
	return Day{Year: year, Month: month, Day: day}
}

// Key returns the textual identifier of the day.
func (d Day) Key() string {
	return d.civil().Format(DayKeyLayout)
}

// String implements fmt.Stringer using the ISO date form.
func (d Day) String() string {
	return d.civil().Format(time.DateOnly)
}

// Start returns midnight of the day in the given location.
func (d Day) Start(location *time.Location) time.Time {
	if location == nil {
		location = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, location)
}

// AddDays shifts the day by n calendar days.
func (d Day) AddDays(n int) Day {
	return DayOf(d.civil().AddDate(0, 0, n), time.UTC)
}

// Before reports whether d is strictly earlier than other.
func (d Day) Before(other Day) bool {
	return daysBetween(d, other) > 0
}

func (d Day) civil() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// daysBetween returns the number of calendar days from a to b.
func daysBetween(a, b Day) int {
	return int(b.civil().Sub(a.civil()).Hours() / hoursPerDay)
}
