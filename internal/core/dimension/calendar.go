package dimension

import "time"

// Date is a dim_date row.
type Date struct {
	DateKey       int
	CalendarDate  time.Time
	Year          int
	Quarter       int
	Month         int
	MonthName     string
	WeekOfYear    int
	DayOfMonth    int
	DayOfWeek     int
	DayName       string
	IsWeekend     bool
	FiscalYear    int
	FiscalQuarter int
}

// DateKey returns the YYYYMMDD key of t's UTC calendar day.
func DateKey(t time.Time) int {
	y, m, d := t.UTC().Date()
	return y*10000 + int(m)*100 + d
}

// NewDate builds the calendar attributes of t's UTC day.
// Fiscal year follows the calendar year.
func NewDate(t time.Time) Date {
	day := RunDate(t)
	_, week := day.ISOWeek()
	// time.Weekday starts on Sunday; dim_date uses 1=Monday through 7=Sunday.
	dow := int(day.Weekday())
	if dow == 0 {
		dow = 7
	}
	quarter := (int(day.Month())-1)/3 + 1
	return Date{
		DateKey:       DateKey(day),
		CalendarDate:  day,
		Year:          day.Year(),
		Quarter:       quarter,
		Month:         int(day.Month()),
		MonthName:     day.Month().String(),
		WeekOfYear:    week,
		DayOfMonth:    day.Day(),
		DayOfWeek:     dow,
		DayName:       day.Weekday().String(),
		IsWeekend:     dow >= 6,
		FiscalYear:    day.Year(),
		FiscalQuarter: quarter,
	}
}
