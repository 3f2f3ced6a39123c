// Package recap folds gradebook rows into report views. It is a projection:
// the same rows always produce the same output.
package recap

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Month is one calendar month of a semester.
type Month struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
}

// Label renders the month as "2025-07".
func (m Month) Label() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// Window is the calendar span of one semester.
type Window struct {
	Semester  int       `json:"semester"`
	StartYear int       `json:"start_year"`
	Months    []Month   `json:"months"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"` // exclusive
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

// HasMonth reports whether the month number belongs to the semester.
func (w Window) HasMonth(month int) bool {
	for _, m := range w.Months {
		if int(m.Month) == month {
			return true
		}
	}
	return false
}

var periodNamePattern = regexp.MustCompile(`^\s*(\d{4})\s*/\s*(\d{4})\s*$`)

// ParseStartYear extracts 2025 from "2025/2026".
func ParseStartYear(name string) (int, bool) {
	m := periodNamePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	start, _ := strconv.Atoi(m[1])
	return start, true
}

// FallbackStartYear guesses the academic year from the date: from July the
// current year starts a new one.
func FallbackStartYear(now time.Time) int {
	if now.Month() >= time.July {
		return now.Year()
	}
	return now.Year() - 1
}

// SemesterWindow returns July..December of the start year for semester 1 and
// January..June of the following year for semester 2.
func SemesterWindow(periodName string, semester int, now time.Time) Window {
	startYear, ok := ParseStartYear(periodName)
	if !ok {
		startYear = FallbackStartYear(now)
	}

	year, first := startYear, time.July
	if semester == 2 {
		year, first = startYear+1, time.January
	}

	w := Window{Semester: semester, StartYear: startYear, Months: make([]Month, 0, 6)}
	for i := 0; i < 6; i++ {
		w.Months = append(w.Months, Month{Year: year, Month: first + time.Month(i)})
	}
	w.From = time.Date(year, first, 1, 0, 0, 0, 0, time.UTC)
	w.To = w.From.AddDate(0, 6, 0)
	return w
}
