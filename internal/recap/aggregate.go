package recap

import (
	"cmp"
	"slices"
	"strconv"

	"github.com/stemsi/exstem-cbt/internal/mathutil"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// AttendanceSummary counts meeting marks.
type AttendanceSummary struct {
	Present    int     `json:"present"`
	Late       int     `json:"late"`
	Sick       int     `json:"sick"`
	Permit     int     `json:"permit"`
	Absent     int     `json:"absent"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

func (s *AttendanceSummary) add(st model.MeetingStatus) {
	switch st {
	case model.MeetingPresent:
		s.Present++
	case model.MeetingLate:
		s.Late++
	case model.MeetingSick:
		s.Sick++
	case model.MeetingPermit:
		s.Permit++
	case model.MeetingAbsent:
		s.Absent++
	default:
		return
	}
	s.Total++
}

func (s *AttendanceSummary) finish() {
	s.Percentage = 0
	if s.Total > 0 {
		s.Percentage = mathutil.Round2(float64(s.Present+s.Late) / float64(s.Total) * 100)
	}
}

// SummarizeAttendance computes the present-or-late share of recorded meetings.
func SummarizeAttendance(marks []model.MeetingMark) AttendanceSummary {
	var s AttendanceSummary
	for _, m := range marks {
		s.add(m.Status)
	}
	s.finish()
	return s
}

// Average returns the rounded mean, or nil when there is nothing to average.
func Average(scores []float64) *float64 {
	if len(scores) == 0 {
		return nil
	}
	var sum float64
	for _, v := range scores {
		sum += v
	}
	avg := mathutil.Round2(sum / float64(len(scores)))
	return &avg
}

// ReportRow is one student's line in the subject report.
type ReportRow struct {
	Student      model.RosterStudent `json:"student"`
	Attendance   AttendanceSummary   `json:"attendance"`
	FormativeAvg *float64            `json:"formative_avg"`
	SummativeAvg *float64            `json:"summative_avg"`
	AttitudeAvg  *float64            `json:"attitude_avg"`
	FinalAvg     *float64            `json:"final_avg"`
}

// Sources bundles the rows a report is built from. Rows outside the window
// are ignored.
type Sources struct {
	Marks     []model.MeetingMark
	Formative []model.ScoreEntry
	Summative []model.ScoreEntry
	Attitude  []model.ScoreEntry
	Final     []model.ScoreEntry
}

// BuildReport produces one row per student, in roster order.
func BuildReport(w Window, students []model.RosterStudent, src Sources) []ReportRow {
	marks := make(map[int][]model.MeetingMark)
	for _, m := range src.Marks {
		if w.Contains(m.Date) {
			marks[m.StudentID] = append(marks[m.StudentID], m)
		}
	}
	formative := scoresByStudent(w, src.Formative, true)
	summative := scoresByStudent(w, src.Summative, true)
	attitude := scoresByStudent(w, src.Attitude, true)
	final := scoresByStudent(w, src.Final, false)

	rows := make([]ReportRow, 0, len(students))
	for _, st := range students {
		rows = append(rows, ReportRow{
			Student:      st,
			Attendance:   SummarizeAttendance(marks[st.ID]),
			FormativeAvg: Average(formative[st.ID]),
			SummativeAvg: Average(summative[st.ID]),
			AttitudeAvg:  Average(attitude[st.ID]),
			FinalAvg:     Average(final[st.ID]),
		})
	}
	return rows
}

func scoresByStudent(w Window, entries []model.ScoreEntry, monthly bool) map[int][]float64 {
	out := make(map[int][]float64)
	for _, e := range entries {
		if monthly && !w.HasMonth(e.Month) {
			continue
		}
		out[e.StudentID] = append(out[e.StudentID], e.Score)
	}
	return out
}

// Slot is one gradebook column within a month.
type Slot struct {
	Key        string `json:"key"`
	ChapterID  *int   `json:"chapter_id"`
	Subchapter string `json:"subchapter"`
}

// FormativeSlot keys formative entries by chapter and subchapter code.
func FormativeSlot(e model.ScoreEntry) Slot {
	return newSlot(e.ChapterID, e.Subchapter)
}

// SummativeSlot keys summative entries by chapter and written/skill subtype.
func SummativeSlot(e model.ScoreEntry) Slot {
	return newSlot(e.ChapterID, string(e.Subtype))
}

func newSlot(chapter *int, sub string) Slot {
	key := "-"
	if chapter != nil {
		key = strconv.Itoa(*chapter)
	}
	return Slot{Key: key + ":" + sub, ChapterID: chapter, Subchapter: sub}
}

func compareSlots(a, b Slot) int {
	switch {
	case a.ChapterID == nil && b.ChapterID != nil:
		return -1
	case a.ChapterID != nil && b.ChapterID == nil:
		return 1
	case a.ChapterID != nil && b.ChapterID != nil && *a.ChapterID != *b.ChapterID:
		return cmp.Compare(*a.ChapterID, *b.ChapterID)
	}
	return cmp.Compare(a.Subchapter, b.Subchapter)
}

// MonthColumn lists the slots of one month.
type MonthColumn struct {
	Month Month  `json:"month"`
	Label string `json:"label"`
	Slots []Slot `json:"slots"`
}

// MonthCells holds one student's scores aligned to the month's slots.
type MonthCells struct {
	Label   string     `json:"label"`
	Scores  []*float64 `json:"scores"`
	Average *float64   `json:"average"`
}

// MatrixRow is one student across the semester.
type MatrixRow struct {
	Student model.RosterStudent `json:"student"`
	Months  []MonthCells        `json:"months"`
	Average *float64            `json:"average"`
}

// Matrix is the month-by-slot gradebook table.
type Matrix struct {
	Window Window        `json:"window"`
	Months []MonthColumn `json:"months"`
	Rows   []MatrixRow   `json:"rows"`
}

// BuildMatrix lays entries out per month. Each month's slots are the
// distinct keys present that month, sorted, so column counts may differ
// between months. A cell with several entries shows their mean.
func BuildMatrix(w Window, students []model.RosterStudent, entries []model.ScoreEntry, slotOf func(model.ScoreEntry) Slot) Matrix {
	type cellKey struct {
		student int
		month   int
		slot    string
	}

	slotsByMonth := make(map[int][]Slot)
	cells := make(map[cellKey][]float64)
	pooled := make(map[int][]float64)
	pooledByMonth := make(map[[2]int][]float64)

	for _, e := range entries {
		if !w.HasMonth(e.Month) {
			continue
		}
		s := slotOf(e)
		if !slices.ContainsFunc(slotsByMonth[e.Month], func(x Slot) bool { return x.Key == s.Key }) {
			slotsByMonth[e.Month] = append(slotsByMonth[e.Month], s)
		}
		k := cellKey{student: e.StudentID, month: e.Month, slot: s.Key}
		cells[k] = append(cells[k], e.Score)
		pooled[e.StudentID] = append(pooled[e.StudentID], e.Score)
		mk := [2]int{e.StudentID, e.Month}
		pooledByMonth[mk] = append(pooledByMonth[mk], e.Score)
	}

	m := Matrix{Window: w, Months: make([]MonthColumn, 0, len(w.Months))}
	for _, mo := range w.Months {
		slots := slotsByMonth[int(mo.Month)]
		slices.SortFunc(slots, compareSlots)
		if slots == nil {
			slots = []Slot{}
		}
		m.Months = append(m.Months, MonthColumn{Month: mo, Label: mo.Label(), Slots: slots})
	}

	m.Rows = make([]MatrixRow, 0, len(students))
	for _, st := range students {
		row := MatrixRow{Student: st, Months: make([]MonthCells, 0, len(m.Months)), Average: Average(pooled[st.ID])}
		for _, col := range m.Months {
			mc := MonthCells{
				Label:   col.Label,
				Scores:  make([]*float64, len(col.Slots)),
				Average: Average(pooledByMonth[[2]int{st.ID, int(col.Month.Month)}]),
			}
			for i, s := range col.Slots {
				mc.Scores[i] = Average(cells[cellKey{student: st.ID, month: int(col.Month.Month), slot: s.Key}])
			}
			row.Months = append(row.Months, mc)
		}
		m.Rows = append(m.Rows, row)
	}
	return m
}

// AttendanceColumn is one month of the attendance sheet.
type AttendanceColumn struct {
	Month       Month  `json:"month"`
	Label       string `json:"label"`
	MeetingDays int    `json:"meeting_days"`
}

// AttendanceRow is one student's attendance per month and overall.
type AttendanceRow struct {
	Student model.RosterStudent `json:"student"`
	Months  []AttendanceSummary `json:"months"`
	Total   AttendanceSummary   `json:"total"`
}

// AttendanceSheet is the monthly attendance recap.
type AttendanceSheet struct {
	Window Window             `json:"window"`
	Months []AttendanceColumn `json:"months"`
	Rows   []AttendanceRow    `json:"rows"`
}

// BuildAttendance groups meeting marks by month. Meeting days are distinct
// dates recorded for any student that month.
func BuildAttendance(w Window, students []model.RosterStudent, marks []model.MeetingMark) AttendanceSheet {
	days := make(map[Month]map[string]struct{})
	byStudentMonth := make(map[int]map[Month][]model.MeetingMark)

	for _, mk := range marks {
		if !w.Contains(mk.Date) {
			continue
		}
		mo := Month{Year: mk.Date.Year(), Month: mk.Date.Month()}
		if days[mo] == nil {
			days[mo] = make(map[string]struct{})
		}
		days[mo][mk.Date.Format("2006-01-02")] = struct{}{}
		if byStudentMonth[mk.StudentID] == nil {
			byStudentMonth[mk.StudentID] = make(map[Month][]model.MeetingMark)
		}
		byStudentMonth[mk.StudentID][mo] = append(byStudentMonth[mk.StudentID][mo], mk)
	}

	sheet := AttendanceSheet{Window: w, Months: make([]AttendanceColumn, 0, len(w.Months))}
	for _, mo := range w.Months {
		sheet.Months = append(sheet.Months, AttendanceColumn{Month: mo, Label: mo.Label(), MeetingDays: len(days[mo])})
	}

	sheet.Rows = make([]AttendanceRow, 0, len(students))
	for _, st := range students {
		row := AttendanceRow{Student: st, Months: make([]AttendanceSummary, 0, len(w.Months))}
		var all []model.MeetingMark
		for _, mo := range w.Months {
			mm := byStudentMonth[st.ID][mo]
			all = append(all, mm...)
			row.Months = append(row.Months, SummarizeAttendance(mm))
		}
		row.Total = SummarizeAttendance(all)
		sheet.Rows = append(sheet.Rows, row)
	}
	return sheet
}
