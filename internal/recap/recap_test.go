package recap

import (
	"reflect"
	"testing"
	"time"

	"github.com/stemsi/exstem-cbt/internal/model"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func intPtr(v int) *int { return &v }

func TestSemesterWindow(t *testing.T) {
	tests := []struct {
		name      string
		period    string
		semester  int
		now       time.Time
		wantStart int
		wantFirst Month
		wantLast  Month
	}{
		{
			name: "odd semester from name", period: "2025/2026", semester: 1, now: day(2030, 1, 1),
			wantStart: 2025, wantFirst: Month{2025, time.July}, wantLast: Month{2025, time.December},
		},
		{
			name: "even semester from name", period: "2025/2026", semester: 2, now: day(2030, 1, 1),
			wantStart: 2025, wantFirst: Month{2026, time.January}, wantLast: Month{2026, time.June},
		},
		{
			name: "fallback in second half of year", period: "Tahun Ajaran Baru", semester: 1, now: day(2026, 8, 15),
			wantStart: 2026, wantFirst: Month{2026, time.July}, wantLast: Month{2026, time.December},
		},
		{
			name: "fallback in first half of year", period: "", semester: 2, now: day(2026, 3, 1),
			wantStart: 2025, wantFirst: Month{2026, time.January}, wantLast: Month{2026, time.June},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := SemesterWindow(tc.period, tc.semester, tc.now)
			if w.StartYear != tc.wantStart {
				t.Errorf("start year = %d, want %d", w.StartYear, tc.wantStart)
			}
			if len(w.Months) != 6 {
				t.Fatalf("months = %d, want 6", len(w.Months))
			}
			if w.Months[0] != tc.wantFirst || w.Months[5] != tc.wantLast {
				t.Errorf("months %v..%v, want %v..%v", w.Months[0], w.Months[5], tc.wantFirst, tc.wantLast)
			}
			if !w.Contains(day(tc.wantLast.Year, tc.wantLast.Month, 28)) {
				t.Error("window does not contain its last month")
			}
			if w.Contains(w.To) {
				t.Error("window end must be exclusive")
			}
		})
	}
}

func TestSummarizeAttendance(t *testing.T) {
	statuses := []model.MeetingStatus{
		model.MeetingPresent, model.MeetingPresent, model.MeetingPresent, model.MeetingPresent,
		model.MeetingLate, model.MeetingLate, model.MeetingSick, model.MeetingAbsent,
	}
	marks := make([]model.MeetingMark, 0, len(statuses))
	for i, st := range statuses {
		marks = append(marks, model.MeetingMark{StudentID: 1, Date: day(2025, 8, i+1), Status: st})
	}

	got := SummarizeAttendance(marks)
	if got.Total != 8 {
		t.Errorf("total = %d, want 8", got.Total)
	}
	if got.Percentage != 75.00 {
		t.Errorf("percentage = %v, want 75.00", got.Percentage)
	}
	if empty := SummarizeAttendance(nil); empty.Percentage != 0 {
		t.Errorf("empty percentage = %v, want 0", empty.Percentage)
	}
}

func TestAverageRoundsHalfUp(t *testing.T) {
	got := Average([]float64{80, 85, 85})
	if got == nil || *got != 83.33 {
		t.Fatalf("Average = %v, want 83.33", got)
	}
	if Average(nil) != nil {
		t.Error("Average(nil) should be nil")
	}
}

func TestBuildMatrixSlots(t *testing.T) {
	w := SemesterWindow("2025/2026", 1, day(2025, 9, 1))
	students := []model.RosterStudent{{ID: 1, Name: "Ani"}, {ID: 2, Name: "Budi"}}
	entries := []model.ScoreEntry{
		{StudentID: 1, Month: 8, ChapterID: intPtr(2), Subchapter: "2.1", Score: 90},
		{StudentID: 2, Month: 8, ChapterID: intPtr(1), Subchapter: "1.1", Score: 70},
		{StudentID: 1, Month: 8, ChapterID: intPtr(1), Subchapter: "1.1", Score: 80},
		{StudentID: 1, Month: 8, ChapterID: intPtr(1), Subchapter: "1.1", Score: 85},
		{StudentID: 1, Month: 9, ChapterID: intPtr(3), Subchapter: "3.1", Score: 60},
		{StudentID: 1, Month: 3, ChapterID: intPtr(9), Subchapter: "9.9", Score: 10}, // other semester
	}

	m := BuildMatrix(w, students, entries, FormativeSlot)

	aug := m.Months[1]
	if aug.Label != "2025-08" {
		t.Fatalf("second month = %s, want 2025-08", aug.Label)
	}
	keys := []string{}
	for _, s := range aug.Slots {
		keys = append(keys, s.Key)
	}
	if want := []string{"1:1.1", "2:2.1"}; !reflect.DeepEqual(keys, want) {
		t.Errorf("august slots = %v, want %v", keys, want)
	}
	if n := len(m.Months[2].Slots); n != 1 {
		t.Errorf("september slots = %d, want 1", n)
	}
	if n := len(m.Months[0].Slots); n != 0 {
		t.Errorf("july slots = %d, want 0", n)
	}

	ani := m.Rows[0]
	if s := ani.Months[1].Scores[0]; s == nil || *s != 82.5 {
		t.Errorf("ani 1.1 = %v, want 82.5", s)
	}
	// (90+80+85+60)/4
	if ani.Average == nil || *ani.Average != 78.75 {
		t.Errorf("ani average = %v, want 78.75", ani.Average)
	}
	if s := m.Rows[1].Months[1].Scores[1]; s != nil {
		t.Errorf("budi 2.1 = %v, want empty cell", *s)
	}
}

func TestBuildMatrixIsDeterministic(t *testing.T) {
	w := SemesterWindow("2025/2026", 2, day(2026, 2, 1))
	students := []model.RosterStudent{{ID: 1}}
	a := []model.ScoreEntry{
		{StudentID: 1, Month: 2, ChapterID: intPtr(1), Subtype: model.SummativeWritten, Score: 70},
		{StudentID: 1, Month: 2, ChapterID: intPtr(1), Subtype: model.SummativeSkill, Score: 90},
	}
	b := []model.ScoreEntry{a[1], a[0]}

	ma := BuildMatrix(w, students, a, SummativeSlot)
	mb := BuildMatrix(w, students, b, SummativeSlot)
	if !reflect.DeepEqual(ma, mb) {
		t.Fatal("input order changed the matrix")
	}
	if avg := ma.Rows[0].Average; avg == nil || *avg != 80 {
		t.Errorf("pooled summative average = %v, want 80", avg)
	}
}

func TestBuildReportAndAttendanceSheet(t *testing.T) {
	w := SemesterWindow("2025/2026", 1, day(2025, 9, 1))
	students := []model.RosterStudent{{ID: 1}, {ID: 2}}
	marks := []model.MeetingMark{
		{StudentID: 1, Date: day(2025, 7, 14), Status: model.MeetingPresent},
		{StudentID: 2, Date: day(2025, 7, 14), Status: model.MeetingAbsent},
		{StudentID: 1, Date: day(2025, 7, 21), Status: model.MeetingLate},
		{StudentID: 1, Date: day(2026, 1, 5), Status: model.MeetingAbsent}, // outside window
	}
	src := Sources{
		Marks:     marks,
		Formative: []model.ScoreEntry{{StudentID: 1, Month: 7, Score: 83.333}},
		Final:     []model.ScoreEntry{{StudentID: 1, Score: 88}},
	}

	rows := BuildReport(w, students, src)
	if rows[0].Attendance.Percentage != 100 {
		t.Errorf("student 1 attendance = %v, want 100", rows[0].Attendance.Percentage)
	}
	if rows[0].FormativeAvg == nil || *rows[0].FormativeAvg != 83.33 {
		t.Errorf("formative = %v, want 83.33", rows[0].FormativeAvg)
	}
	if rows[1].FinalAvg != nil {
		t.Error("student 2 has no final score")
	}

	sheet := BuildAttendance(w, students, marks)
	if sheet.Months[0].MeetingDays != 2 {
		t.Errorf("july meeting days = %d, want 2", sheet.Months[0].MeetingDays)
	}
	if sheet.Rows[1].Total.Percentage != 0 || sheet.Rows[1].Total.Absent != 1 {
		t.Errorf("student 2 total = %+v", sheet.Rows[1].Total)
	}
}
