package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/service"
	"github.com/stemsi/exstem-cbt/internal/service/servicetest"
)

func recapFixture(t *testing.T) (*servicetest.Memory, *service.RecapService) {
	t.Helper()
	mem := servicetest.NewMemory()
	mem.AddStudent(servicetest.Student{ID: studentAni, NIS: "2025001", Name: "Ani", ClassID: 10}, homebaseID)
	mem.AddStudent(servicetest.Student{ID: studentBudi, NIS: "2025002", Name: "Budi", ClassID: 10}, homebaseID)
	mem.Classes[30] = 2 // a class in a homebase without an active period
	mem.Periods[homebaseID] = &model.AcademicPeriod{ID: 5, HomebaseID: homebaseID, Name: "2025/2026", IsActive: true}

	date := func(m time.Month, d int) time.Time { return time.Date(2025, m, d, 0, 0, 0, 0, time.UTC) }
	mem.MarkRows = []model.MeetingMark{
		{StudentID: studentAni, Date: date(time.August, 4), Status: model.MeetingPresent},
		{StudentID: studentAni, Date: date(time.August, 11), Status: model.MeetingLate},
		{StudentID: studentAni, Date: date(time.September, 1), Status: model.MeetingPresent},
		{StudentID: studentAni, Date: date(time.September, 8), Status: model.MeetingAbsent},
		// Second semester, outside the window.
		{StudentID: studentAni, Date: time.Date(2026, time.February, 2, 0, 0, 0, 0, time.UTC), Status: model.MeetingAbsent},
	}
	mem.FormativeRows = []model.ScoreEntry{
		{StudentID: studentAni, Month: 8, Subchapter: "1.1", Score: 80},
		{StudentID: studentAni, Month: 9, Subchapter: "1.2", Score: 90},
		{StudentID: studentAni, Month: 10, Subchapter: "2.1", Score: 80},
		{StudentID: studentAni, Month: 2, Subchapter: "5.1", Score: 10},
	}
	mem.FinalRows = []model.ScoreEntry{{StudentID: studentAni, Month: 12, Score: 88}}

	svc := service.NewRecapService(mem, mem, zerolog.Nop()).
		WithClock(func() time.Time { return time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC) })
	return mem, svc
}

func teacher() model.Principal {
	return model.Principal{ID: ownerTeacherID, Role: model.RoleTeacher, HomebaseID: homebaseID}
}

func TestStudentSubjectReport(t *testing.T) {
	_, svc := recapFixture(t)

	report, err := svc.StudentSubjectReport(context.Background(), teacher(), model.RecapQuery{SubjectID: 3, ClassID: 10, Semester: 1})
	if err != nil {
		t.Fatalf("StudentSubjectReport: %v", err)
	}
	if report.Window.StartYear != 2025 || report.Window.Months[0].Month != time.July {
		t.Errorf("window = %+v", report.Window)
	}
	if len(report.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(report.Rows))
	}

	ani := report.Rows[0]
	if ani.Student.ID != studentAni {
		t.Fatalf("first row = %+v, want Ani", ani.Student)
	}
	if ani.Attendance.Total != 4 || ani.Attendance.Percentage != 75.00 {
		t.Errorf("attendance = %+v, want 3 of 4 = 75.00", ani.Attendance)
	}
	if ani.FormativeAvg == nil || *ani.FormativeAvg != 83.33 {
		t.Errorf("formative avg = %v, want 83.33", ani.FormativeAvg)
	}
	if ani.FinalAvg == nil || *ani.FinalAvg != 88 {
		t.Errorf("final avg = %v, want 88", ani.FinalAvg)
	}
	if ani.SummativeAvg != nil || ani.AttitudeAvg != nil {
		t.Errorf("empty averages should be nil: %+v", ani)
	}

	budi := report.Rows[1]
	if budi.Attendance.Total != 0 || budi.Attendance.Percentage != 0 || budi.FormativeAvg != nil {
		t.Errorf("Budi = %+v, want an empty row", budi)
	}
}

func TestFinalScoresSkipAttendance(t *testing.T) {
	_, svc := recapFixture(t)

	report, err := svc.FinalScores(context.Background(), teacher(), model.RecapQuery{SubjectID: 3, ClassID: 10, Semester: 1})
	if err != nil {
		t.Fatalf("FinalScores: %v", err)
	}
	if report.Rows[0].Attendance.Total != 0 {
		t.Errorf("attendance = %+v, want none", report.Rows[0].Attendance)
	}
	if report.Rows[0].FinalAvg == nil {
		t.Error("final avg missing")
	}
}

func TestMonthlyFormativeMatrix(t *testing.T) {
	_, svc := recapFixture(t)

	report, err := svc.MonthlyFormative(context.Background(), teacher(), model.RecapQuery{SubjectID: 3, ClassID: 10, Semester: 1})
	if err != nil {
		t.Fatalf("MonthlyFormative: %v", err)
	}
	if report.Period.ID != 5 {
		t.Errorf("period = %+v", report.Period)
	}
	if len(report.Months) != 6 {
		t.Fatalf("months = %d, want 6", len(report.Months))
	}
	// July has no entries; August has one slot.
	if len(report.Months[0].Slots) != 0 || len(report.Months[1].Slots) != 1 {
		t.Errorf("slots per month = %d, %d", len(report.Months[0].Slots), len(report.Months[1].Slots))
	}
	row := report.Rows[0]
	if row.Average == nil || *row.Average != 83.33 {
		t.Errorf("row average = %v, want 83.33", row.Average)
	}
}

func TestAttendanceSheet(t *testing.T) {
	_, svc := recapFixture(t)

	report, err := svc.Attendance(context.Background(), teacher(), model.RecapQuery{SubjectID: 3, ClassID: 10, Semester: 1})
	if err != nil {
		t.Fatalf("Attendance: %v", err)
	}
	if report.Months[1].MeetingDays != 2 || report.Months[2].MeetingDays != 2 {
		t.Errorf("meeting days = %+v", report.Months)
	}
	if got := report.Rows[0].Total.Percentage; got != 75 {
		t.Errorf("total percentage = %v, want 75", got)
	}
	if got := report.Rows[0].Months[1].Percentage; got != 100 {
		t.Errorf("August percentage = %v, want 100", got)
	}
}

func TestRecapScopeChecks(t *testing.T) {
	_, svc := recapFixture(t)
	q := model.RecapQuery{SubjectID: 3, ClassID: 10, Semester: 1}

	tests := []struct {
		name string
		p    model.Principal
		q    model.RecapQuery
		want error
	}{
		{"student", model.Principal{ID: studentAni, Role: model.RoleStudent, HomebaseID: homebaseID}, q, service.ErrForbidden},
		{"other homebase", model.Principal{ID: 1, Role: model.RoleAdmin, HomebaseID: 2}, q, service.ErrForbidden},
		{"unknown class", teacher(), model.RecapQuery{SubjectID: 3, ClassID: 404, Semester: 1}, service.ErrClassNotFound},
		{"no active period", model.Principal{ID: 1, Role: model.RoleAdmin, HomebaseID: 2}, model.RecapQuery{SubjectID: 3, ClassID: 30, Semester: 1}, service.ErrNoActivePeriod},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.StudentSubjectReport(context.Background(), tc.p, tc.q)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestRecapIsDeterministic(t *testing.T) {
	_, svc := recapFixture(t)
	q := model.RecapQuery{SubjectID: 3, ClassID: 10, Semester: 1}

	first, err := svc.Summative(context.Background(), teacher(), q)
	if err != nil {
		t.Fatalf("Summative: %v", err)
	}
	second, _ := svc.Summative(context.Background(), teacher(), q)
	if len(first.Rows) != len(second.Rows) || first.Rows[0].Student != second.Rows[0].Student {
		t.Errorf("repeated call differs")
	}
}
