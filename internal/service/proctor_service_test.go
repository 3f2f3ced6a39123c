package service_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/service"
)

func TestCanManageExam(t *testing.T) {
	exam := &model.Exam{OwnerTeacherID: ownerTeacherID, OwnerHomebaseID: homebaseID}

	tests := []struct {
		name string
		p    model.Principal
		want bool
	}{
		{"owning teacher", model.Principal{ID: ownerTeacherID, Role: model.RoleTeacher, HomebaseID: homebaseID}, true},
		{"other teacher same homebase", model.Principal{ID: 8, Role: model.RoleTeacher, HomebaseID: homebaseID}, false},
		{"admin of homebase", model.Principal{ID: 1, Role: model.RoleAdmin, HomebaseID: homebaseID}, true},
		{"admin of other homebase", model.Principal{ID: 1, Role: model.RoleAdmin, HomebaseID: 2}, false},
		{"admin without homebase", model.Principal{ID: 1, Role: model.RoleAdmin}, false},
		{"student", model.Principal{ID: ownerTeacherID, Role: model.RoleStudent, HomebaseID: homebaseID}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := service.CanManageExam(tc.p, exam); got != tc.want {
				t.Errorf("CanManageExam = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestProctorActionsRequireOwnership(t *testing.T) {
	f := newFixture(t)
	f.enter(studentAni)
	stranger := model.Principal{ID: 99, Role: model.RoleTeacher, HomebaseID: homebaseID}

	checks := map[string]error{
		"allow":        f.proctor.Allow(f.ctx, stranger, f.exam.ID, studentAni, nil),
		"repeat":       f.proctor.Repeat(f.ctx, stranger, f.exam.ID, studentAni),
		"force finish": f.proctor.ForceFinish(f.ctx, stranger, f.exam.ID, studentAni),
		"grade":        f.proctor.GradeAnswer(f.ctx, stranger, f.exam.ID, studentAni, f.essay.ID, 10),
	}
	_, _, _, err := f.proctor.Roster(f.ctx, stranger, f.exam.ID, model.RosterFilter{})
	checks["roster"] = err
	_, err = f.proctor.Scores(f.ctx, stranger, f.exam.ID)
	checks["scores"] = err
	_, err = f.proctor.StudentAnswers(f.ctx, stranger, f.exam.ID, studentAni)
	checks["answers"] = err

	for name, err := range checks {
		if !errors.Is(err, service.ErrForbidden) {
			t.Errorf("%s: err = %v, want ErrForbidden", name, err)
		}
	}
	if got := f.status(studentAni); got != model.AttendanceWorking {
		t.Errorf("status changed to %s by a forbidden call", got)
	}

	if _, err := f.proctor.Authorize(f.ctx, f.owner, uuid.New()); !errors.Is(err, service.ErrExamNotFound) {
		t.Errorf("unknown exam err = %v, want ErrExamNotFound", err)
	}
}

func TestAllowReadmitsAndDiscardsOneAnswer(t *testing.T) {
	f := newFixture(t)
	f.enter(studentAni)
	if err := f.save(studentAni, f.choice.ID, optB.String()); err != nil {
		t.Fatalf("save choice: %v", err)
	}
	if err := f.save(studentAni, f.essay.ID, "draft"); err != nil {
		t.Fatalf("save essay: %v", err)
	}
	if _, err := f.sessions.ReportViolation(f.ctx, studentAni, f.exam.ID, "copy paste"); err != nil {
		t.Fatalf("ReportViolation: %v", err)
	}

	qid := f.choice.ID
	if err := f.proctor.Allow(f.ctx, f.owner, f.exam.ID, studentAni, &qid); err != nil {
		t.Fatalf("Allow: %v", err)
	}

	if got := f.status(studentAni); got != model.AttendanceWorking {
		t.Errorf("status = %s, want %s", got, model.AttendanceWorking)
	}
	att, _ := f.mem.Attendance().Find(f.ctx, f.exam.ID, studentAni)
	if att.Status != model.AttendanceAllowed {
		t.Errorf("stored status = %s, want %s", att.Status, model.AttendanceAllowed)
	}
	if _, ok := f.mem.AnswerOf(f.exam.ID, studentAni, f.choice.ID); ok {
		t.Error("discarded answer still stored")
	}
	if _, ok := f.mem.AnswerOf(f.exam.ID, studentAni, f.essay.ID); !ok {
		t.Error("unrelated answer was removed")
	}

	// The readmitted student can work again.
	if err := f.save(studentAni, f.choice.ID, optA.String()); err != nil {
		t.Fatalf("save after allow: %v", err)
	}
	if n := f.events.count(model.MonitorAllowed); n != 1 {
		t.Errorf("allowed events = %d, want 1", n)
	}
}

func TestAllowErrors(t *testing.T) {
	f := newFixture(t)

	if err := f.proctor.Allow(f.ctx, f.owner, f.exam.ID, studentAni, nil); !errors.Is(err, service.ErrAttendanceNotFound) {
		t.Fatalf("no row err = %v, want ErrAttendanceNotFound", err)
	}

	f.enter(studentAni)
	foreign := uuid.New()
	if err := f.proctor.Allow(f.ctx, f.owner, f.exam.ID, studentAni, &foreign); !errors.Is(err, service.ErrQuestionNotInExam) {
		t.Fatalf("foreign question err = %v, want ErrQuestionNotInExam", err)
	}
}

func TestRepeatAllowsFreshEntry(t *testing.T) {
	f := newFixture(t)
	first := f.enter(studentAni)
	if err := f.save(studentAni, f.choice.ID, optA.String()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := f.sessions.Finish(f.ctx, studentAni, f.exam.ID); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	if err := f.proctor.Repeat(f.ctx, f.owner, f.exam.ID, studentAni); err != nil {
		t.Fatalf("Repeat: %v", err)
	}
	if got := f.status(studentAni); got != model.AttendanceNotEntered {
		t.Errorf("status = %s, want %s", got, model.AttendanceNotEntered)
	}
	if n := f.mem.AnswerCount(f.exam.ID, studentAni); n != 0 {
		t.Errorf("answers left = %d, want 0", n)
	}

	second := f.enter(studentAni)
	if second.ID == first.ID {
		t.Error("fresh entry reused the old log id")
	}

	if err := f.proctor.Repeat(f.ctx, f.owner, f.exam.ID, studentBudi); !errors.Is(err, service.ErrAttendanceNotFound) {
		t.Errorf("repeat without row err = %v, want ErrAttendanceNotFound", err)
	}
}

func TestForceFinishFromAnyState(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture)
	}{
		{"working", func(f *fixture) {}},
		{"violated", func(f *fixture) {
			if _, err := f.sessions.ReportViolation(f.ctx, studentAni, f.exam.ID, ""); err != nil {
				f.t.Fatalf("ReportViolation: %v", err)
			}
		}},
		{"already done", func(f *fixture) {
			if _, err := f.sessions.Finish(f.ctx, studentAni, f.exam.ID); err != nil {
				f.t.Fatalf("Finish: %v", err)
			}
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.enter(studentAni)
			tc.setup(f)

			if err := f.proctor.ForceFinish(f.ctx, f.owner, f.exam.ID, studentAni); err != nil {
				t.Fatalf("ForceFinish: %v", err)
			}
			if got := f.status(studentAni); got != model.AttendanceDone {
				t.Errorf("status = %s, want %s", got, model.AttendanceDone)
			}
			// The student's own finish is now a no-op.
			if status, err := f.sessions.Finish(f.ctx, studentAni, f.exam.ID); err != nil || status != model.AttendanceDone {
				t.Errorf("Finish = %s, %v", status, err)
			}
		})
	}

	f := newFixture(t)
	if err := f.proctor.ForceFinish(f.ctx, f.owner, f.exam.ID, studentAni); !errors.Is(err, service.ErrAttendanceNotFound) {
		t.Errorf("no row err = %v, want ErrAttendanceNotFound", err)
	}
}

func TestGradeAnswer(t *testing.T) {
	f := newFixture(t)
	f.enter(studentAni)

	tests := []struct {
		name     string
		question uuid.UUID
		score    float64
		want     error
	}{
		{"auto-scored type", f.choice.ID, 10, service.ErrNotManuallyGraded},
		{"above points", f.essay.ID, 50.5, service.ErrScoreOutOfRange},
		{"negative", f.essay.ID, -1, service.ErrScoreOutOfRange},
		{"unknown question", uuid.New(), 10, service.ErrQuestionNotInExam},
		{"no answer row", f.essay.ID, 10, service.ErrAnswerNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := f.proctor.GradeAnswer(f.ctx, f.owner, f.exam.ID, studentAni, tc.question, tc.score)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}

	if err := f.save(studentAni, f.essay.ID, "Energi tidak dapat diciptakan."); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := f.proctor.GradeAnswer(f.ctx, f.owner, f.exam.ID, studentAni, f.essay.ID, 50); err != nil {
		t.Fatalf("grade at the limit: %v", err)
	}
	if err := f.proctor.GradeAnswer(f.ctx, f.owner, f.exam.ID, studentAni, f.essay.ID, 40); err != nil {
		t.Fatalf("regrade: %v", err)
	}
	a, _ := f.mem.AnswerOf(f.exam.ID, studentAni, f.essay.ID)
	if a.ManualScore == nil || *a.ManualScore != 40 {
		t.Errorf("manual score = %v, want 40", a.ManualScore)
	}
}

func TestScoresRecomputeFromAnswers(t *testing.T) {
	f := newFixture(t)
	f.enter(studentAni)
	f.enter(studentBudi)

	if err := f.save(studentAni, f.choice.ID, optA.String()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := f.save(studentAni, f.essay.ID, "jawaban"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := f.save(studentBudi, f.choice.ID, optB.String()); err != nil {
		t.Fatalf("save: %v", err)
	}

	scores, err := f.proctor.Scores(f.ctx, f.owner, f.exam.ID)
	if err != nil {
		t.Fatalf("Scores: %v", err)
	}
	if len(scores) != 2 {
		t.Fatalf("rows = %d, want 2", len(scores))
	}
	ani, budi := scores[0].Result, scores[1].Result
	if ani.Total != 50 || ani.Correct != 1 || ani.PendingGrade != 1 {
		t.Errorf("Ani before grading = %+v", ani)
	}
	if budi.Total != 0 || budi.Wrong != 1 || budi.Unanswered != 1 {
		t.Errorf("Budi = %+v", budi)
	}

	if err := f.proctor.GradeAnswer(f.ctx, f.owner, f.exam.ID, studentAni, f.essay.ID, 40); err != nil {
		t.Fatalf("GradeAnswer: %v", err)
	}
	scores, _ = f.proctor.Scores(f.ctx, f.owner, f.exam.ID)
	if got := scores[0].Result.Total; got != 90 {
		t.Errorf("Ani after grading = %v, want 90", got)
	}

	review, err := f.proctor.StudentAnswers(f.ctx, f.owner, f.exam.ID, studentAni)
	if err != nil {
		t.Fatalf("StudentAnswers: %v", err)
	}
	if review.Total != 90 || len(review.Items) != 2 {
		t.Errorf("review = %+v", review)
	}
	if review.Items[1].Answer == nil || review.Items[1].Result.ManualScore == nil {
		t.Errorf("essay item = %+v", review.Items[1])
	}

	if _, err := f.proctor.StudentAnswers(f.ctx, f.owner, f.exam.ID, studentOut); !errors.Is(err, service.ErrAttendanceNotFound) {
		t.Errorf("review without row err = %v, want ErrAttendanceNotFound", err)
	}
}

func TestRosterFiltersAndPaging(t *testing.T) {
	f := newFixture(t)
	f.enter(studentAni)
	if _, err := f.sessions.ReportViolation(f.ctx, studentAni, f.exam.ID, ""); err != nil {
		t.Fatalf("ReportViolation: %v", err)
	}

	entries, total, filter, err := f.proctor.Roster(f.ctx, f.owner, f.exam.ID, model.RosterFilter{PerPage: 500})
	if err != nil {
		t.Fatalf("Roster: %v", err)
	}
	if filter.Page != 1 || filter.PerPage != 100 {
		t.Errorf("normalized filter = %+v", filter)
	}
	if total != 2 || len(entries) != 2 {
		t.Fatalf("roster = %d of %d, want 2 of 2", len(entries), total)
	}
	if entries[0].Status != model.AttendanceViolation || entries[1].Status != model.AttendanceNotEntered {
		t.Errorf("statuses = %s, %s", entries[0].Status, entries[1].Status)
	}

	entries, total, _, _ = f.proctor.Roster(f.ctx, f.owner, f.exam.ID, model.RosterFilter{NotEntered: true})
	if total != 1 || entries[0].StudentID != studentBudi {
		t.Errorf("not entered = %+v", entries)
	}

	entries, total, _, _ = f.proctor.Roster(f.ctx, f.owner, f.exam.ID, model.RosterFilter{Page: 2, PerPage: 1})
	if total != 2 || len(entries) != 1 || entries[0].StudentID != studentBudi {
		t.Errorf("page 2 = %+v (total %d)", entries, total)
	}
}

func TestNormalizeRosterFilter(t *testing.T) {
	tests := []struct {
		in, want model.RosterFilter
	}{
		{model.RosterFilter{}, model.RosterFilter{Page: 1, PerPage: 20}},
		{model.RosterFilter{Page: -3, PerPage: 1000}, model.RosterFilter{Page: 1, PerPage: 100}},
		{model.RosterFilter{Page: 4, PerPage: 50}, model.RosterFilter{Page: 4, PerPage: 50}},
	}
	for _, tc := range tests {
		got := service.NormalizeRosterFilter(tc.in)
		if got.Page != tc.want.Page || got.PerPage != tc.want.PerPage {
			t.Errorf("NormalizeRosterFilter(%+v) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}

func TestReadmittedStudentReportsAsWorking(t *testing.T) {
	f := newFixture(t)
	f.enter(studentAni)
	if _, err := f.sessions.ReportViolation(f.ctx, studentAni, f.exam.ID, "tab switch"); err != nil {
		t.Fatalf("ReportViolation: %v", err)
	}
	if err := f.proctor.Allow(f.ctx, f.owner, f.exam.ID, studentAni, nil); err != nil {
		t.Fatalf("Allow: %v", err)
	}

	working := model.RosterFilter{Statuses: []model.AttendanceStatus{model.AttendanceWorking}}
	entries, total, _, err := f.proctor.Roster(f.ctx, f.owner, f.exam.ID, working)
	if err != nil {
		t.Fatalf("Roster: %v", err)
	}
	if total != 1 || len(entries) != 1 || entries[0].StudentID != studentAni {
		t.Fatalf("mengerjakan filter = %+v (total %d), want Ani", entries, total)
	}
	if entries[0].Status != model.AttendanceWorking {
		t.Errorf("roster status = %s, want %s", entries[0].Status, model.AttendanceWorking)
	}

	violation := model.RosterFilter{Statuses: []model.AttendanceStatus{model.AttendanceViolation}}
	if _, total, _, _ := f.proctor.Roster(f.ctx, f.owner, f.exam.ID, violation); total != 0 {
		t.Errorf("pelanggaran filter total = %d, want 0", total)
	}

	review, err := f.proctor.StudentAnswers(f.ctx, f.owner, f.exam.ID, studentAni)
	if err != nil {
		t.Fatalf("StudentAnswers: %v", err)
	}
	if review.Status != model.AttendanceWorking {
		t.Errorf("review status = %s, want %s", review.Status, model.AttendanceWorking)
	}

	scores, err := f.proctor.Scores(f.ctx, f.owner, f.exam.ID)
	if err != nil {
		t.Fatalf("Scores: %v", err)
	}
	if len(scores) != 1 || scores[0].Status != model.AttendanceWorking {
		t.Errorf("gradebook = %+v, want one mengerjakan row", scores)
	}
}
