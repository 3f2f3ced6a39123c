package service_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/service"
	"github.com/stemsi/exstem-cbt/internal/service/servicetest"
)

const (
	ownerTeacherID = 7
	homebaseID     = 1
	examToken      = "ABC123"

	studentAni  = 101
	studentBudi = 103
	studentOut  = 102 // enrolled in a class the exam is not assigned to
)

var (
	optA = uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	optB = uuid.MustParse("00000000-0000-0000-0000-00000000000b")
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.MonitorEvent
}

func (p *recordingPublisher) Publish(_ context.Context, evt model.MonitorEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) count(typ model.MonitorEventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

type recordingSink struct {
	mu     sync.Mutex
	events []model.ViolationEvent
}

func (s *recordingSink) Push(_ context.Context, events ...model.ViolationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

type fixture struct {
	mem      *servicetest.Memory
	exam     *model.Exam
	choice   model.Question
	essay    model.Question
	now      time.Time
	events   *recordingPublisher
	sink     *recordingSink
	sessions *service.ExamSessionService
	proctor  *service.ProctorService
	owner    model.Principal
	ctx      context.Context
	t        *testing.T
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		mem:    servicetest.NewMemory(),
		now:    time.Date(2025, 8, 18, 7, 30, 0, 0, time.UTC),
		events: &recordingPublisher{},
		sink:   &recordingSink{},
		owner:  model.Principal{ID: ownerTeacherID, Role: model.RoleTeacher, HomebaseID: homebaseID},
		ctx:    context.Background(),
		t:      t,
	}

	bank := uuid.New()
	f.exam = &model.Exam{
		ID:              uuid.New(),
		BankID:          bank,
		Name:            "Matematika UTS",
		DurationMinutes: 60,
		Token:           examToken,
		IsActive:        true,
		OwnerTeacherID:  ownerTeacherID,
		OwnerHomebaseID: homebaseID,
	}
	f.choice = model.Question{
		ID: uuid.New(), BankID: bank, Type: model.QuestionTypeSingleChoice, Points: 50, Position: 1,
		Options: []model.Option{
			{ID: optA, Content: "4", IsCorrect: true, Position: 1},
			{ID: optB, Content: "5", Position: 2},
		},
	}
	f.essay = model.Question{ID: uuid.New(), BankID: bank, Type: model.QuestionTypeEssay, Points: 50, Position: 2}

	f.mem.AddExam(f.exam, []model.Question{f.choice, f.essay}, 10)
	f.mem.AddStudent(servicetest.Student{ID: studentAni, NIS: "2025001", Name: "Ani", ClassID: 10}, homebaseID)
	f.mem.AddStudent(servicetest.Student{ID: studentBudi, NIS: "2025002", Name: "Budi", ClassID: 10}, homebaseID)
	f.mem.AddStudent(servicetest.Student{ID: studentOut, NIS: "2025003", Name: "Citra", ClassID: 20}, homebaseID)

	log := zerolog.Nop()
	papers := service.NewPaperService(f.mem, f.mem, nil, log)
	attendance, answers := f.mem.Attendance(), f.mem.Answers()

	f.sessions = service.NewExamSessionService(papers, f.mem, attendance, answers, f.events, f.sink, log).
		WithClock(func() time.Time { return f.now })
	scorer := service.NewScoringService(papers, attendance, answers, log)
	f.proctor = service.NewProctorService(papers, attendance, answers, scorer, f.events, log)
	return f
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func (f *fixture) enter(studentID int) *model.Attendance {
	f.t.Helper()
	att, err := f.sessions.Enter(f.ctx, studentID, f.exam.ID, examToken, service.ClientInfo{IP: "203.0.113.7", UserAgent: "test"})
	if err != nil {
		f.t.Fatalf("Enter(%d): %v", studentID, err)
	}
	return att
}

func (f *fixture) save(studentID int, questionID uuid.UUID, value any) error {
	f.t.Helper()
	raw, err := json.Marshal(value)
	if err != nil {
		f.t.Fatalf("marshal answer: %v", err)
	}
	return f.sessions.SaveAnswer(f.ctx, studentID, f.exam.ID, service.AnswerInput{QuestionID: questionID, Value: raw})
}

func (f *fixture) status(studentID int) model.AttendanceStatus {
	f.t.Helper()
	view, err := f.sessions.State(f.ctx, studentID, f.exam.ID)
	if err != nil {
		f.t.Fatalf("State(%d): %v", studentID, err)
	}
	return view.Status
}

// wantState asserts err is a *StateError reporting status.
func wantState(t *testing.T, err error, status model.AttendanceStatus) {
	t.Helper()
	se, ok := service.AsStateError(err)
	if !ok {
		t.Fatalf("err = %v, want *StateError(%s)", err, status)
	}
	if se.Status != status {
		t.Fatalf("StateError status = %s, want %s", se.Status, status)
	}
}

func boolPtr(v bool) *bool { return &v }
