// Package servicetest provides an in-memory implementation of the service
// stores for unit tests. It mirrors the conditional-write semantics of the
// PostgreSQL repositories.
package servicetest

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-cbt/internal/model"
)

type attendanceKey struct {
	exam    uuid.UUID
	student int
}

type answerKey struct {
	exam     uuid.UUID
	student  int
	question uuid.UUID
}

// Student is a seeded student with their current class.
type Student struct {
	ID      int
	NIS     string
	Name    string
	ClassID int
}

// Memory satisfies the exam, question, enrollment, recap and monitor
// stores directly, and the attendance and answer stores through
// Attendance() and Answers().
type Memory struct {
	mu sync.Mutex

	Exams       map[uuid.UUID]*model.Exam
	Questions   map[uuid.UUID][]model.Question // by bank
	ExamClasses map[uuid.UUID][]int
	Students    map[int]Student
	Classes     map[int]int // class -> homebase
	Periods     map[int]*model.AcademicPeriod

	// Gradebook rows served by the RecapStore methods unfiltered.
	MarkRows      []model.MeetingMark
	FormativeRows []model.ScoreEntry
	SummativeRows []model.ScoreEntry
	AttitudeRows  []model.ScoreEntry
	FinalRows     []model.ScoreEntry
	Violations    map[int]int64

	attendance map[attendanceKey]*model.Attendance
	answers    map[answerKey]*model.Answer
	nextLogID  int64

	// BeforeCreate runs inside Create before the existence check. Tests use
	// it to simulate a competing request.
	BeforeCreate func()

	// ViolationCountsErr, when set, fails ViolationCounts.
	ViolationCountsErr error
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		Exams:       map[uuid.UUID]*model.Exam{},
		Questions:   map[uuid.UUID][]model.Question{},
		ExamClasses: map[uuid.UUID][]int{},
		Students:    map[int]Student{},
		Classes:     map[int]int{},
		Periods:     map[int]*model.AcademicPeriod{},
		Violations:  map[int]int64{},
		attendance:  map[attendanceKey]*model.Attendance{},
		answers:     map[answerKey]*model.Answer{},
	}
}

// AddExam stores an exam together with its bank's questions and classes.
func (m *Memory) AddExam(e *model.Exam, questions []model.Question, classIDs ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Exams[e.ID] = e
	m.Questions[e.BankID] = questions
	m.ExamClasses[e.ID] = classIDs
}

// AddStudent enrolls a student in a class of the given homebase.
func (m *Memory) AddStudent(s Student, homebaseID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Students[s.ID] = s
	m.Classes[s.ClassID] = homebaseID
}

// SetStatus forces an attendance row into status, creating it if needed.
func (m *Memory) SetStatus(examID uuid.UUID, studentID int, status model.AttendanceStatus, startAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := attendanceKey{examID, studentID}
	if a, ok := m.attendance[k]; ok {
		a.Status = status
		return
	}
	m.nextLogID++
	m.attendance[k] = &model.Attendance{
		ID: m.nextLogID, ExamID: examID, StudentID: studentID,
		Status: status, StartAt: startAt, UpdatedAt: startAt,
	}
}

// AnswerOf returns a copy of a stored answer.
func (m *Memory) AnswerOf(examID uuid.UUID, studentID int, questionID uuid.UUID) (model.Answer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.answers[answerKey{examID, studentID, questionID}]
	if !ok {
		return model.Answer{}, false
	}
	return *a, true
}

// AnswerCount counts stored answers of one student.
func (m *Memory) AnswerCount(examID uuid.UUID, studentID int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.answers {
		if k.exam == examID && k.student == studentID {
			n++
		}
	}
	return n
}

// ─── ExamStore ──────────────────────────────────────────────────────────────

func (m *Memory) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.Exams[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *e
	return &cp, nil
}

func (m *Memory) IsAssignedToClass(_ context.Context, examID uuid.UUID, classID int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.ExamClasses[examID] {
		if c == classID {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) GetQuestion(_ context.Context, examID, questionID uuid.UUID) (*model.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.Exams[examID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	for _, q := range m.Questions[e.BankID] {
		if q.ID == questionID {
			cp := q
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *Memory) ListActiveIDs(_ context.Context) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for id, e := range m.Exams {
		if e.IsActive {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ─── QuestionStore ──────────────────────────────────────────────────────────

func (m *Memory) ListByBank(_ context.Context, bankID uuid.UUID) ([]model.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Question(nil), m.Questions[bankID]...), nil
}

// ─── EnrollmentStore ────────────────────────────────────────────────────────

func (m *Memory) CurrentClassID(_ context.Context, studentID int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.Students[studentID]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	return s.ClassID, nil
}

func (m *Memory) ListByClass(_ context.Context, classID, _ int) ([]model.RosterStudent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.RosterStudent{}
	for _, s := range m.Students {
		if s.ClassID == classID {
			out = append(out, model.RosterStudent{ID: s.ID, NIS: s.NIS, Name: s.Name})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) ClassHomebase(_ context.Context, classID int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hb, ok := m.Classes[classID]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	return hb, nil
}

// ─── AttendanceStore ────────────────────────────────────────────────────────

func (m *Memory) Find(_ context.Context, examID uuid.UUID, studentID int) (*model.Attendance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attendance[attendanceKey{examID, studentID}]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (m *Memory) Create(_ context.Context, a *model.Attendance) (bool, error) {
	if m.BeforeCreate != nil {
		m.BeforeCreate()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := attendanceKey{a.ExamID, a.StudentID}
	if _, exists := m.attendance[k]; exists {
		return false, nil
	}
	m.nextLogID++
	a.ID = m.nextLogID
	a.UpdatedAt = a.StartAt
	cp := *a
	m.attendance[k] = &cp
	return true, nil
}

func (m *Memory) UpdateStatus(_ context.Context, examID uuid.UUID, studentID int, from []model.AttendanceStatus, to model.AttendanceStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attendance[attendanceKey{examID, studentID}]
	if !ok {
		return false, nil
	}
	if from != nil && !containsStatus(from, a.Status) {
		return false, nil
	}
	a.Status = to
	return true, nil
}

func (m *Memory) Allow(_ context.Context, examID uuid.UUID, studentID int, questionID *uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attendance[attendanceKey{examID, studentID}]
	if !ok {
		return false, nil
	}
	a.Status = model.AttendanceAllowed
	if questionID != nil {
		delete(m.answers, answerKey{examID, studentID, *questionID})
	}
	return true, nil
}

func (m *Memory) Reset(_ context.Context, examID uuid.UUID, studentID int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.answers {
		if k.exam == examID && k.student == studentID {
			delete(m.answers, k)
		}
	}
	k := attendanceKey{examID, studentID}
	if _, ok := m.attendance[k]; !ok {
		return false, nil
	}
	delete(m.attendance, k)
	return true, nil
}

// AttendanceView adds the attendance listing, whose name collides with the
// answer listing.
type AttendanceView struct{ *Memory }

// AnswerView adds the answer listing.
type AnswerView struct{ *Memory }

// Attendance returns the store as an AttendanceStore.
func (m *Memory) Attendance() AttendanceView { return AttendanceView{m} }

// Answers returns the store as an AnswerStore.
func (m *Memory) Answers() AnswerView { return AnswerView{m} }

func (v AttendanceView) ListByExam(_ context.Context, examID uuid.UUID) ([]model.Attendance, error) {
	m := v.Memory
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Attendance{}
	for k, a := range m.attendance {
		if k.exam == examID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

func (m *Memory) ListExpired(_ context.Context, working []model.AttendanceStatus, grace time.Duration, now time.Time) ([]model.ExpiredSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ExpiredSession
	for k, a := range m.attendance {
		if !containsStatus(working, a.Status) {
			continue
		}
		e, ok := m.Exams[k.exam]
		if !ok {
			continue
		}
		deadline := a.StartAt.Add(time.Duration(e.DurationMinutes)*time.Minute + grace)
		if deadline.Before(now) {
			out = append(out, model.ExpiredSession{ExamID: k.exam, StudentID: k.student, StartAt: a.StartAt, Duration: e.DurationMinutes})
		}
	}
	return out, nil
}

func (m *Memory) Roster(_ context.Context, examID uuid.UUID, f model.RosterFilter) ([]model.RosterEntry, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	classes := map[int]bool{}
	for _, c := range m.ExamClasses[examID] {
		classes[c] = true
	}

	var all []model.RosterEntry
	for _, s := range m.Students {
		if !classes[s.ClassID] {
			continue
		}
		if f.ClassID != nil && s.ClassID != *f.ClassID {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(s.Name), strings.ToLower(f.Search)) &&
			!strings.Contains(s.NIS, f.Search) {
			continue
		}

		e := model.RosterEntry{StudentID: s.ID, NIS: s.NIS, Name: s.Name, ClassID: s.ClassID, Status: model.AttendanceNotEntered}
		a, entered := m.attendance[attendanceKey{examID, s.ID}]
		if entered {
			id, start, updated := a.ID, a.StartAt, a.UpdatedAt
			e.LogID, e.StartAt, e.UpdatedAt = &id, &start, &updated
			e.Status = a.Status
			for k, ans := range m.answers {
				if k.exam == examID && k.student == s.ID && ans.Value != nil {
					e.AnsweredCount++
				}
			}
			e.ViolationCount = int(m.Violations[s.ID])
		}

		switch {
		case f.NotEntered && entered:
			continue
		case len(f.Statuses) > 0 && (!entered || !containsStatus(f.Statuses, a.Status)):
			continue
		}
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })

	total := int64(len(all))
	start := (f.Page - 1) * f.PerPage
	if start > len(all) {
		start = len(all)
	}
	end := start + f.PerPage
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

// ─── AnswerStore ────────────────────────────────────────────────────────────

func (m *Memory) Upsert(_ context.Context, examID uuid.UUID, studentID int, questionID uuid.UUID, patch model.AnswerPatch, working []model.AttendanceStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	att, ok := m.attendance[attendanceKey{examID, studentID}]
	if !ok || !containsStatus(working, att.Status) {
		return false, nil
	}

	k := answerKey{examID, studentID, questionID}
	a, exists := m.answers[k]
	if !exists {
		a = &model.Answer{ExamID: examID, StudentID: studentID, QuestionID: questionID}
		m.answers[k] = a
	}
	if patch.Value != nil {
		if bytes.Equal(bytes.TrimSpace(patch.Value), []byte("null")) {
			a.Value = nil
		} else {
			a.Value = append(json.RawMessage(nil), patch.Value...)
		}
	}
	if patch.IsDoubt != nil {
		a.IsDoubt = *patch.IsDoubt
	}
	a.UpdatedAt = time.Now()
	return true, nil
}

func (m *Memory) ListByStudent(_ context.Context, examID uuid.UUID, studentID int) ([]model.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Answer{}
	for k, a := range m.answers {
		if k.exam == examID && k.student == studentID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID.String() < out[j].QuestionID.String() })
	return out, nil
}

func (v AnswerView) ListByExam(_ context.Context, examID uuid.UUID) ([]model.Answer, error) {
	m := v.Memory
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Answer{}
	for k, a := range m.answers {
		if k.exam == examID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

func (m *Memory) SetManualScore(_ context.Context, examID uuid.UUID, studentID int, questionID uuid.UUID, score float64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.answers[answerKey{examID, studentID, questionID}]
	if !ok {
		return false, nil
	}
	a.ManualScore = &score
	return true, nil
}

// ─── RecapStore ─────────────────────────────────────────────────────────────

func (m *Memory) ActivePeriod(_ context.Context, homebaseID int) (*model.AcademicPeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Periods[homebaseID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) Marks(context.Context, model.RecapScope) ([]model.MeetingMark, error) {
	return m.MarkRows, nil
}

func (m *Memory) Formative(context.Context, model.RecapScope) ([]model.ScoreEntry, error) {
	return m.FormativeRows, nil
}

func (m *Memory) Summative(context.Context, model.RecapScope) ([]model.ScoreEntry, error) {
	return m.SummativeRows, nil
}

func (m *Memory) Attitude(context.Context, model.RecapScope) ([]model.ScoreEntry, error) {
	return m.AttitudeRows, nil
}

func (m *Memory) Final(context.Context, model.RecapScope) ([]model.ScoreEntry, error) {
	return m.FinalRows, nil
}

// ─── MonitorStore ───────────────────────────────────────────────────────────

func (m *Memory) StatusCounts(_ context.Context, examID uuid.UUID) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]int64{}
	for k, a := range m.attendance {
		if k.exam == examID {
			out[string(a.Status)]++
		}
	}
	return out, nil
}

func (m *Memory) AnsweredCounts(_ context.Context, examID uuid.UUID) (map[int]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[int]int64{}
	for k, a := range m.answers {
		if k.exam == examID && a.Value != nil {
			out[k.student]++
		}
	}
	return out, nil
}

func (m *Memory) ViolationCounts(context.Context, uuid.UUID) (map[int]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ViolationCountsErr != nil {
		return nil, m.ViolationCountsErr
	}
	out := make(map[int]int64, len(m.Violations))
	for k, v := range m.Violations {
		out[k] = v
	}
	return out, nil
}

func containsStatus(list []model.AttendanceStatus, s model.AttendanceStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
