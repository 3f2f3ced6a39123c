// Package scoring converts saved answers into points. Everything here is a
// pure function of questions, options and answers; nothing is written.
package scoring

import (
	"bytes"
	"encoding/json"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-cbt/internal/mathutil"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// MaxTotal caps an exam total whatever the configured points add up to.
const MaxTotal = 100.0

type Reason string

const (
	ReasonCorrect          Reason = "correct"
	ReasonWrong            Reason = "wrong"
	ReasonUnanswered       Reason = "unanswered"
	ReasonMalformedPayload Reason = "malformed_payload"
	ReasonMalformedKey     Reason = "malformed_answer_key"
	ReasonGraded           Reason = "graded"
	ReasonPendingGrade     Reason = "pending_grade"
)

// QuestionResult is the outcome of one question for one student.
type QuestionResult struct {
	QuestionID  uuid.UUID          `json:"question_id"`
	Type        model.QuestionType `json:"type"`
	Points      float64            `json:"points"`
	Answered    bool               `json:"answered"`
	IsCorrect   *bool              `json:"is_correct"`
	Earned      float64            `json:"earned"`
	Reason      Reason             `json:"reason"`
	Selected    []uuid.UUID        `json:"selected,omitempty"`
	Correct     []uuid.UUID        `json:"correct,omitempty"`
	ManualScore *float64           `json:"manual_score,omitempty"`
	// MatchedPairs counts canonical pairs in a matching answer. It only
	// helps the grader; it never contributes points.
	MatchedPairs *int `json:"matched_pairs,omitempty"`
}

// Result aggregates one student's exam.
type Result struct {
	StudentID    int              `json:"student_id"`
	Questions    []QuestionResult `json:"questions"`
	Correct      int              `json:"correct"`
	Wrong        int              `json:"wrong"`
	Unanswered   int              `json:"unanswered"`
	PendingGrade int              `json:"pending_grade"`
	RawTotal     float64          `json:"raw_total"`
	Total        float64          `json:"total"`
}

// ScoreQuestion scores a single question. a may be nil when nothing was saved.
func ScoreQuestion(q model.Question, a *model.Answer) QuestionResult {
	points := q.Points
	if points < 0 {
		points = 0
	}
	res := QuestionResult{QuestionID: q.ID, Type: q.Type, Points: points}

	var raw json.RawMessage
	if a != nil {
		raw = a.Value
		res.ManualScore = a.ManualScore
	}

	switch q.Type {
	case model.QuestionTypeSingleChoice, model.QuestionTypeTrueFalse:
		scoreSingle(&res, q.Options, raw)
	case model.QuestionTypeMultiChoice:
		scoreMulti(&res, q.Options, raw)
	case model.QuestionTypeMatching:
		scoreManual(&res, raw)
		if pairs, ok := parsePairs(raw); ok {
			n := countCanonicalPairs(pairs)
			res.MatchedPairs = &n
		}
	default:
		scoreManual(&res, raw)
	}
	return res
}

// ScoreExam scores every question for one student. Questions without an
// entry in answers count as unanswered.
func ScoreExam(studentID int, questions []model.Question, answers map[uuid.UUID]model.Answer) Result {
	out := Result{StudentID: studentID, Questions: make([]QuestionResult, 0, len(questions))}

	for _, q := range questions {
		var ap *model.Answer
		if a, ok := answers[q.ID]; ok {
			ap = &a
		}
		r := ScoreQuestion(q, ap)
		out.Questions = append(out.Questions, r)
		out.RawTotal += r.Earned

		switch r.Reason {
		case ReasonCorrect:
			out.Correct++
		case ReasonWrong, ReasonMalformedPayload:
			out.Wrong++
		case ReasonUnanswered:
			out.Unanswered++
		case ReasonPendingGrade:
			out.PendingGrade++
		}
	}

	out.RawTotal = mathutil.Round2(out.RawTotal)
	out.Total = min(out.RawTotal, MaxTotal)
	return out
}

func scoreSingle(res *QuestionResult, options []model.Option, raw json.RawMessage) {
	correct := correctIDs(options)
	res.Correct = correct
	if len(correct) == 0 {
		res.Reason = ReasonMalformedKey
		return
	}

	selected, status := parseSelection(raw)
	switch status {
	case selectionEmpty:
		res.Reason = ReasonUnanswered
		return
	case selectionMalformed:
		res.Answered = true
		res.IsCorrect = boolPtr(false)
		res.Reason = ReasonMalformedPayload
		return
	}

	res.Answered = true
	res.Selected = selected
	ok := len(selected) == 1 && slices.Contains(correct, selected[0])
	res.IsCorrect = boolPtr(ok)
	if ok {
		res.Earned = res.Points
		res.Reason = ReasonCorrect
		return
	}
	res.Reason = ReasonWrong
}

func scoreMulti(res *QuestionResult, options []model.Option, raw json.RawMessage) {
	correct := correctIDs(options)
	res.Correct = correct
	if len(correct) == 0 {
		res.Reason = ReasonMalformedKey
		return
	}

	selected, status := parseSelection(raw)
	switch status {
	case selectionEmpty:
		res.Reason = ReasonUnanswered
		return
	case selectionMalformed:
		res.Answered = true
		res.IsCorrect = boolPtr(false)
		res.Reason = ReasonMalformedPayload
		return
	}

	res.Answered = true
	res.Selected = selected
	ok := equalSet(selected, correct)
	res.IsCorrect = boolPtr(ok)
	if ok {
		res.Earned = res.Points
		res.Reason = ReasonCorrect
		return
	}
	res.Reason = ReasonWrong
}

func scoreManual(res *QuestionResult, raw json.RawMessage) {
	res.Answered = !isEmptyValue(raw)
	if res.ManualScore != nil {
		res.Earned = *res.ManualScore
		res.Reason = ReasonGraded
		return
	}
	if !res.Answered {
		res.Reason = ReasonUnanswered
		return
	}
	res.Reason = ReasonPendingGrade
}

type selectionStatus int

const (
	selectionOK selectionStatus = iota
	selectionEmpty
	selectionMalformed
)

// parseSelection accepts a single id string or an array of id strings and
// returns the de-duplicated, sorted set.
func parseSelection(raw json.RawMessage) ([]uuid.UUID, selectionStatus) {
	if isEmptyValue(raw) {
		return nil, selectionEmpty
	}

	var list []string
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		list = []string{single}
	} else if err := json.Unmarshal(raw, &list); err != nil {
		return nil, selectionMalformed
	}

	set := make([]uuid.UUID, 0, len(list))
	for _, s := range list {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, selectionMalformed
		}
		if !slices.Contains(set, id) {
			set = append(set, id)
		}
	}
	if len(set) == 0 {
		return nil, selectionEmpty
	}
	sortIDs(set)
	return set, selectionOK
}

func parsePairs(raw json.RawMessage) ([]model.MatchPair, bool) {
	if isEmptyValue(raw) {
		return nil, false
	}
	var pairs []model.MatchPair
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return nil, false
	}
	return pairs, true
}

func countCanonicalPairs(pairs []model.MatchPair) int {
	n := 0
	for _, p := range pairs {
		if p.Left != uuid.Nil && p.Left == p.Right {
			n++
		}
	}
	return n
}

func isEmptyValue(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	if len(t) == 0 {
		return true
	}
	switch string(t) {
	case "null", `""`, "[]", "{}":
		return true
	}
	return false
}

func correctIDs(options []model.Option) []uuid.UUID {
	ids := make([]uuid.UUID, 0, 1)
	for _, o := range options {
		if o.IsCorrect {
			ids = append(ids, o.ID)
		}
	}
	sortIDs(ids)
	return ids
}

func equalSet(a, b []uuid.UUID) bool {
	if len(a) != len(b) {
		return false
	}
	for _, id := range a {
		if !slices.Contains(b, id) {
			return false
		}
	}
	return true
}

func sortIDs(ids []uuid.UUID) {
	slices.SortFunc(ids, func(x, y uuid.UUID) int {
		return bytes.Compare(x[:], y[:])
	})
}

func boolPtr(v bool) *bool { return &v }
