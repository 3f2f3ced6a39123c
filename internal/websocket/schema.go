package websocket

import "encoding/json"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave  Action = "autosave"
	ActionDoubt     Action = "doubt"
	ActionViolation Action = "violation"
	ActionFinish    Action = "finish"
	ActionPing      Action = "ping"
)

// Request is every client frame. Fields not used by the action are ignored.
type Request struct {
	Action Action `json:"action"`
	// Seq is echoed back so the client can match acknowledgements.
	Seq        int64           `json:"seq,omitempty"`
	QuestionID string          `json:"question_id,omitempty"`
	Value      json.RawMessage `json:"answer_value,omitempty"`
	IsDoubt    *bool           `json:"is_doubt,omitempty"`
	Reason     string          `json:"reason,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventSaved  Event = "saved"
	EventStatus Event = "status"
	EventError  Event = "error"
	EventPong   Event = "pong"
)

// SavedResponse acknowledges an autosave or doubt toggle.
type SavedResponse struct {
	Event      Event  `json:"event"`
	Seq        int64  `json:"seq,omitempty"`
	QuestionID string `json:"question_id"`
}

// StatusResponse reports the session status after finish or violation.
type StatusResponse struct {
	Event  Event  `json:"event"`
	Seq    int64  `json:"seq,omitempty"`
	Status string `json:"status"`
}

// ErrorResponse carries an error code and, on state conflicts, the
// session status the client must switch to.
type ErrorResponse struct {
	Event  Event  `json:"event"`
	Seq    int64  `json:"seq,omitempty"`
	Code   string `json:"code"`
	Error  string `json:"error"`
	Status string `json:"status,omitempty"`
}

type PongResponse struct {
	Event Event `json:"event"`
	Seq   int64 `json:"seq,omitempty"`
}
