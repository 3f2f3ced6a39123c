package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	// readWait is how long a silent client is kept. Clients ping well within it.
	readWait = 5 * time.Minute
	// maxFrameSize bounds one client frame; essay answers are the largest.
	maxFrameSize = 64 << 10
)

// Prepare applies the frame limit and the initial read deadline.
func Prepare(conn *websocket.Conn) {
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
}

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func WriteTyped(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func WriteError(conn *websocket.Conn, seq int64, code, errMsg, status string) error {
	return WriteTyped(conn, ErrorResponse{
		Event:  EventError,
		Seq:    seq,
		Code:   code,
		Error:  errMsg,
		Status: status,
	})
}

// ReadJSON reads and decodes one frame, extending the read deadline.
func ReadJSON(conn *websocket.Conn, v any) error {
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	return conn.ReadJSON(v)
}
