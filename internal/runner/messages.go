// Package runner implements the WebSocket job channel and job FSM from
// spec.md §4.5: one connection per open job, tagged client→server wire
// messages, and TOCTOU-safe conditional-update state transitions.
package runner

import "encoding/json"

// ClientEvent is the `event` tag on every client→server wire message
// (spec.md §4.5 "tagged by an event field, snake_case").
type ClientEvent string

const (
	EventRunning   ClientEvent = "running"
	EventHeartbeat ClientEvent = "heartbeat"
	EventCompleted ClientEvent = "completed"
	EventFailed    ClientEvent = "failed"
	EventCanceled  ClientEvent = "canceled"
)

// IterationOutput is one iteration's raw adapter output plus the bytes
// the ingestion pipeline will parse (spec.md §4.5 "Completed{results:
// [IterationOutput]}").
type IterationOutput struct {
	Iteration int    `json:"iteration"`
	Output    string `json:"output"`
}

// ClientMessage is the envelope for every frame a runner sends. Only the
// fields relevant to Event are populated.
type ClientMessage struct {
	Event   ClientEvent       `json:"event"`
	Results []IterationOutput `json:"results,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// ServerEvent is the `event` tag on every server→client wire message.
type ServerEvent string

const (
	EventAck    ServerEvent = "ack"
	EventCancel ServerEvent = "cancel"
)

// ServerMessage is the envelope for every frame the server sends back.
type ServerMessage struct {
	Event ServerEvent `json:"event"`
}

func parseClientMessage(raw []byte) (*ClientMessage, error) {
	var m ClientMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func encodeServerMessage(m ServerMessage) ([]byte, error) {
	return json.Marshal(m)
}
