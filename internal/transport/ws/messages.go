package ws

import "encoding/json"

// Inbound command types.
const (
	CmdCreateRoom     = "CreateRoom"
	CmdJoinRoom       = "JoinRoom"
	CmdLeaveRoom      = "LeaveRoom"
	CmdMakeMove       = "MakeMove"
	CmdRequestNewGame = "RequestNewGame"
	CmdStartNewGame   = "StartNewGame"
	CmdGetRooms       = "GetRooms"
)

// TypeError is the envelope type for operation failures reported to the
// originating connection only.
const TypeError = "Error"

// Envelope is the wire framing for both directions: a type tag and a raw
// payload decoded per command.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// RoomPayload addresses a room-scoped command.
type RoomPayload struct {
	RoomID string `json:"roomId"`
}

// MakeMovePayload carries a move submission.
type MakeMovePayload struct {
	GameID string `json:"gameId"`
	MoveID int    `json:"moveId"`
}

// ErrorPayload reports why a command failed.
type ErrorPayload struct {
	Command string `json:"command"`
	Reason  string `json:"reason"`
}
