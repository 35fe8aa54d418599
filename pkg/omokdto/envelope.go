package omokdto

import "encoding/json"

// Version is the wire protocol version carried in every frame.
const Version = 1

// Frame types.
const (
	TypeAck   = "ack"
	TypeEvent = "event"
	TypeHello = "hello"
)

// Request types.
const (
	TypeCreateRoom   = "create_room"
	TypeJoinRoom     = "join_room"
	TypeReconnect    = "reconnect"
	TypeMakeMove     = "make_move"
	TypeSurrender    = "surrender"
	TypeRestart      = "restart"
	TypeLeaveRoom    = "leave_room"
	TypeGetGameState = "get_game_state"
	TypeListRooms    = "list_rooms"
)

// Envelope is a client request frame.
type Envelope struct {
	V       int             `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Ack answers exactly one Envelope, matched by ID.
type Ack struct {
	V       int    `json:"v"`
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	OK      bool   `json:"ok"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// EventFrame is a server-initiated notification for a room occupant.
type EventFrame struct {
	V      int    `json:"v"`
	Type   string `json:"type"`
	Event  string `json:"event"`
	RoomID string `json:"roomId"`
	Data   any    `json:"data,omitempty"`
}

// Hello is the first frame on every connection.
type Hello struct {
	V      int    `json:"v"`
	Type   string `json:"type"`
	ConnID string `json:"connId"`
}

func OK(id string, data any) Ack {
	return Ack{V: Version, Type: TypeAck, ID: id, OK: true, Data: data}
}

func Fail(id, code, message string) Ack {
	return Ack{V: Version, Type: TypeAck, ID: id, OK: false, Code: code, Message: message}
}

func NewHello(connID string) Hello {
	return Hello{V: Version, Type: TypeHello, ConnID: connID}
}
