// Package protocol decodes client frames into typed requests, dispatches them
// to rooms and the session gateway, and turns room events into wire frames.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/park285/omok-room-server/internal/omok"
	"github.com/park285/omok-room-server/pkg/omokdto"
)

// Request is the closed set of client operations.
type Request interface {
	requestType() string
}

type CreateRoom struct {
	GameTime int // 0 means the server default
}

type JoinRoom struct {
	RoomID string
}

type Reconnect struct {
	RoomID      string
	PriorConnID string
	ClaimedSeat omok.Seat
}

type MakeMove struct {
	Row, Col int
}

type Surrender struct{}

type Restart struct{}

type LeaveRoom struct{}

type GetGameState struct {
	RoomID string
}

type ListRooms struct{}

func (CreateRoom) requestType() string   { return omokdto.TypeCreateRoom }
func (JoinRoom) requestType() string     { return omokdto.TypeJoinRoom }
func (Reconnect) requestType() string    { return omokdto.TypeReconnect }
func (MakeMove) requestType() string     { return omokdto.TypeMakeMove }
func (Surrender) requestType() string    { return omokdto.TypeSurrender }
func (Restart) requestType() string      { return omokdto.TypeRestart }
func (LeaveRoom) requestType() string    { return omokdto.TypeLeaveRoom }
func (GetGameState) requestType() string { return omokdto.TypeGetGameState }
func (ListRooms) requestType() string    { return omokdto.TypeListRooms }

// BadRequestError reports a malformed frame or payload.
type BadRequestError struct {
	Detail string
}

func (e *BadRequestError) Error() string { return "bad request: " + e.Detail }

func badRequest(format string, args ...any) error {
	return &BadRequestError{Detail: fmt.Sprintf(format, args...)}
}

// ParseEnvelope decodes one raw frame.
func ParseEnvelope(raw []byte) (omokdto.Envelope, error) {
	var env omokdto.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return omokdto.Envelope{}, badRequest("invalid json")
	}
	return env, nil
}

// Decode validates env and returns the typed request.
func Decode(env omokdto.Envelope) (Request, error) {
	if env.V != omokdto.Version {
		return nil, badRequest("unsupported version %d", env.V)
	}
	switch env.Type {
	case omokdto.TypeCreateRoom:
		var p omokdto.CreateRoomRequest
		if err := unmarshalPayload(env.Payload, &p); err != nil {
			return nil, err
		}
		req := CreateRoom{}
		if p.GameTime != nil {
			if *p.GameTime <= 0 {
				return nil, badRequest("gameTime must be positive")
			}
			req.GameTime = *p.GameTime
		}
		return req, nil

	case omokdto.TypeJoinRoom:
		var p omokdto.JoinRoomRequest
		if err := unmarshalPayload(env.Payload, &p); err != nil {
			return nil, err
		}
		id := strings.TrimSpace(p.RoomID)
		if id == "" {
			return nil, badRequest("roomId is required")
		}
		return JoinRoom{RoomID: id}, nil

	case omokdto.TypeReconnect:
		var p omokdto.ReconnectRequest
		if err := unmarshalPayload(env.Payload, &p); err != nil {
			return nil, err
		}
		req := Reconnect{RoomID: strings.TrimSpace(p.RoomID), PriorConnID: strings.TrimSpace(p.PriorConnID)}
		if req.RoomID == "" {
			return nil, badRequest("roomId is required")
		}
		if p.ClaimedSeat != "" {
			seat, ok := omok.ParseSeat(p.ClaimedSeat)
			if !ok {
				return nil, badRequest("unknown seat %q", p.ClaimedSeat)
			}
			req.ClaimedSeat = seat
		}
		if req.PriorConnID == "" && req.ClaimedSeat == omok.NoSeat {
			return nil, badRequest("priorConnId or claimedSeat is required")
		}
		return req, nil

	case omokdto.TypeMakeMove:
		var p omokdto.MakeMoveRequest
		if err := unmarshalPayload(env.Payload, &p); err != nil {
			return nil, err
		}
		if p.Row == nil || p.Col == nil {
			return nil, badRequest("row and col are required")
		}
		return MakeMove{Row: *p.Row, Col: *p.Col}, nil

	case omokdto.TypeGetGameState:
		var p omokdto.GameStateRequest
		if err := unmarshalPayload(env.Payload, &p); err != nil {
			return nil, err
		}
		return GetGameState{RoomID: strings.TrimSpace(p.RoomID)}, nil

	case omokdto.TypeSurrender:
		return Surrender{}, nil
	case omokdto.TypeRestart:
		return Restart{}, nil
	case omokdto.TypeLeaveRoom:
		return LeaveRoom{}, nil
	case omokdto.TypeListRooms:
		return ListRooms{}, nil
	case "":
		return nil, badRequest("type is required")
	default:
		return nil, badRequest("unknown type %q", env.Type)
	}
}

// unmarshalPayload treats a missing or null payload as an empty object.
func unmarshalPayload(raw json.RawMessage, dst any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return badRequest("invalid payload")
	}
	return nil
}
