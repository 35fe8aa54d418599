package omokdto

type CreateRoomRequest struct {
	GameTime *int `json:"gameTime,omitempty"`
}

type CreateRoomResponse struct {
	RoomID   string `json:"roomId"`
	Seat     string `json:"seat"`
	GameTime int    `json:"gameTime"`
}

type JoinRoomRequest struct {
	RoomID string `json:"roomId"`
}

// SeatResponse answers join_room, reconnect and get_game_state.
type SeatResponse struct {
	Seat       string     `json:"seat,omitempty"`
	BoardState BoardState `json:"boardState"`
}

// ReconnectRequest proves the caller held a seat: PriorConnID, or
// ClaimedSeat for a seat whose connection dropped.
type ReconnectRequest struct {
	RoomID      string `json:"roomId"`
	PriorConnID string `json:"priorConnId,omitempty"`
	ClaimedSeat string `json:"claimedSeat,omitempty"`
}

// MakeMoveRequest uses pointers so a missing coordinate is distinguishable
// from zero.
type MakeMoveRequest struct {
	Row *int `json:"row"`
	Col *int `json:"col"`
}

type MakeMoveResponse struct {
	Row      int     `json:"row"`
	Col      int     `json:"col"`
	Seat     string  `json:"seat"`
	NextTurn string  `json:"nextTurn"`
	Finished bool    `json:"finished"`
	Winner   *string `json:"winner,omitempty"`
	Reason   string  `json:"reason,omitempty"`
}

type LeaveRoomResponse struct {
	Seat     string `json:"seat"`
	Finished bool   `json:"finished"`
	Closed   bool   `json:"closed"`
}

type GameStateRequest struct {
	RoomID string `json:"roomId,omitempty"`
}

type ListRoomsResponse struct {
	Rooms []RoomSummary `json:"rooms"`
}
