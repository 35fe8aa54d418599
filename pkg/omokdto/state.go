package omokdto

import "time"

// Cell values in BoardState.Cells.
const (
	CellEmpty = ""
	CellBlack = "black"
	CellWhite = "white"
)

type Point struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

type Move struct {
	Row  int    `json:"row"`
	Col  int    `json:"col"`
	Seat string `json:"seat"`
}

type Timers struct {
	Black int `json:"black"`
	White int `json:"white"`
}

type Players struct {
	Black PlayerSlot `json:"black"`
	White PlayerSlot `json:"white"`
}

type PlayerSlot struct {
	Occupied  bool `json:"occupied"`
	Connected bool `json:"connected"`
}

// BoardState is the full observable state of a room.
type BoardState struct {
	RoomID   string     `json:"roomId"`
	Size     int        `json:"size"`
	Cells    [][]string `json:"cells"`
	Phase    string     `json:"phase"`
	Turn     string     `json:"turn"`
	LastMove *Point     `json:"lastMove,omitempty"`
	Moves    []Move     `json:"moves"`
	Timers   Timers     `json:"timers"`
	GameTime int        `json:"gameTime"`
	Players  Players    `json:"players"`
	Winner   *string    `json:"winner,omitempty"`
	Reason   string     `json:"reason,omitempty"`
}

type RoomSummary struct {
	RoomID      string    `json:"roomId"`
	Phase       string    `json:"phase"`
	PlayerCount int       `json:"playerCount"`
	GameTime    int       `json:"gameTime"`
	CreatedAt   time.Time `json:"createdAt"`
}
