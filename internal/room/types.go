package room

import (
	"time"

	"github.com/park285/omok-room-server/internal/omok"
)

// Phase is the room lifecycle state.
type Phase string

const (
	PhasePending  Phase = "pending"
	PhaseActive   Phase = "active"
	PhaseFinished Phase = "finished"
)

// Reason explains why a game finished.
type Reason string

const (
	ReasonWin          Reason = "win"
	ReasonDraw         Reason = "draw"
	ReasonSurrender    Reason = "surrender"
	ReasonTimeout      Reason = "timeout"
	ReasonOpponentLeft Reason = "opponent_left"
)

// Budgets is the remaining time per seat, in ticks (seconds by default).
type Budgets struct {
	Black int `json:"black"`
	White int `json:"white"`
}

func budgetsOf(b [2]int) Budgets { return Budgets{Black: b[0], White: b[1]} }

// Slot is one seat binding: empty, or occupied by a connection id.
// A departing slot is still occupied; its connection dropped and the
// grace window is running.
type Slot struct {
	Conn      string `json:"connId,omitempty"`
	Departing bool   `json:"departing,omitempty"`
}

func (s Slot) Occupied() bool { return s.Conn != "" }

// Snapshot is an immutable copy of a room's observable state.
type Snapshot struct {
	ID           string
	Phase        Phase
	Turn         omok.Seat
	Size         int
	Board        [][]omok.Seat
	LastMove     *omok.Point
	History      []omok.Move
	Budgets      Budgets
	GameTime     int
	Seats        [2]Slot
	Winner       omok.Seat
	Reason       Reason
	GameID       string
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// Players counts occupied seats.
func (s Snapshot) Players() int {
	n := 0
	for _, sl := range s.Seats {
		if sl.Occupied() {
			n++
		}
	}
	return n
}

// Summary is the lobby listing view of a room.
type Summary struct {
	ID        string    `json:"roomId"`
	Phase     Phase     `json:"phase"`
	Players   int       `json:"playerCount"`
	GameTime  int       `json:"gameTime"`
	CreatedAt time.Time `json:"createdAt"`
}

// MoveResult describes an accepted move.
type MoveResult struct {
	Move     omok.Move
	NextTurn omok.Seat
	Finished bool
	Winner   omok.Seat
	Reason   Reason
}

// LeaveOutcome describes what a vacated seat did to the room.
type LeaveOutcome struct {
	Seat     omok.Seat
	Finished bool // the leave ended an active game
	TornDown bool // the room no longer exists
}

// Claim proves identity on reconnect: the prior connection id, or a seat
// whose occupant is currently departing.
type Claim struct {
	PriorConn string
	Seat      omok.Seat
}

// ReclaimResult is returned by a successful reconnect.
type ReclaimResult struct {
	Seat     omok.Seat
	Replaced string
	Snapshot Snapshot
}

// Result is the record of a finished game handed to the OnFinish hook.
type Result struct {
	GameID    string
	RoomID    string
	BoardSize int
	GameTime  int
	Black     string
	White     string
	Winner    omok.Seat
	Reason    Reason
	Moves     []omok.Move
	Board     [][]omok.Seat
	Budgets   Budgets
	StartedAt time.Time
	EndedAt   time.Time
}
