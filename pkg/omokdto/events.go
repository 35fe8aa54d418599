package omokdto

// Event names.
const (
	EventPlayerJoined         = "player_joined"
	EventGameStarted          = "game_started"
	EventOpponentMove         = "opponent_move"
	EventTimerUpdate          = "timer_update"
	EventGameOver             = "game_over"
	EventGameRestarted        = "game_restarted"
	EventOpponentReconnected  = "opponent_reconnected"
	EventOpponentDisconnected = "opponent_disconnected"
	EventPlayerLeft           = "player_left"
)

// SeatNotice carries player_joined, player_left and the connection events.
type SeatNotice struct {
	Seat       string      `json:"seat"`
	BoardState *BoardState `json:"boardState,omitempty"`
}

// GameStarted carries game_started and game_restarted.
type GameStarted struct {
	Turn       string     `json:"turn"`
	Timers     Timers     `json:"timers"`
	BoardState BoardState `json:"boardState"`
}

type OpponentMove struct {
	Row      int        `json:"row"`
	Col      int        `json:"col"`
	Seat     string     `json:"seat"`
	NextTurn string     `json:"nextTurn"`
	Cells    [][]string `json:"cells"`
}

type TimerUpdate struct {
	Timers Timers `json:"timers"`
	Turn   string `json:"turn"`
}

// GameOver has a nil Winner on a draw.
type GameOver struct {
	Winner *string    `json:"winner"`
	Reason string     `json:"reason"`
	Timers Timers     `json:"timers"`
	Cells  [][]string `json:"cells"`
}
