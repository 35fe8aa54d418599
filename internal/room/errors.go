package room

// Policy failures. None of them mutates room state.
var (
	ErrRoomNotFound    = errf("room not found")
	ErrRoomFull        = errf("room already has two players")
	ErrAlreadyStarted  = errf("game already started")
	ErrNotAPlayer      = errf("not a player of this room")
	ErrNotYourTurn     = errf("not your turn")
	ErrGameNotActive   = errf("game is not active")
	ErrOutOfBounds     = errf("move out of bounds")
	ErrCellOccupied    = errf("cell already occupied")
	ErrNoActiveGame    = errf("no active game")
	ErrGameStillActive = errf("game still in progress")
	ErrMissingOpponent = errf("both players must be present")
	ErrNotInRoom       = errf("connection is not in a room")
	// 코드 할당 재시도 초과
	ErrCodeExhausted = errf("failed to allocate room code")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }
