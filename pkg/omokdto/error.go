package omokdto

// Ack failure codes.
const (
	CodeBadRequest      = "BadRequest"
	CodeInternal        = "Internal"
	CodeRoomNotFound    = "RoomNotFound"
	CodeRoomFull        = "RoomFull"
	CodeAlreadyStarted  = "AlreadyStarted"
	CodeAlreadyInRoom   = "AlreadyInRoom"
	CodeNotAPlayer      = "NotAPlayer"
	CodeNotYourTurn     = "NotYourTurn"
	CodeGameNotActive   = "GameNotActive"
	CodeOutOfBounds     = "OutOfBounds"
	CodeCellOccupied    = "CellOccupied"
	CodeNoActiveGame    = "NoActiveGame"
	CodeGameStillActive = "GameStillActive"
	CodeMissingOpponent = "MissingOpponent"
	CodeNotInRoom       = "NotInRoom"
)

// Error is a failed ack seen from the client side.
type Error struct {
	Code    string
	Message string
}

func (e Error) Error() string {
	if e.Message != "" {
		return e.Code + ": " + e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "omok request failed"
}

// Err returns the ack's failure as an error, or nil if it succeeded.
func (a Ack) Err() error {
	if a.OK {
		return nil
	}
	return Error{Code: a.Code, Message: a.Message}
}
