package room

import "github.com/park285/omok-room-server/internal/omok"

// EventKind names a room notification.
type EventKind string

const (
	EventPlayerJoined         EventKind = "player_joined"
	EventGameStarted          EventKind = "game_started"
	EventOpponentMove         EventKind = "opponent_move"
	EventTimerUpdate          EventKind = "timer_update"
	EventGameOver             EventKind = "game_over"
	EventGameRestarted        EventKind = "game_restarted"
	EventOpponentReconnected  EventKind = "opponent_reconnected"
	EventOpponentDisconnected EventKind = "opponent_disconnected"
	EventPlayerLeft           EventKind = "player_left"
)

// Event is a state change fanned out to room occupants. Fields not relevant
// to Kind are zero. Board is a copy and safe to retain.
type Event struct {
	Kind     EventKind
	RoomID   string
	Seat     omok.Seat
	Move     *omok.Move
	Turn     omok.Seat
	Board    [][]omok.Seat
	Budgets  Budgets
	Winner   omok.Seat
	Reason   Reason
	Snapshot *Snapshot
}

// Notifier delivers an event to the given connections. It is called with the
// room lock held and must not block or call back into the room.
type Notifier interface {
	Notify(roomID string, recipients []string, ev Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(roomID string, recipients []string, ev Event)

func (f NotifierFunc) Notify(roomID string, recipients []string, ev Event) {
	f(roomID, recipients, ev)
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, []string, Event) {}
