package protocol

import (
	"github.com/park285/omok-room-server/internal/omok"
	"github.com/park285/omok-room-server/internal/room"
	"github.com/park285/omok-room-server/pkg/omokdto"
)

// ToBoardState converts a room snapshot into its wire form.
func ToBoardState(s room.Snapshot) omokdto.BoardState {
	bs := omokdto.BoardState{
		RoomID:   s.ID,
		Size:     s.Size,
		Cells:    ToCells(s.Board),
		Phase:    string(s.Phase),
		Turn:     s.Turn.String(),
		Moves:    make([]omokdto.Move, 0, len(s.History)),
		Timers:   toTimers(s.Budgets),
		GameTime: s.GameTime,
		Players: omokdto.Players{
			Black: toSlot(s.Seats[0]),
			White: toSlot(s.Seats[1]),
		},
	}
	if s.LastMove != nil {
		bs.LastMove = &omokdto.Point{Row: s.LastMove.Row, Col: s.LastMove.Col}
	}
	for _, m := range s.History {
		bs.Moves = append(bs.Moves, omokdto.Move{Row: m.Row, Col: m.Col, Seat: m.Seat.String()})
	}
	if s.Phase == room.PhaseFinished {
		bs.Winner = winnerPtr(s.Winner)
		bs.Reason = string(s.Reason)
	}
	return bs
}

// ToCells renders rows of seats as "", "black" or "white".
func ToCells(rows [][]omok.Seat) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		line := make([]string, len(row))
		for j, c := range row {
			line[j] = c.String()
		}
		out[i] = line
	}
	return out
}

func ToSummaries(list []room.Summary) []omokdto.RoomSummary {
	out := make([]omokdto.RoomSummary, 0, len(list))
	for _, s := range list {
		out = append(out, omokdto.RoomSummary{
			RoomID:      s.ID,
			Phase:       string(s.Phase),
			PlayerCount: s.Players,
			GameTime:    s.GameTime,
			CreatedAt:   s.CreatedAt,
		})
	}
	return out
}

// ToEventFrame builds the notification frame for ev.
func ToEventFrame(ev room.Event) omokdto.EventFrame {
	f := omokdto.EventFrame{V: omokdto.Version, Type: omokdto.TypeEvent, Event: string(ev.Kind), RoomID: ev.RoomID}
	switch ev.Kind {
	case room.EventOpponentMove:
		data := omokdto.OpponentMove{NextTurn: ev.Turn.String(), Cells: ToCells(ev.Board)}
		if ev.Move != nil {
			data.Row, data.Col, data.Seat = ev.Move.Row, ev.Move.Col, ev.Move.Seat.String()
		}
		f.Data = data
	case room.EventTimerUpdate:
		f.Data = omokdto.TimerUpdate{Timers: toTimers(ev.Budgets), Turn: ev.Turn.String()}
	case room.EventGameOver:
		f.Data = omokdto.GameOver{
			Winner: winnerPtr(ev.Winner),
			Reason: string(ev.Reason),
			Timers: toTimers(ev.Budgets),
			Cells:  ToCells(ev.Board),
		}
	case room.EventGameStarted, room.EventGameRestarted:
		data := omokdto.GameStarted{Turn: ev.Turn.String(), Timers: toTimers(ev.Budgets)}
		if ev.Snapshot != nil {
			data.BoardState = ToBoardState(*ev.Snapshot)
		}
		f.Data = data
	default:
		data := omokdto.SeatNotice{Seat: ev.Seat.String()}
		if ev.Snapshot != nil {
			bs := ToBoardState(*ev.Snapshot)
			data.BoardState = &bs
		}
		f.Data = data
	}
	return f
}

func toTimers(b room.Budgets) omokdto.Timers {
	return omokdto.Timers{Black: b.Black, White: b.White}
}

func toSlot(s room.Slot) omokdto.PlayerSlot {
	return omokdto.PlayerSlot{Occupied: s.Occupied(), Connected: s.Occupied() && !s.Departing}
}

func winnerPtr(s omok.Seat) *string {
	if !s.Valid() {
		return nil
	}
	v := s.String()
	return &v
}
