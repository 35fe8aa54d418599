// Package results archives finished games and forwards them to the webhook.
package results

import (
	"fmt"
	"strings"
	"time"

	"github.com/park285/omok-room-server/internal/omok"
	"github.com/park285/omok-room-server/internal/room"
)

// Record is one archived game.
type Record struct {
	GameID      string    `json:"gameId"`
	RoomID      string    `json:"roomId"`
	BoardSize   int       `json:"boardSize"`
	GameTime    int       `json:"gameTime"`
	Black       string    `json:"-"` // connection ids, not exposed
	White       string    `json:"-"`
	Winner      string    `json:"winner,omitempty"`
	Reason      string    `json:"reason"`
	Result      string    `json:"result"`
	Moves       []string  `json:"moves"`
	Transcript  string    `json:"transcript"`
	TimeBlack   int       `json:"timeBlack"`
	TimeWhite   int       `json:"timeWhite"`
	StartedAt   time.Time `json:"startedAt"`
	EndedAt     time.Time `json:"endedAt"`
	DurationSec int64     `json:"durationSec"`
}

// FromResult builds the archive record of a finished game.
func FromResult(res room.Result) Record {
	moves := make([]string, 0, len(res.Moves))
	for _, m := range res.Moves {
		moves = append(moves, m.Label())
	}
	rec := Record{
		GameID:    res.GameID,
		RoomID:    res.RoomID,
		BoardSize: res.BoardSize,
		GameTime:  res.GameTime,
		Black:     res.Black,
		White:     res.White,
		Winner:    res.Winner.String(),
		Reason:    string(res.Reason),
		Result:    resultToken(res.Winner, res.Reason),
		Moves:     moves,
		TimeBlack: res.Budgets.Black,
		TimeWhite: res.Budgets.White,
		StartedAt: res.StartedAt,
		EndedAt:   res.EndedAt,
	}
	if d := res.EndedAt.Sub(res.StartedAt); d > 0 {
		rec.DurationSec = int64(d / time.Second)
	}
	rec.Transcript = buildTranscript(rec)
	return rec
}

// resultToken is "B+5", "W+R", "B+T", "W+L" or "Draw".
func resultToken(winner omok.Seat, reason room.Reason) string {
	if !winner.Valid() {
		return "Draw"
	}
	prefix := "B+"
	if winner == omok.White {
		prefix = "W+"
	}
	switch reason {
	case room.ReasonWin:
		return prefix + "5"
	case room.ReasonSurrender:
		return prefix + "R"
	case room.ReasonTimeout:
		return prefix + "T"
	case room.ReasonOpponentLeft:
		return prefix + "L"
	default:
		return prefix + "?"
	}
}

func buildTranscript(r Record) string {
	var b strings.Builder
	date := r.EndedAt
	if date.IsZero() {
		date = time.Now()
	}
	// headers
	b.WriteString("[Game \"Omok\"]\n")
	b.WriteString(fmt.Sprintf("[Room \"%s\"]\n", sanitizeTag(r.RoomID)))
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[Size \"%d\"]\n", r.BoardSize))
	b.WriteString(fmt.Sprintf("[TimeControl \"%d\"]\n", r.GameTime))
	if r.Reason != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizeTag(r.Reason)))
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", r.Result))

	for i := 0; i < len(r.Moves); i += 2 {
		b.WriteString(fmt.Sprintf("%d. %s", i/2+1, r.Moves[i]))
		if i+1 < len(r.Moves) {
			b.WriteString(" ")
			b.WriteString(r.Moves[i+1])
		}
		b.WriteString(" ")
	}
	b.WriteString(r.Result)
	return b.String()
}

func sanitizeTag(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
