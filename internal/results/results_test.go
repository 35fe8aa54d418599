package results

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/park285/omok-room-server/internal/msgcat"
	"github.com/park285/omok-room-server/internal/notify"
	"github.com/park285/omok-room-server/internal/omok"
	"github.com/park285/omok-room-server/internal/room"
)

func sampleResult(id string, ended time.Time) room.Result {
	board := omok.NewBoard(15)
	moves := []omok.Move{
		{Row: 7, Col: 7, Seat: omok.Black},
		{Row: 8, Col: 8, Seat: omok.White},
		{Row: 7, Col: 8, Seat: omok.Black},
	}
	for _, m := range moves {
		board.Apply(m.Row, m.Col, m.Seat)
	}
	return room.Result{
		GameID:    id,
		RoomID:    "AB12CD",
		BoardSize: 15,
		GameTime:  600,
		Black:     "c-black",
		White:     "c-white",
		Winner:    omok.White,
		Reason:    room.ReasonSurrender,
		Moves:     moves,
		Board:     board.Rows(),
		Budgets:   room.Budgets{Black: 590, White: 595},
		StartedAt: ended.Add(-90 * time.Second),
		EndedAt:   ended,
	}
}

func TestFromResult(t *testing.T) {
	end := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := FromResult(sampleResult("g1", end))

	require.Equal(t, "W+R", rec.Result)
	require.Equal(t, "white", rec.Winner)
	require.Equal(t, []string{"h8", "i9", "i8"}, rec.Moves)
	require.EqualValues(t, 90, rec.DurationSec)
	require.Contains(t, rec.Transcript, "[Date \"2026.03.01\"]")
	require.Contains(t, rec.Transcript, "[Result \"W+R\"]")
	require.Contains(t, rec.Transcript, "1. h8 i9 2. i8 W+R")
}

func TestResultToken(t *testing.T) {
	cases := []struct {
		winner omok.Seat
		reason room.Reason
		want   string
	}{
		{omok.Black, room.ReasonWin, "B+5"},
		{omok.White, room.ReasonTimeout, "W+T"},
		{omok.Black, room.ReasonOpponentLeft, "B+L"},
		{omok.NoSeat, room.ReasonDraw, "Draw"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, resultToken(tc.winner, tc.reason))
	}
}

func TestMemoryRepositoryOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(2)
	base := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Save(ctx, FromResult(sampleResult(id, base.Add(time.Duration(i)*time.Minute)))))
	}

	got, err := repo.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2, "oldest record is evicted")
	require.Equal(t, "c", got[0].GameID)
	require.Equal(t, "b", got[1].GameID)

	rec, err := repo.Get(ctx, "b")
	require.NoError(t, err)
	require.NotNil(t, rec)
	rec.Moves[0] = "zz"
	again, _ := repo.Get(ctx, "b")
	require.Equal(t, "h8", again.Moves[0])

	missing, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	require.Nil(t, missing)
}

type fakePublisher struct {
	mu   sync.Mutex
	got  []notify.Result
	fail error
}

func (f *fakePublisher) PublishResult(_ context.Context, r notify.Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, r)
	return f.fail
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

func TestRecorderSavesAndPublishes(t *testing.T) {
	pub := &fakePublisher{}
	rec := NewRecorder(RecorderOptions{
		Publisher:   pub,
		Catalog:     msgcat.MustDefault(),
		Logger:      zaptest.NewLogger(t),
		AttachBoard: true,
	})
	rec.Start()
	rec.Enqueue(sampleResult("g1", time.Now()))
	rec.Close()

	require.Equal(t, 1, pub.count())
	out := pub.got[0]
	require.Equal(t, "Black resigned. White wins.", out.Summary)
	require.Equal(t, 3, out.Plies)
	png, err := base64.StdEncoding.DecodeString(out.BoardPNGB64)
	require.NoError(t, err)
	require.Equal(t, "\x89PNG", string(png[:4]))

	saved, err := rec.Repository().Get(context.Background(), "g1")
	require.NoError(t, err)
	require.NotNil(t, saved)

	// enqueue after close is dropped
	rec.Enqueue(sampleResult("g2", time.Now()))
	missing, _ := rec.Repository().Get(context.Background(), "g2")
	require.Nil(t, missing)
}

func TestRecorderPublishFailureStillSaves(t *testing.T) {
	pub := &fakePublisher{fail: errors.New("webhook down")}
	rec := NewRecorder(RecorderOptions{Publisher: pub, Logger: zaptest.NewLogger(t)})
	require.NoError(t, rec.Record(context.Background(), sampleResult("g1", time.Now())))
	saved, _ := rec.Repository().Get(context.Background(), "g1")
	require.NotNil(t, saved)
	require.Empty(t, pub.got[0].BoardPNGB64)
	require.Equal(t, "W+R", pub.got[0].Summary, "no catalog falls back to the token")
}

func TestSummaryDraw(t *testing.T) {
	res := sampleResult("g", time.Now())
	res.Winner = omok.NoSeat
	res.Reason = room.ReasonDraw
	require.Equal(t, "Draw: the board is full after 3 moves.", Summary(msgcat.MustDefault(), res))
}

func TestPostgresRepositoryRequiresURL(t *testing.T) {
	_, err := NewPostgresRepository(context.Background(), " ")
	require.Error(t, err)
}
