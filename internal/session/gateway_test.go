package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/park285/omok-room-server/internal/omok"
	"github.com/park285/omok-room-server/internal/room"
)

type events struct {
	mu   sync.Mutex
	list []room.Event
	to   [][]string
}

func (e *events) Notify(_ string, to []string, ev room.Event) {
	e.mu.Lock()
	e.list = append(e.list, ev)
	e.to = append(e.to, append([]string(nil), to...))
	e.mu.Unlock()
}

func (e *events) count(kind room.EventKind) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.list {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (e *events) last(kind room.EventKind) (room.Event, []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.list) - 1; i >= 0; i-- {
		if e.list[i].Kind == kind {
			return e.list[i], e.to[i]
		}
	}
	return room.Event{}, nil
}

type harness struct {
	reg   *room.Registry
	gw    *Gateway
	clock *clock.Mock
	ev    *events
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithLogger(t, zaptest.NewLogger(t))
}

func newHarnessWithLogger(t *testing.T, logger *zap.Logger) *harness {
	t.Helper()
	h := &harness{clock: clock.NewMock(), ev: &events{}}
	h.reg = room.NewRegistry(room.Config{Clock: h.clock, Notifier: h.ev, Logger: logger, TickInterval: time.Second})
	h.gw = New(h.reg, Options{Grace: 3 * time.Minute, Clock: h.clock, Logger: logger})
	t.Cleanup(h.reg.CloseAll)
	return h
}

// game seats "black" and "white" in a fresh active room with a generous clock.
func (h *harness) game(t *testing.T) *room.Room {
	t.Helper()
	r, err := h.reg.Create(context.Background(), "black", 100000)
	require.NoError(t, err)
	h.gw.Bind("black", r.ID(), omok.Black)
	seat, err := r.Join("white")
	require.NoError(t, err)
	h.gw.Bind("white", r.ID(), seat)
	return r
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, time.Millisecond)
}

func TestBindResolveUnbind(t *testing.T) {
	h := newHarness(t)
	r := h.game(t)

	b, ok := h.gw.Resolve("white")
	require.True(t, ok)
	require.Equal(t, Binding{RoomID: r.ID(), Seat: omok.White}, b)
	require.ErrorIs(t, h.gw.EnsureFree("white"), ErrAlreadyInRoom)

	h.gw.Unbind("white")
	_, ok = h.gw.Resolve("white")
	require.False(t, ok)
	require.NoError(t, h.gw.EnsureFree("white"))
}

func TestReconnectWithinGrace(t *testing.T) {
	h := newHarness(t)
	r := h.game(t)
	_, err := r.Move(omok.Black, 7, 7)
	require.NoError(t, err)
	before := r.Snapshot()

	h.gw.Disconnect("black")
	require.Equal(t, 1, h.gw.Pending())
	_, to := h.ev.last(room.EventOpponentDisconnected)
	require.Equal(t, []string{"white"}, to)

	h.clock.Add(60 * time.Second)
	res, err := h.gw.Reconnect("black-2", r.ID(), "black", omok.NoSeat)
	require.NoError(t, err)
	require.Equal(t, omok.Black, res.Seat)
	require.Equal(t, 0, h.gw.Pending())

	_, ok := h.gw.Resolve("black")
	require.False(t, ok, "old connection must be unbound")
	b, ok := h.gw.Resolve("black-2")
	require.True(t, ok)
	require.Equal(t, omok.Black, b.Seat)

	after := r.Snapshot()
	require.Equal(t, before.Board, after.Board)
	require.Equal(t, before.Turn, after.Turn)
	require.Equal(t, before.History, after.History)
	require.Equal(t, before.Budgets.Black, after.Budgets.Black)

	_, to = h.ev.last(room.EventOpponentReconnected)
	require.Equal(t, []string{"white"}, to)

	h.clock.Add(5 * time.Minute)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 0, h.ev.count(room.EventGameOver))
	require.Equal(t, room.PhaseActive, r.Snapshot().Phase)
}

func TestReconnectBySeatClaim(t *testing.T) {
	h := newHarness(t)
	r := h.game(t)

	_, err := h.gw.Reconnect("thief", r.ID(), "", omok.White)
	require.ErrorIs(t, err, room.ErrNotAPlayer, "a live seat cannot be claimed")
	_, err = h.gw.Reconnect("thief", r.ID(), "white", omok.NoSeat)
	require.ErrorIs(t, err, room.ErrNotAPlayer, "a live seat cannot be taken by its conn id")
	b, ok := h.gw.Resolve("white")
	require.True(t, ok)
	require.Equal(t, omok.White, b.Seat)

	h.gw.Disconnect("white")
	res, err := h.gw.Reconnect("white-2", r.ID(), "", omok.White)
	require.NoError(t, err)
	require.Equal(t, omok.White, res.Seat)

	_, err = h.gw.Reconnect("x", "NOPE00", "white", omok.NoSeat)
	require.ErrorIs(t, err, room.ErrRoomNotFound)
}

func TestGraceExpiryForfeitsOnce(t *testing.T) {
	h := newHarness(t)
	r := h.game(t)

	h.gw.Disconnect("black")
	h.clock.Add(3 * time.Minute)
	eventually(t, func() bool { return h.ev.count(room.EventGameOver) == 1 })

	over, to := h.ev.last(room.EventGameOver)
	require.Equal(t, omok.White, over.Winner)
	require.Equal(t, room.ReasonOpponentLeft, over.Reason)
	require.Equal(t, []string{"white"}, to)
	require.Equal(t, room.PhaseFinished, r.Snapshot().Phase)

	h.clock.Add(10 * time.Minute)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, h.ev.count(room.EventGameOver))

	_, ok := h.gw.Resolve("black")
	require.False(t, ok)
	_, err := h.gw.Reconnect("black-late", r.ID(), "black", omok.NoSeat)
	require.ErrorIs(t, err, room.ErrNotAPlayer)
}

func TestGraceExpiryTearsDownLonelyRoom(t *testing.T) {
	h := newHarness(t)
	r, err := h.reg.Create(context.Background(), "solo", 60)
	require.NoError(t, err)
	h.gw.Bind("solo", r.ID(), omok.Black)

	h.gw.Disconnect("solo")
	h.clock.Add(3 * time.Minute)
	eventually(t, func() bool { _, ok := h.reg.Get(r.ID()); return !ok })
	require.Equal(t, 0, h.ev.count(room.EventGameOver))
	require.Equal(t, 0, h.gw.Pending())
}

func TestReconnectRacingExpiry(t *testing.T) {
	for i := 0; i < 30; i++ {
		h := newHarnessWithLogger(t, zap.NewNop())
		r := h.game(t)
		h.gw.Disconnect("white")

		var wg sync.WaitGroup
		var recErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.clock.Add(3 * time.Minute)
		}()
		go func() {
			defer wg.Done()
			_, recErr = h.gw.Reconnect("white-2", r.ID(), "white", omok.NoSeat)
		}()
		wg.Wait()
		time.Sleep(5 * time.Millisecond)

		overs := h.ev.count(room.EventGameOver)
		if recErr == nil {
			require.Equal(t, 0, overs, "reconnect won but game_over fired")
			require.Equal(t, room.PhaseActive, r.Snapshot().Phase)
		} else {
			require.ErrorIs(t, recErr, room.ErrNotAPlayer)
			require.Equal(t, 1, overs)
		}
	}
}

func TestLeaveUnbindsAndDropRoom(t *testing.T) {
	h := newHarness(t)
	r := h.game(t)

	out, err := h.gw.Leave("white")
	require.NoError(t, err)
	require.True(t, out.Finished)
	_, ok := h.gw.Resolve("white")
	require.False(t, ok)

	_, err = h.gw.Leave("white")
	require.ErrorIs(t, err, room.ErrNotInRoom)

	h.gw.Disconnect("black")
	require.Equal(t, 1, h.gw.Pending())
	h.reg.Remove(r.ID())
	require.Equal(t, 0, h.gw.Pending())
	_, ok = h.gw.Resolve("black")
	require.False(t, ok)
}
