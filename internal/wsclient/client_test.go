package wsclient

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"nhooyr.io/websocket"

	"github.com/park285/omok-room-server/internal/protocol"
	"github.com/park285/omok-room-server/internal/room"
	"github.com/park285/omok-room-server/internal/session"
	"github.com/park285/omok-room-server/internal/wsserver"
	"github.com/park285/omok-room-server/pkg/omokdto"
)

func startServer(t *testing.T) string {
	t.Helper()
	logger := zaptest.NewLogger(t)
	hub := wsserver.NewHub()
	reg := room.NewRegistry(room.Config{Notifier: protocol.NewBroadcaster(hub, logger), Logger: logger})
	gw := session.New(reg, session.Options{Logger: logger})
	h := protocol.NewHandler(protocol.Options{Registry: reg, Gateway: gw, Logger: logger})
	ws := wsserver.New(hub, h, gw, wsserver.Options{Logger: logger, OriginPatterns: []string{"*"}})
	srv := httptest.NewServer(ws)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = ws.Shutdown(ctx)
		srv.Close()
		reg.CloseAll()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(f Frame) {
	r.mu.Lock()
	r.events = append(r.events, f.Event)
	r.mu.Unlock()
}

func (r *recorder) has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == name {
			return true
		}
	}
	return false
}

func connect(t *testing.T, url string) (*Client, *recorder) {
	t.Helper()
	c := New(url, WithReconnect(5, 10*time.Millisecond), WithLogger(zaptest.NewLogger(t)))
	rec := &recorder{}
	c.OnEvent(rec.add)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	require.NotEmpty(t, c.ConnID())
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c, rec
}

func TestPlayAndFailedAcks(t *testing.T) {
	url := startServer(t)
	ctx := context.Background()
	black, _ := connect(t, url)
	white, wrec := connect(t, url)

	created, err := black.CreateRoom(ctx, 120)
	require.NoError(t, err)
	require.Equal(t, "black", created.Seat)
	require.Equal(t, created.RoomID, black.RoomID())

	joined, err := white.JoinRoom(ctx, created.RoomID)
	require.NoError(t, err)
	require.Equal(t, "white", joined.Seat)

	_, err = white.MakeMove(ctx, 7, 7)
	var oe omokdto.Error
	require.ErrorAs(t, err, &oe)
	require.Equal(t, omokdto.CodeNotYourTurn, oe.Code)

	mv, err := black.MakeMove(ctx, 7, 7)
	require.NoError(t, err)
	require.Equal(t, "white", mv.NextTurn)
	require.Eventually(t, func() bool { return wrec.has(omokdto.EventOpponentMove) }, 2*time.Second, 5*time.Millisecond)

	rooms, err := white.ListRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)

	require.NoError(t, white.Surrender(ctx))
	st, err := black.GameState(ctx)
	require.NoError(t, err)
	require.Equal(t, "finished", st.BoardState.Phase)
	require.Equal(t, "black", *st.BoardState.Winner)
}

func TestReconnectsAndReclaimsSeat(t *testing.T) {
	url := startServer(t)
	ctx := context.Background()
	black, _ := connect(t, url)
	white, _ := connect(t, url)

	states := make(chan State, 16)
	black.OnStateChange(func(s State) { states <- s })

	created, err := black.CreateRoom(ctx, 120)
	require.NoError(t, err)
	_, err = white.JoinRoom(ctx, created.RoomID)
	require.NoError(t, err)
	_, err = black.MakeMove(ctx, 7, 7)
	require.NoError(t, err)

	before := black.ConnID()
	black.mu.Lock()
	conn := black.conn
	black.mu.Unlock()
	_ = conn.Close(websocket.StatusGoingAway, "test drop")

	require.Eventually(t, func() bool {
		return black.State() == StateConnected && black.ConnID() != before
	}, 3*time.Second, 5*time.Millisecond)

	// the seat survived: black still owns it and the board is intact
	require.Eventually(t, func() bool {
		st, err := black.GameState(ctx)
		return err == nil && st.Seat == "black" && st.BoardState.Cells[7][7] == "black"
	}, 2*time.Second, 10*time.Millisecond)

	_, err = white.MakeMove(ctx, 8, 8)
	require.NoError(t, err)
	_, err = black.MakeMove(ctx, 7, 8)
	require.NoError(t, err)

	seen := map[State]bool{}
	for len(states) > 0 {
		seen[<-states] = true
	}
	require.True(t, seen[StateReconnecting])
}

func TestRequestWithoutConnection(t *testing.T) {
	c := New("ws://127.0.0.1:1/ws")
	_, err := c.Request(context.Background(), omokdto.TypeListRooms, nil)
	require.ErrorIs(t, err, ErrDisconnected)
	require.Equal(t, 40*time.Millisecond, New("", WithReconnect(3, 10*time.Millisecond)).backoff(3))
}
