package wsserver

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/omok-room-server/internal/protocol"
	"github.com/park285/omok-room-server/internal/room"
	"github.com/park285/omok-room-server/internal/session"
	"github.com/park285/omok-room-server/pkg/omokdto"
)

type frame struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	OK     bool            `json:"ok"`
	Code   string          `json:"code"`
	Event  string          `json:"event"`
	RoomID string          `json:"roomId"`
	ConnID string          `json:"connId"`
	Data   json.RawMessage `json:"data"`
}

type stack struct {
	srv *httptest.Server
	ws  *Server
	hub *Hub
	reg *room.Registry
	gw  *session.Gateway
}

func newStack(t *testing.T) *stack {
	t.Helper()
	logger := zaptest.NewLogger(t)
	st := &stack{hub: NewHub()}
	st.reg = room.NewRegistry(room.Config{Notifier: protocol.NewBroadcaster(st.hub, logger), Logger: logger})
	st.gw = session.New(st.reg, session.Options{Logger: logger})
	h := protocol.NewHandler(protocol.Options{Registry: st.reg, Gateway: st.gw, Logger: logger})
	st.ws = New(st.hub, h, st.gw, Options{Logger: logger, OriginPatterns: []string{"*"}})
	st.srv = httptest.NewServer(st.ws)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = st.ws.Shutdown(ctx)
		st.srv.Close()
		st.reg.CloseAll()
	})
	return st
}

type peer struct {
	t    *testing.T
	conn *websocket.Conn
	id   string
}

func (st *stack) dial(t *testing.T) *peer {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(st.srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	p := &peer{t: t, conn: conn}
	hello := p.read()
	require.Equal(t, omokdto.TypeHello, hello.Type)
	require.NotEmpty(t, hello.ConnID)
	p.id = hello.ConnID
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return p
}

func (p *peer) read() frame {
	p.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var f frame
	require.NoError(p.t, wsjson.Read(ctx, p.conn, &f))
	return f
}

// call sends a request and returns its ack, collecting events seen first.
func (p *peer) call(typ string, payload any) (frame, []frame) {
	p.t.Helper()
	env := map[string]any{"v": omokdto.Version, "type": typ, "id": typ}
	if payload != nil {
		env["payload"] = payload
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(p.t, wsjson.Write(ctx, p.conn, env))
	var events []frame
	for {
		f := p.read()
		if f.Type == omokdto.TypeAck && f.ID == typ {
			return f, events
		}
		events = append(events, f)
	}
}

func (p *peer) waitEvent(name string) frame {
	p.t.Helper()
	for {
		f := p.read()
		if f.Type == omokdto.TypeEvent && f.Event == name {
			return f
		}
	}
}

func TestHelloAndBadFrames(t *testing.T) {
	st := newStack(t)
	p := st.dial(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.conn.Write(ctx, websocket.MessageText, []byte("not json")))
	ack := p.read()
	require.Equal(t, omokdto.TypeAck, ack.Type)
	require.False(t, ack.OK)
	require.Equal(t, omokdto.CodeBadRequest, ack.Code)

	require.NoError(t, p.conn.Write(ctx, websocket.MessageBinary, []byte{1, 2, 3}))
	ack = p.read()
	require.Equal(t, omokdto.CodeBadRequest, ack.Code)

	ack, _ = p.call("teleport", nil)
	require.Equal(t, omokdto.CodeBadRequest, ack.Code)
}

func TestTwoPlayersOverWebsocket(t *testing.T) {
	st := newStack(t)
	black := st.dial(t)
	white := st.dial(t)

	ack, _ := black.call(omokdto.TypeCreateRoom, map[string]int{"gameTime": 600})
	require.True(t, ack.OK)
	var created omokdto.CreateRoomResponse
	require.NoError(t, json.Unmarshal(ack.Data, &created))

	ack, _ = white.call(omokdto.TypeJoinRoom, map[string]string{"roomId": strings.ToLower(created.RoomID)})
	require.True(t, ack.OK)
	var joined omokdto.SeatResponse
	require.NoError(t, json.Unmarshal(ack.Data, &joined))
	require.Equal(t, "white", joined.Seat)

	started := black.waitEvent(omokdto.EventGameStarted)
	require.Equal(t, created.RoomID, started.RoomID)

	ack, _ = black.call(omokdto.TypeMakeMove, map[string]int{"row": 7, "col": 7})
	require.True(t, ack.OK)
	mv := white.waitEvent(omokdto.EventOpponentMove)
	var data omokdto.OpponentMove
	require.NoError(t, json.Unmarshal(mv.Data, &data))
	require.Equal(t, "black", data.Cells[7][7])
	require.Equal(t, "white", data.NextTurn)

	// dropping the transport starts the grace window, not a forfeit
	require.NoError(t, black.conn.Close(websocket.StatusNormalClosure, ""))
	dc := white.waitEvent(omokdto.EventOpponentDisconnected)
	require.Equal(t, created.RoomID, dc.RoomID)
	require.Eventually(t, func() bool { return st.gw.Pending() == 1 }, 2*time.Second, 5*time.Millisecond)

	again := st.dial(t)
	ack, _ = again.call(omokdto.TypeReconnect, map[string]string{"roomId": created.RoomID, "priorConnId": black.id})
	require.True(t, ack.OK, ack.Code)
	var back omokdto.SeatResponse
	require.NoError(t, json.Unmarshal(ack.Data, &back))
	require.Equal(t, "black", back.Seat)
	require.Equal(t, "white", back.BoardState.Turn)
	require.Len(t, back.BoardState.Moves, 1)
	white.waitEvent(omokdto.EventOpponentReconnected)
	require.Equal(t, 0, st.gw.Pending())
}

func TestHubSendIsNonBlocking(t *testing.T) {
	h := NewHub()
	c := newClient("c1", 1)
	h.add(c)
	overflowed := ""
	h.onOverflow = func(id string) { overflowed = id }

	require.True(t, h.Send("c1", "first"))
	require.False(t, h.Send("c1", "second"))
	require.Equal(t, "c1", overflowed)
	select {
	case <-c.done:
	default:
		t.Fatal("overflowed client must be closed")
	}
	require.False(t, h.Send("c1", "third"))
	require.False(t, h.Send("missing", "x"))

	h.remove("c1")
	require.Equal(t, 0, h.Len())
}
