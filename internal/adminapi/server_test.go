package adminapi

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
	"go.uber.org/zap/zaptest"

	"github.com/park285/omok-room-server/internal/omok"
	"github.com/park285/omok-room-server/internal/results"
	"github.com/park285/omok-room-server/internal/room"
	"github.com/park285/omok-room-server/pkg/omokdto"
)

type fixture struct {
	reg  *room.Registry
	repo results.Repository
	srv  *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	f := &fixture{repo: results.NewMemoryRepository(0)}
	f.reg = room.NewRegistry(room.Config{Clock: clock.NewMock(), Logger: logger})
	t.Cleanup(f.reg.CloseAll)
	f.srv = New(Options{Registry: f.reg, Results: f.repo, Logger: logger, Sessions: func() int { return 2 }})
	return f
}

func (f *fixture) get(uri string) *fasthttp.RequestCtx {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod(fasthttp.MethodGet)
	ctx.Request.SetRequestURI(uri)
	f.srv.Handle(&ctx)
	return &ctx
}

func decode(t *testing.T, ctx *fasthttp.RequestCtx, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), v))
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	ctx := f.get("/healthz")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	var body map[string]any
	decode(t, ctx, &body)
	require.Equal(t, "ok", body["status"])
	require.EqualValues(t, 0, body["rooms"])
	require.EqualValues(t, 2, body["pendingReconnects"])
}

func TestRoomsAndSnapshot(t *testing.T) {
	f := newFixture(t)
	r, err := f.reg.Create(context.Background(), "c1", 300)
	require.NoError(t, err)
	_, err = r.Join("c2")
	require.NoError(t, err)
	_, err = r.Move(omok.Black, 7, 7)
	require.NoError(t, err)

	var list struct {
		Rooms []omokdto.RoomSummary `json:"rooms"`
	}
	decode(t, f.get("/rooms"), &list)
	require.Len(t, list.Rooms, 1)
	require.Equal(t, r.ID(), list.Rooms[0].RoomID)
	require.Equal(t, 2, list.Rooms[0].PlayerCount)

	ctx := f.get("/rooms/" + r.ID())
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	var bs omokdto.BoardState
	decode(t, ctx, &bs)
	require.Equal(t, "active", bs.Phase)
	require.Equal(t, "white", bs.Turn)
	require.Equal(t, "black", bs.Cells[7][7])

	png := f.get("/rooms/" + r.ID() + "/board.png")
	require.Equal(t, fasthttp.StatusOK, png.Response.StatusCode())
	require.Equal(t, "image/png", string(png.Response.Header.ContentType()))
	require.Equal(t, "\x89PNG", string(png.Response.Body()[:4]))

	require.Equal(t, fasthttp.StatusNotFound, f.get("/rooms/NOPE00").Response.StatusCode())
	require.Equal(t, fasthttp.StatusNotFound, f.get("/rooms/NOPE00/board.png").Response.StatusCode())
	require.Equal(t, fasthttp.StatusNotFound, f.get("/rooms/a/b").Response.StatusCode())
}

func TestResults(t *testing.T) {
	f := newFixture(t)
	end := time.Now()
	for _, id := range []string{"g1", "g2", "g3"} {
		end = end.Add(time.Minute)
		require.NoError(t, f.repo.Save(context.Background(), results.Record{GameID: id, RoomID: "AB12CD", Black: "conn-b-" + id, White: "conn-w-" + id, EndedAt: end, Result: "Draw"}))
	}
	// connection ids would let a reader reclaim seats
	require.NotContains(t, string(f.get("/results").Response.Body()), "conn-")
	require.NotContains(t, string(f.get("/results/g1").Response.Body()), "conn-")

	var body struct {
		Results []results.Record `json:"results"`
	}
	decode(t, f.get("/results?limit=2"), &body)
	require.Len(t, body.Results, 2)
	require.Equal(t, "g3", body.Results[0].GameID)

	require.Equal(t, fasthttp.StatusBadRequest, f.get("/results?limit=x").Response.StatusCode())

	var rec results.Record
	decode(t, f.get("/results/g1"), &rec)
	require.Equal(t, "g1", rec.GameID)
	require.Equal(t, fasthttp.StatusNotFound, f.get("/results/zz").Response.StatusCode())
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod(fasthttp.MethodPost)
	ctx.Request.SetRequestURI("/rooms")
	f.srv.Handle(&ctx)
	require.Equal(t, fasthttp.StatusMethodNotAllowed, ctx.Response.StatusCode())
}

func TestServeOverListener(t *testing.T) {
	f := newFixture(t)
	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = f.srv.Serve(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = f.srv.Shutdown(ctx)
	})

	client := &fasthttp.Client{Dial: func(string) (net.Conn, error) { return ln.Dial() }}
	status, body, err := client.Get(nil, "http://admin.local/healthz")
	require.NoError(t, err)
	require.Equal(t, fasthttp.StatusOK, status)
	require.Contains(t, string(body), `"status":"ok"`)
}
