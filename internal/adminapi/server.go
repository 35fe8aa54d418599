// Package adminapi serves the read-only operator HTTP surface.
package adminapi

import (
	"context"
	"encoding/json"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/omok-room-server/internal/obslog"
	"github.com/park285/omok-room-server/internal/protocol"
	"github.com/park285/omok-room-server/internal/render"
	"github.com/park285/omok-room-server/internal/results"
	"github.com/park285/omok-room-server/internal/room"
)

const (
	defaultResultLimit = 20
	maxResultLimit     = 200
	opTimeout          = 5 * time.Second
)

type Options struct {
	Registry *room.Registry
	Results  results.Repository // optional
	Logger   *zap.Logger
	// Sessions reports pending grace windows for /healthz.
	Sessions func() int
	Conns    func() int
}

type Server struct {
	reg     *room.Registry
	results results.Repository
	logger  *zap.Logger
	pending func() int
	conns   func() int
	started time.Time
	srv     *fasthttp.Server
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = obslog.L()
	}
	s := &Server{
		reg:     opts.Registry,
		results: opts.Results,
		logger:  opts.Logger,
		pending: opts.Sessions,
		conns:   opts.Conns,
		started: time.Now(),
	}
	s.srv = &fasthttp.Server{
		Handler:      s.Handle,
		Name:         "omok-admin",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Serve blocks until ln is closed or Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("admin_listen", zap.String("addr", ln.Addr().String()))
	return s.srv.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.ShutdownWithContext(ctx)
}

// Handle routes one request.
func (s *Server) Handle(ctx *fasthttp.RequestCtx) {
	if !ctx.IsGet() && !ctx.IsHead() {
		writeError(ctx, fasthttp.StatusMethodNotAllowed, "method not allowed")
		return
	}
	path := strings.TrimSuffix(string(ctx.Path()), "/")
	switch {
	case path == "/healthz":
		s.healthz(ctx)
	case path == "/rooms":
		s.listRooms(ctx)
	case strings.HasPrefix(path, "/rooms/"):
		rest := strings.TrimPrefix(path, "/rooms/")
		if id, ok := strings.CutSuffix(rest, "/board.png"); ok {
			s.boardPNG(ctx, id)
			return
		}
		if strings.Contains(rest, "/") {
			writeError(ctx, fasthttp.StatusNotFound, "not found")
			return
		}
		s.roomState(ctx, rest)
	case path == "/results":
		s.recentResults(ctx)
	case strings.HasPrefix(path, "/results/"):
		s.getResult(ctx, strings.TrimPrefix(path, "/results/"))
	default:
		writeError(ctx, fasthttp.StatusNotFound, "not found")
	}
}

func (s *Server) healthz(ctx *fasthttp.RequestCtx) {
	body := map[string]any{
		"status":    "ok",
		"rooms":     s.reg.Len(),
		"uptimeSec": int64(time.Since(s.started) / time.Second),
	}
	if s.pending != nil {
		body["pendingReconnects"] = s.pending()
	}
	if s.conns != nil {
		body["connections"] = s.conns()
	}
	writeJSON(ctx, fasthttp.StatusOK, body)
}

func (s *Server) listRooms(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, fasthttp.StatusOK, map[string]any{"rooms": protocol.ToSummaries(s.reg.Summaries())})
}

func (s *Server) roomState(ctx *fasthttp.RequestCtx, id string) {
	r, ok := s.reg.Get(id)
	if !ok {
		writeError(ctx, fasthttp.StatusNotFound, "room not found")
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, protocol.ToBoardState(r.Snapshot()))
}

func (s *Server) boardPNG(ctx *fasthttp.RequestCtx, id string) {
	r, ok := s.reg.Get(id)
	if !ok {
		writeError(ctx, fasthttp.StatusNotFound, "room not found")
		return
	}
	rctx, cancel := s.opContext()
	defer cancel()
	png, err := render.RenderSnapshot(rctx, r.Snapshot())
	if err != nil {
		s.logger.Warn("admin_render_failed", zap.String("room_id", id), zap.Error(err))
		writeError(ctx, fasthttp.StatusInternalServerError, "render failed")
		return
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("image/png")
	ctx.Response.Header.Set("Cache-Control", "no-store")
	ctx.SetBody(png)
}

func (s *Server) recentResults(ctx *fasthttp.RequestCtx) {
	if s.results == nil {
		writeError(ctx, fasthttp.StatusNotFound, "results disabled")
		return
	}
	limit := defaultResultLimit
	if raw := strings.TrimSpace(string(ctx.QueryArgs().Peek("limit"))); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(ctx, fasthttp.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxResultLimit)
	}
	rctx, cancel := s.opContext()
	defer cancel()
	list, err := s.results.Recent(rctx, limit)
	if err != nil {
		s.logger.Warn("admin_results_failed", zap.Error(err))
		writeError(ctx, fasthttp.StatusInternalServerError, "results unavailable")
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, map[string]any{"results": list})
}

func (s *Server) getResult(ctx *fasthttp.RequestCtx, id string) {
	if s.results == nil {
		writeError(ctx, fasthttp.StatusNotFound, "results disabled")
		return
	}
	rctx, cancel := s.opContext()
	defer cancel()
	rec, err := s.results.Get(rctx, id)
	if err != nil {
		s.logger.Warn("admin_result_failed", zap.String("game_id", id), zap.Error(err))
		writeError(ctx, fasthttp.StatusInternalServerError, "results unavailable")
		return
	}
	if rec == nil {
		writeError(ctx, fasthttp.StatusNotFound, "result not found")
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, rec)
}

func (s *Server) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), opTimeout)
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json; charset=utf-8")
	ctx.SetBody(b)
}

func writeError(ctx *fasthttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, map[string]string{"error": msg})
}
