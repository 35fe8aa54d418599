// Package wsserver is the websocket transport: it accepts connections, feeds
// their frames to the protocol handler and writes acks and events back.
package wsserver

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/omok-room-server/internal/obslog"
	"github.com/park285/omok-room-server/internal/protocol"
	"github.com/park285/omok-room-server/pkg/omokdto"
)

// FrameHandler answers one raw client frame.
type FrameHandler interface {
	HandleFrame(ctx context.Context, connID string, raw []byte) omokdto.Ack
}

// Disconnector is told when a transport goes away.
type Disconnector interface {
	Disconnect(connID string)
}

type Options struct {
	OriginPatterns []string
	Logger         *zap.Logger
	SendQueue      int
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadLimit      int64
}

type Server struct {
	hub     *Hub
	handler FrameHandler
	gone    Disconnector
	opts    Options
	logger  *zap.Logger

	wg sync.WaitGroup
}

var _ protocol.Sender = (*Hub)(nil)

func New(hub *Hub, handler FrameHandler, gone Disconnector, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = obslog.L()
	}
	if opts.SendQueue <= 0 {
		opts.SendQueue = 64
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 64 << 10
	}
	s := &Server{hub: hub, handler: handler, gone: gone, opts: opts, logger: opts.Logger}
	hub.onOverflow = func(id string) {
		s.logger.Warn("ws_send_overflow", zap.String("conn_id", id), zap.Int("queue", opts.SendQueue))
	}
	return s
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  s.opts.OriginPatterns,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		s.logger.Warn("ws_accept_error", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	conn.SetReadLimit(s.opts.ReadLimit)

	s.wg.Add(1)
	defer s.wg.Done()

	c := newClient(uuid.NewString(), s.opts.SendQueue)
	c.out <- omokdto.NewHello(c.id)
	s.hub.add(c)
	s.logger.Info("ws_accept", zap.String("conn_id", c.id), zap.String("remote", r.RemoteAddr))

	ctx, cancel := context.WithCancel(r.Context())
	var loops sync.WaitGroup
	loops.Add(2)
	go func() {
		defer loops.Done()
		s.writeLoop(ctx, cancel, conn, c)
	}()
	go func() {
		defer loops.Done()
		s.pingLoop(ctx, cancel, conn)
	}()

	err = s.readLoop(ctx, conn, c)

	s.hub.remove(c.id)
	c.kill("read closed")
	cancel()
	loops.Wait()
	_ = conn.Close(websocket.StatusNormalClosure, "")

	s.logger.Info("ws_close",
		zap.String("conn_id", c.id),
		zap.String("reason", c.reason),
		zap.Int("status", int(websocket.CloseStatus(err))),
	)
	s.gone.Disconnect(c.id)
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, c *client) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var ack omokdto.Ack
		if typ != websocket.MessageText {
			ack = omokdto.Fail("", omokdto.CodeBadRequest, "binary frames are not supported")
		} else {
			ack = s.handler.HandleFrame(ctx, c.id, data)
		}
		if !s.hub.Send(c.id, ack) {
			return errors.New("send queue closed")
		}
	}
}

func (s *Server) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, c *client) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			code := websocket.StatusGoingAway
			if c.reason == "slow consumer" {
				code = websocket.StatusPolicyViolation
			}
			_ = conn.Close(code, c.reason)
			return
		case frame := <-c.out:
			wctx, wcancel := context.WithTimeout(ctx, s.opts.WriteTimeout)
			err := wsjson.Write(wctx, conn, frame)
			wcancel()
			if err != nil {
				s.logger.Debug("ws_write_error", zap.String("conn_id", c.id), zap.Error(err))
				return
			}
		}
	}
}

func (s *Server) pingLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) {
	t := time.NewTicker(s.opts.PingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, pcancel := context.WithTimeout(ctx, 3*time.Second)
			err := conn.Ping(pctx)
			pcancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				cancel()
				return
			}
		}
	}
}

// Shutdown closes every connection and waits for their handlers to return.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.closeAll("server shutdown")
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
