// Package wsclient is a reconnecting omok protocol client. After a dropped
// transport it redials and reclaims its seat with the previous connection id.
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/omok-room-server/internal/obslog"
	"github.com/park285/omok-room-server/pkg/omokdto"
)

// ErrDisconnected fails requests whose connection dropped before the ack arrived.
var ErrDisconnected = errors.New("wsclient: disconnected")

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
)

// Frame is any server frame: ack, event or hello.
type Frame struct {
	V       int             `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	OK      bool            `json:"ok"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
	Event   string          `json:"event,omitempty"`
	RoomID  string          `json:"roomId,omitempty"`
	ConnID  string          `json:"connId,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Err returns the failure of an ack frame.
func (f Frame) Err() error {
	if f.Type != omokdto.TypeAck || f.OK {
		return nil
	}
	return omokdto.Error{Code: f.Code, Message: f.Message}
}

// Decode unmarshals the frame data into v.
func (f Frame) Decode(v any) error {
	if len(f.Data) == 0 {
		return nil
	}
	return json.Unmarshal(f.Data, v)
}

type (
	EventCallback  func(f Frame)
	StateCallback  func(s State)
	HeaderProvider func() map[string]string
)

type callbackEntry struct {
	id       int
	callback EventCallback
}

type stateCallbackEntry struct {
	id       int
	callback StateCallback
}

type Option func(*Client)

// WithReconnect sets the redial budget after a drop. max <= 0 disables it.
func WithReconnect(max int, base time.Duration) Option {
	return func(c *Client) {
		c.maxReconnectAttempts = max
		if base > 0 {
			c.reconnectDelay = base
		}
	}
}

func WithPingInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pingInterval = d
		}
	}
}

func WithHeaderProvider(h HeaderProvider) Option { return func(c *Client) { c.headerProvider = h } }

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

type Client struct {
	wsURL  string
	logger *zap.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	connID  string
	roomID  string
	pending map[string]chan Frame

	state  State
	stateM sync.RWMutex

	evCbs    []callbackEntry
	stateCbs []stateCallbackEntry
	cbM      sync.RWMutex

	seq atomic.Uint64

	maxReconnectAttempts int
	reconnectDelay       time.Duration
	pingInterval         time.Duration
	headerProvider       HeaderProvider

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

func New(wsURL string, opts ...Option) *Client {
	c := &Client{
		wsURL:                wsURL,
		logger:               obslog.L(),
		state:                StateDisconnected,
		pending:              make(map[string]chan Frame),
		maxReconnectAttempts: 5,
		reconnectDelay:       250 * time.Millisecond,
		pingInterval:         30 * time.Second,
		stopCh:               make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	c.rootCtx, c.rootCancel = context.WithCancel(context.Background())
	return c
}

// Connect dials and waits for the hello frame.
func (c *Client) Connect(ctx context.Context) error {
	switch c.State() {
	case StateConnected, StateConnecting:
		return nil
	}
	c.setState(StateConnecting)
	conn, id, err := c.dial(ctx)
	if err != nil {
		c.setState(StateFailed)
		return err
	}
	c.attach(conn, id)
	c.setState(StateConnected)
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, string, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, c.wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      c.buildHeaders(),
	})
	if err != nil {
		return nil, "", err
	}
	var hello Frame
	if err := wsjson.Read(dialCtx, conn, &hello); err != nil {
		_ = conn.Close(websocket.StatusProtocolError, "no hello")
		return nil, "", fmt.Errorf("read hello: %w", err)
	}
	if hello.Type != omokdto.TypeHello || hello.ConnID == "" {
		_ = conn.Close(websocket.StatusProtocolError, "no hello")
		return nil, "", fmt.Errorf("unexpected first frame %q", hello.Type)
	}
	return conn, hello.ConnID, nil
}

func (c *Client) attach(conn *websocket.Conn, connID string) {
	c.mu.Lock()
	c.conn = conn
	c.connID = connID
	c.mu.Unlock()

	connCtx, cancel := context.WithCancel(c.rootCtx)
	c.wg.Add(2)
	go c.listen(connCtx, cancel, conn)
	go c.pingLoop(connCtx, cancel, conn)
}

func (c *Client) listen(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) {
	defer c.wg.Done()
	defer cancel()
	for {
		var f Frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			c.dropped(conn, err)
			return
		}
		switch f.Type {
		case omokdto.TypeAck:
			c.mu.Lock()
			ch := c.pending[f.ID]
			delete(c.pending, f.ID)
			c.mu.Unlock()
			if ch != nil {
				ch <- f
			}
		case omokdto.TypeEvent:
			c.cbM.RLock()
			callbacks := make([]callbackEntry, len(c.evCbs))
			copy(callbacks, c.evCbs)
			c.cbM.RUnlock()
			for _, entry := range callbacks {
				if entry.callback != nil {
					entry.callback(f)
				}
			}
		}
	}
}

func (c *Client) pingLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) {
	defer c.wg.Done()
	t := time.NewTicker(c.pingInterval)
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
				// listen sees the cancelled read and triggers the reconnect
				cancel()
				return
			}
		}
	}
}

// dropped runs once per connection when its reader fails.
func (c *Client) dropped(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	pending := c.pending
	c.pending = make(map[string]chan Frame)
	c.mu.Unlock()
	for _, ch := range pending {
		close(ch)
	}
	_ = conn.Close(websocket.StatusGoingAway, "reconnect")

	if c.isStopping() {
		return
	}
	c.logger.Info("wsclient_dropped", zap.Error(err))
	c.setState(StateDisconnected)
	c.scheduleReconnect()
}

func (c *Client) scheduleReconnect() {
	if c.maxReconnectAttempts <= 0 {
		c.setState(StateFailed)
		return
	}
	c.setState(StateReconnecting)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for attempt := 1; attempt <= c.maxReconnectAttempts; attempt++ {
			select {
			case <-c.stopCh:
				return
			case <-time.After(c.backoff(attempt)):
			}
			conn, id, err := c.dial(c.rootCtx)
			if err != nil {
				c.logger.Debug("wsclient_redial_failed", zap.Int("attempt", attempt), zap.Error(err))
				continue
			}
			c.mu.Lock()
			prior, roomID := c.connID, c.roomID
			c.mu.Unlock()
			c.attach(conn, id)
			if roomID != "" {
				c.reclaim(roomID, prior)
			}
			c.setState(StateConnected)
			return
		}
		c.setState(StateFailed)
	}()
}

// reclaimAttempts bounds retries while the server has not yet noticed the
// old connection drop and still treats the seat as live.
const reclaimAttempts = 5

func (c *Client) reclaim(roomID, prior string) {
	var err error
	for attempt := 1; attempt <= reclaimAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(c.rootCtx, 10*time.Second)
		_, err = c.Reconnect(ctx, roomID, prior)
		cancel()
		if err == nil {
			c.logger.Info("wsclient_reclaimed", zap.String("room_id", roomID), zap.String("prior_conn_id", prior))
			return
		}
		var oe omokdto.Error
		if !errors.As(err, &oe) || oe.Code != omokdto.CodeNotAPlayer {
			break
		}
		select {
		case <-c.stopCh:
			return
		case <-time.After(c.backoff(attempt)):
		}
	}
	c.logger.Warn("wsclient_reclaim_failed", zap.String("room_id", roomID), zap.Error(err))
	var oe omokdto.Error
	if errors.As(err, &oe) {
		c.setRoom("")
	}
}

func (c *Client) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return c.reconnectDelay * time.Duration(1<<(attempt-1))
}

// Request sends one envelope and waits for its ack. A failed ack is
// returned along with its error.
func (c *Client) Request(ctx context.Context, typ string, payload any) (Frame, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Frame{}, fmt.Errorf("marshal payload: %w", err)
		}
		raw = b
	}
	id := strconv.FormatUint(c.seq.Add(1), 10)
	ch := make(chan Frame, 1)

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return Frame{}, ErrDisconnected
	}
	c.pending[id] = ch
	c.mu.Unlock()

	env := omokdto.Envelope{V: omokdto.Version, Type: typ, ID: id, Payload: raw}
	if err := wsjson.Write(ctx, conn, env); err != nil {
		c.forget(id)
		return Frame{}, err
	}
	select {
	case f, ok := <-ch:
		if !ok {
			return Frame{}, ErrDisconnected
		}
		return f, f.Err()
	case <-ctx.Done():
		c.forget(id)
		return Frame{}, ctx.Err()
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) CreateRoom(ctx context.Context, gameTime int) (omokdto.CreateRoomResponse, error) {
	req := omokdto.CreateRoomRequest{}
	if gameTime > 0 {
		req.GameTime = &gameTime
	}
	var out omokdto.CreateRoomResponse
	f, err := c.Request(ctx, omokdto.TypeCreateRoom, req)
	if err != nil {
		return out, err
	}
	if err := f.Decode(&out); err != nil {
		return out, err
	}
	c.setRoom(out.RoomID)
	return out, nil
}

func (c *Client) JoinRoom(ctx context.Context, roomID string) (omokdto.SeatResponse, error) {
	var out omokdto.SeatResponse
	f, err := c.Request(ctx, omokdto.TypeJoinRoom, omokdto.JoinRoomRequest{RoomID: roomID})
	if err != nil {
		return out, err
	}
	if err := f.Decode(&out); err != nil {
		return out, err
	}
	c.setRoom(out.BoardState.RoomID)
	return out, nil
}

// Reconnect reclaims a seat of roomID held by the connection priorConnID.
func (c *Client) Reconnect(ctx context.Context, roomID, priorConnID string) (omokdto.SeatResponse, error) {
	var out omokdto.SeatResponse
	f, err := c.Request(ctx, omokdto.TypeReconnect, omokdto.ReconnectRequest{RoomID: roomID, PriorConnID: priorConnID})
	if err != nil {
		return out, err
	}
	if err := f.Decode(&out); err != nil {
		return out, err
	}
	c.setRoom(out.BoardState.RoomID)
	return out, nil
}

func (c *Client) MakeMove(ctx context.Context, row, col int) (omokdto.MakeMoveResponse, error) {
	var out omokdto.MakeMoveResponse
	f, err := c.Request(ctx, omokdto.TypeMakeMove, omokdto.MakeMoveRequest{Row: &row, Col: &col})
	if err != nil {
		return out, err
	}
	err = f.Decode(&out)
	return out, err
}

func (c *Client) Surrender(ctx context.Context) error {
	_, err := c.Request(ctx, omokdto.TypeSurrender, nil)
	return err
}

func (c *Client) Restart(ctx context.Context) error {
	_, err := c.Request(ctx, omokdto.TypeRestart, nil)
	return err
}

func (c *Client) LeaveRoom(ctx context.Context) (omokdto.LeaveRoomResponse, error) {
	var out omokdto.LeaveRoomResponse
	f, err := c.Request(ctx, omokdto.TypeLeaveRoom, nil)
	if err != nil {
		return out, err
	}
	c.setRoom("")
	err = f.Decode(&out)
	return out, err
}

func (c *Client) GameState(ctx context.Context) (omokdto.SeatResponse, error) {
	var out omokdto.SeatResponse
	f, err := c.Request(ctx, omokdto.TypeGetGameState, omokdto.GameStateRequest{})
	if err != nil {
		return out, err
	}
	err = f.Decode(&out)
	return out, err
}

func (c *Client) ListRooms(ctx context.Context) ([]omokdto.RoomSummary, error) {
	var out omokdto.ListRoomsResponse
	f, err := c.Request(ctx, omokdto.TypeListRooms, nil)
	if err != nil {
		return nil, err
	}
	if err := f.Decode(&out); err != nil {
		return nil, err
	}
	return out.Rooms, nil
}

// ConnID is the server-assigned id of the current connection.
func (c *Client) ConnID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connID
}

func (c *Client) RoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

func (c *Client) setRoom(id string) {
	c.mu.Lock()
	c.roomID = id
	c.mu.Unlock()
}

func (c *Client) OnEvent(cb EventCallback) int {
	c.cbM.Lock()
	defer c.cbM.Unlock()
	id := len(c.evCbs) + 1
	c.evCbs = append(c.evCbs, callbackEntry{id: id, callback: cb})
	return id
}

func (c *Client) RemoveEventCallback(id int) {
	c.cbM.Lock()
	defer c.cbM.Unlock()
	for i, cb := range c.evCbs {
		if cb.id == id {
			c.evCbs = append(c.evCbs[:i], c.evCbs[i+1:]...)
			break
		}
	}
}

func (c *Client) OnStateChange(cb StateCallback) int {
	c.cbM.Lock()
	defer c.cbM.Unlock()
	id := len(c.stateCbs) + 1
	c.stateCbs = append(c.stateCbs, stateCallbackEntry{id: id, callback: cb})
	return id
}

func (c *Client) State() State {
	c.stateM.RLock()
	defer c.stateM.RUnlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.stateM.Lock()
	c.state = s
	c.stateM.Unlock()

	c.cbM.RLock()
	callbacks := make([]stateCallbackEntry, len(c.stateCbs))
	copy(callbacks, c.stateCbs)
	c.cbM.RUnlock()
	for _, entry := range callbacks {
		if entry.callback != nil {
			entry.callback(s)
		}
	}
}

// Close stops reconnecting and closes the current connection.
func (c *Client) Close(ctx context.Context) error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "close")
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		c.rootCancel()
		return ctx.Err()
	case <-done:
		c.rootCancel()
		c.setState(StateDisconnected)
		return nil
	}
}

func (c *Client) isStopping() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

func (c *Client) buildHeaders() http.Header {
	hdr := http.Header{}
	if c.headerProvider == nil {
		return hdr
	}
	for k, v := range c.headerProvider() {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		hdr.Set(k, v)
	}
	return hdr
}
