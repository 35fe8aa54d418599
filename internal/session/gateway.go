// Package session binds transport connections to room seats and owns the
// reconnect grace window.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/park285/omok-room-server/internal/obslog"
	"github.com/park285/omok-room-server/internal/omok"
	"github.com/park285/omok-room-server/internal/room"
)

// ErrAlreadyInRoom is returned when a bound connection tries to enter another room.
var ErrAlreadyInRoom = errors.New("connection already in a room")

// DefaultGrace is the reconnect window after a transport disconnect.
const DefaultGrace = 3 * time.Minute

// Binding is where a connection sits.
type Binding struct {
	RoomID string
	Seat   omok.Seat
}

type seatKey struct {
	roomID string
	seat   omok.Seat
}

type pendingDeparture struct {
	conn  string
	epoch uint64
	timer *clock.Timer
}

type Options struct {
	Grace  time.Duration
	Clock  clock.Clock
	Logger *zap.Logger
}

// Gateway is the only owner of connection → (room, seat) bindings.
// Its lock is never held while calling into a room.
type Gateway struct {
	reg    *room.Registry
	grace  time.Duration
	clock  clock.Clock
	logger *zap.Logger

	mu       sync.Mutex
	bindings map[string]Binding
	pending  map[seatKey]*pendingDeparture
}

func New(reg *room.Registry, opts Options) *Gateway {
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = obslog.L()
	}
	g := &Gateway{
		reg:      reg,
		grace:    opts.Grace,
		clock:    opts.Clock,
		logger:   opts.Logger,
		bindings: make(map[string]Binding),
		pending:  make(map[seatKey]*pendingDeparture),
	}
	reg.OnRemove(g.DropRoom)
	return g
}

func (g *Gateway) Bind(connID, roomID string, seat omok.Seat) {
	g.mu.Lock()
	g.bindings[connID] = Binding{RoomID: roomID, Seat: seat}
	g.mu.Unlock()
}

func (g *Gateway) Resolve(connID string) (Binding, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.bindings[connID]
	return b, ok
}

func (g *Gateway) Unbind(connID string) {
	g.mu.Lock()
	delete(g.bindings, connID)
	g.mu.Unlock()
}

// Room resolves connID to its live room.
func (g *Gateway) Room(connID string) (*room.Room, Binding, error) {
	b, ok := g.Resolve(connID)
	if !ok {
		return nil, Binding{}, room.ErrNotInRoom
	}
	r, ok := g.reg.Get(b.RoomID)
	if !ok {
		g.Unbind(connID)
		return nil, Binding{}, room.ErrNotInRoom
	}
	return r, b, nil
}

// EnsureFree fails if connID is already seated somewhere live.
func (g *Gateway) EnsureFree(connID string) error {
	if _, _, err := g.Room(connID); err == nil {
		return ErrAlreadyInRoom
	}
	return nil
}

// Disconnect handles a dropped transport. The seat is kept for the grace
// window; if nobody reclaims it the seat is forfeited.
func (g *Gateway) Disconnect(connID string) {
	b, ok := g.Resolve(connID)
	if !ok {
		return
	}
	r, ok := g.reg.Get(b.RoomID)
	if !ok {
		g.Unbind(connID)
		return
	}
	seat, epoch, err := r.MarkDeparting(connID)
	if err != nil {
		g.Unbind(connID)
		return
	}

	key := seatKey{roomID: b.RoomID, seat: seat}
	g.mu.Lock()
	if prev := g.pending[key]; prev != nil {
		prev.timer.Stop()
	}
	pd := &pendingDeparture{conn: connID, epoch: epoch}
	pd.timer = g.clock.AfterFunc(g.grace, func() { g.expire(key, pd) })
	g.pending[key] = pd
	g.mu.Unlock()

	g.logger.Info("session_grace_start",
		zap.String("room_id", b.RoomID),
		zap.Stringer("seat", seat),
		zap.String("conn_id", connID),
		zap.Duration("grace", g.grace),
	)
}

func (g *Gateway) expire(key seatKey, pd *pendingDeparture) {
	g.mu.Lock()
	if g.pending[key] == pd {
		delete(g.pending, key)
	}
	if b, ok := g.bindings[pd.conn]; ok && b.RoomID == key.roomID {
		delete(g.bindings, pd.conn)
	}
	g.mu.Unlock()

	r, ok := g.reg.Get(key.roomID)
	if !ok {
		return
	}
	// the room re-checks the epoch, so a reconnect that won the race wins
	out, forfeited := r.ForfeitDeparted(key.seat, pd.epoch)
	if forfeited {
		g.logger.Info("session_forfeit",
			zap.String("room_id", key.roomID),
			zap.Stringer("seat", key.seat),
			zap.Bool("finished", out.Finished),
			zap.Bool("torn_down", out.TornDown),
		)
	}
}

// Reconnect rebinds a seat of roomID to newConn. The caller proves identity
// with the prior connection id or by claiming a seat that is pending departure.
func (g *Gateway) Reconnect(newConn, roomID, priorConn string, claimed omok.Seat) (room.ReclaimResult, error) {
	r, ok := g.reg.Get(roomID)
	if !ok {
		return room.ReclaimResult{}, room.ErrRoomNotFound
	}
	if b, ok := g.Resolve(newConn); ok && b.RoomID != r.ID() {
		if _, live := g.reg.Get(b.RoomID); live {
			return room.ReclaimResult{}, ErrAlreadyInRoom
		}
	}

	res, err := r.Reclaim(room.Claim{PriorConn: priorConn, Seat: claimed}, newConn)
	if err != nil {
		return room.ReclaimResult{}, err
	}

	key := seatKey{roomID: r.ID(), seat: res.Seat}
	g.mu.Lock()
	if pd := g.pending[key]; pd != nil {
		pd.timer.Stop()
		delete(g.pending, key)
	}
	if res.Replaced != "" && res.Replaced != newConn {
		delete(g.bindings, res.Replaced)
	}
	g.bindings[newConn] = Binding{RoomID: r.ID(), Seat: res.Seat}
	g.mu.Unlock()

	g.logger.Info("session_reconnect",
		zap.String("room_id", r.ID()),
		zap.Stringer("seat", res.Seat),
		zap.String("conn_id", newConn),
		zap.String("prev_conn_id", res.Replaced),
	)
	return res, nil
}

// Leave vacates connID's seat explicitly.
func (g *Gateway) Leave(connID string) (room.LeaveOutcome, error) {
	r, b, err := g.Room(connID)
	if err != nil {
		return room.LeaveOutcome{}, err
	}
	out, err := r.Leave(connID)
	g.Unbind(connID)
	if err != nil {
		return room.LeaveOutcome{}, err
	}
	g.logger.Info("session_leave", zap.String("room_id", b.RoomID), zap.Stringer("seat", out.Seat), zap.String("conn_id", connID))
	return out, nil
}

// DropRoom forgets every binding and pending departure of roomID.
func (g *Gateway) DropRoom(roomID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for conn, b := range g.bindings {
		if b.RoomID == roomID {
			delete(g.bindings, conn)
		}
	}
	for key, pd := range g.pending {
		if key.roomID == roomID {
			pd.timer.Stop()
			delete(g.pending, key)
		}
	}
}

// Pending reports how many grace windows are running.
func (g *Gateway) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}
