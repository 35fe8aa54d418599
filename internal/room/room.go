package room

import (
	"runtime/debug"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/omok-room-server/internal/omok"
)

// deps are shared by every room of one registry.
type deps struct {
	size     int
	tick     time.Duration
	clock    clock.Clock
	notifier Notifier
	logger   *zap.Logger
	onFinish func(Result)
	detach   func(*Room)
}

// Room is one game instance with its two seats and turn timer.
// Every exported method takes the room lock; at most one operation per room
// is in flight, and timer callbacks take the same lock.
type Room struct {
	id   string
	deps *deps

	mu          sync.Mutex
	closed      bool
	board       *omok.Board
	phase       Phase
	turn        omok.Seat
	lastMove    *omok.Point
	history     []omok.Move
	seats       [2]Slot
	departEpoch [2]uint64
	budgets     [2]int
	gameTime    int
	winner      omok.Seat
	reason      Reason
	gameID      string
	startedAt   time.Time
	timer       turnTimer
	createdAt   time.Time
	lastActive  time.Time
}

func newRoom(id, creatorConn string, gameTime int, d *deps) *Room {
	now := d.clock.Now()
	r := &Room{
		id:         id,
		deps:       d,
		board:      omok.NewBoard(d.size),
		phase:      PhasePending,
		turn:       omok.Black,
		gameTime:   gameTime,
		budgets:    [2]int{gameTime, gameTime},
		createdAt:  now,
		lastActive: now,
	}
	r.seats[omok.Black.Index()] = Slot{Conn: creatorConn}
	return r
}

func (r *Room) ID() string { return r.id }

func (r *Room) log() *zap.Logger { return r.deps.logger.With(zap.String("room_id", r.id)) }

// Join seats connID in the free seat. A connection already seated gets its
// seat back unchanged.
func (r *Room) Join(connID string) (omok.Seat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return omok.NoSeat, ErrRoomNotFound
	}
	if seat := r.seatOf(connID); seat != omok.NoSeat {
		return seat, nil
	}
	if r.seats[0].Occupied() && r.seats[1].Occupied() {
		return omok.NoSeat, ErrRoomFull
	}
	if r.phase != PhasePending {
		return omok.NoSeat, ErrAlreadyStarted
	}
	seat := omok.Black
	if r.seats[omok.Black.Index()].Occupied() {
		seat = omok.White
	}
	r.seats[seat.Index()] = Slot{Conn: connID}
	r.touch()
	r.log().Info("room_join", zap.String("conn_id", connID), zap.Stringer("seat", seat))

	snap := r.snapshotLocked()
	r.emit(Event{Kind: EventPlayerJoined, Seat: seat, Snapshot: &snap}, "")
	r.startIfReadyLocked()
	return seat, nil
}

// startIfReadyLocked starts a pending room once both seats hold live
// connections. A departing creator delays the start until it reclaims.
func (r *Room) startIfReadyLocked() {
	if r.phase != PhasePending {
		return
	}
	for _, sl := range r.seats {
		if !sl.Occupied() || sl.Departing {
			return
		}
	}
	r.startLocked()
	snap := r.snapshotLocked()
	r.emit(Event{Kind: EventGameStarted, Turn: r.turn, Budgets: budgetsOf(r.budgets), Snapshot: &snap}, "")
}

// startLocked begins a fresh game on the current seat bindings.
func (r *Room) startLocked() {
	r.board.Reset()
	r.history = r.history[:0]
	r.lastMove = nil
	r.budgets = [2]int{r.gameTime, r.gameTime}
	r.turn = omok.Black
	r.winner = omok.NoSeat
	r.reason = ""
	r.phase = PhaseActive
	r.gameID = uuid.NewString()
	r.startedAt = r.deps.clock.Now()
	r.touch()
	r.armTimer()
	r.log().Info("room_game_start",
		zap.String("game_id", r.gameID),
		zap.String("black", r.seats[0].Conn),
		zap.String("white", r.seats[1].Conn),
		zap.Int("game_time", r.gameTime),
	)
}

// Move places a stone for seat at (row, col).
func (r *Room) Move(seat omok.Seat, row, col int) (MoveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return MoveResult{}, ErrRoomNotFound
	}
	if r.phase != PhaseActive {
		return MoveResult{}, ErrGameNotActive
	}
	if seat != r.turn {
		return MoveResult{}, ErrNotYourTurn
	}
	if !r.board.InBounds(row, col) {
		return MoveResult{}, ErrOutOfBounds
	}
	if !r.board.IsValidMove(row, col) {
		return MoveResult{}, ErrCellOccupied
	}

	mv := omok.Move{Row: row, Col: col, Seat: seat}
	r.board.Apply(row, col, seat)
	r.history = append(r.history, mv)
	r.lastMove = &omok.Point{Row: row, Col: col}
	r.turn = seat.Opponent()
	r.touch()
	// new cadence for the next seat; budgets carry over
	r.armTimer()

	r.log().Debug("room_move", zap.Stringer("seat", seat), zap.Int("row", row), zap.Int("col", col), zap.Int("ply", len(r.history)))
	r.emit(Event{Kind: EventOpponentMove, Seat: seat, Move: &mv, Turn: r.turn, Board: r.board.Rows()}, "")

	res := MoveResult{Move: mv, NextTurn: r.turn}
	switch {
	case r.board.CheckWin(row, col, seat):
		r.finish(seat, ReasonWin)
	case r.board.CheckDraw():
		r.finish(omok.NoSeat, ReasonDraw)
	}
	if r.phase == PhaseFinished {
		res.Finished, res.Winner, res.Reason = true, r.winner, r.reason
	}
	return res, nil
}

// Surrender concedes the active game for seat.
func (r *Room) Surrender(seat omok.Seat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRoomNotFound
	}
	if r.phase != PhaseActive || !seat.Valid() {
		return ErrNoActiveGame
	}
	r.finish(seat.Opponent(), ReasonSurrender)
	return nil
}

// timeout is fired by the turn timer when seat's budget reaches zero.
func (r *Room) timeout(seat omok.Seat) {
	if r.phase != PhaseActive {
		return
	}
	r.finish(seat.Opponent(), ReasonTimeout)
}

// Restart starts a rematch with the same seats.
func (r *Room) Restart() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRoomNotFound
	}
	switch r.phase {
	case PhaseActive:
		return ErrGameStillActive
	case PhasePending:
		return ErrMissingOpponent
	}
	for _, s := range r.seats {
		if !s.Occupied() || s.Departing {
			return ErrMissingOpponent
		}
	}
	r.startLocked()
	snap := r.snapshotLocked()
	r.emit(Event{Kind: EventGameRestarted, Turn: r.turn, Budgets: budgetsOf(r.budgets), Snapshot: &snap}, "")
	return nil
}

// Leave vacates connID's seat. An active game is lost by the leaver; a room
// that never had an opponent is torn down.
func (r *Room) Leave(connID string) (LeaveOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return LeaveOutcome{}, ErrRoomNotFound
	}
	seat := r.seatOf(connID)
	if seat == omok.NoSeat {
		return LeaveOutcome{}, ErrNotInRoom
	}
	return r.vacate(seat), nil
}

func (r *Room) vacate(seat omok.Seat) LeaveOutcome {
	out := LeaveOutcome{Seat: seat}
	switch r.phase {
	case PhasePending:
		r.seats[seat.Index()] = Slot{}
		if !r.seats[seat.Opponent().Index()].Occupied() {
			r.teardown("creator_left")
			out.TornDown = true
			return out
		}
	case PhaseActive:
		r.finish(seat.Opponent(), ReasonOpponentLeft)
		out.Finished = true
	}
	r.seats[seat.Index()] = Slot{}
	r.departEpoch[seat.Index()]++
	r.touch()
	if !r.seats[0].Occupied() && !r.seats[1].Occupied() {
		r.teardown("empty")
		out.TornDown = true
		return out
	}
	r.emit(Event{Kind: EventPlayerLeft, Seat: seat}, "")
	return out
}

// MarkDeparting flags connID's seat as pending departure and returns the
// departure epoch the grace timer must present to ForfeitDeparted.
func (r *Room) MarkDeparting(connID string) (omok.Seat, uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return omok.NoSeat, 0, ErrRoomNotFound
	}
	seat := r.seatOf(connID)
	if seat == omok.NoSeat {
		return omok.NoSeat, 0, ErrNotInRoom
	}
	i := seat.Index()
	r.seats[i].Departing = true
	r.departEpoch[i]++
	r.log().Info("room_seat_departing", zap.Stringer("seat", seat), zap.String("conn_id", connID))
	r.emit(Event{Kind: EventOpponentDisconnected, Seat: seat}, connID)
	return seat, r.departEpoch[i], nil
}

// Reclaim rebinds a seat to newConn. Game state is untouched.
func (r *Room) Reclaim(claim Claim, newConn string) (ReclaimResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ReclaimResult{}, ErrRoomNotFound
	}
	seat := omok.NoSeat
	switch {
	case claim.PriorConn != "":
		// a live seat only moves to the connection that already holds it
		if s := r.seatOf(claim.PriorConn); s != omok.NoSeat && (r.seats[s.Index()].Departing || claim.PriorConn == newConn) {
			seat = s
		}
	case claim.Seat.Valid():
		if s := r.seats[claim.Seat.Index()]; s.Occupied() && s.Departing {
			seat = claim.Seat
		}
	}
	if seat == omok.NoSeat {
		return ReclaimResult{}, ErrNotAPlayer
	}
	if other := r.seatOf(newConn); other != omok.NoSeat && other != seat {
		return ReclaimResult{}, ErrNotAPlayer
	}
	i := seat.Index()
	prev := r.seats[i].Conn
	if prev == newConn && !r.seats[i].Departing {
		return ReclaimResult{Seat: seat, Replaced: prev, Snapshot: r.snapshotLocked()}, nil
	}
	r.seats[i] = Slot{Conn: newConn}
	r.departEpoch[i]++
	r.touch()
	r.log().Info("room_seat_reclaimed", zap.Stringer("seat", seat), zap.String("conn_id", newConn), zap.String("prev_conn_id", prev))
	r.emit(Event{Kind: EventOpponentReconnected, Seat: seat}, newConn)
	r.startIfReadyLocked()
	return ReclaimResult{Seat: seat, Replaced: prev, Snapshot: r.snapshotLocked()}, nil
}

// ForfeitDeparted vacates seat if it is still departing under epoch.
// A reconnect or leave since the departure makes it a no-op.
func (r *Room) ForfeitDeparted(seat omok.Seat, epoch uint64) (LeaveOutcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || !seat.Valid() {
		return LeaveOutcome{}, false
	}
	i := seat.Index()
	if !r.seats[i].Departing || r.departEpoch[i] != epoch {
		return LeaveOutcome{}, false
	}
	r.log().Info("room_seat_forfeit", zap.Stringer("seat", seat))
	return r.vacate(seat), true
}

// Close tears the room down regardless of state.
func (r *Room) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.teardown("closed")
}

// reapIfIdle tears the room down if it is still idle and abandoned now.
func (r *Room) reapIfIdle(now time.Time, idle time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || !r.idleLocked(now, idle) {
		return false
	}
	r.teardown("idle")
	return true
}

func (r *Room) idleLocked(now time.Time, idle time.Duration) bool {
	if now.Sub(r.lastActive) < idle {
		return false
	}
	if r.phase == PhaseFinished {
		return true
	}
	live := 0
	for _, s := range r.seats {
		if s.Occupied() && !s.Departing {
			live++
		}
	}
	return live < 2
}

func (r *Room) finish(winner omok.Seat, reason Reason) {
	r.phase = PhaseFinished
	r.winner = winner
	r.reason = reason
	r.disarmTimer()
	r.touch()
	r.log().Info("room_game_over",
		zap.String("game_id", r.gameID),
		zap.Stringer("winner", winner),
		zap.String("reason", string(reason)),
		zap.Int("plies", len(r.history)),
	)
	r.emit(Event{Kind: EventGameOver, Winner: winner, Reason: reason, Board: r.board.Rows(), Budgets: budgetsOf(r.budgets)}, "")
	if r.deps.onFinish != nil {
		res := r.resultLocked()
		r.safely("on_finish", func() { r.deps.onFinish(res) })
	}
}

func (r *Room) teardown(why string) {
	r.closed = true
	r.disarmTimer()
	r.log().Info("room_teardown", zap.String("reason", why))
	if r.deps.detach != nil {
		r.deps.detach(r)
	}
}

func (r *Room) emit(ev Event, except string) {
	ev.RoomID = r.id
	recipients := make([]string, 0, 2)
	for _, s := range r.seats {
		if s.Occupied() && !s.Departing && s.Conn != except {
			recipients = append(recipients, s.Conn)
		}
	}
	if len(recipients) == 0 {
		return
	}
	r.safely("notify", func() { r.deps.notifier.Notify(r.id, recipients, ev) })
}

// safely runs fn and logs a panic instead of propagating it.
func (r *Room) safely(what string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			r.log().Error("room_panic", zap.String("where", what), zap.Any("panic", p), zap.ByteString("stack", debug.Stack()))
		}
	}()
	fn()
}

func (r *Room) touch() { r.lastActive = r.deps.clock.Now() }

func (r *Room) seatOf(connID string) omok.Seat {
	if connID == "" {
		return omok.NoSeat
	}
	switch connID {
	case r.seats[0].Conn:
		return omok.Black
	case r.seats[1].Conn:
		return omok.White
	}
	return omok.NoSeat
}

// SeatOf returns the seat held by connID, or NoSeat.
func (r *Room) SeatOf(connID string) omok.Seat {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seatOf(connID)
}

func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Room) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.seats {
		if s.Occupied() {
			n++
		}
	}
	return Summary{ID: r.id, Phase: r.phase, Players: n, GameTime: r.gameTime, CreatedAt: r.createdAt}
}

func (r *Room) snapshotLocked() Snapshot {
	s := Snapshot{
		ID:           r.id,
		Phase:        r.phase,
		Turn:         r.turn,
		Size:         r.board.Size(),
		Board:        r.board.Rows(),
		History:      append([]omok.Move(nil), r.history...),
		Budgets:      budgetsOf(r.budgets),
		GameTime:     r.gameTime,
		Seats:        r.seats,
		Winner:       r.winner,
		Reason:       r.reason,
		GameID:       r.gameID,
		CreatedAt:    r.createdAt,
		LastActiveAt: r.lastActive,
	}
	if r.lastMove != nil {
		lm := *r.lastMove
		s.LastMove = &lm
	}
	return s
}

func (r *Room) resultLocked() Result {
	return Result{
		GameID:    r.gameID,
		RoomID:    r.id,
		BoardSize: r.board.Size(),
		GameTime:  r.gameTime,
		Black:     r.seats[0].Conn,
		White:     r.seats[1].Conn,
		Winner:    r.winner,
		Reason:    r.reason,
		Moves:     append([]omok.Move(nil), r.history...),
		Board:     r.board.Rows(),
		Budgets:   budgetsOf(r.budgets),
		StartedAt: r.startedAt,
		EndedAt:   r.deps.clock.Now(),
	}
}
