package protocol

import (
	"context"
	"errors"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/park285/omok-room-server/internal/msgcat"
	"github.com/park285/omok-room-server/internal/obslog"
	"github.com/park285/omok-room-server/internal/omok"
	"github.com/park285/omok-room-server/internal/room"
	"github.com/park285/omok-room-server/internal/session"
	"github.com/park285/omok-room-server/pkg/omokdto"
)

const (
	fallbackDefaultGameTime = 600
	fallbackMaxGameTime     = 3600
)

type Options struct {
	Registry *room.Registry
	Gateway  *session.Gateway
	Catalog  *msgcat.Catalog
	Logger   *zap.Logger
	// GameTime resolves a requested per-seat budget (0 = default) and
	// reports whether it is acceptable.
	GameTime func(requested int) (int, bool)
}

// Handler answers client requests. Every request gets exactly one ack.
type Handler struct {
	reg      *room.Registry
	gw       *session.Gateway
	cat      *msgcat.Catalog
	logger   *zap.Logger
	gameTime func(int) (int, bool)
}

func NewHandler(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = obslog.L()
	}
	if opts.Catalog == nil {
		opts.Catalog = msgcat.MustDefault()
	}
	if opts.GameTime == nil {
		opts.GameTime = defaultGameTime
	}
	return &Handler{
		reg:      opts.Registry,
		gw:       opts.Gateway,
		cat:      opts.Catalog,
		logger:   opts.Logger,
		gameTime: opts.GameTime,
	}
}

func defaultGameTime(requested int) (int, bool) {
	if requested == 0 {
		return fallbackDefaultGameTime, true
	}
	if requested < 0 || requested > fallbackMaxGameTime {
		return 0, false
	}
	return requested, true
}

// HandleFrame parses raw and dispatches it.
func (h *Handler) HandleFrame(ctx context.Context, connID string, raw []byte) omokdto.Ack {
	env, err := ParseEnvelope(raw)
	if err != nil {
		return h.fail("", "", err)
	}
	return h.Handle(ctx, connID, env)
}

// Handle decodes env, runs it and returns its ack. A panic becomes an
// Internal ack.
func (h *Handler) Handle(ctx context.Context, connID string, env omokdto.Envelope) (ack omokdto.Ack) {
	defer func() {
		if p := recover(); p != nil {
			h.logger.Error("protocol_panic",
				zap.String("conn_id", connID),
				zap.String("type", env.Type),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()),
			)
			ack = omokdto.Fail(env.ID, omokdto.CodeInternal, h.message(omokdto.CodeInternal, "", ""))
		}
	}()

	req, err := Decode(env)
	if err != nil {
		return h.fail(env.ID, "", err)
	}
	data, roomID, err := h.dispatch(ctx, connID, req)
	if err != nil {
		ack = h.fail(env.ID, roomID, err)
		h.logger.Debug("protocol_reject",
			zap.String("conn_id", connID),
			zap.String("type", env.Type),
			zap.String("code", ack.Code),
			zap.Error(err),
		)
		return ack
	}
	return omokdto.OK(env.ID, data)
}

func (h *Handler) dispatch(ctx context.Context, connID string, req Request) (any, string, error) {
	switch r := req.(type) {
	case CreateRoom:
		return h.createRoom(ctx, connID, r)
	case JoinRoom:
		return h.joinRoom(connID, r)
	case Reconnect:
		res, err := h.gw.Reconnect(connID, r.RoomID, r.PriorConnID, r.ClaimedSeat)
		if err != nil {
			return nil, r.RoomID, err
		}
		return omokdto.SeatResponse{Seat: res.Seat.String(), BoardState: ToBoardState(res.Snapshot)}, r.RoomID, nil
	case MakeMove:
		return h.makeMove(connID, r)
	case Surrender:
		rm, seat, err := h.seated(connID)
		if err != nil {
			return nil, "", err
		}
		return nil, rm.ID(), rm.Surrender(seat)
	case Restart:
		rm, _, err := h.seated(connID)
		if err != nil {
			return nil, "", err
		}
		return nil, rm.ID(), rm.Restart()
	case LeaveRoom:
		out, err := h.gw.Leave(connID)
		if err != nil {
			return nil, "", err
		}
		return omokdto.LeaveRoomResponse{Seat: out.Seat.String(), Finished: out.Finished, Closed: out.TornDown}, "", nil
	case GetGameState:
		return h.gameState(connID, r)
	case ListRooms:
		return omokdto.ListRoomsResponse{Rooms: ToSummaries(h.reg.Summaries())}, "", nil
	default:
		return nil, "", badRequest("unsupported request %T", req)
	}
}

func (h *Handler) createRoom(ctx context.Context, connID string, r CreateRoom) (any, string, error) {
	if err := h.gw.EnsureFree(connID); err != nil {
		return nil, "", err
	}
	gt, ok := h.gameTime(r.GameTime)
	if !ok {
		return nil, "", badRequest("gameTime %d out of range", r.GameTime)
	}
	rm, err := h.reg.Create(ctx, connID, gt)
	if err != nil {
		return nil, "", err
	}
	h.gw.Bind(connID, rm.ID(), omok.Black)
	return omokdto.CreateRoomResponse{RoomID: rm.ID(), Seat: omok.Black.String(), GameTime: gt}, rm.ID(), nil
}

func (h *Handler) joinRoom(connID string, r JoinRoom) (any, string, error) {
	rm, ok := h.reg.Get(r.RoomID)
	if !ok {
		return nil, r.RoomID, room.ErrRoomNotFound
	}
	if b, bound := h.gw.Resolve(connID); !bound || b.RoomID != rm.ID() {
		if err := h.gw.EnsureFree(connID); err != nil {
			return nil, rm.ID(), err
		}
	}
	seat, err := rm.Join(connID)
	if err != nil {
		return nil, rm.ID(), err
	}
	h.gw.Bind(connID, rm.ID(), seat)
	return omokdto.SeatResponse{Seat: seat.String(), BoardState: ToBoardState(rm.Snapshot())}, rm.ID(), nil
}

func (h *Handler) makeMove(connID string, r MakeMove) (any, string, error) {
	rm, seat, err := h.seated(connID)
	if err != nil {
		return nil, "", err
	}
	res, err := rm.Move(seat, r.Row, r.Col)
	if err != nil {
		return nil, rm.ID(), err
	}
	out := omokdto.MakeMoveResponse{
		Row:      res.Move.Row,
		Col:      res.Move.Col,
		Seat:     res.Move.Seat.String(),
		NextTurn: res.NextTurn.String(),
		Finished: res.Finished,
	}
	if res.Finished {
		out.Winner = winnerPtr(res.Winner)
		out.Reason = string(res.Reason)
	}
	return out, rm.ID(), nil
}

func (h *Handler) gameState(connID string, r GetGameState) (any, string, error) {
	if r.RoomID != "" {
		rm, ok := h.reg.Get(r.RoomID)
		if !ok {
			return nil, r.RoomID, room.ErrRoomNotFound
		}
		return omokdto.SeatResponse{Seat: rm.SeatOf(connID).String(), BoardState: ToBoardState(rm.Snapshot())}, rm.ID(), nil
	}
	rm, b, err := h.gw.Room(connID)
	if err != nil {
		return nil, "", err
	}
	return omokdto.SeatResponse{Seat: b.Seat.String(), BoardState: ToBoardState(rm.Snapshot())}, rm.ID(), nil
}

// seated resolves connID to its room and the seat the room says it holds.
func (h *Handler) seated(connID string) (*room.Room, omok.Seat, error) {
	rm, _, err := h.gw.Room(connID)
	if err != nil {
		return nil, omok.NoSeat, err
	}
	seat := rm.SeatOf(connID)
	if seat == omok.NoSeat {
		return nil, omok.NoSeat, room.ErrNotAPlayer
	}
	return rm, seat, nil
}

func (h *Handler) fail(id, roomID string, err error) omokdto.Ack {
	code := CodeOf(err)
	detail := ""
	var bad *BadRequestError
	if errors.As(err, &bad) {
		detail = bad.Detail
	}
	if code == omokdto.CodeInternal {
		h.logger.Error("protocol_internal_error", zap.String("room_id", roomID), zap.Error(err))
	}
	return omokdto.Fail(id, code, h.message(code, detail, roomID))
}

func (h *Handler) message(code, detail, roomID string) string {
	data := map[string]string{"Detail": detail, "RoomID": roomID}
	return h.cat.Text("ack."+code, data, code)
}

// CodeOf maps an error to its wire code. Unknown errors are Internal.
func CodeOf(err error) string {
	var bad *BadRequestError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &bad):
		return omokdto.CodeBadRequest
	case errors.Is(err, session.ErrAlreadyInRoom):
		return omokdto.CodeAlreadyInRoom
	case errors.Is(err, room.ErrRoomNotFound):
		return omokdto.CodeRoomNotFound
	case errors.Is(err, room.ErrRoomFull):
		return omokdto.CodeRoomFull
	case errors.Is(err, room.ErrAlreadyStarted):
		return omokdto.CodeAlreadyStarted
	case errors.Is(err, room.ErrNotAPlayer):
		return omokdto.CodeNotAPlayer
	case errors.Is(err, room.ErrNotYourTurn):
		return omokdto.CodeNotYourTurn
	case errors.Is(err, room.ErrGameNotActive):
		return omokdto.CodeGameNotActive
	case errors.Is(err, room.ErrOutOfBounds):
		return omokdto.CodeOutOfBounds
	case errors.Is(err, room.ErrCellOccupied):
		return omokdto.CodeCellOccupied
	case errors.Is(err, room.ErrNoActiveGame):
		return omokdto.CodeNoActiveGame
	case errors.Is(err, room.ErrGameStillActive):
		return omokdto.CodeGameStillActive
	case errors.Is(err, room.ErrMissingOpponent):
		return omokdto.CodeMissingOpponent
	case errors.Is(err, room.ErrNotInRoom):
		return omokdto.CodeNotInRoom
	default:
		return omokdto.CodeInternal
	}
}
